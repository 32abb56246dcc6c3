package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/nfrund/classroom/internal/domain"
	"github.com/nfrund/classroom/internal/pubsub"
	"github.com/nfrund/classroom/internal/transport"
)

type signalHandler func(ctx context.Context, c *Client, payload json.RawMessage) error

// handleFrame decodes one inbound frame and runs its signal handler. Failures
// are reported to the sender as error events.
func (b *Bridge) handleFrame(ctx context.Context, c *Client, data []byte) {
	var env transport.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		c.sendError("", CodeBadRequest, "malformed frame")
		return
	}

	handler, ok := b.signals[env.Type]
	if !ok {
		c.sendError("", CodeUnknownSignal, fmt.Sprintf("unknown signal %q", env.Type))
		return
	}

	err := handler(ctx, c, env.Payload)
	if err == nil {
		return
	}
	var signalErr *SignalError
	if errors.As(err, &signalErr) {
		c.logger.Debug("Rejected signal", "signal", env.Type, "room_id", signalErr.RoomID, "code", signalErr.Code, "error", signalErr.Err)
		c.sendError(signalErr.RoomID, signalErr.Code, signalErr.Err.Error())
		return
	}
	c.logger.Error("Failed to handle signal", "signal", env.Type, "error", err)
	c.sendError("", CodeInternal, "internal error")
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return reject("", CodeBadRequest, errors.New("missing payload"))
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return reject("", CodeBadRequest, fmt.Errorf("invalid payload: %w", err))
	}
	return nil
}

// memberOf returns the user c acts as in roomID, rejecting signals for rooms
// the connection has not joined.
func (c *Client) memberOf(roomID, signalUserID string) (string, error) {
	if roomID == "" {
		return "", reject("", CodeBadRequest, domain.ErrMissingRoom)
	}
	userID, err := c.resolveUser(roomID, signalUserID)
	if err != nil {
		return "", err
	}
	joined, ok := c.roomUser(roomID)
	if !ok || joined != userID {
		return "", reject(roomID, CodeNotInRoom, ErrNotInRoom)
	}
	return userID, nil
}

func (b *Bridge) handleJoinRoom(ctx context.Context, c *Client, raw json.RawMessage) error {
	var sig transport.RoomSignal
	if err := decode(raw, &sig); err != nil {
		return err
	}
	if sig.RoomID == "" {
		return reject("", CodeBadRequest, domain.ErrMissingRoom)
	}
	userID, err := c.resolveUser(sig.RoomID, sig.UserID)
	if err != nil {
		return err
	}

	room, err := b.store.Room(ctx, sig.RoomID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return reject(sig.RoomID, CodeRoomNotFound, err)
		}
		return err
	}

	current, joined := c.roomUser(room.ID)
	if joined && current != userID {
		b.leaveRoom(ctx, c, room.ID)
		joined = false
	}
	if !joined {
		subCtx, cancel := context.WithCancel(c.ctx)
		err := b.subscriber.Subscribe(subCtx, RoomEvents.Topic(room.ID), func(ctx context.Context, msg pubsub.Message) error {
			c.SendMessage(msg.Payload)
			return nil
		})
		if err != nil {
			cancel()
			return fmt.Errorf("failed to subscribe to room %s: %w", room.ID, err)
		}
		c.addRoom(room.ID, userID, cancel)
		b.presence.Join(ctx, room.ID, userID, c.ID)
		c.logger.Info("Joined room", "room_id", room.ID, "as", userID)
	}

	return c.sendEvent(transport.EventRoomInfo, transport.RoomInfoEvent{
		RoomID:       room.ID,
		Name:         room.Name,
		Participants: b.participants(ctx, room.ID),
	})
}

func (b *Bridge) handleLeaveRoom(ctx context.Context, c *Client, raw json.RawMessage) error {
	var sig transport.RoomSignal
	if err := decode(raw, &sig); err != nil {
		return err
	}
	if sig.RoomID == "" {
		return reject("", CodeBadRequest, domain.ErrMissingRoom)
	}
	b.leaveRoom(ctx, c, sig.RoomID)
	return nil
}

func (b *Bridge) leaveRoom(ctx context.Context, c *Client, roomID string) {
	sub, ok := c.removeRoom(roomID)
	if !ok {
		return
	}
	sub.cancel()
	b.presence.Leave(ctx, roomID, sub.userID, c.ID)
	c.logger.Info("Left room", "room_id", roomID)
}

func (b *Bridge) handleSendMessage(ctx context.Context, c *Client, raw json.RawMessage) error {
	var sig transport.SendMessageSignal
	if err := decode(raw, &sig); err != nil {
		return err
	}
	userID, err := c.memberOf(sig.RoomID, sig.UserID)
	if err != nil {
		return err
	}

	member, err := b.store.Member(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return reject(sig.RoomID, CodePermissionDenied, domain.ErrPermissionDenied)
	case err != nil:
		return err
	case !member.Role.AtLeast(domain.RoleStudent):
		return reject(sig.RoomID, CodePermissionDenied, domain.ErrPermissionDenied)
	}

	lock := b.roomLock(sig.RoomID)
	lock.Lock()
	defer lock.Unlock()

	msg, err := b.store.AppendMessage(ctx, domain.Message{
		RoomID:  sig.RoomID,
		UserID:  userID,
		Content: sig.Content,
	})
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.Is(err, domain.ErrEmptyMessage) || errors.As(err, &verrs) {
			return reject(sig.RoomID, CodeInvalidMessage, err)
		}
		return fmt.Errorf("failed to store message: %w", err)
	}
	return b.broadcast(ctx, sig.RoomID, transport.EventNewMessage, msg)
}

func (b *Bridge) handleTyping(ctx context.Context, c *Client, raw json.RawMessage) error {
	var sig transport.TypingSignal
	if err := decode(raw, &sig); err != nil {
		return err
	}
	userID, err := c.memberOf(sig.RoomID, sig.UserID)
	if err != nil {
		return err
	}

	user := b.lookupUser(ctx, userID)
	return b.broadcast(ctx, sig.RoomID, transport.EventUserTyping, transport.TypingEvent{
		RoomID:   sig.RoomID,
		UserID:   userID,
		Username: user.Username,
		IsTyping: sig.IsTyping,
	})
}
