package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/nfrund/classroom/internal/domain"
	"github.com/nfrund/classroom/internal/transport"
)

type roomSubscription struct {
	userID string
	cancel context.CancelFunc
}

// Client represents a single connected WebSocket client.
type Client struct {
	// ID uniquely identifies the connection.
	ID string
	// member is set when the connection was bound to a user at upgrade time.
	member *domain.Member

	conn   *websocket.Conn
	bridge *Bridge
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	send  chan []byte
	rooms map[string]roomSubscription
}

// SendMessage queues a frame for the client. Frames are dropped when the
// buffer is full or the client is gone.
func (c *Client) SendMessage(msg []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.send == nil {
		return
	}

	select {
	case c.send <- msg:
	default:
		c.logger.Warn("Client send channel full, dropping message")
	}
}

// Close safely closes the client's send channel, which ends the write pump.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.send != nil {
		close(c.send)
		c.send = nil
	}
}

func (c *Client) sendEvent(eventType string, payload any) error {
	env, err := transport.NewEnvelope(eventType, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.SendMessage(data)
	return nil
}

func (c *Client) sendError(roomID, code, message string) {
	if err := c.sendEvent(transport.EventError, transport.ErrorEvent{RoomID: roomID, Code: code, Message: message}); err != nil {
		c.logger.Error("Failed to encode error event", "error", err)
	}
}

// resolveUser picks the acting user for a signal. A bound connection may
// only act as its own user.
func (c *Client) resolveUser(roomID, signalUserID string) (string, error) {
	if c.member != nil {
		if signalUserID != "" && signalUserID != c.member.ID {
			return "", reject(roomID, CodePermissionDenied, domain.ErrPermissionDenied)
		}
		return c.member.ID, nil
	}
	if signalUserID == "" {
		return "", reject(roomID, CodeBadRequest, domain.ErrMissingUser)
	}
	return signalUserID, nil
}

func (c *Client) roomUser(roomID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sub, ok := c.rooms[roomID]
	return sub.userID, ok
}

func (c *Client) addRoom(roomID, userID string, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[roomID] = roomSubscription{userID: userID, cancel: cancel}
}

func (c *Client) removeRoom(roomID string) (roomSubscription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.rooms[roomID]
	delete(c.rooms, roomID)
	return sub, ok
}

// readPump feeds inbound frames to the bridge until the connection ends.
func (c *Client) readPump() {
	defer c.bridge.unregister(c)

	for {
		_, message, err := c.conn.Read(c.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				c.logger.Info("WebSocket closed normally by client")
			case errors.Is(err, io.EOF) || errors.Is(err, context.Canceled):
			default:
				c.logger.Error("WebSocket read error", "error", err)
			}
			return
		}

		c.bridge.handleFrame(c.ctx, c, message)
	}
}

// writePump pumps messages from the client's send channel to the WebSocket connection.
func (c *Client) writePump() {
	defer c.conn.Close(websocket.StatusNormalClosure, "Server-side cleanup")

	c.mu.RLock()
	send := c.send
	c.mu.RUnlock()

	for message := range send {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		err := c.conn.Write(ctx, websocket.MessageText, message)
		cancel()
		if err != nil {
			c.logger.Error("WebSocket write error", "error", err)
			return
		}
	}
}
