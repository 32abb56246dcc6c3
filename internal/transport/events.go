package transport

import (
	"encoding/json"
	"fmt"

	"github.com/nfrund/classroom/internal/domain"
)

// Server → client events.
const (
	EventNewMessage = "new-message"
	EventUserTyping = "user-typing"
	EventUserJoined = "user-joined"
	EventUserLeft   = "user-left"
	EventRoomInfo   = "room-info"
	EventError      = "error"
)

// Client → server signals.
const (
	SignalJoinRoom    = "join-room"
	SignalLeaveRoom   = "leave-room"
	SignalSendMessage = "send-message"
	SignalTyping      = "typing"
)

// eventConnectionFailed is raised locally when reconnection gives up. It never
// travels over the wire.
const eventConnectionFailed = "connection-failed"

// Envelope is the frame exchanged over the socket in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an Envelope of the given type.
func NewEnvelope(eventType string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{Type: eventType, Payload: data}, nil
}

// RoomSignal is the payload of join-room and leave-room.
type RoomSignal struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// SendMessageSignal is the payload of send-message.
type SendMessageSignal struct {
	RoomID  string `json:"roomId"`
	UserID  string `json:"userId"`
	Content string `json:"content"`
}

// TypingSignal is the payload of the typing signal.
type TypingSignal struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// TypingEvent is the payload of user-typing.
type TypingEvent struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// PresenceEvent is the payload of user-joined and user-left.
type PresenceEvent struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

// RoomInfoEvent describes a room and who is currently in it.
type RoomInfoEvent struct {
	RoomID       string        `json:"roomId"`
	Name         string        `json:"name"`
	Participants []domain.User `json:"participants"`
}

// ErrorEvent carries a server-side or connection failure.
type ErrorEvent struct {
	RoomID  string `json:"roomId,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
