package websocket

import (
	"errors"
	"fmt"
)

// Error codes sent to clients in error events.
const (
	CodeBadRequest       = "bad_request"
	CodeUnknownSignal    = "unknown_signal"
	CodeRoomNotFound     = "room_not_found"
	CodeNotInRoom        = "not_in_room"
	CodePermissionDenied = "permission_denied"
	CodeInvalidMessage   = "invalid_message"
	CodeInternal         = "internal"
)

// ErrNotInRoom is returned for room signals sent before joining the room.
var ErrNotInRoom = errors.New("join the room first")

// SignalError is a rejected client signal. It is reported to the sender as an
// error event and never closes the connection.
type SignalError struct {
	RoomID string
	Code   string
	Err    error
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *SignalError) Unwrap() error {
	return e.Err
}

func reject(roomID, code string, err error) *SignalError {
	return &SignalError{RoomID: roomID, Code: code, Err: err}
}
