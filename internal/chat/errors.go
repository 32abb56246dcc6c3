package chat

import (
	"errors"
	"fmt"
)

// ErrUnknownMessage is returned by overlay operations given a key that no
// visible message carries.
var ErrUnknownMessage = errors.New("no message with that key")

// ServerError is an error event pushed by the chat server or raised by the
// transport when it gives up reconnecting.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
