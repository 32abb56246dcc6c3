package transport

import "errors"

var (
	// ErrNotConnected is returned when a signal is sent without a live socket.
	ErrNotConnected = errors.New("transport is not connected")
	// ErrClosed is returned once the client has been closed.
	ErrClosed = errors.New("transport is closed")
	// ErrReconnectFailed is reported when the reconnection budget is spent.
	ErrReconnectFailed = errors.New("reconnection attempts exhausted")
)
