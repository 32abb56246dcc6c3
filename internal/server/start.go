package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Boot starts the background relays the WebSocket endpoint depends on. It
// must run before clients connect.
func (s *Server) Boot(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	if err := s.Bridge.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to start websocket bridge: %w", err)
	}
	s.cancel = cancel
	return nil
}

// Start boots the server and serves HTTP on addr until Shutdown is called.
func (s *Server) Start(ctx context.Context, addr string) error {
	if err := s.Boot(ctx); err != nil {
		return err
	}

	s.logger.Info("Chat server listening", "addr", addr)
	if err := s.E.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutting down the server: %w", err)
	}
	return nil
}
