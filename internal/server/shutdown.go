package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WaitForShutdown blocks until an interrupt or terminate signal is received
// or ctx ends.
func WaitForShutdown(ctx context.Context) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
}

// Shutdown stops accepting requests, closes every chat connection and stops
// the bus. Later calls return the first result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(ctx)
	})
	return s.shutdownErr
}

func (s *Server) shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down chat server")
	err := s.E.Shutdown(ctx)

	s.Bridge.Shutdown()
	if s.cancel != nil {
		s.cancel()
	}
	s.Presence.Shutdown()
	if closeErr := s.PubSub.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
