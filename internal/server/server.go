// Package server assembles the development chat backend: the room REST API,
// the WebSocket endpoint and the services behind them.
package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/nfrund/classroom/internal/config"
	"github.com/nfrund/classroom/internal/handlers"
	"github.com/nfrund/classroom/internal/middleware"
	"github.com/nfrund/classroom/internal/presence"
	"github.com/nfrund/classroom/internal/pubsub"
	"github.com/nfrund/classroom/internal/storage"
	"github.com/nfrund/classroom/internal/websocket"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	E        *echo.Echo
	Cfg      *config.Config
	Store    *storage.MemoryStore
	PubSub   *pubsub.WatermillBridge
	Presence *presence.Service
	Bridge   *websocket.Bridge

	logger       *slog.Logger
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a Server and registers its routes.
func New(cfg *config.Config, logger *slog.Logger, store *storage.MemoryStore, bus *pubsub.WatermillBridge, presenceSvc *presence.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewValidator()
	setupErrorHandling(e)

	e.Use(echomw.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.Recover())

	s := &Server{
		E:        e,
		Cfg:      cfg,
		Store:    store,
		PubSub:   bus,
		Presence: presenceSvc,
		Bridge:   websocket.NewBridge(store, presenceSvc, bus, bus, logger),
		logger:   logger.With("component", "server"),
	}
	s.RegisterRoutes()
	return s
}
