package server

import (
	"github.com/nfrund/classroom/internal/handlers"
	"github.com/nfrund/classroom/internal/middleware"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	rooms := handlers.NewRoomHandler(s.Store)
	presence := handlers.NewPresenceHandler(s.Presence, s.Store, s.Bridge)

	api := s.E.Group("/api", middleware.RateLimiter(s.Cfg.RateLimit))
	api.GET("/health", presence.HealthCheck)
	api.GET("/rooms", rooms.ListRooms)
	api.GET("/rooms/:id", rooms.GetRoom)
	api.GET("/rooms/:id/messages", rooms.ListMessages)
	api.GET("/rooms/:id/presence", presence.GetRoomPresence)

	s.E.GET("/ws", s.Bridge.Handler(), middleware.Identify(s.Store))
}
