package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/classroom/internal/domain"
)

// Roster reports who is in a room.
type Roster interface {
	Members(roomID string) []string
}

// ConnectionCounter reports open chat connections.
type ConnectionCounter interface {
	ClientCount() int
}

// PresenceHandler handles presence-related HTTP requests.
type PresenceHandler struct {
	roster      Roster
	store       RoomStore
	connections ConnectionCounter
}

// NewPresenceHandler creates a new presence handler.
func NewPresenceHandler(roster Roster, store RoomStore, connections ConnectionCounter) *PresenceHandler {
	return &PresenceHandler{
		roster:      roster,
		store:       store,
		connections: connections,
	}
}

// GetRoomPresence handles GET /api/rooms/:id/presence.
func (h *PresenceHandler) GetRoomPresence(c echo.Context) error {
	ctx := c.Request().Context()
	room, err := h.store.Room(ctx, c.Param("id"))
	if err != nil {
		return storeError(c, err)
	}

	ids := h.roster.Members(room.ID)
	users := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		m, err := h.store.Member(ctx, id)
		if err != nil {
			users = append(users, domain.User{ID: id, Username: domain.UnknownUsername})
			continue
		}
		users = append(users, m.User)
	}

	return c.JSON(http.StatusOK, PresenceResponse{
		RoomID:       room.ID,
		Participants: users,
		Count:        len(users),
	})
}

// HealthCheck handles GET /api/health.
func (h *PresenceHandler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Clients: h.connections.ClientCount(),
	})
}
