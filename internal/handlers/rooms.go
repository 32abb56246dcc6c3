package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/classroom/internal/domain"
	"github.com/nfrund/classroom/internal/middleware"
)

// RoomStore is the read side of the chat store.
type RoomStore interface {
	Room(ctx context.Context, roomID string) (domain.Room, error)
	Rooms(ctx context.Context) ([]domain.Room, error)
	Member(ctx context.Context, userID string) (domain.Member, error)
	Messages(ctx context.Context, roomID string) ([]domain.Message, error)
}

// RoomHandler serves room metadata and history.
type RoomHandler struct {
	store RoomStore
}

// NewRoomHandler creates a new RoomHandler.
func NewRoomHandler(store RoomStore) *RoomHandler {
	return &RoomHandler{store: store}
}

// ListRooms handles GET /api/rooms.
func (h *RoomHandler) ListRooms(c echo.Context) error {
	rooms, err := h.store.Rooms(c.Request().Context())
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusOK, rooms)
}

// GetRoom handles GET /api/rooms/:id.
func (h *RoomHandler) GetRoom(c echo.Context) error {
	room, err := h.store.Room(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusOK, room)
}

// ListMessages handles GET /api/rooms/:id/messages. Messages are returned
// oldest first.
func (h *RoomHandler) ListMessages(c echo.Context) error {
	var req ListMessagesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msgs, err := h.store.Messages(c.Request().Context(), req.RoomID)
	if err != nil {
		return storeError(c, err)
	}
	if req.Limit > 0 && len(msgs) > req.Limit {
		msgs = msgs[len(msgs)-req.Limit:]
	}

	middleware.FromContext(c.Request().Context()).Debug("Listed room history", "room_id", req.RoomID, "count", len(msgs))
	return c.JSON(http.StatusOK, msgs)
}

func storeError(c echo.Context, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "room not found")
	}
	middleware.FromContext(c.Request().Context()).Error("Store request failed", "path", c.Path(), "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}
