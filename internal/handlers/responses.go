package handlers

import (
	"github.com/nfrund/classroom/internal/domain"
)

// PresenceResponse lists who is currently connected to a room.
type PresenceResponse struct {
	RoomID       string        `json:"roomId"`
	Participants []domain.User `json:"participants"`
	Count        int           `json:"count"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}
