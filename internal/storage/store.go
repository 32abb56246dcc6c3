// Package storage holds the chat backend's rooms, members and message
// history, and seeds them from fixture files.
package storage

import (
	"context"

	"github.com/nfrund/classroom/internal/domain"
)

// Store defines the persistence contract of the development chat server.
type Store interface {
	Room(ctx context.Context, roomID string) (domain.Room, error)
	Rooms(ctx context.Context) ([]domain.Room, error)
	Member(ctx context.Context, userID string) (domain.Member, error)
	Messages(ctx context.Context, roomID string) ([]domain.Message, error)
	AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error)
}
