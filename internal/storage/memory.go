package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nfrund/classroom/internal/domain"
)

// DefaultHistoryLimit caps how many messages a room keeps.
const DefaultHistoryLimit = 200

// MemoryStore is an in-memory Store suitable for a single process.
type MemoryStore struct {
	mu      sync.RWMutex
	rooms   map[string]domain.Room
	members map[string]domain.Member
	history map[string][]domain.Message
	limit   int
	now     func() time.Time
}

// NewMemoryStore creates an empty store keeping at most limit messages per
// room. A non-positive limit uses DefaultHistoryLimit.
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &MemoryStore{
		rooms:   make(map[string]domain.Room),
		members: make(map[string]domain.Member),
		history: make(map[string][]domain.Message),
		limit:   limit,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// PutRoom creates or replaces a room.
func (s *MemoryStore) PutRoom(room domain.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
}

// PutMember creates or replaces a directory entry.
func (s *MemoryStore) PutMember(m domain.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ID] = m
}

// Room returns a room or domain.ErrNotFound.
func (s *MemoryStore) Room(ctx context.Context, roomID string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}
	return room, nil
}

// Rooms lists every room ordered by id.
func (s *MemoryStore) Rooms(ctx context.Context) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Member returns a directory entry or domain.ErrNotFound.
func (s *MemoryStore) Member(ctx context.Context, userID string) (domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[userID]
	if !ok {
		return domain.Member{}, fmt.Errorf("member %s: %w", userID, domain.ErrNotFound)
	}
	return m, nil
}

// Messages returns a copy of the room history, oldest first.
func (s *MemoryStore) Messages(ctx context.Context, roomID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.rooms[roomID]; !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}
	out := make([]domain.Message, len(s.history[roomID]))
	copy(out, s.history[roomID])
	return out, nil
}

// AppendMessage validates msg, fills in its id, timestamp and author
// details, and appends it to the room history. The oldest messages are
// dropped beyond the history limit.
func (s *MemoryStore) AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if err := msg.Validate(); err != nil {
		return domain.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[msg.RoomID]; !ok {
		return domain.Message{}, fmt.Errorf("room %s: %w", msg.RoomID, domain.ErrNotFound)
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = s.now()
	}
	if m, ok := s.members[msg.UserID]; ok {
		msg.User = m.User
	}
	msg = msg.Normalize()

	h := append(s.history[msg.RoomID], msg)
	if len(h) > s.limit {
		h = append([]domain.Message(nil), h[len(h)-s.limit:]...)
	}
	s.history[msg.RoomID] = h
	return msg, nil
}
