// Package presence tracks which users are connected to which chat rooms and
// announces arrivals and departures on the bus.
package presence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nfrund/classroom/internal/pubsub"
)

const (
	// OfflineDebounceDelay is how long a user with no remaining connections
	// stays in a room before the departure is announced. It absorbs page
	// reloads and client reconnects. Override with WithOfflineDebounce.
	OfflineDebounceDelay = 3 * time.Second
)

// Status says whether a Change is an arrival or a departure.
type Status string

const (
	StatusJoined Status = "joined"
	StatusLeft   Status = "left"
)

// Change is published on TopicRoomPresence whenever a user enters or leaves a room.
type Change struct {
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// TopicRoomPresence carries every presence change for all rooms.
var TopicRoomPresence = pubsub.NewEvent[Change]("chat.presence")

type member struct {
	clients map[string]struct{}
	since   time.Time
	offline *time.Timer
}

type roomUser struct {
	roomID string
	userID string
}

// Service tracks room membership per connection.
type Service struct {
	mu      sync.Mutex
	rooms   map[string]map[string]*member // roomID -> userID -> member
	clients map[string]map[roomUser]struct{}
	closed  bool

	publisher            pubsub.Publisher
	logger               *slog.Logger
	offlineDebounceDelay time.Duration
}

// Option is a function that configures a Service.
type Option func(*Service)

// WithOfflineDebounce sets the departure debounce. Zero announces departures
// immediately, which is useful for testing.
func WithOfflineDebounce(d time.Duration) Option {
	return func(s *Service) {
		s.offlineDebounceDelay = d
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Now returns the current time in UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// NewService creates a presence service publishing changes to publisher.
func NewService(publisher pubsub.Publisher, opts ...Option) *Service {
	svc := &Service{
		rooms:                make(map[string]map[string]*member),
		clients:              make(map[string]map[roomUser]struct{}),
		publisher:            publisher,
		logger:               slog.Default(),
		offlineDebounceDelay: OfflineDebounceDelay,
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.logger = svc.logger.With("service", "presence")
	return svc
}

// Join records that clientID has userID in roomID. A user's first connection
// to a room publishes a joined change. Reconnecting within the debounce
// window publishes nothing.
func (s *Service) Join(ctx context.Context, roomID, userID, clientID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	users := s.rooms[roomID]
	if users == nil {
		users = make(map[string]*member)
		s.rooms[roomID] = users
	}

	key := roomUser{roomID: roomID, userID: userID}
	if s.clients[clientID] == nil {
		s.clients[clientID] = make(map[roomUser]struct{})
	}
	s.clients[clientID][key] = struct{}{}

	m, exists := users[userID]
	if exists {
		if m.offline != nil {
			m.offline.Stop()
			m.offline = nil
			s.logger.Info("Cancelled departure due to reconnection", "room_id", roomID, "user_id", userID, "client_id", clientID)
		}
		m.clients[clientID] = struct{}{}
		s.mu.Unlock()
		return
	}

	users[userID] = &member{
		clients: map[string]struct{}{clientID: {}},
		since:   Now(),
	}
	s.logger.Info("User joined room", "room_id", roomID, "user_id", userID, "client_id", clientID)
	s.mu.Unlock()

	s.publish(ctx, Change{RoomID: roomID, UserID: userID, Status: StatusJoined, Timestamp: Now()})
}

// Leave removes clientID from roomID. When the user has no connections left
// the departure is published after the debounce delay.
func (s *Service) Leave(ctx context.Context, roomID, userID, clientID string) {
	s.mu.Lock()
	change, ok := s.removeLocked(roomUser{roomID: roomID, userID: userID}, clientID)
	s.mu.Unlock()

	if ok {
		s.publish(ctx, change)
	}
}

// Disconnect removes clientID from every room it joined.
func (s *Service) Disconnect(ctx context.Context, clientID string) {
	s.mu.Lock()
	keys := s.clients[clientID]
	var changes []Change
	for key := range keys {
		if change, ok := s.removeLocked(key, clientID); ok {
			changes = append(changes, change)
		}
	}
	delete(s.clients, clientID)
	s.mu.Unlock()

	for _, change := range changes {
		s.publish(ctx, change)
	}
}

// removeLocked drops one connection. It returns a change to publish right
// away when the departure is not debounced.
func (s *Service) removeLocked(key roomUser, clientID string) (Change, bool) {
	if keys := s.clients[clientID]; keys != nil {
		delete(keys, key)
		if len(keys) == 0 {
			delete(s.clients, clientID)
		}
	}

	m, exists := s.rooms[key.roomID][key.userID]
	if !exists {
		return Change{}, false
	}
	if _, ok := m.clients[clientID]; !ok {
		return Change{}, false
	}
	delete(m.clients, clientID)
	if len(m.clients) > 0 {
		s.logger.Debug("Connection left room", "room_id", key.roomID, "user_id", key.userID, "client_id", clientID, "remaining_connections", len(m.clients))
		return Change{}, false
	}

	if s.offlineDebounceDelay == 0 || s.closed {
		s.deleteMemberLocked(key)
		s.logger.Info("User left room", "room_id", key.roomID, "user_id", key.userID)
		return Change{RoomID: key.roomID, UserID: key.userID, Status: StatusLeft, Timestamp: Now()}, true
	}

	if m.offline != nil {
		m.offline.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(s.offlineDebounceDelay, func() {
		s.handleDebouncedLeave(key, timer)
	})
	m.offline = timer
	s.logger.Debug("Scheduling departure", "room_id", key.roomID, "user_id", key.userID, "debounce_delay", s.offlineDebounceDelay)
	return Change{}, false
}

// handleDebouncedLeave announces a departure unless the user reconnected or
// a newer timer replaced this one.
func (s *Service) handleDebouncedLeave(key roomUser, timer *time.Timer) {
	s.mu.Lock()
	m, exists := s.rooms[key.roomID][key.userID]
	if !exists || m.offline != timer || len(m.clients) > 0 {
		s.mu.Unlock()
		return
	}
	s.deleteMemberLocked(key)
	s.logger.Info("User left room after debounce period", "room_id", key.roomID, "user_id", key.userID)
	s.mu.Unlock()

	s.publish(context.Background(), Change{RoomID: key.roomID, UserID: key.userID, Status: StatusLeft, Timestamp: Now()})
}

func (s *Service) deleteMemberLocked(key roomUser) {
	users := s.rooms[key.roomID]
	delete(users, key.userID)
	if len(users) == 0 {
		delete(s.rooms, key.roomID)
	}
}

// Members returns the users present in roomID, earliest arrival first. Users
// inside the departure debounce window are still listed.
func (s *Service) Members(roomID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := s.rooms[roomID]
	ids := make([]string, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := users[ids[i]], users[ids[j]]
		if !a.since.Equal(b.since) {
			return a.since.Before(b.since)
		}
		return ids[i] < ids[j]
	})
	return ids
}

// IsPresent reports whether userID is in roomID.
func (s *Service) IsPresent(roomID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[roomID][userID]
	return ok
}

func (s *Service) publish(ctx context.Context, change Change) {
	if err := pubsub.Publish(ctx, s.publisher, TopicRoomPresence, change); err != nil {
		s.logger.Error("Failed to publish presence change",
			"error", err,
			"room_id", change.RoomID,
			"user_id", change.UserID,
			"status", change.Status)
	}
}

// Shutdown stops pending departure timers. Later calls to Join are ignored.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, users := range s.rooms {
		for _, m := range users {
			if m.offline != nil {
				m.offline.Stop()
				m.offline = nil
			}
		}
	}
}
