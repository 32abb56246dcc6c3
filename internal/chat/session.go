// Package chat implements the controller behind one open chat room view. A
// Session merges room history and live transport events into view state,
// expires typing indicators and keeps the local-only reaction, reply and edit
// overlay.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nfrund/classroom/internal/domain"
	"github.com/nfrund/classroom/internal/transport"
)

// Transport is the part of the websocket client a Session depends on.
type Transport interface {
	Connect(ctx context.Context) error
	JoinRoom(ctx context.Context, roomID, userID string) error
	LeaveRoom(ctx context.Context, roomID, userID string) error
	SendMessage(ctx context.Context, roomID, userID, content string) error
	SendTyping(ctx context.Context, roomID, userID string, isTyping bool) error

	OnNewMessage(fn func(domain.Message)) func()
	OnTyping(fn func(transport.TypingEvent)) func()
	OnUserJoined(fn func(transport.PresenceEvent)) func()
	OnUserLeft(fn func(transport.PresenceEvent)) func()
	OnRoomInfo(fn func(transport.RoomInfoEvent)) func()
	OnError(fn func(transport.ErrorEvent)) func()
	OnConnectionFailed(fn func(transport.ErrorEvent)) func()
}

// HistoryLoader fetches room metadata and the first page of history.
type HistoryLoader interface {
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
	ListMessages(ctx context.Context, roomID string) ([]domain.Message, error)
}

// Status is the lifecycle state of a Session.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Option configures a Session.
type Option func(*Session)

// WithTypingExpiry overrides how long a typing indicator lives without a
// renewing signal.
func WithTypingExpiry(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.typing.expiry = d
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// Session is the live view state for one open chat room.
type Session struct {
	roomID    string
	userID    string
	transport Transport
	loader    HistoryLoader
	logger    *slog.Logger

	mu           sync.Mutex
	started      bool
	closed       bool
	alive        bool // checked before every mutation triggered by a callback
	connected    bool
	status       Status
	roomName     string
	messages     []domain.Message
	typing       *typingSet
	participants *roster
	overlay      *overlay
	fetchErr     error
	transportErr error
	unsubscribe  []func()
	cancel       context.CancelFunc

	ready     chan struct{}
	readyOnce sync.Once
	updates   chan struct{}
}

// NewSession creates an idle session for roomID as userID.
func NewSession(t Transport, loader HistoryLoader, roomID, userID string, opts ...Option) *Session {
	s := &Session{
		roomID:       roomID,
		userID:       userID,
		transport:    t,
		loader:       loader,
		logger:       slog.Default(),
		status:       StatusIdle,
		typing:       newTypingSet(DefaultTypingExpiry),
		participants: newRoster(),
		overlay:      newOverlay(),
		ready:        make(chan struct{}),
		updates:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "session", "room_id", roomID, "user_id", userID)
	return s
}

// Ready is closed once the history fetch and the connect attempt have both
// settled, or immediately after a failed Start.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Updates delivers a coalesced notification after every state change. It is
// closed by Close.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// Start subscribes to transport events, loads history and joins the room.
// Missing ids put the session in StatusError; failures never escape as
// errors, they are reported through Snapshot. Start runs at most once.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true

	var missing error
	switch {
	case s.roomID == "":
		missing = domain.ErrMissingRoom
	case s.userID == "":
		missing = domain.ErrMissingUser
	}
	if missing != nil {
		s.status = StatusError
		s.fetchErr = missing
		s.notifyLocked()
		s.mu.Unlock()
		s.logger.Warn("Cannot start chat session", "error", missing)
		s.markReady()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.alive = true
	s.status = StatusLoading
	s.subscribeLocked()
	s.notifyLocked()
	s.mu.Unlock()

	s.logger.Info("Starting chat session")
	go s.load(ctx)
}

func (s *Session) subscribeLocked() {
	s.unsubscribe = append(s.unsubscribe,
		s.transport.OnNewMessage(s.handleNewMessage),
		s.transport.OnTyping(s.handleTyping),
		s.transport.OnUserJoined(s.handleUserJoined),
		s.transport.OnUserLeft(s.handleUserLeft),
		s.transport.OnRoomInfo(s.handleRoomInfo),
		s.transport.OnError(s.handleError),
		s.transport.OnConnectionFailed(s.handleConnectionFailed),
	)
}

func (s *Session) load(ctx context.Context) {
	defer s.markReady()

	var g errgroup.Group
	g.Go(func() error {
		s.loadHistory(ctx)
		return nil
	})
	g.Go(func() error {
		s.connect(ctx)
		return nil
	})
	_ = g.Wait()
}

func (s *Session) loadHistory(ctx context.Context) {
	var (
		room    *domain.Room
		history []domain.Message
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := s.loader.GetRoom(gctx, s.roomID)
		if err != nil {
			return fmt.Errorf("failed to load room: %w", err)
		}
		room = r
		return nil
	})
	g.Go(func() error {
		msgs, err := s.loader.ListMessages(gctx, s.roomID)
		if err != nil {
			return fmt.Errorf("failed to load messages: %w", err)
		}
		history = msgs
		return nil
	})
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return
	}
	if err != nil {
		s.status = StatusError
		s.fetchErr = err
		s.logger.Error("Failed to load chat history", "error", err)
		s.notifyLocked()
		return
	}

	s.roomName = s.roomID
	if room != nil && room.Name != "" {
		s.roomName = room.Name
	}

	loaded := make([]domain.Message, 0, len(history)+len(s.messages))
	seen := make(map[string]struct{}, len(history))
	for _, m := range history {
		m = m.Normalize()
		if m.ID != "" {
			seen[m.ID] = struct{}{}
		}
		loaded = append(loaded, m)
	}
	domain.SortChronological(loaded)
	// Live messages that arrived while loading stay after the history.
	// Index keys shift with them, and the overlay follows.
	moves := make(map[string]string)
	for i, m := range s.messages {
		if _, dup := seen[m.ID]; dup && m.ID != "" {
			continue
		}
		if from, to := m.Key(i), m.Key(len(loaded)); from != to {
			moves[from] = to
		}
		loaded = append(loaded, m)
	}
	s.messages = loaded
	s.overlay.rekey(moves)
	s.status = StatusReady
	s.logger.Info("Chat history loaded", "messages", len(history))
	s.notifyLocked()
}

func (s *Session) connect(ctx context.Context) {
	if err := s.transport.Connect(ctx); err != nil {
		s.setTransportErr(fmt.Errorf("failed to connect: %w", err))
		return
	}
	if err := s.transport.JoinRoom(ctx, s.roomID, s.userID); err != nil {
		s.setTransportErr(fmt.Errorf("failed to join room: %w", err))
		return
	}

	s.mu.Lock()
	alive := s.alive
	if alive {
		s.connected = true
		s.notifyLocked()
	}
	s.mu.Unlock()

	if !alive {
		// Close ran while joining; undo the join it could not send.
		if err := s.transport.LeaveRoom(context.Background(), s.roomID, s.userID); err != nil {
			s.logger.Debug("Leave after late join failed", "error", err)
		}
		return
	}
	s.logger.Info("Joined chat room")
}

func (s *Session) setTransportErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return
	}
	s.transportErr = err
	s.connected = false
	s.logger.Warn("Chat transport error", "error", err)
	s.notifyLocked()
}

// Close leaves the room, stops every typing timer and drops all
// subscriptions. Events and fetch results arriving afterwards are ignored.
// Close is idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	wasAlive := s.alive
	s.alive = false
	s.typing.stopAll()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	cancel := s.cancel
	close(s.updates)
	s.mu.Unlock()

	for _, unsub := range unsubscribe {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	s.markReady()

	if !wasAlive {
		return nil
	}
	s.logger.Info("Closing chat session")
	err := s.transport.LeaveRoom(ctx, s.roomID, s.userID)
	if errors.Is(err, transport.ErrNotConnected) || errors.Is(err, transport.ErrClosed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}
	return nil
}

// SendMessage emits content to the room. Blank content is ignored. The
// message is not inserted locally; it arrives back as a new-message event.
func (s *Session) SendMessage(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.transport.SendMessage(ctx, s.roomID, s.userID, content); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// SendTyping tells the room whether the local user is typing. Local state
// is not touched.
func (s *Session) SendTyping(ctx context.Context, isTyping bool) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.transport.SendTyping(ctx, s.roomID, s.userID, isTyping); err != nil {
		return fmt.Errorf("failed to send typing signal: %w", err)
	}
	return nil
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return domain.ErrSessionClosed
	}
	return nil
}

func (s *Session) handleNewMessage(m domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive || m.RoomID != s.roomID {
		return
	}
	s.messages = append(s.messages, m.Normalize())
	s.notifyLocked()
}

func (s *Session) handleTyping(e transport.TypingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive || e.RoomID != s.roomID || e.UserID == "" || e.UserID == s.userID {
		return
	}

	if !e.IsTyping {
		if s.typing.remove(e.UserID) {
			s.notifyLocked()
		}
		return
	}

	username := e.Username
	if username == "" {
		username = domain.UnknownUsername
	}
	s.typing.upsert(domain.TypingEntry{UserID: e.UserID, Username: username}, s.expireTyping)
	s.notifyLocked()
}

func (s *Session) expireTyping(userID string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return
	}
	if s.typing.expire(userID, gen) {
		s.notifyLocked()
	}
}

func (s *Session) handleUserJoined(e transport.PresenceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive || e.RoomID != s.roomID {
		return
	}
	s.participants.add(domain.User{ID: e.UserID, Username: e.Username})
	s.notifyLocked()
}

func (s *Session) handleUserLeft(e transport.PresenceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive || e.RoomID != s.roomID {
		return
	}
	s.participants.remove(e.UserID)
	s.typing.remove(e.UserID)
	s.notifyLocked()
}

func (s *Session) handleRoomInfo(e transport.RoomInfoEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive || e.RoomID != s.roomID {
		return
	}
	if e.Name != "" {
		s.roomName = e.Name
	}
	s.participants.reset(e.Participants)
	s.notifyLocked()
}

func (s *Session) handleError(e transport.ErrorEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive || (e.RoomID != "" && e.RoomID != s.roomID) {
		return
	}
	s.transportErr = &ServerError{Code: e.Code, Message: e.Message}
	s.logger.Warn("Chat server reported an error", "code", e.Code, "message", e.Message)
	s.notifyLocked()
}

func (s *Session) handleConnectionFailed(e transport.ErrorEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return
	}
	s.connected = false
	s.transportErr = &ServerError{Code: e.Code, Message: e.Message}
	s.logger.Error("Chat connection lost", "error", e.Message)
	s.notifyLocked()
}

func (s *Session) notifyLocked() {
	if s.closed {
		return
	}
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func (s *Session) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}
