package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/nfrund/classroom/internal/domain"
)

// --- Configuration Constants ---
const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Default time allowed for the opening handshake.
	defaultDialTimeout = 10 * time.Second

	// Largest inbound frame accepted from the server.
	readLimit = 1 << 20
)

// State describes the lifecycle of the underlying connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures a Client.
type Options struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8080/ws.
	URL string

	// MaxReconnectAttempts bounds the redials after an unexpected drop.
	// Zero disables reconnection.
	MaxReconnectAttempts int

	// ReconnectDelay is the fixed pause before every redial.
	ReconnectDelay time.Duration

	// DialTimeout bounds a single handshake.
	DialTimeout time.Duration

	// HTTPHeader is sent with every handshake.
	HTTPHeader http.Header

	Logger *slog.Logger
}

type roomKey struct {
	roomID string
	userID string
}

// Client maintains one persistent websocket connection and multiplexes the
// room-scoped events arriving on it to typed subscribers.
type Client struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	state   State
	dialing chan struct{} // closed when the in-flight (re)dial settles
	dialErr error
	rooms   map[roomKey]struct{}
	done    chan struct{}

	hmu      sync.RWMutex
	handlers map[string]map[uint64]func(json.RawMessage)
	nextID   uint64
}

// NewClient creates a disconnected Client.
func NewClient(opts Options) *Client {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.MaxReconnectAttempts < 0 {
		opts.MaxReconnectAttempts = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		opts:     opts,
		logger:   logger.With("component", "transport", "client_id", uuid.NewString()),
		state:    StateDisconnected,
		rooms:    make(map[roomKey]struct{}),
		done:     make(chan struct{}),
		handlers: make(map[string]map[uint64]func(json.RawMessage)),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes the connection. It is idempotent: when already
// connected it returns nil, and concurrent callers share one handshake.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	}

	if wait := c.dialing; wait != nil {
		c.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.dialErr
	}

	wait := make(chan struct{})
	c.dialing = wait
	c.state = StateConnecting
	c.mu.Unlock()

	conn, err := c.dial(ctx)

	c.mu.Lock()
	if err == nil && c.state == StateClosed {
		conn.CloseNow()
		err = ErrClosed
	}
	switch {
	case err == nil:
		c.conn = conn
		c.state = StateConnected
	case c.state != StateClosed:
		c.state = StateDisconnected
	}
	c.dialing = nil
	c.dialErr = err
	close(wait)
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("Websocket handshake failed", "url", c.opts.URL, "error", err)
		return err
	}

	c.logger.Info("Websocket connected", "url", c.opts.URL)
	go c.run(conn)
	return nil
}

// Close shuts the connection down and stops any reconnection. Subscribers
// stay registered but will not be called again.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	conn := c.conn
	c.conn = nil
	close(c.done)
	c.mu.Unlock()

	c.logger.Info("Closing websocket transport")
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client closed")
	}
	return nil
}

// Shutdown is Close for dependency containers.
func (c *Client) Shutdown() error { return c.Close() }

// JoinRoom signals that userID entered roomID. The room is re-joined
// automatically after a reconnect.
func (c *Client) JoinRoom(ctx context.Context, roomID, userID string) error {
	if err := c.emit(ctx, SignalJoinRoom, RoomSignal{RoomID: roomID, UserID: userID}); err != nil {
		return err
	}
	c.mu.Lock()
	c.rooms[roomKey{roomID, userID}] = struct{}{}
	c.mu.Unlock()
	return nil
}

// LeaveRoom signals that userID left roomID.
func (c *Client) LeaveRoom(ctx context.Context, roomID, userID string) error {
	c.mu.Lock()
	delete(c.rooms, roomKey{roomID, userID})
	c.mu.Unlock()
	return c.emit(ctx, SignalLeaveRoom, RoomSignal{RoomID: roomID, UserID: userID})
}

// SendMessage emits send-message. The resulting message comes back as a
// new-message event.
func (c *Client) SendMessage(ctx context.Context, roomID, userID, content string) error {
	return c.emit(ctx, SignalSendMessage, SendMessageSignal{RoomID: roomID, UserID: userID, Content: content})
}

// SendTyping emits the typing signal.
func (c *Client) SendTyping(ctx context.Context, roomID, userID string, isTyping bool) error {
	return c.emit(ctx, SignalTyping, TypingSignal{RoomID: roomID, UserID: userID, IsTyping: isTyping})
}

// OnNewMessage subscribes to new-message events.
func (c *Client) OnNewMessage(fn func(domain.Message)) func() {
	return subscribe(c, EventNewMessage, fn)
}

// OnTyping subscribes to user-typing events.
func (c *Client) OnTyping(fn func(TypingEvent)) func() {
	return subscribe(c, EventUserTyping, fn)
}

// OnUserJoined subscribes to user-joined events.
func (c *Client) OnUserJoined(fn func(PresenceEvent)) func() {
	return subscribe(c, EventUserJoined, fn)
}

// OnUserLeft subscribes to user-left events.
func (c *Client) OnUserLeft(fn func(PresenceEvent)) func() {
	return subscribe(c, EventUserLeft, fn)
}

// OnRoomInfo subscribes to room-info events.
func (c *Client) OnRoomInfo(fn func(RoomInfoEvent)) func() {
	return subscribe(c, EventRoomInfo, fn)
}

// OnError subscribes to server error events.
func (c *Client) OnError(fn func(ErrorEvent)) func() {
	return subscribe(c, EventError, fn)
}

// OnConnectionFailed is called once reconnection has been given up.
func (c *Client) OnConnectionFailed(fn func(ErrorEvent)) func() {
	return subscribe(c, eventConnectionFailed, fn)
}

// subscribe registers a typed handler and returns its unsubscribe function.
// Handlers run sequentially on the read goroutine in wire order.
func subscribe[T any](c *Client, eventType string, fn func(T)) func() {
	return c.on(eventType, func(raw json.RawMessage) {
		var payload T
		if err := json.Unmarshal(raw, &payload); err != nil {
			c.logger.Warn("Dropping malformed event payload", "type", eventType, "error", err)
			return
		}
		fn(payload)
	})
}

func (c *Client) on(eventType string, fn func(json.RawMessage)) func() {
	c.hmu.Lock()
	c.nextID++
	id := c.nextID
	if c.handlers[eventType] == nil {
		c.handlers[eventType] = make(map[uint64]func(json.RawMessage))
	}
	c.handlers[eventType][id] = fn
	c.hmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.hmu.Lock()
			delete(c.handlers[eventType], id)
			if len(c.handlers[eventType]) == 0 {
				delete(c.handlers, eventType)
			}
			c.hmu.Unlock()
		})
	}
}

// handlerCount reports how many subscribers are registered for an event type.
func (c *Client) handlerCount(eventType string) int {
	c.hmu.RLock()
	defer c.hmu.RUnlock()
	return len(c.handlers[eventType])
}

func (c *Client) dispatch(eventType string, payload json.RawMessage) {
	c.hmu.RLock()
	fns := make([]func(json.RawMessage), 0, len(c.handlers[eventType]))
	for _, fn := range c.handlers[eventType] {
		fns = append(fns, fn)
	}
	c.hmu.RUnlock()

	if len(fns) == 0 {
		c.logger.Debug("No subscribers for event", "type", eventType)
		return
	}
	for _, fn := range fns {
		fn(payload)
	}
}

func (c *Client) emit(ctx context.Context, signal string, payload any) error {
	env, err := NewEnvelope(signal, payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", signal, err)
	}

	c.mu.Lock()
	conn := c.conn
	closed := c.state == StateClosed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	wctx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("write %s: %w", signal, err)
	}
	c.logger.Debug("Signal sent", "type", signal)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dctx, c.opts.URL, &websocket.DialOptions{
		HTTPHeader: c.opts.HTTPHeader,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

// run pumps frames from the connection to subscribers, replacing the
// connection after an unexpected drop until reconnection gives up.
func (c *Client) run(conn *websocket.Conn) {
	for conn != nil {
		err := c.readPump(conn)
		conn = c.handleDrop(conn, err)
	}
}

func (c *Client) readPump(conn *websocket.Conn) error {
	for {
		// Keep-alives are handled by the library; a dead peer fails the read.
		_, data, err := conn.Read(context.Background())
		if err != nil {
			return err
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("Dropping malformed frame", "error", err)
			continue
		}
		if env.Type == "" || env.Type == eventConnectionFailed {
			c.logger.Warn("Dropping frame with invalid type", "type", env.Type)
			continue
		}
		c.dispatch(env.Type, env.Payload)
	}
}

// handleDrop handles a read failure. It returns the replacement connection,
// or nil when the client was closed or reconnection was exhausted.
func (c *Client) handleDrop(dropped *websocket.Conn, readErr error) *websocket.Conn {
	c.mu.Lock()
	if c.state == StateClosed || c.conn != dropped {
		c.mu.Unlock()
		return nil
	}
	c.conn = nil

	status := websocket.CloseStatus(readErr)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		c.logger.Info("Websocket closed by server", "status", status)
	} else if !errors.Is(readErr, io.EOF) {
		c.logger.Error("Websocket read error", "error", readErr)
	}

	if c.opts.MaxReconnectAttempts == 0 {
		c.state = StateFailed
		c.mu.Unlock()
		c.fail(fmt.Errorf("%w: reconnection disabled: %v", ErrReconnectFailed, readErr))
		return nil
	}

	wait := make(chan struct{})
	c.dialing = wait
	c.state = StateReconnecting
	c.mu.Unlock()

	conn, err := c.reconnect()

	c.mu.Lock()
	if err == nil && c.state == StateClosed {
		conn.CloseNow()
		err = ErrClosed
	}
	var rooms []roomKey
	switch {
	case err == nil:
		c.conn = conn
		c.state = StateConnected
		for key := range c.rooms {
			rooms = append(rooms, key)
		}
	case c.state != StateClosed:
		c.state = StateFailed
	}
	c.dialing = nil
	c.dialErr = err
	close(wait)
	c.mu.Unlock()

	if err != nil {
		if !errors.Is(err, ErrClosed) {
			c.fail(err)
		}
		return nil
	}

	c.logger.Info("Websocket reconnected", "rooms", len(rooms))
	for _, key := range rooms {
		if err := c.emit(context.Background(), SignalJoinRoom, RoomSignal{RoomID: key.roomID, UserID: key.userID}); err != nil {
			c.logger.Warn("Failed to rejoin room", "room_id", key.roomID, "error", err)
		}
	}
	return conn
}

func (c *Client) reconnect() (*websocket.Conn, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxReconnectAttempts; attempt++ {
		timer := time.NewTimer(c.opts.ReconnectDelay)
		select {
		case <-timer.C:
		case <-c.done:
			timer.Stop()
			return nil, ErrClosed
		}

		conn, err := c.dial(ctx)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ErrClosed
		}
		lastErr = err
		c.logger.Warn("Reconnect attempt failed",
			"attempt", attempt,
			"max_attempts", c.opts.MaxReconnectAttempts,
			"error", err)
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrReconnectFailed, c.opts.MaxReconnectAttempts, lastErr)
}

func (c *Client) fail(err error) {
	c.logger.Error("Websocket connection failed", "error", err)
	payload, mErr := json.Marshal(ErrorEvent{Code: "connection_failed", Message: err.Error()})
	if mErr != nil {
		return
	}
	c.dispatch(eventConnectionFailed, payload)
}
