// Package websocket bridges chat clients' sockets and the message bus. Each
// connection subscribes to the rooms it joins and its signals are turned into
// stored messages and room events.
package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nfrund/classroom/internal/domain"
	"github.com/nfrund/classroom/internal/middleware"
	"github.com/nfrund/classroom/internal/presence"
	"github.com/nfrund/classroom/internal/pubsub"
	"github.com/nfrund/classroom/internal/transport"
)

// --- Configuration Constants ---
const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Largest inbound frame accepted from a client.
	readLimit = 64 << 10

	// Outbound frames buffered per client before frames are dropped.
	sendBufferSize = 256
)

// RoomEvents carries the envelopes delivered to everyone in a room.
var RoomEvents = pubsub.NewEvent[transport.Envelope]("chat.room.%s")

// Store is the data the bridge reads and writes.
type Store interface {
	Room(ctx context.Context, roomID string) (domain.Room, error)
	Member(ctx context.Context, userID string) (domain.Member, error)
	AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error)
}

// Bridge manages all WebSocket connections and routes traffic between
// clients and the message bus.
type Bridge struct {
	store      Store
	presence   *presence.Service
	publisher  pubsub.Publisher
	subscriber pubsub.Subscriber
	logger     *slog.Logger
	signals    map[string]signalHandler

	mu      sync.RWMutex
	clients map[string]*Client

	roomMu    sync.Mutex
	roomLocks map[string]*sync.Mutex

	relayMu    sync.Mutex
	relayQueue []presence.Change
	relayWake  chan struct{}
}

// NewBridge initializes a new Bridge, ready to handle connections.
func NewBridge(store Store, presenceSvc *presence.Service, pub pubsub.Publisher, sub pubsub.Subscriber, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		store:      store,
		presence:   presenceSvc,
		publisher:  pub,
		subscriber: sub,
		logger:     logger.With("component", "websocket"),
		clients:    make(map[string]*Client),
		roomLocks:  make(map[string]*sync.Mutex),
		relayWake:  make(chan struct{}, 1),
	}
	b.signals = map[string]signalHandler{
		transport.SignalJoinRoom:    b.handleJoinRoom,
		transport.SignalLeaveRoom:   b.handleLeaveRoom,
		transport.SignalSendMessage: b.handleSendMessage,
		transport.SignalTyping:      b.handleTyping,
	}
	return b
}

// Start turns presence changes into user-joined and user-left room events
// until ctx is canceled.
func (b *Bridge) Start(ctx context.Context) error {
	if err := pubsub.Subscribe(ctx, b.subscriber, presence.TopicRoomPresence, b.queuePresenceChange); err != nil {
		return err
	}
	go b.relayPresence(ctx)
	return nil
}

// queuePresenceChange hands the change to relayPresence. GoChannel holds its
// subscriber lock until handlers return, so publishing from inside a handler
// can deadlock against a concurrent unsubscribe.
func (b *Bridge) queuePresenceChange(_ context.Context, change presence.Change) error {
	b.relayMu.Lock()
	b.relayQueue = append(b.relayQueue, change)
	b.relayMu.Unlock()

	select {
	case b.relayWake <- struct{}{}:
	default:
	}
	return nil
}

// relayPresence broadcasts queued presence changes in arrival order.
func (b *Bridge) relayPresence(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.relayWake:
		}

		b.relayMu.Lock()
		batch := b.relayQueue
		b.relayQueue = nil
		b.relayMu.Unlock()

		for _, change := range batch {
			if err := b.handlePresenceChange(ctx, change); err != nil {
				b.logger.Error("Failed to broadcast presence change", "room_id", change.RoomID, "user_id", change.UserID, "error", err)
			}
		}
	}
}

func (b *Bridge) handlePresenceChange(ctx context.Context, change presence.Change) error {
	eventType := transport.EventUserJoined
	if change.Status == presence.StatusLeft {
		eventType = transport.EventUserLeft
	}
	user := b.lookupUser(ctx, change.UserID)
	return b.broadcast(ctx, change.RoomID, eventType, transport.PresenceEvent{
		RoomID:   change.RoomID,
		UserID:   change.UserID,
		Username: user.Username,
	})
}

// Handler returns an echo.HandlerFunc that upgrades the request to a chat
// connection. A member bound by the Identify middleware pins the connection
// to that user.
func (b *Bridge) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
			InsecureSkipVerify: true, // In production, check origin.
		})
		if err != nil {
			b.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
			return err
		}
		conn.SetReadLimit(readLimit)

		// The request context ends when this handler returns.
		ctx, cancel := context.WithCancel(context.Background())
		client := &Client{
			ID:     uuid.NewString(),
			conn:   conn,
			bridge: b,
			ctx:    ctx,
			cancel: cancel,
			send:   make(chan []byte, sendBufferSize),
			rooms:  make(map[string]roomSubscription),
		}
		logger := b.logger.With("client_id", client.ID)
		if m, ok := middleware.MemberFrom(c); ok {
			client.member = &m
			logger = logger.With("user_id", m.ID)
		}
		client.logger = logger

		b.register(client)
		go client.writePump()
		go client.readPump()
		return nil
	}
}

func (b *Bridge) register(c *Client) {
	b.mu.Lock()
	b.clients[c.ID] = c
	b.mu.Unlock()
	c.logger.Info("Client connected")
}

func (b *Bridge) unregister(c *Client) {
	b.mu.Lock()
	delete(b.clients, c.ID)
	b.mu.Unlock()

	c.cancel()
	b.presence.Disconnect(context.Background(), c.ID)
	c.Close()
	c.logger.Info("Client disconnected")
}

// ClientCount returns the number of open connections.
func (b *Bridge) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Shutdown closes every open connection.
func (b *Bridge) Shutdown() {
	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// broadcast publishes an event to every connection in roomID.
func (b *Bridge) broadcast(ctx context.Context, roomID, eventType string, payload any) error {
	env, err := transport.NewEnvelope(eventType, payload)
	if err != nil {
		return err
	}
	return pubsub.Publish(ctx, b.publisher, RoomEvents, env, roomID)
}

// roomLock serializes message appends so history order matches delivery order.
func (b *Bridge) roomLock(roomID string) *sync.Mutex {
	b.roomMu.Lock()
	defer b.roomMu.Unlock()
	l, ok := b.roomLocks[roomID]
	if !ok {
		l = &sync.Mutex{}
		b.roomLocks[roomID] = l
	}
	return l
}

// lookupUser returns the directory entry for userID, or a placeholder for
// users the directory does not know.
func (b *Bridge) lookupUser(ctx context.Context, userID string) domain.User {
	m, err := b.store.Member(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			b.logger.Error("Failed to look up member", "user_id", userID, "error", err)
		}
		return domain.User{ID: userID, Username: domain.UnknownUsername}
	}
	return m.User
}

func (b *Bridge) participants(ctx context.Context, roomID string) []domain.User {
	ids := b.presence.Members(roomID)
	users := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		users = append(users, b.lookupUser(ctx, id))
	}
	return users
}
