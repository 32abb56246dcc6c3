package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/classroom/internal/domain"
	"github.com/nfrund/classroom/internal/transport"
)

// fakeServer accepts websocket connections, records inbound signals and lets
// a test push frames or drop connections.
type fakeServer struct {
	srv     *httptest.Server
	accepts atomic.Int32
	reject  atomic.Bool
	signals chan transport.Envelope

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	fs := &fakeServer{signals: make(chan transport.Envelope, 32)}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fs.reject.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		fs.accepts.Add(1)
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.conns = append(fs.conns, conn)
		fs.mu.Unlock()

		for {
			var env transport.Envelope
			if err := wsjson.Read(r.Context(), conn, &env); err != nil {
				return
			}
			fs.signals <- env
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) latest(t *testing.T) *websocket.Conn {
	t.Helper()
	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.NotEmpty(t, fs.conns, "no connection accepted yet")
	return fs.conns[len(fs.conns)-1]
}

func (fs *fakeServer) push(t *testing.T, eventType string, payload any) {
	t.Helper()
	env, err := transport.NewEnvelope(eventType, payload)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, fs.latest(t), env))
}

func (fs *fakeServer) pushRaw(t *testing.T, frame string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, fs.latest(t).Write(ctx, websocket.MessageText, []byte(frame)))
}

// drop abruptly terminates every accepted connection.
func (fs *fakeServer) drop() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, c := range fs.conns {
		c.CloseNow()
	}
	fs.conns = nil
}

func (fs *fakeServer) nextSignal(t *testing.T) transport.Envelope {
	t.Helper()
	select {
	case env := <-fs.signals:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for signal")
		return transport.Envelope{}
	}
}

func newClient(t *testing.T, fs *fakeServer, attempts int) *transport.Client {
	t.Helper()
	c := transport.NewClient(transport.Options{
		URL:                  fs.url(),
		MaxReconnectAttempts: attempts,
		ReconnectDelay:       10 * time.Millisecond,
		DialTimeout:          time.Second,
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConnect_IsIdempotent(t *testing.T) {
	fs := newFakeServer(t)
	c := newClient(t, fs, 0)
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Connect(ctx))

	assert.Equal(t, int32(1), fs.accepts.Load())
	assert.Equal(t, transport.StateConnected, c.State())
}

func TestConnect_ConcurrentCallersShareHandshake(t *testing.T) {
	fs := newFakeServer(t)
	c := newClient(t, fs, 0)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Connect(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), fs.accepts.Load())
}

func TestConnect_HandshakeFailure(t *testing.T) {
	fs := newFakeServer(t)
	fs.reject.Store(true)
	c := newClient(t, fs, 0)

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, transport.StateDisconnected, c.State())

	// A later attempt dials again.
	fs.reject.Store(false)
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, transport.StateConnected, c.State())
}

func TestSend_BeforeConnect(t *testing.T) {
	fs := newFakeServer(t)
	c := newClient(t, fs, 0)
	ctx := context.Background()

	assert.ErrorIs(t, c.SendMessage(ctx, "r1", "u1", "hi"), transport.ErrNotConnected)
	assert.ErrorIs(t, c.SendTyping(ctx, "r1", "u1", true), transport.ErrNotConnected)
	assert.ErrorIs(t, c.JoinRoom(ctx, "r1", "u1"), transport.ErrNotConnected)
	assert.ErrorIs(t, c.LeaveRoom(ctx, "r1", "u1"), transport.ErrNotConnected)
}

func TestSignals_WireFormat(t *testing.T) {
	fs := newFakeServer(t)
	c := newClient(t, fs, 0)
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	tests := []struct {
		name     string
		send     func() error
		wantType string
		wantBody string
	}{
		{
			name:     "join",
			send:     func() error { return c.JoinRoom(ctx, "r1", "u1") },
			wantType: transport.SignalJoinRoom,
			wantBody: `{"roomId":"r1","userId":"u1"}`,
		},
		{
			name:     "message",
			send:     func() error { return c.SendMessage(ctx, "r1", "u1", "hello") },
			wantType: transport.SignalSendMessage,
			wantBody: `{"roomId":"r1","userId":"u1","content":"hello"}`,
		},
		{
			name:     "typing",
			send:     func() error { return c.SendTyping(ctx, "r1", "u1", true) },
			wantType: transport.SignalTyping,
			wantBody: `{"roomId":"r1","userId":"u1","isTyping":true}`,
		},
		{
			name:     "leave",
			send:     func() error { return c.LeaveRoom(ctx, "r1", "u1") },
			wantType: transport.SignalLeaveRoom,
			wantBody: `{"roomId":"r1","userId":"u1"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.send())
			env := fs.nextSignal(t)
			assert.Equal(t, tt.wantType, env.Type)
			assert.JSONEq(t, tt.wantBody, string(env.Payload))
		})
	}
}

func TestSubscribe_DeliversInOrderAndUnsubscribes(t *testing.T) {
	fs := newFakeServer(t)
	c := newClient(t, fs, 0)
	require.NoError(t, c.Connect(context.Background()))

	got := make(chan domain.Message, 8)
	unsubscribe := c.OnNewMessage(func(m domain.Message) { got <- m })
	assert.Equal(t, 1, transport.HandlerCount(c, transport.EventNewMessage))

	for _, id := range []string{"m1", "m2", "m3"} {
		fs.push(t, transport.EventNewMessage, domain.Message{ID: id, RoomID: "r1", Content: id})
	}
	for _, want := range []string{"m1", "m2", "m3"} {
		select {
		case m := <-got:
			assert.Equal(t, want, m.ID)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, transport.HandlerCount(c, transport.EventNewMessage))

	fs.push(t, transport.EventNewMessage, domain.Message{ID: "m4", RoomID: "r1"})
	assert.Never(t, func() bool { return len(got) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestSubscribe_TypedEvents(t *testing.T) {
	fs := newFakeServer(t)
	c := newClient(t, fs, 0)
	require.NoError(t, c.Connect(context.Background()))

	typing := make(chan transport.TypingEvent, 1)
	joined := make(chan transport.PresenceEvent, 1)
	info := make(chan transport.RoomInfoEvent, 1)
	errs := make(chan transport.ErrorEvent, 1)
	c.OnTyping(func(e transport.TypingEvent) { typing <- e })
	c.OnUserJoined(func(e transport.PresenceEvent) { joined <- e })
	c.OnRoomInfo(func(e transport.RoomInfoEvent) { info <- e })
	c.OnError(func(e transport.ErrorEvent) { errs <- e })

	fs.push(t, transport.EventUserTyping, transport.TypingEvent{RoomID: "r1", UserID: "u2", Username: "ben", IsTyping: true})
	fs.push(t, transport.EventUserJoined, transport.PresenceEvent{RoomID: "r1", UserID: "u3"})
	fs.push(t, transport.EventRoomInfo, transport.RoomInfoEvent{RoomID: "r1", Name: "Algebra"})
	fs.push(t, transport.EventError, transport.ErrorEvent{Message: "nope"})

	assert.Equal(t, "ben", (<-typing).Username)
	assert.Equal(t, "u3", (<-joined).UserID)
	assert.Equal(t, "Algebra", (<-info).Name)
	assert.Equal(t, "nope", (<-errs).Message)
}

func TestReadLoop_SkipsMalformedFrames(t *testing.T) {
	fs := newFakeServer(t)
	c := newClient(t, fs, 0)
	require.NoError(t, c.Connect(context.Background()))

	got := make(chan domain.Message, 4)
	c.OnNewMessage(func(m domain.Message) { got <- m })

	fs.pushRaw(t, "not json")
	fs.pushRaw(t, `{"type":"new-message","payload":"oops"}`)
	fs.pushRaw(t, `{"payload":{}}`)
	fs.push(t, transport.EventNewMessage, domain.Message{ID: "ok", RoomID: "r1"})

	select {
	case m := <-got:
		assert.Equal(t, "ok", m.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame after malformed ones was not delivered")
	}
	assert.Equal(t, transport.StateConnected, c.State())
}

func TestReconnect_RejoinsRooms(t *testing.T) {
	fs := newFakeServer(t)
	c := newClient(t, fs, 3)
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.JoinRoom(ctx, "r1", "u1"))
	assert.Equal(t, transport.SignalJoinRoom, fs.nextSignal(t).Type)

	fs.drop()

	env := fs.nextSignal(t)
	assert.Equal(t, transport.SignalJoinRoom, env.Type)
	assert.JSONEq(t, `{"roomId":"r1","userId":"u1"}`, string(env.Payload))
	assert.Equal(t, int32(2), fs.accepts.Load())
	require.Eventually(t, func() bool { return c.State() == transport.StateConnected }, time.Second, 10*time.Millisecond)

	// Events keep flowing on the new connection.
	got := make(chan domain.Message, 1)
	c.OnNewMessage(func(m domain.Message) { got <- m })
	fs.push(t, transport.EventNewMessage, domain.Message{ID: "after", RoomID: "r1"})
	select {
	case m := <-got:
		assert.Equal(t, "after", m.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event after reconnect")
	}
}

func TestReconnect_LeftRoomIsNotRejoined(t *testing.T) {
	fs := newFakeServer(t)
	c := newClient(t, fs, 3)
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.JoinRoom(ctx, "r1", "u1"))
	require.NoError(t, c.LeaveRoom(ctx, "r1", "u1"))
	fs.nextSignal(t)
	fs.nextSignal(t)

	fs.drop()

	require.Eventually(t, func() bool { return fs.accepts.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return len(fs.signals) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestReconnect_ExhaustionReportsFailure(t *testing.T) {
	fs := newFakeServer(t)
	c := newClient(t, fs, 2)
	require.NoError(t, c.Connect(context.Background()))

	failed := make(chan transport.ErrorEvent, 2)
	c.OnConnectionFailed(func(e transport.ErrorEvent) { failed <- e })

	fs.reject.Store(true)
	fs.drop()

	select {
	case e := <-failed:
		assert.Contains(t, e.Message, transport.ErrReconnectFailed.Error())
		assert.Equal(t, "connection_failed", e.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("connection-failed was not raised")
	}
	assert.Equal(t, transport.StateFailed, c.State())
	assert.Equal(t, int32(1), fs.accepts.Load())
	assert.Never(t, func() bool { return len(failed) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	// An explicit Connect after failure starts over.
	fs.reject.Store(false)
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, transport.StateConnected, c.State())
}

func TestReconnect_Disabled(t *testing.T) {
	fs := newFakeServer(t)
	c := newClient(t, fs, 0)
	require.NoError(t, c.Connect(context.Background()))

	failed := make(chan transport.ErrorEvent, 1)
	c.OnConnectionFailed(func(e transport.ErrorEvent) { failed <- e })

	fs.drop()

	select {
	case <-failed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection-failed was not raised")
	}
	assert.Equal(t, transport.StateFailed, c.State())
	assert.Equal(t, int32(1), fs.accepts.Load())
}

func TestClose_StopsEverything(t *testing.T) {
	fs := newFakeServer(t)
	c := transport.NewClient(transport.Options{
		URL:                  fs.url(),
		MaxReconnectAttempts: 5,
		ReconnectDelay:       time.Second,
	})
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	failed := make(chan transport.ErrorEvent, 1)
	c.OnConnectionFailed(func(e transport.ErrorEvent) { failed <- e })

	fs.reject.Store(true)
	fs.drop()
	require.Eventually(t, func() bool { return c.State() == transport.StateReconnecting }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.Equal(t, transport.StateClosed, c.State())
	assert.ErrorIs(t, c.Connect(ctx), transport.ErrClosed)
	assert.ErrorIs(t, c.SendMessage(ctx, "r1", "u1", "hi"), transport.ErrClosed)
	assert.Never(t, func() bool { return len(failed) > 0 }, 150*time.Millisecond, 10*time.Millisecond)
}

func TestEnvelope_JSONShape(t *testing.T) {
	env, err := transport.NewEnvelope(transport.SignalTyping, transport.TypingSignal{RoomID: "r", UserID: "u"})
	require.NoError(t, err)

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"typing","payload":{"roomId":"r","userId":"u","isTyping":false}}`, string(data))
}
