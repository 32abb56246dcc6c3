package presence

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/classroom/internal/pubsub"
)

// mockPublisher implements pubsub.Publisher for testing
type mockPublisher struct {
	messages []pubsub.Message
	mu       sync.Mutex
}

func (m *mockPublisher) Publish(ctx context.Context, msg pubsub.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockPublisher) Close() error {
	return nil
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func (m *mockPublisher) changes(t *testing.T) []Change {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Change, 0, len(m.messages))
	for _, msg := range m.messages {
		assert.Equal(t, TopicRoomPresence.Topic(), msg.Topic)
		var c Change
		require.NoError(t, json.Unmarshal(msg.Payload, &c))
		out = append(out, c)
	}
	return out
}

func TestService_JoinPublishesOncePerUser(t *testing.T) {
	publisher := &mockPublisher{}
	service := NewService(publisher, WithOfflineDebounce(0))
	defer service.Shutdown()
	ctx := context.Background()

	service.Join(ctx, "r1", "u1", "c1")
	service.Join(ctx, "r1", "u1", "c2")
	service.Join(ctx, "r1", "u2", "c3")

	changes := publisher.changes(t)
	require.Len(t, changes, 2)
	assert.Equal(t, Change{RoomID: "r1", UserID: "u1", Status: StatusJoined, Timestamp: changes[0].Timestamp}, changes[0])
	assert.Equal(t, "u2", changes[1].UserID)
	assert.Equal(t, []string{"u1", "u2"}, service.Members("r1"))
	assert.True(t, service.IsPresent("r1", "u1"))
	assert.False(t, service.IsPresent("r2", "u1"))
}

func TestService_LeaveWaitsForLastConnection(t *testing.T) {
	publisher := &mockPublisher{}
	service := NewService(publisher, WithOfflineDebounce(0))
	defer service.Shutdown()
	ctx := context.Background()

	service.Join(ctx, "r1", "u1", "c1")
	service.Join(ctx, "r1", "u1", "c2")

	service.Leave(ctx, "r1", "u1", "c1")
	assert.Len(t, publisher.changes(t), 1)
	assert.True(t, service.IsPresent("r1", "u1"))

	service.Leave(ctx, "r1", "u1", "c2")
	changes := publisher.changes(t)
	require.Len(t, changes, 2)
	assert.Equal(t, StatusLeft, changes[1].Status)
	assert.Empty(t, service.Members("r1"))

	// Leaving again is a no-op.
	service.Leave(ctx, "r1", "u1", "c2")
	assert.Len(t, publisher.changes(t), 2)
}

func TestService_DisconnectLeavesEveryRoom(t *testing.T) {
	publisher := &mockPublisher{}
	service := NewService(publisher, WithOfflineDebounce(0))
	defer service.Shutdown()
	ctx := context.Background()

	service.Join(ctx, "r1", "u1", "c1")
	service.Join(ctx, "r2", "u1", "c1")
	service.Join(ctx, "r2", "u1", "c2")

	service.Disconnect(ctx, "c1")

	changes := publisher.changes(t)
	require.Len(t, changes, 3)
	assert.Equal(t, Change{RoomID: "r1", UserID: "u1", Status: StatusLeft, Timestamp: changes[2].Timestamp}, changes[2])
	assert.False(t, service.IsPresent("r1", "u1"))
	assert.True(t, service.IsPresent("r2", "u1"))
}

func TestService_OfflineDebounce(t *testing.T) {
	publisher := &mockPublisher{}
	service := NewService(publisher, WithOfflineDebounce(50*time.Millisecond))
	defer service.Shutdown()
	ctx := context.Background()

	service.Join(ctx, "r1", "u1", "c1")
	service.Leave(ctx, "r1", "u1", "c1")

	// Still listed during the debounce window.
	assert.True(t, service.IsPresent("r1", "u1"))
	assert.Len(t, publisher.changes(t), 1)

	assert.Eventually(t, func() bool {
		return publisher.count() == 2
	}, time.Second, 10*time.Millisecond)
	assert.False(t, service.IsPresent("r1", "u1"))
}

func TestService_ReconnectCancelsDeparture(t *testing.T) {
	publisher := &mockPublisher{}
	service := NewService(publisher, WithOfflineDebounce(50*time.Millisecond))
	defer service.Shutdown()
	ctx := context.Background()

	service.Join(ctx, "r1", "u1", "c1")
	service.Leave(ctx, "r1", "u1", "c1")
	service.Join(ctx, "r1", "u1", "c2")

	time.Sleep(120 * time.Millisecond)
	changes := publisher.changes(t)
	require.Len(t, changes, 1)
	assert.Equal(t, StatusJoined, changes[0].Status)
	assert.True(t, service.IsPresent("r1", "u1"))
}

func TestService_Shutdown(t *testing.T) {
	publisher := &mockPublisher{}
	service := NewService(publisher, WithOfflineDebounce(30*time.Millisecond))
	ctx := context.Background()

	service.Join(ctx, "r1", "u1", "c1")
	service.Leave(ctx, "r1", "u1", "c1")
	service.Shutdown()

	time.Sleep(80 * time.Millisecond)
	assert.Len(t, publisher.changes(t), 1)

	service.Join(ctx, "r1", "u2", "c2")
	assert.Len(t, publisher.changes(t), 1)
}
