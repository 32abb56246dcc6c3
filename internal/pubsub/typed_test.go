package pubsub

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeting struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

var roomGreetings = NewEvent[greeting]("test.greeting.%s")

func TestEvent_Topic(t *testing.T) {
	assert.Equal(t, "test.greeting.r1", roomGreetings.Topic("r1"))
	assert.Equal(t, "global", NewEvent[greeting]("global").Topic())
}

func TestTypedPublishSubscribe(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()
	ctx := context.Background()

	var mu sync.Mutex
	var got []greeting
	require.NoError(t, Subscribe(ctx, bridge, roomGreetings, func(ctx context.Context, g greeting) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, g)
		return nil
	}, "r1"))

	require.NoError(t, Publish(ctx, bridge, roomGreetings, greeting{RoomID: "r1", Text: "hello"}, "r1"))
	require.NoError(t, Publish(ctx, bridge, roomGreetings, greeting{RoomID: "r2", Text: "elsewhere"}, "r2"))
	// Undecodable payloads are logged and skipped.
	require.NoError(t, bridge.Publish(ctx, Message{Topic: roomGreetings.Topic("r1"), Payload: []byte("{")}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Text)
}
