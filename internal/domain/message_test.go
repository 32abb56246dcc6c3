package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_Normalize(t *testing.T) {
	msg := Message{ID: "m1", RoomID: "r1", UserID: "u1", Content: "hi"}.Normalize()

	assert.Equal(t, "u1", msg.User.ID)
	assert.Equal(t, UnknownUsername, msg.User.Username)

	msg = Message{RoomID: "r1", Content: "hi", User: User{ID: "u2", Username: "ben"}}.Normalize()
	assert.Equal(t, "u2", msg.UserID)
	assert.Equal(t, "ben", msg.User.Username)
}

func TestMessage_Key(t *testing.T) {
	sent := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"id and time", Message{ID: "m1", SentAt: sent}, "m1_2026-03-01T10:00:00Z"},
		{"id only", Message{ID: "m1"}, "m1"},
		{"time only", Message{SentAt: sent}, "2026-03-01T10:00:00Z"},
		{"nothing", Message{}, "idx-4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.Key(4))
		})
	}
}

func TestMessage_Validate(t *testing.T) {
	valid := Message{RoomID: "r1", UserID: "u1", Content: "hello"}
	require.NoError(t, valid.Validate())

	blank := Message{RoomID: "r1", UserID: "u1", Content: "   "}
	assert.True(t, errors.Is(blank.Validate(), ErrEmptyMessage))

	long := Message{RoomID: "r1", UserID: "u1", Content: strings.Repeat("a", MaxMessageLength+1)}
	assert.Error(t, long.Validate())

	noRoom := Message{UserID: "u1", Content: "hello"}
	assert.Error(t, noRoom.Validate())
}

func TestSortChronological(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "c", SentAt: base.Add(2 * time.Minute)},
		{ID: "a", SentAt: base},
		{ID: "b1", SentAt: base.Add(time.Minute)},
		{ID: "b2", SentAt: base.Add(time.Minute)},
	}

	SortChronological(msgs)

	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a", "b1", "b2", "c"}, ids)
}
