package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/classroom/internal/domain"
	"github.com/nfrund/classroom/internal/storage"
)

type fakeRoster map[string][]string

func (r fakeRoster) Members(roomID string) []string { return r[roomID] }

type fakeCounter int

func (n fakeCounter) ClientCount() int { return int(n) }

func newTestEcho(t *testing.T) *echo.Echo {
	t.Helper()
	store := storage.NewMemoryStore(0)
	store.PutRoom(domain.Room{ID: "r1", Name: "Algebra"})
	store.PutRoom(domain.Room{ID: "r0", Name: "Biology"})
	store.PutMember(domain.Member{User: domain.User{ID: "u1", Username: "ana"}, Role: domain.RoleStudent})
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := store.AppendMessage(context.Background(), domain.Message{
			RoomID:  "r1",
			UserID:  "u1",
			Content: fmt.Sprintf("msg %d", i),
			SentAt:  base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	e := echo.New()
	e.Validator = NewValidator()
	rooms := NewRoomHandler(store)
	presence := NewPresenceHandler(fakeRoster{"r1": {"u1", "ghost"}}, store, fakeCounter(2))
	e.GET("/api/rooms", rooms.ListRooms)
	e.GET("/api/rooms/:id", rooms.GetRoom)
	e.GET("/api/rooms/:id/messages", rooms.ListMessages)
	e.GET("/api/rooms/:id/presence", presence.GetRoomPresence)
	e.GET("/api/health", presence.HealthCheck)
	return e
}

func get(e *echo.Echo, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRoomHandler_GetRoom(t *testing.T) {
	e := newTestEcho(t)

	rec := get(e, "/api/rooms/r1")
	require.Equal(t, http.StatusOK, rec.Code)
	var room domain.Room
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &room))
	assert.Equal(t, "Algebra", room.Name)

	rec = get(e, "/api/rooms/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"room not found"}`, rec.Body.String())
}

func TestRoomHandler_ListRooms(t *testing.T) {
	rec := get(newTestEcho(t), "/api/rooms")
	require.Equal(t, http.StatusOK, rec.Code)

	var rooms []domain.Room
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rooms))
	require.Len(t, rooms, 2)
	assert.Equal(t, "r0", rooms[0].ID)
}

func TestRoomHandler_ListMessages(t *testing.T) {
	e := newTestEcho(t)

	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantFirst string
		wantLen   int
	}{
		{name: "all", target: "/api/rooms/r1/messages", wantCode: http.StatusOK, wantFirst: "msg 0", wantLen: 5},
		{name: "limited", target: "/api/rooms/r1/messages?limit=2", wantCode: http.StatusOK, wantFirst: "msg 3", wantLen: 2},
		{name: "zero limit", target: "/api/rooms/r1/messages?limit=0", wantCode: http.StatusOK, wantFirst: "msg 0", wantLen: 5},
		{name: "limit too large", target: "/api/rooms/r1/messages?limit=9999", wantCode: http.StatusBadRequest},
		{name: "not a number", target: "/api/rooms/r1/messages?limit=many", wantCode: http.StatusBadRequest},
		{name: "unknown room", target: "/api/rooms/zz/messages", wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(e, tt.target)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}
			var msgs []domain.Message
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
			require.Len(t, msgs, tt.wantLen)
			assert.Equal(t, tt.wantFirst, msgs[0].Content)
			assert.Equal(t, "ana", msgs[0].User.Username)
		})
	}
}

func TestPresenceHandler(t *testing.T) {
	e := newTestEcho(t)

	rec := get(e, "/api/rooms/r1/presence")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp PresenceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "ana", resp.Participants[0].Username)
	assert.Equal(t, domain.UnknownUsername, resp.Participants[1].Username)

	rec = get(e, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","clients":2}`, rec.Body.String())
}
