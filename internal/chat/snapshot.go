package chat

import (
	"github.com/nfrund/classroom/internal/domain"
)

// MessageView is a message together with its local overlay.
type MessageView struct {
	Message   domain.Message
	Key       string
	Text      string // content after the local edit, if any
	Edited    bool
	Reactions []string
	ReplyTo   bool // the composer currently replies to this message
}

// Snapshot is an immutable copy of the session view state.
type Snapshot struct {
	Status       Status
	RoomID       string
	RoomName     string
	UserID       string
	Connected    bool
	Messages     []MessageView
	Typing       []domain.TypingEntry
	Participants []domain.User
	ReplyTarget  *MessageView
	FetchErr     error
	TransportErr error
}

// Snapshot copies the current view state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Status:       s.status,
		RoomID:       s.roomID,
		RoomName:     s.roomName,
		UserID:       s.userID,
		Connected:    s.connected,
		Messages:     make([]MessageView, 0, len(s.messages)),
		Typing:       s.typing.list(),
		Participants: s.participants.list(),
		FetchErr:     s.fetchErr,
		TransportErr: s.transportErr,
	}
	if snap.RoomName == "" {
		snap.RoomName = s.roomID
	}

	seen := make(map[string]int, len(s.messages))
	for i, m := range s.messages {
		key := m.Key(i)
		if first, dup := seen[key]; dup {
			s.reportCollisionLocked(key, first, i)
		} else {
			seen[key] = i
		}

		view := MessageView{
			Message: m,
			Key:     key,
			Text:    m.Content,
			ReplyTo: key == s.overlay.replyTo,
		}
		if edited, ok := s.overlay.edits[key]; ok {
			view.Text = edited
			view.Edited = true
		}
		if reactions := s.overlay.reactions[key]; len(reactions) > 0 {
			view.Reactions = append([]string(nil), reactions...)
		}
		if view.ReplyTo && snap.ReplyTarget == nil {
			target := view
			snap.ReplyTarget = &target
		}
		snap.Messages = append(snap.Messages, view)
	}
	return snap
}

// Composite keys can collide, e.g. a message delivered twice with the same
// id and timestamp. The collision is logged once and left unresolved.
func (s *Session) reportCollisionLocked(key string, first, second int) {
	if _, done := s.overlay.collisions[key]; done {
		return
	}
	s.overlay.collisions[key] = struct{}{}
	s.logger.Warn("Duplicate message key", "key", key, "first_index", first, "second_index", second)
}
