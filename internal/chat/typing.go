package chat

import (
	"time"

	"github.com/nfrund/classroom/internal/domain"
)

// DefaultTypingExpiry is how long a typing entry survives without a renewing
// signal.
const DefaultTypingExpiry = 3 * time.Second

type typingState struct {
	entry domain.TypingEntry
	timer *time.Timer
	gen   uint64
}

// typingSet tracks who is typing in the room. It is not safe for concurrent
// use; the owning Session guards it with its mutex.
type typingSet struct {
	expiry  time.Duration
	entries map[string]*typingState // userID -> state
	order   []string                // userIDs by first signal
	gen     uint64
}

func newTypingSet(expiry time.Duration) *typingSet {
	return &typingSet{
		expiry:  expiry,
		entries: make(map[string]*typingState),
	}
}

// upsert adds or refreshes the entry for a user and arms a new expiry timer,
// stopping the previous one first. onExpire receives the generation of the
// timer that fired so stale timers can be recognised.
func (t *typingSet) upsert(entry domain.TypingEntry, onExpire func(userID string, gen uint64)) {
	t.gen++
	gen := t.gen

	state, ok := t.entries[entry.UserID]
	if ok {
		state.timer.Stop()
		state.entry = entry
	} else {
		state = &typingState{entry: entry}
		t.entries[entry.UserID] = state
		t.order = append(t.order, entry.UserID)
	}
	state.gen = gen
	state.timer = time.AfterFunc(t.expiry, func() { onExpire(entry.UserID, gen) })
}

// expire removes the user only if gen still identifies the latest timer.
func (t *typingSet) expire(userID string, gen uint64) bool {
	state, ok := t.entries[userID]
	if !ok || state.gen != gen {
		return false
	}
	t.delete(userID)
	return true
}

// remove drops the user and cancels the pending timer.
func (t *typingSet) remove(userID string) bool {
	state, ok := t.entries[userID]
	if !ok {
		return false
	}
	state.timer.Stop()
	t.delete(userID)
	return true
}

func (t *typingSet) delete(userID string) {
	delete(t.entries, userID)
	for i, id := range t.order {
		if id == userID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// stopAll cancels every timer and empties the set.
func (t *typingSet) stopAll() {
	for _, state := range t.entries {
		state.timer.Stop()
	}
	t.entries = make(map[string]*typingState)
	t.order = nil
}

func (t *typingSet) list() []domain.TypingEntry {
	out := make([]domain.TypingEntry, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.entries[id].entry)
	}
	return out
}

func (t *typingSet) size() int {
	return len(t.entries)
}
