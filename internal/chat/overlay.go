package chat

import (
	"strings"

	"github.com/nfrund/classroom/internal/domain"
)

// overlay holds optimistic state that never leaves the client: the local
// user's reactions, the reply target and edited content. Everything is keyed
// by the composite message key, so every message sharing a key shares the
// overlay.
type overlay struct {
	reactions  map[string][]string // key -> emoji in toggle order
	edits      map[string]string
	replyTo    string
	collisions map[string]struct{}
}

func newOverlay() *overlay {
	return &overlay{
		reactions:  make(map[string][]string),
		edits:      make(map[string]string),
		collisions: make(map[string]struct{}),
	}
}

func (o *overlay) toggleReaction(key, emoji string) {
	current := o.reactions[key]
	for i, e := range current {
		if e == emoji {
			current = append(current[:i:i], current[i+1:]...)
			if len(current) == 0 {
				delete(o.reactions, key)
			} else {
				o.reactions[key] = current
			}
			return
		}
	}
	o.reactions[key] = append(current, emoji)
}

// rekey moves overlay entries to new keys. All moves apply at once, so a key
// may both give up its entry and receive another one.
func (o *overlay) rekey(moves map[string]string) {
	if len(moves) == 0 {
		return
	}
	reactions := make(map[string][]string, len(moves))
	edits := make(map[string]string, len(moves))
	for from := range moves {
		if r, ok := o.reactions[from]; ok {
			reactions[from] = r
			delete(o.reactions, from)
		}
		if e, ok := o.edits[from]; ok {
			edits[from] = e
			delete(o.edits, from)
		}
	}
	for from, to := range moves {
		if r, ok := reactions[from]; ok {
			o.reactions[to] = r
		}
		if e, ok := edits[from]; ok {
			o.edits[to] = e
		}
	}
	if to, ok := moves[o.replyTo]; ok {
		o.replyTo = to
	}
}

// ToggleReaction adds emoji to the message with the given key, or removes it
// when the local user already reacted with it.
func (s *Session) ToggleReaction(key, emoji string) error {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkKeyLocked(key); err != nil {
		return err
	}
	s.overlay.toggleReaction(key, emoji)
	s.notifyLocked()
	return nil
}

// SetReplyTarget marks the message the composer replies to.
func (s *Session) SetReplyTarget(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkKeyLocked(key); err != nil {
		return err
	}
	s.overlay.replyTo = key
	s.notifyLocked()
	return nil
}

// ClearReplyTarget drops the reply target.
func (s *Session) ClearReplyTarget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overlay.replyTo == "" {
		return
	}
	s.overlay.replyTo = ""
	s.notifyLocked()
}

// EditMessage replaces the displayed content of a message locally. Editing
// back to the original content clears the edit.
func (s *Session) EditMessage(key, content string) error {
	if strings.TrimSpace(content) == "" {
		return domain.ErrEmptyMessage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkKeyLocked(key); err != nil {
		return err
	}
	for i, m := range s.messages {
		if m.Key(i) == key && m.Content == content {
			delete(s.overlay.edits, key)
			s.notifyLocked()
			return nil
		}
	}
	s.overlay.edits[key] = content
	s.notifyLocked()
	return nil
}

// ClearEdit restores the original content of a message.
func (s *Session) ClearEdit(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.overlay.edits[key]; !ok {
		return
	}
	delete(s.overlay.edits, key)
	s.notifyLocked()
}

func (s *Session) checkKeyLocked(key string) error {
	if !s.alive {
		return domain.ErrSessionClosed
	}
	for i, m := range s.messages {
		if m.Key(i) == key {
			return nil
		}
	}
	return ErrUnknownMessage
}
