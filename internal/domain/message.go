package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// MaxMessageLength bounds the content of a single chat message.
const MaxMessageLength = 5000

// validatorInstance is a package-level validator instance.
// Using a single instance is more efficient as it caches struct information.
var validatorInstance = validator.New()

// Message is a chat message as delivered by the history endpoint or the
// new-message event.
type Message struct {
	ID      string    `json:"id,omitempty"`
	RoomID  string    `json:"roomId" validate:"required"`
	UserID  string    `json:"userId" validate:"required"`
	Content string    `json:"content" validate:"required,max=5000"`
	SentAt  time.Time `json:"sentAt"`
	User    User      `json:"user"`
}

// Validate runs validation checks on the Message using the defined tags.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.Content) == "" {
		return ErrEmptyMessage
	}
	return validatorInstance.Struct(m)
}

// Normalize fills in placeholder author details so partial payloads never
// break rendering.
func (m Message) Normalize() Message {
	if m.User.ID == "" {
		m.User.ID = m.UserID
	}
	if m.UserID == "" {
		m.UserID = m.User.ID
	}
	if m.User.Username == "" {
		m.User.Username = UnknownUsername
	}
	return m
}

// Key returns the composite key used for local overlay state. It falls back
// from id_sentAt to id, then sentAt, then the list index.
func (m Message) Key(index int) string {
	hasTime := !m.SentAt.IsZero()
	switch {
	case m.ID != "" && hasTime:
		return m.ID + "_" + m.SentAt.UTC().Format(time.RFC3339Nano)
	case m.ID != "":
		return m.ID
	case hasTime:
		return m.SentAt.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("idx-%d", index)
	}
}

// SortChronological orders messages oldest first, keeping arrival order for
// equal timestamps.
func SortChronological(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].SentAt.Before(msgs[j].SentAt)
	})
}
