// Package render writes a chat session snapshot as plain text for terminals.
package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nfrund/classroom/internal/chat"
	"github.com/nfrund/classroom/internal/domain"
	"github.com/nfrund/classroom/internal/timeline"
)

// Options controls how timestamps and day labels are shown.
type Options struct {
	Location *time.Location
	Language string
}

// TypingIndicator phrases the list of users currently typing. It returns ""
// when nobody is typing.
func TypingIndicator(entries []domain.TypingEntry) string {
	switch len(entries) {
	case 0:
		return ""
	case 1:
		return entries[0].Username + " is typing…"
	case 2:
		return entries[0].Username + " and " + entries[1].Username + " are typing…"
	default:
		return fmt.Sprintf("%d people are typing…", len(entries))
	}
}

// Session writes the room header, the grouped messages numbered from 1, the
// typing indicator and any error lines.
func Session(w io.Writer, snap chat.Snapshot, now time.Time, opts Options) error {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	ew := &errWriter{w: w}

	ew.printf("== %s ==\n", snap.RoomName)
	switch snap.Status {
	case chat.StatusIdle, chat.StatusLoading:
		ew.printf("Loading…\n")
	case chat.StatusError:
		ew.printf("! Could not load this room: %v\n", snap.FetchErr)
	}

	index := make(map[string]int, len(snap.Messages))
	for i, m := range snap.Messages {
		if _, ok := index[m.Key]; !ok {
			index[m.Key] = i + 1
		}
	}

	// Group positions rather than views so numbering always matches the
	// snapshot order the composer commands refer to.
	positions := make([]int, len(snap.Messages))
	for i := range positions {
		positions[i] = i
	}
	groups := timeline.GroupBy(positions,
		func(i int) time.Time { return snap.Messages[i].Message.SentAt },
		now,
		timeline.WithLocation(loc),
		timeline.WithLanguage(opts.Language),
	)
	for _, g := range groups {
		ew.printf("--- %s ---\n", g.Label)
		for _, i := range g.Items {
			writeMessage(ew, i+1, snap.Messages[i], loc)
		}
	}

	if snap.ReplyTarget != nil {
		ew.printf("↪ replying to #%d %s\n", index[snap.ReplyTarget.Key], excerpt(snap.ReplyTarget.Text, 40))
	}
	if line := TypingIndicator(snap.Typing); line != "" {
		ew.printf("%s\n", line)
	}
	if snap.TransportErr != nil {
		ew.printf("! Connection problem: %v\n", snap.TransportErr)
	}
	return ew.err
}

func writeMessage(ew *errWriter, n int, m chat.MessageView, loc *time.Location) {
	stamp := "--:--"
	if !m.Message.SentAt.IsZero() {
		stamp = m.Message.SentAt.In(loc).Format("15:04")
	}
	marker := " "
	if m.ReplyTo {
		marker = ">"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d] %s %s: %s", marker, n, stamp, m.Message.User.DisplayName(), m.Text)
	if m.Edited {
		b.WriteString(" (edited)")
	}
	if len(m.Reactions) > 0 {
		b.WriteString("  " + strings.Join(m.Reactions, " "))
	}
	ew.printf("%s\n", b.String())
}

func excerpt(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}

// errWriter keeps the first write error so the rendering code stays linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
