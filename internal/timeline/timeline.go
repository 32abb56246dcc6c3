// Package timeline buckets chat messages into day groups labelled Today,
// Yesterday or a localized absolute date.
package timeline

import (
	"time"

	"golang.org/x/text/language"

	"github.com/nfrund/classroom/internal/domain"
)

// DateGroup is a run of consecutive items that share a calendar day. Day is
// midnight of that day in the grouping location, or the zero time for a
// leading run of undated items.
type DateGroup[T any] struct {
	Label string
	Day   time.Time
	Items []T
}

type options struct {
	loc *time.Location
	tag language.Tag
}

// Option configures grouping.
type Option func(*options)

// WithLocation sets the time zone used to decide calendar days.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithLanguage sets the label language. Unsupported codes fall back to
// English.
func WithLanguage(code string) Option {
	return func(o *options) {
		o.tag = MatchLanguage(code)
	}
}

// Group buckets messages by day, oldest first.
func Group(msgs []domain.Message, now time.Time, opts ...Option) []DateGroup[domain.Message] {
	return GroupBy(msgs, func(m domain.Message) time.Time { return m.SentAt }, now, opts...)
}

// GroupBy buckets arbitrary items by the day returned from sentAt. A list
// whose first item is newer than its last is treated as newest-first and
// reversed. Within that order the scan is a single left to right pass, so
// items are never re-sorted and an out-of-order item opens a new group.
// Items without a timestamp join the group that is open when they appear.
func GroupBy[T any](items []T, sentAt func(T) time.Time, now time.Time, opts ...Option) []DateGroup[T] {
	o := options{loc: time.Local, tag: language.English}
	for _, opt := range opts {
		opt(&o)
	}
	if len(items) == 0 {
		return nil
	}

	ordered := items
	if isNewestFirst(items, sentAt) {
		ordered = make([]T, len(items))
		for i, it := range items {
			ordered[len(items)-1-i] = it
		}
	}

	l := newLabeler(o.tag)
	today := startOfDay(now, o.loc)
	yesterday := today.AddDate(0, 0, -1)

	var groups []DateGroup[T]
	for _, it := range ordered {
		ts := sentAt(it)
		if ts.IsZero() {
			if len(groups) == 0 {
				groups = append(groups, DateGroup[T]{Label: l.undated()})
			}
			last := &groups[len(groups)-1]
			last.Items = append(last.Items, it)
			continue
		}

		day := startOfDay(ts, o.loc)
		if n := len(groups); n > 0 && groups[n-1].Day.Equal(day) {
			groups[n-1].Items = append(groups[n-1].Items, it)
			continue
		}

		var label string
		switch {
		case day.Equal(today):
			label = l.today()
		case day.Equal(yesterday):
			label = l.yesterday()
		default:
			label = l.date(day)
		}
		groups = append(groups, DateGroup[T]{Label: label, Day: day, Items: []T{it}})
	}
	return groups
}

func isNewestFirst[T any](items []T, sentAt func(T) time.Time) bool {
	var first, last time.Time
	for _, it := range items {
		if ts := sentAt(it); !ts.IsZero() {
			first = ts
			break
		}
	}
	for i := len(items) - 1; i >= 0; i-- {
		if ts := sentAt(items[i]); !ts.IsZero() {
			last = ts
			break
		}
	}
	return first.After(last)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
