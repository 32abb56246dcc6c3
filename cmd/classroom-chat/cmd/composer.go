package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nfrund/classroom/internal/chat"
)

type commandKind int

const (
	cmdSend commandKind = iota
	cmdTyping
	cmdReact
	cmdReply
	cmdClearReply
	cmdEdit
	cmdClearEdit
	cmdQuit
)

// command is one parsed composer line. index is the 1-based message number
// shown by the renderer.
type command struct {
	kind  commandKind
	index int
	arg   string
}

var errUsage = errors.New("usage: /react N emoji | /reply [N] | /edit N [text] | /typing | /quit")

// parseCommand turns a composer line into a command. Lines without a leading
// slash are messages.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdSend, arg: line}, nil
	}

	fields := strings.Fields(line)
	name, rest := fields[0], fields[1:]
	switch name {
	case "/quit", "/q":
		return command{kind: cmdQuit}, nil
	case "/typing":
		return command{kind: cmdTyping}, nil
	case "/reply":
		if len(rest) == 0 {
			return command{kind: cmdClearReply}, nil
		}
		n, err := messageIndex(rest[0])
		if err != nil {
			return command{}, err
		}
		return command{kind: cmdReply, index: n}, nil
	case "/react":
		if len(rest) != 2 {
			return command{}, errUsage
		}
		n, err := messageIndex(rest[0])
		if err != nil {
			return command{}, err
		}
		return command{kind: cmdReact, index: n, arg: rest[1]}, nil
	case "/edit":
		if len(rest) == 0 {
			return command{}, errUsage
		}
		n, err := messageIndex(rest[0])
		if err != nil {
			return command{}, err
		}
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line[len(name):]), rest[0]))
		if text == "" {
			return command{kind: cmdClearEdit, index: n}, nil
		}
		return command{kind: cmdEdit, index: n, arg: text}, nil
	default:
		return command{}, fmt.Errorf("unknown command %s: %w", name, errUsage)
	}
}

func messageIndex(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(s, "#"))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid message number %q", s)
	}
	return n, nil
}

// keyAt resolves a 1-based message number against the snapshot the user is
// looking at.
func keyAt(snap chat.Snapshot, n int) (string, error) {
	if n < 1 || n > len(snap.Messages) {
		return "", fmt.Errorf("no message #%d", n)
	}
	return snap.Messages[n-1].Key, nil
}

// apply runs cmd against s. It reports whether the composer should stop.
func (c command) apply(ctx context.Context, s *chat.Session) (bool, error) {
	switch c.kind {
	case cmdQuit:
		return true, nil
	case cmdSend:
		if c.arg == "" {
			return false, nil
		}
		// A composed line brackets the message with start and stop typing.
		if err := s.SendTyping(ctx, true); err != nil {
			return false, err
		}
		if err := s.SendMessage(ctx, c.arg); err != nil {
			return false, err
		}
		return false, s.SendTyping(ctx, false)
	case cmdTyping:
		return false, s.SendTyping(ctx, true)
	case cmdClearReply:
		s.ClearReplyTarget()
		return false, nil
	}

	key, err := keyAt(s.Snapshot(), c.index)
	if err != nil {
		return false, err
	}
	switch c.kind {
	case cmdReact:
		return false, s.ToggleReaction(key, c.arg)
	case cmdReply:
		return false, s.SetReplyTarget(key)
	case cmdEdit:
		return false, s.EditMessage(key, c.arg)
	case cmdClearEdit:
		s.ClearEdit(key)
	}
	return false, nil
}
