package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/nfrund/classroom/internal/domain"
)

// Fixtures is the seed data file read by the development server.
type Fixtures struct {
	Rooms    []domain.Room    `yaml:"rooms"`
	Members  []domain.Member  `yaml:"members"`
	Messages []FixtureMessage `yaml:"messages"`
}

// FixtureMessage is a history entry in a fixtures file.
type FixtureMessage struct {
	ID      string    `yaml:"id"`
	RoomID  string    `yaml:"room"`
	UserID  string    `yaml:"user"`
	Content string    `yaml:"content"`
	SentAt  time.Time `yaml:"sentAt"`
}

// LoadFixtures reads and parses a YAML fixtures file from fs.
func LoadFixtures(fs afero.Fs, path string) (*Fixtures, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures %s: %w", path, err)
	}

	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures %s: %w", path, err)
	}
	return &f, nil
}

// Seed loads the fixtures into s. Messages are appended in file order and
// must reference a known room.
func (f *Fixtures) Seed(ctx context.Context, s *MemoryStore) error {
	for _, r := range f.Rooms {
		if r.ID == "" {
			return fmt.Errorf("fixture room without id: %w", domain.ErrMissingRoom)
		}
		s.PutRoom(r)
	}
	for _, m := range f.Members {
		if m.ID == "" {
			return fmt.Errorf("fixture member without id: %w", domain.ErrMissingUser)
		}
		s.PutMember(m)
	}
	for i, fm := range f.Messages {
		msg := domain.Message{
			ID:      fm.ID,
			RoomID:  fm.RoomID,
			UserID:  fm.UserID,
			Content: fm.Content,
			SentAt:  fm.SentAt,
		}
		if _, err := s.AppendMessage(ctx, msg); err != nil {
			return fmt.Errorf("fixture message %d: %w", i, err)
		}
	}
	return nil
}
