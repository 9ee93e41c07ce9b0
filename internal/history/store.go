// Package history persists session conversations between user turns.
//
// A session is stored whole: every message, including the originals that a
// summary or truncation marker has subsumed. Callers derive the effective
// history with contextmgr.EffectiveHistory.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mfateev/temporal-agent-loop/internal/models"
)

// ErrNotFound is returned by Load for an unknown session.
var ErrNotFound = errors.New("session not found")

// Store loads and saves session message lists.
type Store interface {
	Load(ctx context.Context, id string) ([]models.Message, error)
	Save(ctx context.Context, id string, messages []models.Message) error
	List(ctx context.Context) ([]SessionInfo, error)
	Close() error
}

// SessionInfo describes a stored session.
type SessionInfo struct {
	ID        string
	Messages  int
	UpdatedAt time.Time
}

// Open returns the store for kind ("memory", "file" or "sqlite").
func Open(kind, path string) (Store, error) {
	switch kind {
	case "memory":
		return NewMemory(), nil
	case "file":
		return NewFileStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown session store %q", kind)
	}
}

// LoadOrEmpty returns the stored messages, or nil for a new session.
func LoadOrEmpty(ctx context.Context, s Store, id string) ([]models.Message, error) {
	msgs, err := s.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return msgs, err
}

func validID(id string) error {
	if id == "" {
		return errors.New("session id is empty")
	}
	for _, r := range id {
		ok := r == '-' || r == '_' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return fmt.Errorf("session id %q contains %q", id, r)
		}
	}
	if id == "." || id == ".." {
		return fmt.Errorf("session id %q is reserved", id)
	}
	return nil
}
