package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mfateev/temporal-agent-loop/internal/models"
)

// Memory keeps sessions in process memory.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]memorySession
	now      func() time.Time
}

type memorySession struct {
	messages  []models.Message
	updatedAt time.Time
}

func NewMemory() *Memory {
	return &Memory{sessions: map[string]memorySession{}, now: time.Now}
}

func (m *Memory) Load(_ context.Context, id string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]models.Message(nil), s.messages...), nil
}

func (m *Memory) Save(_ context.Context, id string, messages []models.Message) error {
	if err := validID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = memorySession{
		messages:  append([]models.Message(nil), messages...),
		updatedAt: m.now(),
	}
	return nil
}

func (m *Memory) List(context.Context) ([]SessionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for id, s := range m.sessions {
		out = append(out, SessionInfo{ID: id, Messages: len(s.messages), UpdatedAt: s.updatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Close() error { return nil }
