package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/harryliu06/anteater-events/domain"
	"github.com/harryliu06/anteater-events/query"
)

// Memory keeps events in process. It backs local runs and tests.
type Memory struct {
	mu     sync.RWMutex
	events map[string]domain.Event
	order  []string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{events: map[string]domain.Event{}}
}

func (m *Memory) Insert(ctx context.Context, ev domain.Event) (domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return domain.Event{}, err
	}
	ensureID(&ev)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.events[ev.ID]; exists {
		return domain.Event{}, fmt.Errorf("insert %s: %w", ev.ID, ErrConflict)
	}
	m.events[ev.ID] = cloneEvent(ev)
	m.order = append(m.order, ev.ID)
	return cloneEvent(ev), nil
}

func (m *Memory) Get(ctx context.Context, id string) (*domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, nil
	}
	out := cloneEvent(ev)
	return &out, nil
}

func (m *Memory) Query(ctx context.Context, q query.Query) ([]domain.Event, error) {
	if err := validate(q); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	snapshot := make([]domain.Event, 0, len(m.order))
	for _, id := range m.order {
		snapshot = append(snapshot, cloneEvent(m.events[id]))
	}
	m.mu.RUnlock()
	return query.Apply(q, snapshot)
}

func (m *Memory) Ping(context.Context) error { return nil }
