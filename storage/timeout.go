package storage

import (
	"context"
	"time"

	"github.com/harryliu06/anteater-events/domain"
	"github.com/harryliu06/anteater-events/query"
)

// Timeout bounds every call to the wrapped backend.
type Timeout struct {
	base Backend
	d    time.Duration
}

// WithTimeout wraps base so each call runs with at most d. A non-positive d
// returns base unchanged.
func WithTimeout(base Backend, d time.Duration) Backend {
	if base == nil {
		panic("storage.WithTimeout: base storage is nil")
	}
	if d <= 0 {
		return base
	}
	return &Timeout{base: base, d: d}
}

func (t *Timeout) Insert(ctx context.Context, ev domain.Event) (domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.base.Insert(ctx, ev)
}

func (t *Timeout) Get(ctx context.Context, id string) (*domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.base.Get(ctx, id)
}

func (t *Timeout) Query(ctx context.Context, q query.Query) ([]domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.base.Query(ctx, q)
}

func (t *Timeout) Ping(ctx context.Context) error {
	p, ok := t.base.(Pinger)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return p.Ping(ctx)
}
