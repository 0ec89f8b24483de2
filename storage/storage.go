// Package storage holds the event store gateways (in-memory, Azure Table
// Storage, Redis and Postgres) and the decorators layered over them.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/harryliu06/anteater-events/domain"
	"github.com/harryliu06/anteater-events/query"
)

// Backend is the contract every event store gateway implements.
type Backend interface {
	Insert(ctx context.Context, ev domain.Event) (domain.Event, error)
	// Get returns nil without error when no event has the id.
	Get(ctx context.Context, id string) (*domain.Event, error)
	Query(ctx context.Context, q query.Query) ([]domain.Event, error)
}

// Pinger is implemented by gateways able to report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ErrConflict is returned when inserting an event whose id is already stored.
var ErrConflict = errors.New("event already exists")

// QueryError reports a query the backend refused to run.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string { return "query rejected: " + e.Err.Error() }

func (e *QueryError) Unwrap() error { return e.Err }

// InvalidQuery marks the error as caused by the request rather than the backend.
func (e *QueryError) InvalidQuery() {}

// validate runs the store independent checks and wraps rejections.
func validate(q query.Query) error {
	if err := q.Validate(); err != nil {
		return &QueryError{Err: err}
	}
	return nil
}

// ensureID assigns a fresh id to events submitted without one.
func ensureID(ev *domain.Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
}

func cloneEvent(ev domain.Event) domain.Event {
	ev.Categories = append([]string(nil), ev.Categories...)
	return ev
}
