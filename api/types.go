package api

import (
	"context"

	"github.com/harryliu06/anteater-events/domain"
	"github.com/harryliu06/anteater-events/query"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	Insert(ctx context.Context, ev domain.Event) (domain.Event, error)
	// Get returns nil without error when the id is unknown.
	Get(ctx context.Context, id string) (*domain.Event, error)
	Query(ctx context.Context, q query.Query) ([]domain.Event, error)
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// InvalidQueryError is returned by stores when a query is malformed or uses
// an operator the backend refuses.
type InvalidQueryError interface {
	error
	InvalidQuery()
}

type errorResponse struct {
	Error string `json:"error"`
}

type eventsResponse struct {
	Events []domain.Event `json:"events"`
}

type featureResponse struct {
	Feature domain.Feature `json:"feature"`
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
