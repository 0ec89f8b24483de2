package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/harryliu06/anteater-events/domain"
	"github.com/harryliu06/anteater-events/query"
)

// EventCreated is the message type published after a successful insert.
const EventCreated = "event-created"

// DefaultPublishTimeout bounds one publish including the queue client's
// retries.
const DefaultPublishTimeout = 5 * time.Second

// Envelope is the queue message body.
type Envelope struct {
	Type  string       `json:"type"`
	Event domain.Event `json:"event"`
}

// MessageQueue is the part of the Azure queue client the notifier uses.
type MessageQueue interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Notifier publishes created events to an Azure Storage queue after the
// wrapped backend stored them. Publishing failures are logged only; the
// insert has already succeeded.
type Notifier struct {
	base    Backend
	queue   MessageQueue
	logger  *log.Logger
	timeout time.Duration
}

// NewQueueClient connects to an Azure Storage queue.
func NewQueueClient(connStr, queueName string) (*azqueue.QueueClient, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Second * 30,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 10,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, fmt.Errorf("queue client: %w", err)
	}
	return q, nil
}

// CreateQueue provisions the queue, tolerating an existing one.
func CreateQueue(ctx context.Context, q *azqueue.QueueClient) error {
	if _, err := q.Create(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists" {
			return nil
		}
		return err
	}
	return nil
}

// NewNotifier wraps base with created-event publishing.
func NewNotifier(base Backend, queue MessageQueue, logger *log.Logger) *Notifier {
	if base == nil {
		panic("storage.NewNotifier: base storage is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Notifier{base: base, queue: queue, logger: logger, timeout: DefaultPublishTimeout}
}

// WithPublishTimeout replaces the publish bound. Non-positive values keep the
// current one.
func (n *Notifier) WithPublishTimeout(d time.Duration) *Notifier {
	if d > 0 {
		n.timeout = d
	}
	return n
}

func (n *Notifier) Insert(ctx context.Context, ev domain.Event) (domain.Event, error) {
	stored, err := n.base.Insert(ctx, ev)
	if err != nil {
		return stored, err
	}
	n.publish(ctx, stored)
	return stored, nil
}

func (n *Notifier) publish(ctx context.Context, ev domain.Event) {
	if n.queue == nil {
		return
	}
	payload, err := sonic.MarshalString(Envelope{Type: EventCreated, Event: ev})
	if err != nil {
		n.logger.WithError(err).WithField("event_id", ev.ID).Error("encode created event")
		return
	}
	// The event is already stored, so a caller hanging up must not drop the
	// message, but a slow queue must not hold the response either.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()
	if _, err := n.queue.EnqueueMessage(ctx, payload, nil); err != nil {
		n.logger.WithError(err).WithField("event_id", ev.ID).Warn("publish created event failed")
		return
	}
	n.logger.WithField("event_id", ev.ID).Debug("created event published")
}

func (n *Notifier) Get(ctx context.Context, id string) (*domain.Event, error) {
	return n.base.Get(ctx, id)
}

func (n *Notifier) Query(ctx context.Context, q query.Query) ([]domain.Event, error) {
	return n.base.Query(ctx, q)
}

func (n *Notifier) Ping(ctx context.Context) error {
	if p, ok := n.base.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
