package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"github.com/harryliu06/anteater-events/domain"
	"github.com/harryliu06/anteater-events/query"
)

const (
	edmDateTime = "Edm.DateTime"
	edmDouble   = "Edm.Double"
)

// TableStore keeps events in Azure Table Storage. The partition key is the
// event day and the row key the event id, so day filters are served by the
// table service while category and text filters are evaluated here.
type TableStore struct {
	table *aztables.Client
}

// NewTableStore connects to the named table using a storage connection string.
func NewTableStore(connStr, table string) (*TableStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, fmt.Errorf("table service: %w", err)
	}
	return &TableStore{table: svc.NewClient(table)}, nil
}

type eventEntity struct {
	PartitionKey   string    `json:"PartitionKey"`
	RowKey         string    `json:"RowKey"`
	Title          string    `json:"Title"`
	Description    string    `json:"Description"`
	StartTime      time.Time `json:"StartTime"`
	StartTimeType  string    `json:"StartTime@odata.type,omitempty"`
	EndTime        time.Time `json:"EndTime"`
	EndTimeType    string    `json:"EndTime@odata.type,omitempty"`
	Latitude       float64   `json:"Latitude"`
	LatitudeType   string    `json:"Latitude@odata.type,omitempty"`
	Longitude      float64   `json:"Longitude"`
	LongitudeType  string    `json:"Longitude@odata.type,omitempty"`
	Categories     string    `json:"Categories"`
	Status         string    `json:"Status"`
	Expiration     time.Time `json:"Expiration"`
	ExpirationType string    `json:"Expiration@odata.type,omitempty"`
}

func encodeEntity(ev domain.Event) ([]byte, error) {
	cats, err := sonic.MarshalString(ev.Categories)
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(eventEntity{
		PartitionKey:   ev.Day,
		RowKey:         ev.ID,
		Title:          ev.Title,
		Description:    ev.Description,
		StartTime:      ev.StartTime.UTC(),
		StartTimeType:  edmDateTime,
		EndTime:        ev.EndTime.UTC(),
		EndTimeType:    edmDateTime,
		Latitude:       ev.Latitude,
		LatitudeType:   edmDouble,
		Longitude:      ev.Longitude,
		LongitudeType:  edmDouble,
		Categories:     cats,
		Status:         ev.Status,
		Expiration:     ev.Expiration.UTC(),
		ExpirationType: edmDateTime,
	})
}

func decodeEntity(data []byte) (domain.Event, error) {
	var ent eventEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Event{}, err
	}
	ev := domain.Event{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		Day:         ent.PartitionKey,
		StartTime:   ent.StartTime.UTC(),
		EndTime:     ent.EndTime.UTC(),
		Latitude:    ent.Latitude,
		Longitude:   ent.Longitude,
		Categories:  []string{},
		Status:      ent.Status,
		Expiration:  ent.Expiration.UTC(),
	}
	if ent.Categories != "" {
		if err := sonic.UnmarshalString(ent.Categories, &ev.Categories); err != nil {
			return domain.Event{}, fmt.Errorf("decode categories of %s: %w", ent.RowKey, err)
		}
	}
	return ev, nil
}

// Insert adds the event. An existing id is reported as ErrConflict.
func (s *TableStore) Insert(ctx context.Context, ev domain.Event) (domain.Event, error) {
	ensureID(&ev)
	payload, err := encodeEntity(ev)
	if err != nil {
		return domain.Event{}, err
	}
	if _, err := s.table.AddEntity(ctx, payload, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusConflict {
			return domain.Event{}, fmt.Errorf("insert %s: %w", ev.ID, ErrConflict)
		}
		return domain.Event{}, err
	}
	return ev, nil
}

// Get looks an event up by row key across partitions.
func (s *TableStore) Get(ctx context.Context, id string) (*domain.Event, error) {
	events, err := s.Query(ctx, query.ByID(id))
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// Query pushes day and id filters down as an OData filter and evaluates the
// rest of q over the returned entities.
func (s *TableStore) Query(ctx context.Context, q query.Query) ([]domain.Event, error) {
	if err := validate(q); err != nil {
		return nil, err
	}
	opts := &aztables.ListEntitiesOptions{}
	if filter := tableFilter(q); filter != "" {
		opts.Filter = &filter
	}
	pager := s.table.NewListEntitiesPager(opts)
	events := []domain.Event{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			var respErr *azcore.ResponseError
			if errors.As(err, &respErr) && respErr.StatusCode == http.StatusBadRequest {
				return nil, &QueryError{Err: err}
			}
			return nil, err
		}
		for _, e := range resp.Entities {
			ev, err := decodeEntity(e)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
	}
	return query.Apply(q, events)
}

// tableFilter translates the filters the table service can evaluate. Other
// filters are left to query.Apply.
func tableFilter(q query.Query) string {
	var clauses []string
	for _, f := range q.Filters {
		var key string
		switch f.Field {
		case query.FieldDay:
			key = "PartitionKey"
		case query.FieldID:
			key = "RowKey"
		default:
			continue
		}
		var op string
		switch f.Op {
		case query.OpEq:
			op = "eq"
		case query.OpGte:
			op = "ge"
		case query.OpLte:
			op = "le"
		default:
			continue
		}
		clauses = append(clauses, key+" "+op+" '"+escapeOData(f.Value)+"'")
	}
	return strings.Join(clauses, " and ")
}

func escapeOData(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

// CreateTable provisions the table, tolerating an existing one.
func (s *TableStore) CreateTable(ctx context.Context) error {
	_, err := s.table.CreateTable(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists) {
			return nil
		}
		return err
	}
	return nil
}

// Ping reads at most one entity to check the table is reachable.
func (s *TableStore) Ping(ctx context.Context) error {
	top := int32(1)
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Top: &top})
	_, err := pager.NextPage(ctx)
	return err
}
