package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/harryliu06/anteater-events/domain"
	"github.com/harryliu06/anteater-events/query"
)

// maxIndexedDays bounds how many per-day index sets a single query unions
// before falling back to the full id set.
const maxIndexedDays = 366

// RedisStore keeps each event as a JSON document and indexes ids per day.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps a Redis client. Keys are namespaced with prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if client == nil {
		panic("storage.NewRedisStore: client is nil")
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) docKey(id string) string  { return s.prefix + "event:" + id }
func (s *RedisStore) dayKey(day string) string { return s.prefix + "events:day:" + day }
func (s *RedisStore) idsKey() string           { return s.prefix + "events:ids" }

// Insert writes the document and both index entries in one MULTI/EXEC
// guarded by WATCH on the document key, so an existing id is never replaced
// and a concurrent insert of the same id loses with ErrConflict. Redis does
// not roll back a transaction whose commands fail at run time, so a failed
// EXEC removes whatever it left behind before returning.
func (s *RedisStore) Insert(ctx context.Context, ev domain.Event) (domain.Event, error) {
	ensureID(&ev)
	data, err := sonic.Marshal(ev)
	if err != nil {
		return domain.Event{}, err
	}
	doc := s.docKey(ev.ID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, doc).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, doc, data, 0)
			pipe.SAdd(ctx, s.dayKey(ev.Day), ev.ID)
			pipe.SAdd(ctx, s.idsKey(), ev.ID)
			return nil
		})
		if err != nil && !errors.Is(err, redis.TxFailedErr) {
			s.discard(ctx, ev)
		}
		return err
	}, doc)
	switch {
	case errors.Is(err, ErrConflict), errors.Is(err, redis.TxFailedErr):
		return domain.Event{}, fmt.Errorf("insert %s: %w", ev.ID, ErrConflict)
	case err != nil:
		return domain.Event{}, fmt.Errorf("insert %s: %w", ev.ID, err)
	}
	return ev, nil
}

// discard removes a partially written event. The id did not exist before the
// insert, so nothing else owns these entries.
func (s *RedisStore) discard(ctx context.Context, ev domain.Event) {
	ctx = context.WithoutCancel(ctx)
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.docKey(ev.ID))
	pipe.SRem(ctx, s.dayKey(ev.Day), ev.ID)
	pipe.SRem(ctx, s.idsKey(), ev.ID)
	_, _ = pipe.Exec(ctx)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*domain.Event, error) {
	data, err := s.client.Get(ctx, s.docKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var ev domain.Event
	if err := sonic.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return &ev, nil
}

// Query resolves candidate ids through the day index and evaluates q over
// the loaded documents.
func (s *RedisStore) Query(ctx context.Context, q query.Query) ([]domain.Event, error) {
	if err := validate(q); err != nil {
		return nil, err
	}
	ids, err := s.candidates(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.Event{}, nil
	}
	slices.Sort(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	events := make([]domain.Event, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var ev domain.Event
		if err := sonic.UnmarshalString(raw, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", ids[i], err)
		}
		events = append(events, ev)
	}
	return query.Apply(q, events)
}

func (s *RedisStore) candidates(ctx context.Context, q query.Query) ([]string, error) {
	for _, f := range q.Filters {
		if f.Op == query.OpEq && f.Field == query.FieldID {
			return []string{f.Value}, nil
		}
	}
	from, to := query.DayBounds(q)
	days, ok := query.DaysBetween(from, to, maxIndexedDays)
	if !ok {
		return s.client.SMembers(ctx, s.idsKey()).Result()
	}
	if len(days) == 0 {
		return nil, nil
	}
	keys := make([]string, len(days))
	for i, d := range days {
		keys[i] = s.dayKey(d)
	}
	return s.client.SUnion(ctx, keys...).Result()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// ParseRedisOptions accepts either a redis:// URL or the Azure style
// "host:port,password=...,ssl=true" connection string.
func ParseRedisOptions(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("empty redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}
