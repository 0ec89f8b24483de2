package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harryliu06/anteater-events/domain"
	"github.com/harryliu06/anteater-events/query"
)

// postgresSchema creates the events table with native array and date types
// so overlap and range filters run in the database.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS events (
	id          text PRIMARY KEY,
	title       text NOT NULL,
	description text NOT NULL,
	day         date NOT NULL,
	start_time  timestamptz NOT NULL,
	end_time    timestamptz NOT NULL CHECK (end_time > start_time),
	latitude    double precision NOT NULL CHECK (latitude BETWEEN -90 AND 90),
	longitude   double precision NOT NULL CHECK (longitude BETWEEN -180 AND 180),
	categories  text[] NOT NULL,
	status      text NOT NULL DEFAULT 'active',
	expiration  timestamptz NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS events_day_start_idx ON events (day, start_time)`,
	`CREATE INDEX IF NOT EXISTS events_categories_idx ON events USING GIN (categories)`,
}

const selectColumns = "id, title, description, day::text AS day, start_time, end_time, latitude, longitude, categories, status, expiration"

// columns maps query fields to columns and the cast applied to literals.
var columns = map[string]struct{ name, cast string }{
	query.FieldID:          {"id", ""},
	query.FieldDay:         {"day", "::date"},
	query.FieldStartTime:   {"start_time", "::timestamptz"},
	query.FieldTitle:       {"title", ""},
	query.FieldDescription: {"description", ""},
	query.FieldCategories:  {"categories", "::text[]"},
}

// PostgresStore keeps events in a Postgres table through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool and checks the first connection. Errors never
// include the DSN.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	conf, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.New("parsing postgres dsn: invalid connection string")
	}
	pool, err := pgxpool.NewWithConfig(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("creating pgx connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("opening first pgx connection: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() { s.pool.Close() }

// Migrate creates the events table and its indexes when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

type eventRow struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Day         string    `db:"day"`
	StartTime   time.Time `db:"start_time"`
	EndTime     time.Time `db:"end_time"`
	Latitude    float64   `db:"latitude"`
	Longitude   float64   `db:"longitude"`
	Categories  []string  `db:"categories"`
	Status      string    `db:"status"`
	Expiration  time.Time `db:"expiration"`
}

func (r eventRow) event() domain.Event {
	cats := r.Categories
	if cats == nil {
		cats = []string{}
	}
	return domain.Event{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Day:         r.Day,
		StartTime:   r.StartTime.UTC(),
		EndTime:     r.EndTime.UTC(),
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Categories:  cats,
		Status:      r.Status,
		Expiration:  r.Expiration.UTC(),
	}
}

func buildInsert(ev domain.Event) (string, []any) {
	sql := "INSERT INTO events (id, title, description, day, start_time, end_time, latitude, longitude, categories, status, expiration) " +
		"VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9::text[], $10, $11) RETURNING " + selectColumns
	return sql, []any{
		ev.ID, ev.Title, ev.Description, ev.Day, ev.StartTime, ev.EndTime,
		ev.Latitude, ev.Longitude, ev.Categories, ev.Status, ev.Expiration,
	}
}

// buildSelect renders q as a parameterised SELECT.
func buildSelect(q query.Query) (string, []any, error) {
	if err := validate(q); err != nil {
		return "", nil, err
	}
	var b strings.Builder
	var args []any
	param := func(v any, cast string) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args)) + cast
	}

	b.WriteString("SELECT ")
	b.WriteString(selectColumns)
	b.WriteString(" FROM ")
	b.WriteString(pgx.Identifier{q.Table}.Sanitize())

	for i, f := range q.Filters {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		col := columns[f.Field]
		switch f.Op {
		case query.OpEq:
			b.WriteString(col.name + " = " + param(f.Value, col.cast))
		case query.OpGte:
			b.WriteString(col.name + " >= " + param(f.Value, col.cast))
		case query.OpLte:
			b.WriteString(col.name + " <= " + param(f.Value, col.cast))
		case query.OpOverlaps:
			b.WriteString(col.name + " && " + param(f.Values, col.cast))
		case query.OpContainsAny:
			p := param("%"+escapeLike(f.Value)+"%", "")
			b.WriteString("(")
			for j, field := range f.Fields {
				if j > 0 {
					b.WriteString(" OR ")
				}
				b.WriteString(columns[field].name + " ILIKE " + p)
			}
			b.WriteString(")")
		}
	}

	for i, o := range q.Order {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(columns[o.Field].name)
		if o.Desc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	}
	return b.String(), args, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

func (s *PostgresStore) Insert(ctx context.Context, ev domain.Event) (domain.Event, error) {
	ensureID(&ev)
	sql, args := buildInsert(ev)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return domain.Event{}, pgError(err, ev.ID)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[eventRow])
	if err != nil {
		return domain.Event{}, pgError(err, ev.ID)
	}
	return row.event(), nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.Event, error) {
	events, err := s.Query(ctx, query.ByID(id))
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

func (s *PostgresStore) Query(ctx context.Context, q query.Query) ([]domain.Event, error) {
	sql, args, err := buildSelect(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, pgError(err, "")
	}
	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[eventRow])
	if err != nil {
		return nil, pgError(err, "")
	}
	events := make([]domain.Event, len(found))
	for i, r := range found {
		events[i] = r.event()
	}
	return events, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// pgError classifies server errors: unique violations become ErrConflict and
// data or syntax errors (SQLSTATE classes 22 and 42) become QueryError.
func pgError(err error, id string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == "23505":
		return fmt.Errorf("insert %s: %w", id, ErrConflict)
	case strings.HasPrefix(pgErr.Code, "22"), strings.HasPrefix(pgErr.Code, "42"):
		return &QueryError{Err: err}
	}
	return err
}
