package query

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/harryliu06/anteater-events/domain"
)

// UnsupportedError is returned when a query uses a field, operator or value
// the event store cannot serve.
type UnsupportedError struct {
	Reason string
}

func (e *UnsupportedError) Error() string { return "unsupported query: " + e.Reason }

func unsupported(format string, args ...any) error {
	return &UnsupportedError{Reason: fmt.Sprintf(format, args...)}
}

var (
	scalarFields = map[string]bool{
		FieldID:          true,
		FieldDay:         true,
		FieldStartTime:   true,
		FieldTitle:       true,
		FieldDescription: true,
	}
	textFields = map[string]bool{
		FieldID:          true,
		FieldTitle:       true,
		FieldDescription: true,
	}
)

// Validate checks that every filter and ordering references a known field
// with a well formed value.
func (q Query) Validate() error {
	if q.Table != EventsTable {
		return unsupported("unknown table %q", q.Table)
	}
	if q.Limit < 0 {
		return unsupported("negative limit %d", q.Limit)
	}
	for _, f := range q.Filters {
		switch f.Op {
		case OpEq, OpGte, OpLte:
			if !scalarFields[f.Field] {
				return unsupported("%s on field %q", f.Op, f.Field)
			}
			if err := checkScalar(f.Field, f.Value); err != nil {
				return err
			}
		case OpOverlaps:
			if f.Field != FieldCategories {
				return unsupported("overlaps on field %q", f.Field)
			}
		case OpContainsAny:
			if len(f.Fields) == 0 {
				return unsupported("contains_any without fields")
			}
			for _, field := range f.Fields {
				if !textFields[field] {
					return unsupported("contains_any on field %q", field)
				}
			}
			if f.Value == "" {
				return unsupported("contains_any with empty text")
			}
		default:
			return unsupported("operator %s", f.Op)
		}
	}
	for _, o := range q.Order {
		if !scalarFields[o.Field] {
			return unsupported("order by %q", o.Field)
		}
	}
	return nil
}

func checkScalar(field, value string) error {
	switch field {
	case FieldDay:
		if _, ok := domain.ParseDay(value); !ok {
			return unsupported("malformed day %q", value)
		}
	case FieldStartTime:
		if _, err := domain.ParseTimestamp(value); err != nil {
			return unsupported("malformed start_time %q", value)
		}
	}
	return nil
}

// Match reports whether ev satisfies every filter of q.
func (q Query) Match(ev domain.Event) (bool, error) {
	if err := q.Validate(); err != nil {
		return false, err
	}
	return q.matches(ev), nil
}

func (q Query) matches(ev domain.Event) bool {
	for _, f := range q.Filters {
		if !matchFilter(f, ev) {
			return false
		}
	}
	return true
}

func matchFilter(f Filter, ev domain.Event) bool {
	switch f.Op {
	case OpEq:
		return compareField(ev, f.Field, f.Value) == 0
	case OpGte:
		return compareField(ev, f.Field, f.Value) >= 0
	case OpLte:
		return compareField(ev, f.Field, f.Value) <= 0
	case OpOverlaps:
		for _, want := range f.Values {
			if slices.Contains(ev.Categories, want) {
				return true
			}
		}
		return false
	case OpContainsAny:
		needle := strings.ToLower(f.Value)
		for _, field := range f.Fields {
			if strings.Contains(strings.ToLower(textValue(ev, field)), needle) {
				return true
			}
		}
		return false
	}
	return false
}

// compareField compares the event's field against a query literal that
// already passed Validate.
func compareField(ev domain.Event, field, value string) int {
	switch field {
	case FieldStartTime:
		t, _ := domain.ParseTimestamp(value)
		return ev.StartTime.Compare(t)
	case FieldDay:
		d, _ := domain.ParseDay(value)
		return strings.Compare(ev.Day, d)
	default:
		return strings.Compare(textValue(ev, field), value)
	}
}

func textValue(ev domain.Event, field string) string {
	switch field {
	case FieldID:
		return ev.ID
	case FieldTitle:
		return ev.Title
	case FieldDescription:
		return ev.Description
	case FieldDay:
		return ev.Day
	}
	return ""
}

// Sort orders events in place by the given keys. Ties keep their input order.
func Sort(events []domain.Event, order []Order) {
	if len(order) == 0 {
		return
	}
	slices.SortStableFunc(events, func(a, b domain.Event) int {
		for _, o := range order {
			var c int
			if o.Field == FieldStartTime {
				c = a.StartTime.Compare(b.StartTime)
			} else {
				c = cmp.Compare(textValue(a, o.Field), textValue(b, o.Field))
			}
			if o.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

// Apply filters, sorts and limits events according to q. It is the full
// in-process evaluation used by stores without native query support.
func Apply(q Query, events []domain.Event) ([]domain.Event, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	out := make([]domain.Event, 0, len(events))
	for _, ev := range events {
		if q.matches(ev) {
			out = append(out, ev)
		}
	}
	Sort(out, q.Order)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// DayBounds returns the inclusive day range implied by q's day filters.
// Either bound may be empty when unconstrained.
func DayBounds(q Query) (from, to string) {
	for _, f := range q.Filters {
		if f.Field != FieldDay {
			continue
		}
		switch f.Op {
		case OpEq:
			return f.Value, f.Value
		case OpGte:
			from = f.Value
		case OpLte:
			to = f.Value
		}
	}
	return from, to
}

// DaysBetween expands an inclusive day range. It returns false when either
// bound is missing or the range exceeds limit days.
func DaysBetween(from, to string, limit int) ([]string, bool) {
	if from == "" || to == "" {
		return nil, false
	}
	start, err := time.Parse(domain.DayLayout, from)
	if err != nil {
		return nil, false
	}
	end, err := time.Parse(domain.DayLayout, to)
	if err != nil {
		return nil, false
	}
	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if len(days) == limit {
			return nil, false
		}
		days = append(days, d.Format(domain.DayLayout))
	}
	return days, true
}
