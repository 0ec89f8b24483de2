// Package query translates request filters into store-neutral queries over
// the events table and evaluates them in process for backends that lack the
// needed operators.
package query

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harryliu06/anteater-events/domain"
)

// EventsTable is the table/collection events are stored in.
const EventsTable = "events"

// ListingWindowDays is the size of the default upcoming window, counted from today.
const ListingWindowDays = 7

// Fields that may appear in filters and orderings.
const (
	FieldID          = "id"
	FieldDay         = "day"
	FieldStartTime   = "start_time"
	FieldCategories  = "categories"
	FieldTitle       = "title"
	FieldDescription = "description"
)

// Op is a filter operator.
type Op int

const (
	// OpEq matches a field equal to Value.
	OpEq Op = iota
	// OpOverlaps matches when the field's set shares an element with Values.
	OpOverlaps
	// OpGte matches a field greater than or equal to Value.
	OpGte
	// OpLte matches a field less than or equal to Value.
	OpLte
	// OpContainsAny matches when any of Fields contains Value, ignoring case.
	OpContainsAny
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "eq"
	case OpOverlaps:
		return "overlaps"
	case OpGte:
		return "gte"
	case OpLte:
		return "lte"
	case OpContainsAny:
		return "contains_any"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Filter is a single predicate. Filters in a query are AND-combined.
type Filter struct {
	Op     Op
	Field  string
	Fields []string
	Value  string
	Values []string
}

// Order is a sort key.
type Order struct {
	Field string
	Desc  bool
}

// Query describes a read against the event store.
type Query struct {
	Table   string
	Filters []Filter
	Order   []Order
	// Limit caps the number of results; zero means unlimited.
	Limit int
}

// ErrMissingSearch is returned when a search carries no usable text.
var ErrMissingSearch = errors.New("Missing required 'search' parameter")

// ParamError reports a malformed request parameter.
type ParamError struct {
	Param string
	Msg   string
}

func (e *ParamError) Error() string { return e.Msg }

// Eq builds an equality filter.
func Eq(field, value string) Filter { return Filter{Op: OpEq, Field: field, Value: value} }

// Gte builds a lower bound filter.
func Gte(field, value string) Filter { return Filter{Op: OpGte, Field: field, Value: value} }

// Lte builds an upper bound filter.
func Lte(field, value string) Filter { return Filter{Op: OpLte, Field: field, Value: value} }

// Overlaps builds an array intersection filter.
func Overlaps(field string, values []string) Filter {
	return Filter{Op: OpOverlaps, Field: field, Values: values}
}

// ContainsAny builds a case-insensitive substring filter OR-ed across fields.
func ContainsAny(text string, fields ...string) Filter {
	return Filter{Op: OpContainsAny, Fields: fields, Value: text}
}

// Listing builds the query behind the events listing. Without a day the
// window runs from today to today+ListingWindowDays inclusive (UTC dates).
// Categories are matched with any-of semantics; none, or the single value
// "all", disables the category filter.
func Listing(day string, categories []string, now time.Time) (Query, error) {
	q := Query{
		Table: EventsTable,
		Order: []Order{{Field: FieldDay}, {Field: FieldStartTime}},
	}
	if strings.TrimSpace(day) == "" {
		today := now.UTC()
		q.Filters = append(q.Filters,
			Gte(FieldDay, today.Format(domain.DayLayout)),
			Lte(FieldDay, today.AddDate(0, 0, ListingWindowDays).Format(domain.DayLayout)),
		)
	} else {
		d, ok := domain.ParseDay(day)
		if !ok {
			return Query{}, &ParamError{Param: "day", Msg: "Invalid 'day' query parameter. Use YYYY-MM-DD."}
		}
		q.Filters = append(q.Filters, Eq(FieldDay, d))
	}

	cats := domain.ListValues(categories)
	if !matchesAllCategories(cats) {
		q.Filters = append(q.Filters, Overlaps(FieldCategories, cats))
	}
	return q, nil
}

func matchesAllCategories(cats []string) bool {
	return len(cats) == 0 || (len(cats) == 1 && strings.EqualFold(cats[0], "all"))
}

// Search builds a query for events on day whose title or description
// contains text, ignoring case.
func Search(day, text string) (Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Query{}, ErrMissingSearch
	}
	if strings.TrimSpace(day) == "" {
		return Query{}, &ParamError{Param: "day", Msg: "Missing required 'day' parameter"}
	}
	d, ok := domain.ParseDay(day)
	if !ok {
		return Query{}, &ParamError{Param: "day", Msg: "Invalid 'day' query parameter. Use YYYY-MM-DD."}
	}
	return Query{
		Table: EventsTable,
		Filters: []Filter{
			Eq(FieldDay, d),
			ContainsAny(text, FieldTitle, FieldDescription),
		},
	}, nil
}

// ByID builds a lookup for a single event.
func ByID(id string) Query {
	return Query{
		Table:   EventsTable,
		Filters: []Filter{Eq(FieldID, id)},
		Limit:   1,
	}
}
