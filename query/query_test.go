package query

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/harryliu06/anteater-events/domain"
)

var now = time.Date(2025, 11, 5, 22, 15, 0, 0, time.FixedZone("PST", -8*3600))

func event(id, day, start string, cats ...string) domain.Event {
	st, err := domain.ParseTimestamp(start)
	if err != nil {
		panic(err)
	}
	return domain.Event{
		ID:          id,
		Title:       "Event " + id,
		Description: "About " + id,
		Day:         day,
		StartTime:   st,
		EndTime:     st.Add(time.Hour),
		Categories:  cats,
		Status:      domain.StatusActive,
	}
}

func ids(events []domain.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}

func TestListingDefaultsToUpcomingWeek(t *testing.T) {
	q, err := Listing("", nil, now)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	// now is already Nov 6 in UTC.
	want := []Filter{Gte(FieldDay, "2025-11-06"), Lte(FieldDay, "2025-11-13")}
	if !reflect.DeepEqual(q.Filters, want) {
		t.Fatalf("unexpected filters: %#v", q.Filters)
	}
	if !reflect.DeepEqual(q.Order, []Order{{Field: FieldDay}, {Field: FieldStartTime}}) {
		t.Fatalf("unexpected order: %#v", q.Order)
	}
	if err := q.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestListingWindowSelectsOnlyUpcomingDays(t *testing.T) {
	events := []domain.Event{
		event("past", "2025-11-05", "2025-11-05T10:00:00Z", "music"),
		event("first", "2025-11-06", "2025-11-06T10:00:00Z", "music"),
		event("last", "2025-11-13", "2025-11-13T10:00:00Z", "art"),
		event("late", "2025-11-14", "2025-11-14T10:00:00Z", "music"),
	}
	q, err := Listing("", []string{""}, now)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	got, err := Apply(q, events)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if want := []string{"first", "last"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("got %v, want %v", ids(got), want)
	}
}

func TestListingExactDay(t *testing.T) {
	q, err := Listing("2025-11-05", nil, now)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if !reflect.DeepEqual(q.Filters, []Filter{Eq(FieldDay, "2025-11-05")}) {
		t.Fatalf("unexpected filters: %#v", q.Filters)
	}
}

func TestListingRejectsMalformedDay(t *testing.T) {
	_, err := Listing("11/05/2025", nil, now)
	var pErr *ParamError
	if !errors.As(err, &pErr) || pErr.Param != "day" {
		t.Fatalf("expected day param error, got %v", err)
	}
}

func TestListingCategories(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []Filter
	}{
		{name: "none", in: nil, want: []Filter{Eq(FieldDay, "2025-11-05")}},
		{name: "all", in: []string{"all"}, want: []Filter{Eq(FieldDay, "2025-11-05")}},
		{name: "all upper", in: []string{" ALL "}, want: []Filter{Eq(FieldDay, "2025-11-05")}},
		{name: "single", in: []string{"music"}, want: []Filter{Eq(FieldDay, "2025-11-05"), Overlaps(FieldCategories, []string{"music"})}},
		{name: "csv and repeated", in: []string{"music,art", "food", "art"}, want: []Filter{Eq(FieldDay, "2025-11-05"), Overlaps(FieldCategories, []string{"music", "art", "food"})}},
		{name: "all among others", in: []string{"all", "music"}, want: []Filter{Eq(FieldDay, "2025-11-05"), Overlaps(FieldCategories, []string{"all", "music"})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Listing("2025-11-05", tt.in, now)
			if err != nil {
				t.Fatalf("listing: %v", err)
			}
			if !reflect.DeepEqual(q.Filters, tt.want) {
				t.Fatalf("got %#v, want %#v", q.Filters, tt.want)
			}
		})
	}
}

func TestListingCategoryOverlapAndOrdering(t *testing.T) {
	events := []domain.Event{
		event("b", "2025-11-05", "2025-11-05T18:00:00Z", "music", "fun"),
		event("c", "2025-11-05", "2025-11-05T09:00:00Z", "art"),
		event("a", "2025-11-05", "2025-11-05T08:00:00Z", "fun", "music"),
		event("d", "2025-11-05", "2025-11-05T07:00:00Z", "sports"),
	}
	q, _ := Listing("2025-11-05", []string{"music"}, now)
	got, err := Apply(q, events)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("got %v, want %v", ids(got), want)
	}

	q, _ = Listing("2025-11-05", []string{"all"}, now)
	got, _ = Apply(q, events)
	if want := []string{"d", "a", "c", "b"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("got %v, want %v", ids(got), want)
	}
}

func TestSearch(t *testing.T) {
	if _, err := Search("2025-11-05", "   "); !errors.Is(err, ErrMissingSearch) {
		t.Fatalf("expected missing search error, got %v", err)
	}
	var pErr *ParamError
	if _, err := Search("", "hack"); !errors.As(err, &pErr) {
		t.Fatalf("expected missing day error, got %v", err)
	}

	q, err := Search("2025-11-05", "  HACK ")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	hack := event("h", "2025-11-05", "2025-11-05T10:00:00Z", "tech")
	hack.Title = "ICSSC Hackathon"
	talk := event("t", "2025-11-05", "2025-11-05T11:00:00Z", "tech")
	talk.Description = "a talk about life hacks"
	other := event("o", "2025-11-05", "2025-11-05T12:00:00Z", "tech")
	otherDay := event("x", "2025-11-06", "2025-11-06T12:00:00Z", "tech")
	otherDay.Title = "Hackathon day two"

	got, err := Apply(q, []domain.Event{hack, talk, other, otherDay})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if want := []string{"h", "t"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("got %v, want %v", ids(got), want)
	}
}

func TestByID(t *testing.T) {
	q := ByID("abc")
	got, err := Apply(q, []domain.Event{
		event("x", "2025-11-05", "2025-11-05T10:00:00Z", "a"),
		event("abc", "2025-11-05", "2025-11-05T10:00:00Z", "a"),
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(got) != 1 || got[0].ID != "abc" {
		t.Fatalf("unexpected result %v", ids(got))
	}
}

func TestValidateRejectsMalformedQueries(t *testing.T) {
	tests := map[string]Query{
		"table":         {Table: "users"},
		"overlaps":      {Table: EventsTable, Filters: []Filter{Overlaps(FieldTitle, []string{"x"})}},
		"eq categories": {Table: EventsTable, Filters: []Filter{Eq(FieldCategories, "x")}},
		"bad day":       {Table: EventsTable, Filters: []Filter{Gte(FieldDay, "yesterday")}},
		"bad order":     {Table: EventsTable, Order: []Order{{Field: "latitude"}}},
		"empty text":    {Table: EventsTable, Filters: []Filter{ContainsAny("", FieldTitle)}},
		"operator":      {Table: EventsTable, Filters: []Filter{{Op: Op(42), Field: FieldDay}}},
	}
	for name, q := range tests {
		t.Run(name, func(t *testing.T) {
			var uErr *UnsupportedError
			if err := q.Validate(); !errors.As(err, &uErr) {
				t.Fatalf("expected unsupported error, got %v", err)
			}
			if _, err := q.Match(domain.Event{}); err == nil {
				t.Fatalf("expected match to fail")
			}
		})
	}
}

func TestDaysBetween(t *testing.T) {
	days, ok := DaysBetween("2025-12-30", "2026-01-02", 10)
	if !ok || !reflect.DeepEqual(days, []string{"2025-12-30", "2025-12-31", "2026-01-01", "2026-01-02"}) {
		t.Fatalf("unexpected days %v %v", days, ok)
	}
	if _, ok := DaysBetween("2025-01-01", "2025-12-31", 31); ok {
		t.Fatalf("expected range over limit to be refused")
	}
	if _, ok := DaysBetween("", "2025-12-31", 31); ok {
		t.Fatalf("expected open range to be refused")
	}
	q, _ := Listing("", nil, now)
	if from, to := DayBounds(q); from != "2025-11-06" || to != "2025-11-13" {
		t.Fatalf("unexpected bounds %s..%s", from, to)
	}
}
