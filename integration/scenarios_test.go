//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"github.com/harryliu06/anteater-events/domain"
	"github.com/harryliu06/anteater-events/storage"
)

type eventsBody struct {
	Events []domain.Event `json:"events"`
}

type featureBody struct {
	Feature domain.Feature `json:"feature"`
	Error   string         `json:"error"`
}

func newClient(t *testing.T) *Client {
	t.Helper()
	base := os.Getenv("API_BASE")
	if base == "" {
		base = "http://localhost:8080"
	}
	c := New(base)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Reachable(ctx); err != nil {
		t.Skipf("skipping, API not reachable: %v", err)
	}
	return c
}

func submission(title string, start time.Time, cats string) map[string]any {
	return map[string]any{
		"title":       title,
		"description": "integration scenario",
		"start_time":  start.Format(time.RFC3339),
		"end_time":    start.Add(2 * time.Hour).Format(time.RFC3339),
		"latitude":    33.6405,
		"longitude":   -117.8443,
		"categories":  cats,
	}
}

func TestCreateThenReadBack(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()

	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Minute)
	title := fmt.Sprintf("scenario-%d", time.Now().UnixNano())

	var created featureBody
	resp, err := client.PostJSON(ctx, "/events/", submission(title, start, "music, integration"), &created)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", resp.StatusCode, created.Error)
	}
	id := created.Feature.Properties.ID
	if id == "" {
		t.Fatalf("expected id in feature properties")
	}
	if created.Feature.Geometry.Coordinates != [2]float64{-117.8443, 33.6405} {
		t.Fatalf("unexpected coordinates: %v", created.Feature.Geometry.Coordinates)
	}

	var ev domain.Event
	resp, err = client.GetJSON(ctx, "/events/"+url.PathEscape(id)+"/", &ev)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("get: %v (%v)", err, resp)
	}
	if ev.Title != title || !ev.StartTime.Equal(start) {
		t.Fatalf("unexpected stored event: %+v", ev)
	}

	day := start.Format(domain.DayLayout)
	var listed eventsBody
	if _, err := client.GetJSON(ctx, "/events/?day="+day+"&categories=integration", &listed); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !containsID(listed.Events, id) {
		t.Fatalf("created event missing from listing of %s", day)
	}

	var upcoming eventsBody
	if _, err := client.GetJSON(ctx, "/events/", &upcoming); err != nil {
		t.Fatalf("list upcoming: %v", err)
	}
	if !containsID(upcoming.Events, id) {
		t.Fatalf("created event missing from upcoming window")
	}

	var found eventsBody
	q := url.Values{"day": {day}, "search": {strings.ToUpper(title)}}
	if _, err := client.GetJSON(ctx, "/events/search/?"+q.Encode(), &found); err != nil {
		t.Fatalf("search: %v", err)
	}
	if !containsID(found.Events, id) {
		t.Fatalf("case-insensitive search did not find %s", title)
	}
}

func TestRejectedRequests(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(24 * time.Hour)

	bad := submission("bad", start, "music")
	bad["latitude"] = 91
	var body featureBody
	resp, err := client.PostJSON(ctx, "/events/", bad, &body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusUnprocessableEntity || body.Error != "latitude must be between -90 and 90." {
		t.Fatalf("expected 422 for latitude, got %d %q", resp.StatusCode, body.Error)
	}

	resp, err = client.PostJSON(ctx, "/events/", "{not json", &body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", resp.StatusCode)
	}

	resp, err = client.GetJSON(ctx, "/events/search/?day=2025-11-05&search=%20", &body)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank search, got %d", resp.StatusCode)
	}

	resp, err = client.GetJSON(ctx, "/events/does-not-exist/", &body)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound || body.Error != "Event not found" {
		t.Fatalf("expected 404, got %d %q", resp.StatusCode, body.Error)
	}
}

func TestCreatedEventIsPublished(t *testing.T) {
	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	queueName := os.Getenv("EVENTS_QUEUE")
	if connStr == "" || queueName == "" {
		t.Skip("created-events queue not configured")
	}
	client := newClient(t)
	ctx := context.Background()

	queue, err := storage.NewQueueClient(connStr, queueName)
	if err != nil {
		t.Fatalf("queue client: %v", err)
	}

	title := fmt.Sprintf("published-%d", time.Now().UnixNano())
	var created featureBody
	if _, err := client.PostJSON(ctx, "/events/", submission(title, time.Now().UTC().Add(time.Hour), "integration"), &created); err != nil {
		t.Fatalf("post: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	n := int32(32)
	for time.Now().Before(deadline) {
		resp, err := queue.PeekMessages(ctx, &azqueue.PeekMessagesOptions{NumberOfMessages: &n})
		if err != nil {
			t.Fatalf("peek: %v", err)
		}
		for _, msg := range resp.Messages {
			if msg.MessageText == nil {
				continue
			}
			var env storage.Envelope
			if err := sonic.UnmarshalString(*msg.MessageText, &env); err != nil {
				continue
			}
			if env.Type == storage.EventCreated && env.Event.ID == created.Feature.Properties.ID {
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("created event %s not published to %s", created.Feature.Properties.ID, queueName)
}

func containsID(events []domain.Event, id string) bool {
	for _, ev := range events {
		if ev.ID == id {
			return true
		}
	}
	return false
}
