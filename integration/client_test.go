package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/harryliu06/anteater-events/api"
	"github.com/harryliu06/anteater-events/domain"
	"github.com/harryliu06/anteater-events/storage"
)

func newServer(t *testing.T) *Client {
	t.Helper()
	logger, _ := test.NewNullLogger()
	e := echo.New()
	api.Register(e, storage.NewMemory(), logger, prometheus.NewRegistry())
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestClientAgainstInProcessServer(t *testing.T) {
	client := newServer(t)
	ctx := context.Background()

	if err := client.Reachable(ctx); err != nil {
		t.Fatalf("reachable: %v", err)
	}

	body := `{"id":"e1","title":"Jazz","description":"Live","start_time":"2025-11-05T18:00:00Z",` +
		`"end_time":"2025-11-05T20:00:00Z","latitude":33.64,"longitude":-117.84,"categories":["music"]}`
	var created struct {
		Feature domain.Feature `json:"feature"`
	}
	resp, err := client.PostJSON(ctx, "/events/", body, &created)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusCreated || created.Feature.Properties.ID != "e1" {
		t.Fatalf("unexpected create response %d %+v", resp.StatusCode, created)
	}

	var listed struct {
		Events []domain.Event `json:"events"`
	}
	if _, err := client.GetJSON(ctx, "/events?day=2025-11-05&categories=music", &listed); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed.Events) != 1 || listed.Events[0].ID != "e1" {
		t.Fatalf("unexpected listing: %+v", listed.Events)
	}

	var failure struct {
		Error string `json:"error"`
	}
	resp, err = client.PostJSON(ctx, "/events/", map[string]any{"title": "only"}, &failure)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusUnprocessableEntity || failure.Error == "" {
		t.Fatalf("expected validation failure, got %d %q", resp.StatusCode, failure.Error)
	}
}

func TestReachableFailsWithoutServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	if err := New(url).Reachable(context.Background()); err == nil {
		t.Fatalf("expected error for closed server")
	}
}
