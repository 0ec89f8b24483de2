package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/harryliu06/anteater-events/domain"
	"github.com/harryliu06/anteater-events/query"
)

const (
	routeEvents = "/events"
	routeSearch = "/events/search"
	routeDetail = "/events/:id"

	postEventMaxSize = 256 << 10
	healthTimeout    = 5 * time.Second
)

// Register wires up all API routes on the provided Echo instance. Request
// metrics are collected into reg and served on /metrics.
func Register(e *echo.Echo, store Storage, logger *log.Logger, reg *prometheus.Registry) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	e.JSONSerializer = JSONSerializer{}

	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "events_api_events_created_total",
		Help: "Number of events stored through POST /events.",
	})
	reg.MustRegister(created)

	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "events_api",
		Registerer: reg,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg}))

	list := listEvents(store, logger, time.Now)
	search := searchEvents(store, logger)
	detail := getEvent(store, logger)
	post := postEvent(store, logger, created)
	gz := decompressBody(logger, routeEvents)

	for _, suffix := range []string{"", "/"} {
		e.GET(routeEvents+suffix, list)
		e.GET(routeSearch+suffix, search)
		e.GET(routeDetail+suffix, detail)
		e.POST(routeEvents+suffix, post, gz)
		e.GET("/health"+suffix, health(store))
	}
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, errorResponse{Error: msg})
}

// storeStatus maps a store failure onto a response code. Queries the store
// refused are the caller's fault.
func storeStatus(err error) int {
	var invalid InvalidQueryError
	if errors.As(err, &invalid) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func runQuery(c echo.Context, store Storage, metrics *requestMetrics, q query.Query) error {
	storeStart := time.Now()
	events, err := store.Query(c.Request().Context(), q)
	metrics.ObserveStore(time.Since(storeStart))
	if err != nil {
		metrics.SetErrorStage("storage")
		status := storeStatus(err)
		if status == http.StatusInternalServerError {
			c.Logger().Error(err)
		}
		return errorJSON(c, status, err.Error())
	}
	if events == nil {
		events = []domain.Event{}
	}
	metrics.SetEventsReturned(len(events))

	encodeStart := time.Now()
	err = c.JSON(http.StatusOK, eventsResponse{Events: events})
	metrics.ObserveEncode(time.Since(encodeStart))
	if err != nil {
		metrics.SetErrorStage("encode_response")
	}
	return err
}

func listEvents(store Storage, logger *log.Logger, now func() time.Time) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), logger, routeEvents)
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		q, qErr := query.Listing(c.QueryParam("day"), c.QueryParams()["categories"], now())
		if qErr != nil {
			metrics.SetErrorStage("invalid_params")
			return errorJSON(c, http.StatusBadRequest, qErr.Error())
		}
		return runQuery(c, store, metrics, q)
	}
}

func searchEvents(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), logger, routeSearch)
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		q, qErr := query.Search(c.QueryParam("day"), c.QueryParam("search"))
		if qErr != nil {
			metrics.SetErrorStage("invalid_params")
			return errorJSON(c, http.StatusBadRequest, qErr.Error())
		}
		return runQuery(c, store, metrics, q)
	}
}

func getEvent(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), logger, routeDetail)
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		storeStart := time.Now()
		ev, getErr := store.Get(ctx, c.Param("id"))
		metrics.ObserveStore(time.Since(storeStart))
		if getErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(getErr)
			return errorJSON(c, storeStatus(getErr), getErr.Error())
		}
		if ev == nil {
			metrics.SetErrorStage("not_found")
			return errorJSON(c, http.StatusNotFound, "Event not found")
		}
		metrics.SetEventsReturned(1)
		return c.JSON(http.StatusOK, ev)
	}
}

func postEvent(store Storage, logger *log.Logger, created prometheus.Counter) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), logger, routeEvents)
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		raw, decErr := decodeSubmission(io.LimitReader(c.Request().Body, postEventMaxSize))
		if decErr != nil {
			metrics.SetErrorStage("decode_body")
			return errorJSON(c, http.StatusBadRequest, "Invalid JSON body")
		}

		if vErr := domain.Validate(raw); vErr != nil {
			metrics.SetErrorStage("validation")
			return errorJSON(c, http.StatusUnprocessableEntity, vErr.Error())
		}
		ev := domain.Normalize(raw)
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}

		storeStart := time.Now()
		stored, insErr := store.Insert(ctx, ev)
		metrics.ObserveStore(time.Since(storeStart))
		if insErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(insErr)
			return errorJSON(c, http.StatusInternalServerError, insErr.Error())
		}
		if stored.ID == "" {
			stored = ev
		}
		if created != nil {
			created.Inc()
		}
		metrics.SetEventsReturned(1)
		return c.JSON(http.StatusCreated, featureResponse{Feature: domain.NewFeature(stored)})
	}
}

var errInvalidBody = errors.New("invalid JSON body")

// decodeSubmission reads the whole body as exactly one JSON object. Trailing
// data after the object makes the body invalid.
func decodeSubmission(r io.Reader) (map[string]any, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !sonic.ConfigStd.Valid(body) {
		return nil, errInvalidBody
	}
	var raw map[string]any
	if err := sonic.ConfigStd.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errInvalidBody
	}
	return raw, nil
}

func health(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, ok := store.(Pinger)
		if !ok {
			return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			c.Logger().Warnf("health check failed: %v", err)
			return c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Error: err.Error()})
		}
		return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
	}
}
