package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/harryliu06/anteater-events/api"
	"github.com/harryliu06/anteater-events/config"
	"github.com/harryliu06/anteater-events/storage"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
		log.SetLevel(log.DebugLevel)
	}
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
		log.SetFormatter(&log.JSONFormatter{})
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.TraceSampleRatio))),
	)
	otel.SetTracerProvider(tp)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer closeStore()

	store := storage.WithTimeout(backend, cfg.Store.Timeout)
	if cfg.Notify.Queue != "" {
		q, err := storage.NewQueueClient(cfg.Store.ConnectionString, cfg.Notify.Queue)
		if err != nil {
			log.Fatalf("queue: %v", err)
		}
		store = storage.NewNotifier(store, q, logger).WithPublishTimeout(cfg.Store.Timeout)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderContentEncoding},
	}))
	api.Register(e, store, logger, reg)

	go func() {
		logger.WithFields(log.Fields{"addr": cfg.Listen, "backend": cfg.Store.Backend}).Info("events api listening")
		if err := e.Start(cfg.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("tracer shutdown: %v", err)
	}
}

// openStore builds the configured gateway. The returned func releases its
// connections.
func openStore(ctx context.Context, cfg config.StoreConfig) (storage.Backend, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemory(), noop, nil
	case config.BackendTable:
		ts, err := storage.NewTableStore(cfg.ConnectionString, cfg.Table)
		if err != nil {
			return nil, noop, err
		}
		return ts, noop, nil
	case config.BackendRedis:
		opts, err := storage.ParseRedisOptions(cfg.Redis)
		if err != nil {
			return nil, noop, err
		}
		rc := redis.NewClient(opts)
		return storage.NewRedisStore(rc, cfg.RedisPrefix), func() { _ = rc.Close() }, nil
	case config.BackendPostgres:
		pg, err := storage.OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, noop, err
		}
		return pg, pg.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
