// Command provision creates the storage the events API expects: the events
// table or Postgres schema for the configured backend and the created-events
// queue when notifications are enabled. Existing resources are left as is.
package main

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/harryliu06/anteater-events/config"
	"github.com/harryliu06/anteater-events/storage"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.WithField("backend", cfg.Store.Backend).Info("provision starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch cfg.Store.Backend {
	case config.BackendTable:
		ts, err := storage.NewTableStore(cfg.Store.ConnectionString, cfg.Store.Table)
		if err != nil {
			log.Fatalf("table store: %v", err)
		}
		if err := ts.CreateTable(ctx); err != nil {
			log.Fatalf("create table %s: %v", cfg.Store.Table, err)
		}
		log.WithField("table", cfg.Store.Table).Info("table ready")
	case config.BackendPostgres:
		pg, err := storage.OpenPostgres(ctx, cfg.Store.Postgres)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("postgres: %v", err)
		}
		log.Info("postgres schema ready")
	default:
		log.Debugf("backend %s needs no provisioning", cfg.Store.Backend)
	}

	if cfg.Notify.Queue != "" {
		q, err := storage.NewQueueClient(cfg.Store.ConnectionString, cfg.Notify.Queue)
		if err != nil {
			log.Fatalf("queue: %v", err)
		}
		if err := storage.CreateQueue(ctx, q); err != nil {
			log.Fatalf("create queue %s: %v", cfg.Notify.Queue, err)
		}
		log.WithField("queue", cfg.Notify.Queue).Info("queue ready")
	}

	log.Info("provision complete")
}
