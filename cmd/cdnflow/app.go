package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rendis/cdnflow/internal/collection"
	"github.com/rendis/cdnflow/internal/expressions"
	"github.com/rendis/cdnflow/internal/metrics"
	"github.com/rendis/cdnflow/internal/registry"
	"github.com/rendis/cdnflow/internal/scheduler"
	"github.com/rendis/cdnflow/internal/settings"
	"github.com/rendis/cdnflow/internal/simulator"
	"github.com/rendis/cdnflow/internal/store"
	"github.com/rendis/cdnflow/internal/streaming"
	"github.com/rendis/cdnflow/internal/validation"
)

// app holds every long-lived component of a cdnflow process.
type app struct {
	cfg       Config
	logger    *slog.Logger
	records   store.Store
	metrics   *metrics.Metrics
	registry  *registry.Registry
	engines   *expressions.Registry
	hub       *streaming.MemoryHub
	coll      *collection.Store
	settings  *settings.Store
	sim       *simulator.Simulator
	scheduler *scheduler.Scheduler
}

// buildApp opens storage, restores the saved collection and settings and
// wires the simulator. The scheduler is created but not started.
func buildApp(ctx context.Context, cfg Config, logger *slog.Logger) (*app, error) {
	records, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		records:  records,
		metrics:  metrics.New(nil),
		registry: registry.Builtin(),
		hub:      streaming.NewMemoryHub(),
	}

	a.engines, err = expressions.DefaultRegistry()
	if err != nil {
		records.Close()
		return nil, fmt.Errorf("expression engines: %w", err)
	}
	validator, err := validation.NewDocumentValidator(a.registry, nil)
	if err != nil {
		records.Close()
		return nil, fmt.Errorf("document validator: %w", err)
	}

	keys := store.NewKeys(cfg.Namespace)
	a.coll = collection.NewStore(collection.Config{
		Reducer:   collection.NewReducer(a.registry),
		Validator: validator,
		Records:   records,
		Keys:      keys,
		Hub:       a.hub,
		Metrics:   a.metrics,
		Logger:    logger,
	})
	a.coll.Load(ctx)

	a.settings = settings.NewStore(settings.Config{
		Records: records,
		Keys:    keys,
		Hub:     a.hub,
		Metrics: a.metrics,
		Logger:  logger,
	})
	a.settings.Load(ctx)

	a.sim = simulator.New(simulator.Config{
		Dispatcher: a.coll,
		Records:    records,
		Timing: simulator.Timing{
			Waiting:  time.Duration(cfg.SimWaitingMs) * time.Millisecond,
			Running:  time.Duration(cfg.SimRunningMs) * time.Millisecond,
			Trailing: time.Duration(cfg.SimTrailingMs) * time.Millisecond,
		},
		Metrics: a.metrics,
		Logger:  logger,
	})

	if cfg.BackupCron != "" {
		a.scheduler, err = scheduler.New(scheduler.Config{
			Source:  a.coll,
			Dir:     cfg.BackupDir,
			Cron:    cfg.BackupCron,
			Keep:    cfg.BackupKeep,
			Metrics: a.metrics,
			Logger:  logger,
		})
		if err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	var s store.Store
	switch cfg.Storage {
	case "memory":
		s = store.NewMemoryStore()
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		s = store.NewRedisStore(client, cfg.Namespace+":")
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		ls, err := store.NewLibSQLStore("file:" + cfg.DBPath)
		if err != nil {
			return nil, err
		}
		s = ls
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate %s store: %w", cfg.Storage, err)
	}
	return s, nil
}

// close stops components in reverse dependency order and drains pending
// writes before the store goes away.
func (a *app) close() {
	if a.scheduler != nil {
		if err := a.scheduler.Stop(); err != nil {
			a.logger.Debug("scheduler stop", "error", err)
		}
	}
	if a.sim != nil {
		a.sim.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.coll.Flush(ctx); err != nil {
		a.logger.Warn("flush collection", "error", err)
	}
	if err := a.settings.Flush(ctx); err != nil {
		a.logger.Warn("flush settings", "error", err)
	}
	a.coll.Close()
	a.settings.Close()
	if err := a.records.Close(); err != nil {
		a.logger.Warn("close store", "error", err)
	}
}
