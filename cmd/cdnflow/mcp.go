package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rendis/cdnflow/internal/logging"
	"github.com/rendis/cdnflow/pkg/mcp"
)

// runMCP serves the MCP tools over stdio. Logs go to stderr so they never
// mix with the protocol stream.
func runMCP() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	srv := mcp.NewCdnflowServer(mcp.CdnflowServerDeps{
		Registry:      a.registry,
		Collection:    a.coll,
		Settings:      a.settings,
		Simulator:     a.sim,
		Engines:       a.engines,
		Records:       a.records,
		DiagramBinDir: binDir(),
		Logger:        logger,
	})
	logger.Info("cdnflow mcp server ready", "storage", cfg.Storage, "version", version)
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
