package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rendis/cdnflow/internal/logging"
	"github.com/rendis/cdnflow/internal/panel"
)

const shutdownTimeout = 5 * time.Second

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var level slog.LevelVar
	level.Set(logging.ParseLevel(cfg.LogLevel))
	logger := logging.New(os.Stderr, cfg.LogFormat, &level)
	slog.SetDefault(logger)

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if a.scheduler != nil {
		if err := a.scheduler.RecoverMissed(ctx); err != nil {
			logger.Warn("missed backup not recovered", "error", err)
		}
		if err := a.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	if err := writePidFile(); err != nil {
		logger.Warn("pidfile not written", "error", err)
	}
	defer os.Remove(pidPath())

	swapper := newHandlerSwapper(a.handler(cfg.Panel))
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           swapper,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()
	logger.Info("cdnflow listening",
		"addr", cfg.ListenAddr,
		"base_url", cfg.BaseURL,
		"storage", cfg.Storage,
		"panel", cfg.Panel,
		"version", version,
	)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	for {
		select {
		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				cfg = reload(cfg, a, swapper, &level)
				continue
			}
			logger.Info("shutting down", "signal", sig.String())
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			err := srv.Shutdown(shutdownCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		}
	}
}

// handler returns the panel API, or the headless mux when the panel is off.
func (a *app) handler(panelOn bool) http.Handler {
	if !panelOn {
		return headlessMux(a.metrics)
	}
	return panel.NewPanelServer(panel.PanelDeps{
		Registry:      a.registry,
		Collection:    a.coll,
		Settings:      a.settings,
		Simulator:     a.sim,
		Engines:       a.engines,
		Hub:           a.hub,
		Records:       a.records,
		Metrics:       a.metrics,
		Logger:        a.logger,
		DiagramBinDir: binDir(),
	}).Handler()
}

// reload re-reads configuration and applies what can change at runtime.
// It returns the configuration now in effect.
func reload(cur Config, a *app, swapper *handlerSwapper, level *slog.LevelVar) Config {
	next, err := loadConfig()
	if err != nil {
		a.logger.Error("reload failed, keeping current configuration", "error", err)
		return cur
	}
	diff := diffConfigs(cur, next)
	if diff.LogLevelChanged {
		level.Set(logging.ParseLevel(next.LogLevel))
		a.logger.Info("log level changed", "level", next.LogLevel)
	}
	if diff.PanelChanged {
		swapper.Swap(a.handler(next.Panel))
		a.logger.Info("panel toggled", "panel", next.Panel)
	}
	if len(diff.RestartNeeded) > 0 {
		a.logger.Warn("configuration changes need a restart", "fields", diff.RestartNeeded)
	}

	// Only hot-reloadable fields take effect.
	cur.LogLevel = next.LogLevel
	cur.Panel = next.Panel
	return cur
}

func writePidFile() error {
	if err := os.MkdirAll(filepath.Dir(pidPath()), 0o700); err != nil {
		return err
	}
	return os.WriteFile(pidPath(), []byte(strconv.Itoa(os.Getpid())), 0o644)
}
