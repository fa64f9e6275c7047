package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/cdnflow/internal/metrics"
	"github.com/rendis/cdnflow/pkg/schema"
)

// DefaultPollInterval is how often the scheduler checks whether a backup
// is due.
const DefaultPollInterval = 60 * time.Second

// dirLayout names backup directories by their UTC creation time.
const dirLayout = "20060102T150405.000Z"

// Source lists the documents to back up. Satisfied by *collection.Store.
type Source interface {
	SavedDocuments() []schema.WorkflowDocument
}

// Config configures a Scheduler.
type Config struct {
	Source Source
	// Dir receives one sub-directory per backup.
	Dir string
	// Cron is a five-field cron expression.
	Cron string
	// Keep is the number of backups retained. Zero keeps all of them.
	Keep     int
	Interval time.Duration
	Now      func() time.Time
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Scheduler periodically writes every saved workflow to the backup
// directory as an export file.
type Scheduler struct {
	source   Source
	dir      string
	keep     int
	interval time.Duration
	schedule cron.Schedule
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	nextRun time.Time

	inflightMu sync.Mutex
	inflight   bool
}

// New creates a Scheduler. An invalid cron expression fails with
// VALIDATION_ERROR.
func New(cfg Config) (*Scheduler, error) {
	schedule, err := ParseCron(cfg.Cron)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		source:   cfg.Source,
		dir:      cfg.Dir,
		keep:     cfg.Keep,
		interval: cfg.Interval,
		schedule: schedule,
		now:      cfg.Now,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
	if s.interval <= 0 {
		s.interval = DefaultPollInterval
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "scheduler")
	s.nextRun = schedule.Next(s.now().UTC())
	return s, nil
}

// ParseCron parses a five-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse cron expression %q: %s", expr, err.Error()).WithCause(err)
	}
	return schedule, nil
}

// NextRun returns when the next backup is due.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

// Start launches the background loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.String("dir", s.dir), slog.Time("next_run", s.NextRun()))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs a backup when one is due and schedules the next.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now().UTC()
	s.mu.Lock()
	due := !s.nextRun.After(now)
	if due {
		s.nextRun = s.schedule.Next(now)
	}
	s.mu.Unlock()
	if !due {
		return
	}
	if _, err := s.Backup(ctx); err != nil {
		s.logger.Error("scheduled backup failed", slog.String("error", err.Error()))
	}
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

// RecoverMissed runs one backup if the schedule fired since the latest
// backup on disk, or if there is none.
func (s *Scheduler) RecoverMissed(ctx context.Context) error {
	last, ok, err := s.LastBackup()
	if err != nil {
		return fmt.Errorf("find last backup: %w", err)
	}
	now := s.now().UTC()
	if ok && s.schedule.Next(last).After(now) {
		return nil
	}
	dir, err := s.Backup(ctx)
	if err != nil {
		return fmt.Errorf("recover missed backup: %w", err)
	}
	if dir != "" {
		s.logger.Info("recovered missed backup", slog.String("dir", dir))
	}
	return nil
}

// LastBackup returns the creation time of the newest backup on disk.
func (s *Scheduler) LastBackup() (time.Time, bool, error) {
	dirs, err := s.backups()
	if err != nil || len(dirs) == 0 {
		return time.Time{}, false, err
	}
	t, _ := time.Parse(dirLayout, dirs[len(dirs)-1])
	return t, true, nil
}

// Backup writes every saved workflow as an export file into a new
// directory and prunes old backups. It returns the directory, or "" when
// there was nothing to back up. Only one backup runs at a time; a
// concurrent call fails with CONFLICT.
func (s *Scheduler) Backup(ctx context.Context) (string, error) {
	if !s.tryAcquire() {
		return "", schema.NewError(schema.ErrCodeConflict, "a backup is already in progress")
	}
	defer s.release()

	docs := s.source.SavedDocuments()
	if len(docs) == 0 {
		s.logger.DebugContext(ctx, "no saved workflows, backup skipped")
		return "", nil
	}

	now := s.now().UTC()
	dir, err := s.write(docs, now)
	s.metrics.ObserveBackup(err)
	if err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "backup written", slog.String("dir", dir), slog.Int("workflows", len(docs)))

	if err := s.prune(); err != nil {
		s.logger.WarnContext(ctx, "prune backups", slog.String("error", err.Error()))
	}
	return dir, nil
}

func (s *Scheduler) write(docs []schema.WorkflowDocument, now time.Time) (string, error) {
	dir := filepath.Join(s.dir, now.Format(dirLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeStore, "create backup dir: %s", err.Error()).WithCause(err)
	}

	used := make(map[string]int, len(docs))
	for i := range docs {
		doc := &docs[i]
		export := schema.ExportDocument{
			Name:       doc.Name,
			Nodes:      doc.Nodes,
			Edges:      doc.Edges,
			ExportedAt: now,
		}
		data, err := json.MarshalIndent(export, "", "  ")
		if err != nil {
			return "", schema.NewErrorf(schema.ErrCodeStore, "encode workflow %s: %s", doc.ID, err.Error()).WithCause(err)
		}
		name := fileName(export.FileName(), used)
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return "", schema.NewErrorf(schema.ErrCodeStore, "write %s: %s", name, err.Error()).WithCause(err)
		}
	}
	return dir, nil
}

// fileName makes name safe for the file system and unique within a backup.
func fileName(name string, used map[string]int) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, name)
	base := strings.TrimSuffix(name, ".json")
	if used[base] == 0 {
		used[base] = 1
		return base + ".json"
	}
	// A suffixed candidate may be another workflow's real name.
	for n := used[base] + 1; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if used[candidate] == 0 {
			used[base] = n
			used[candidate] = 1
			return candidate + ".json"
		}
	}
}

// backups lists backup directory names, oldest first.
func (s *Scheduler) backups() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.Parse(dirLayout, e.Name()); err == nil {
			dirs = append(dirs, e.Name())
		}
	}
	slices.Sort(dirs)
	return dirs, nil
}

func (s *Scheduler) prune() error {
	if s.keep <= 0 {
		return nil
	}
	dirs, err := s.backups()
	if err != nil {
		return err
	}
	for len(dirs) > s.keep {
		if err := os.RemoveAll(filepath.Join(s.dir, dirs[0])); err != nil {
			return err
		}
		dirs = dirs[1:]
	}
	return nil
}

func (s *Scheduler) tryAcquire() bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if s.inflight {
		return false
	}
	s.inflight = true
	return true
}

func (s *Scheduler) release() {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	s.inflight = false
}
