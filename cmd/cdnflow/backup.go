package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rendis/cdnflow/internal/logging"
	"github.com/rendis/cdnflow/internal/scheduler"
)

// runBackup writes one backup of the saved collection and exits.
func runBackup(args []string) error {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	dir := fs.String("dir", "", "backup directory (default: backup_dir from config)")
	keep := fs.Int("keep", -1, "backups to retain (default: backup_keep from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if *dir != "" {
		cfg.BackupDir = *dir
	}
	if *keep >= 0 {
		cfg.BackupKeep = *keep
	}
	// One-shot: buildApp must not start a schedule of its own.
	cron := cfg.BackupCron
	cfg.BackupCron = ""

	logger := logging.New(os.Stderr, cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))
	ctx := context.Background()
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if cron == "" {
		cron = "0 0 * * *"
	}
	s, err := scheduler.New(scheduler.Config{
		Source:  a.coll,
		Dir:     cfg.BackupDir,
		Cron:    cron,
		Keep:    cfg.BackupKeep,
		Metrics: a.metrics,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	path, err := s.Backup(ctx)
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Println("No saved workflows, nothing to back up")
		return nil
	}
	fmt.Printf("Backup written to %s\n", path)
	return nil
}
