package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/rendis/cdnflow/internal/store"
	"github.com/rendis/cdnflow/internal/validation"
)

// Config holds all cdnflow configuration.
// Priority: env vars > .env > settings.json > defaults.
type Config struct {
	ListenAddr    string `json:"listen_addr" validate:"required"`
	BaseURL       string `json:"base_url"`
	Storage       string `json:"storage" validate:"oneof=libsql redis memory"`
	DBPath        string `json:"db_path" validate:"required_if=Storage libsql"`
	RedisAddr     string `json:"redis_addr" validate:"required_if=Storage redis"`
	RedisDB       int    `json:"redis_db" validate:"min=0"`
	Namespace     string `json:"namespace" validate:"required"`
	LogLevel      string `json:"log_level" validate:"oneof=debug info warn error"`
	LogFormat     string `json:"log_format" validate:"oneof=text json"`
	Panel         bool   `json:"panel"`
	BackupCron    string `json:"backup_cron"`
	BackupDir     string `json:"backup_dir" validate:"required_with=BackupCron"`
	BackupKeep    int    `json:"backup_keep" validate:"min=0"`
	SimWaitingMs  int    `json:"sim_waiting_ms" validate:"min=0"`
	SimRunningMs  int    `json:"sim_running_ms" validate:"min=0"`
	SimTrailingMs int    `json:"sim_trailing_ms" validate:"min=0"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:    ":4200",
		Storage:       "libsql",
		DBPath:        filepath.Join(cdnflowDir(), "cdnflow.db"),
		Namespace:     store.DefaultNamespace,
		LogLevel:      "info",
		LogFormat:     "text",
		Panel:         true,
		BackupDir:     filepath.Join(cdnflowDir(), "backups"),
		BackupKeep:    14,
		SimWaitingMs:  300,
		SimRunningMs:  1500,
		SimTrailingMs: 500,
	}
}

func cdnflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cdnflow"
	}
	return filepath.Join(home, ".cdnflow")
}

func settingsPath() string {
	return filepath.Join(cdnflowDir(), "settings.json")
}

func binDir() string {
	return filepath.Join(cdnflowDir(), "bin")
}

func pidPath() string {
	return filepath.Join(cdnflowDir(), "cdnflow.pid")
}

// loadConfig layers settings.json, .env and the environment over the
// defaults and validates the result.
func loadConfig() (Config, error) {
	return loadConfigFrom(settingsPath(), ".env")
}

func loadConfigFrom(settingsFile, envFile string) (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsFile); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", settingsFile, err)
		}
	}

	// Layer 3: .env only fills variables the environment does not set.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	// Layer 4: env vars override.
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	// Derive base_url from listen_addr if empty.
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}

	if err := validation.ValidateStruct(validation.NewStructValidator(), cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"CDNFLOW_LISTEN_ADDR": &cfg.ListenAddr,
		"CDNFLOW_BASE_URL":    &cfg.BaseURL,
		"CDNFLOW_STORAGE":     &cfg.Storage,
		"CDNFLOW_DB_PATH":     &cfg.DBPath,
		"CDNFLOW_REDIS_ADDR":  &cfg.RedisAddr,
		"CDNFLOW_NAMESPACE":   &cfg.Namespace,
		"CDNFLOW_LOG_LEVEL":   &cfg.LogLevel,
		"CDNFLOW_LOG_FORMAT":  &cfg.LogFormat,
		"CDNFLOW_BACKUP_CRON": &cfg.BackupCron,
		"CDNFLOW_BACKUP_DIR":  &cfg.BackupDir,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CDNFLOW_REDIS_DB":        &cfg.RedisDB,
		"CDNFLOW_BACKUP_KEEP":     &cfg.BackupKeep,
		"CDNFLOW_SIM_WAITING_MS":  &cfg.SimWaitingMs,
		"CDNFLOW_SIM_RUNNING_MS":  &cfg.SimRunningMs,
		"CDNFLOW_SIM_TRAILING_MS": &cfg.SimTrailingMs,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", key, v)
		}
		*dst = n
	}

	if v := os.Getenv("CDNFLOW_PANEL"); v != "" {
		cfg.Panel = v == "true" || v == "1"
	}
	return nil
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	PanelChanged    bool
	LogLevelChanged bool
	RestartNeeded   []string // fields that require a server restart
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.Panel != new.Panel {
		d.PanelChanged = true
	}
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	restart := []struct {
		name    string
		changed bool
	}{
		{"listen_addr", old.ListenAddr != new.ListenAddr},
		{"base_url", old.BaseURL != new.BaseURL},
		{"storage", old.Storage != new.Storage},
		{"db_path", old.DBPath != new.DBPath},
		{"redis_addr", old.RedisAddr != new.RedisAddr || old.RedisDB != new.RedisDB},
		{"namespace", old.Namespace != new.Namespace},
		{"log_format", old.LogFormat != new.LogFormat},
		{"backup", old.BackupCron != new.BackupCron || old.BackupDir != new.BackupDir || old.BackupKeep != new.BackupKeep},
		{"simulation", old.SimWaitingMs != new.SimWaitingMs || old.SimRunningMs != new.SimRunningMs || old.SimTrailingMs != new.SimTrailingMs},
	}
	for _, r := range restart {
		if r.changed {
			d.RestartNeeded = append(d.RestartNeeded, r.name)
		}
	}
	return d
}
