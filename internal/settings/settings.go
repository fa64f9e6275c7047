package settings

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/rendis/cdnflow/internal/metrics"
	"github.com/rendis/cdnflow/internal/store"
	"github.com/rendis/cdnflow/internal/streaming"
	"github.com/rendis/cdnflow/internal/validation"
	"github.com/rendis/cdnflow/pkg/schema"
)

// Config holds the dependencies of a Store. All fields are optional.
type Config struct {
	Records store.Store
	Writer  *store.Writer
	Keys    store.Keys
	Hub     streaming.EventHub
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Store holds the global rendering preferences. It is independent of the
// workflow collection and persisted under its own key.
type Store struct {
	records   store.Store
	writer    *store.Writer
	ownWriter bool
	keys      store.Keys
	hub       streaming.EventHub
	validate  *validator.Validate
	logger    *slog.Logger

	mu      sync.Mutex
	current schema.GlobalSettings
}

// NewStore creates a Store holding the default settings.
func NewStore(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	keys := cfg.Keys
	if keys.Namespace == "" {
		keys = store.NewKeys("")
	}
	s := &Store{
		records:  cfg.Records,
		writer:   cfg.Writer,
		keys:     keys,
		hub:      cfg.Hub,
		validate: validation.NewStructValidator(),
		logger:   logger.With("component", "settings"),
		current:  schema.DefaultSettings(),
	}
	if s.writer == nil && s.records != nil {
		s.writer = store.NewWriter(s.records, store.WriterConfig{
			Logger:  s.logger,
			OnWrite: cfg.Metrics.ObserveWrite,
		})
		s.ownWriter = true
	}
	return s
}

// Get returns the current settings.
func (s *Store) Get() schema.GlobalSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Reduce applies patch to cur and validates the result.
func Reduce(v *validator.Validate, cur schema.GlobalSettings, patch schema.SettingsPatch) (schema.GlobalSettings, error) {
	next := patch.Apply(cur)
	if err := validation.ValidateStruct(v, next); err != nil {
		return cur, err
	}
	return next, nil
}

// Update applies a partial update. Invalid values are rejected and nothing
// changes.
func (s *Store) Update(ctx context.Context, patch schema.SettingsPatch) (schema.GlobalSettings, error) {
	s.mu.Lock()
	next, err := Reduce(s.validate, s.current, patch)
	if err != nil {
		s.mu.Unlock()
		return next, err
	}
	s.current = next
	s.persist(ctx, next)
	s.publish(ctx, schema.EventSettingsSaved, next)
	s.mu.Unlock()
	return next, nil
}

// Reset restores the defaults and removes the persisted record.
func (s *Store) Reset(ctx context.Context) schema.GlobalSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = schema.DefaultSettings()
	if s.writer != nil {
		s.writer.Delete(s.keys.Settings())
	}
	s.publish(ctx, schema.EventSettingsReset, s.current)
	return s.current
}

// Load reads persisted settings and merges them onto the defaults. Missing
// keys keep their default and unknown keys are ignored. A value that fails
// validation falls back to its default; an unreadable record loads as
// the defaults.
func (s *Store) Load(ctx context.Context) schema.GlobalSettings {
	loaded := schema.DefaultSettings()
	if s.records != nil {
		raw, err := s.records.Get(ctx, s.keys.Settings())
		switch {
		case schema.IsCode(err, schema.ErrCodeNotFound):
		case err != nil:
			s.logger.WarnContext(ctx, "read settings, using defaults", "error", err)
		default:
			loaded = s.merge(ctx, raw)
		}
	}
	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()
	return loaded
}

func (s *Store) merge(ctx context.Context, raw []byte) schema.GlobalSettings {
	defaults := schema.DefaultSettings()
	merged := defaults
	if err := json.Unmarshal(raw, &merged); err != nil {
		s.logger.WarnContext(ctx, "settings record is malformed, using defaults", "error", err)
		return defaults
	}

	var verrs validator.ValidationErrors
	if err := s.validate.Struct(merged); errors.As(err, &verrs) {
		dst := reflect.ValueOf(&merged).Elem()
		src := reflect.ValueOf(defaults)
		for _, fe := range verrs {
			s.logger.WarnContext(ctx, "invalid persisted setting, using default", "field", fe.Field(), "value", fe.Value())
			dst.FieldByName(fe.StructField()).Set(src.FieldByName(fe.StructField()))
		}
	}
	return merged
}

func (s *Store) persist(ctx context.Context, gs schema.GlobalSettings) {
	if s.writer == nil {
		return
	}
	data, err := json.Marshal(gs)
	if err != nil {
		s.logger.ErrorContext(ctx, "encode settings", "error", err)
		return
	}
	s.writer.Put(s.keys.Settings(), data)
}

func (s *Store) publish(ctx context.Context, event string, gs schema.GlobalSettings) {
	if s.hub == nil {
		return
	}
	if err := s.hub.Publish(context.WithoutCancel(ctx), streaming.StreamEvent{EventType: event, Payload: gs}); err != nil {
		s.logger.WarnContext(ctx, "publish event", "event", event, "error", err)
	}
}

// Flush waits for queued writes to reach durable storage.
func (s *Store) Flush(ctx context.Context) error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Flush(ctx)
}

// Close drains pending writes.
func (s *Store) Close() {
	if s.writer != nil && s.ownWriter {
		s.writer.Close()
	}
}
