package collection

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/rendis/cdnflow/internal/expressions"
	"github.com/rendis/cdnflow/internal/logging"
	"github.com/rendis/cdnflow/internal/metrics"
	"github.com/rendis/cdnflow/internal/store"
	"github.com/rendis/cdnflow/internal/streaming"
	"github.com/rendis/cdnflow/internal/validation"
	"github.com/rendis/cdnflow/pkg/schema"
)

// Config holds the dependencies of a Store. Reducer and Validator are
// required; everything else is optional.
type Config struct {
	Reducer   *Reducer
	Validator *validation.DocumentValidator
	// Records is the durable store. Nil disables persistence.
	Records store.Store
	// Writer persists the saved collection. Built on Records when nil.
	Writer  *store.Writer
	Keys    store.Keys
	Hub     streaming.EventHub
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Store is the process-wide collection state holder. Dispatch is the only
// way to change it; intents are applied one at a time.
type Store struct {
	reducer   *Reducer
	validator *validation.DocumentValidator
	records   store.Store
	writer    *store.Writer
	ownWriter bool
	keys      store.Keys
	hub       streaming.EventHub
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu    sync.Mutex
	state State
}

// NewStore creates a Store holding the empty collection.
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
		reducer:   cfg.Reducer,
		validator: cfg.Validator,
		records:   cfg.Records,
		writer:    cfg.Writer,
		keys:      keys,
		hub:       cfg.Hub,
		metrics:   cfg.Metrics,
		logger:    logger.With("component", "collection"),
		state:     cfg.Reducer.Initial(),
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

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// SavedDocuments returns a copy of the saved collection.
func (s *Store) SavedDocuments() []schema.WorkflowDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.WorkflowDocument, len(s.state.Saved))
	for i := range s.state.Saved {
		out[i] = *s.state.Saved[i].Clone()
	}
	return out
}

// Dispatch applies one intent. A failed intent leaves the state unchanged.
// Changes to the saved collection are persisted in the background. Writes
// and events are queued under the same lock as the state change, so they
// keep dispatch order.
func (s *Store) Dispatch(ctx context.Context, intent Intent) (Change, error) {
	s.mu.Lock()
	next, change, err := s.reducer.Reduce(s.state, intent)
	if err != nil {
		s.mu.Unlock()
		s.metrics.ObserveIntent(intent.Kind(), err)
		s.logger.DebugContext(ctx, "intent rejected", "intent", intent.Kind(), "code", schema.ErrorCode(err), "error", err)
		return Change{}, err
	}
	s.state = next
	if change.SavedChanged {
		s.persist(ctx, next.Saved)
	}
	if change.Event != "" {
		s.publish(ctx, change)
	}
	savedCount := len(next.Saved)
	s.mu.Unlock()

	s.metrics.ObserveIntent(intent.Kind(), nil)
	s.metrics.SetSavedWorkflows(savedCount)
	return change, nil
}

// persist queues the saved collection for writing. An empty collection
// removes the record instead of storing an empty list.
func (s *Store) persist(ctx context.Context, saved []schema.WorkflowDocument) {
	if s.writer == nil {
		return
	}
	key := s.keys.Workflows()
	if len(saved) == 0 {
		s.writer.Delete(key)
		return
	}
	data, err := json.Marshal(saved)
	if err != nil {
		s.logger.ErrorContext(ctx, "encode saved workflows", "error", err)
		return
	}
	s.writer.Put(key, data)
}

func (s *Store) publish(ctx context.Context, change Change) {
	if s.hub == nil {
		return
	}
	err := s.hub.Publish(context.WithoutCancel(ctx), streaming.StreamEvent{
		WorkflowID: change.WorkflowID,
		NodeID:     change.NodeID,
		EdgeID:     change.EdgeID,
		RunID:      runIDOf(change),
		EventType:  change.Event,
		Payload:    change.Payload,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "publish event", "event", change.Event, "error", err)
	}
}

func runIDOf(change Change) string {
	switch p := change.Payload.(type) {
	case map[string]any:
		id, _ := p["runId"].(string)
		return id
	case map[string]string:
		return p["runId"]
	}
	return ""
}

// Load reads the saved collection from durable storage. A missing or
// unreadable record loads as an empty collection; entries that fail
// validation are skipped. The returned result lists what was skipped.
func (s *Store) Load(ctx context.Context) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	docs := []schema.WorkflowDocument{}

	if s.records != nil {
		raw, err := s.records.Get(ctx, s.keys.Workflows())
		switch {
		case schema.IsCode(err, schema.ErrCodeNotFound):
		case err != nil:
			s.logger.WarnContext(ctx, "read saved workflows, starting empty", "error", err)
			result.AddError("/", schema.ErrorCode(err), err.Error())
		default:
			parsed, issues, err := s.validator.ParseCollection(ctx, raw)
			if err != nil {
				s.logger.ErrorContext(ctx, "saved workflows record is malformed, starting empty", "error", err)
				result.AddError("/", schema.ErrorCode(err), err.Error())
				break
			}
			for _, issue := range issues.Errors {
				s.logger.WarnContext(ctx, "skipping saved workflow", "path", issue.Path, "code", issue.Code, "error", issue.Message)
			}
			result.Merge(issues)
			docs = parsed
		}
	}

	if _, err := s.Dispatch(ctx, LoadWorkflows{Documents: docs}); err != nil {
		result.AddError("/", schema.ErrorCode(err), err.Error())
	}
	s.logger.InfoContext(ctx, "saved workflows loaded", "count", len(docs), "skipped", len(result.Errors))
	return result
}

// Import parses an import file and opens it as the current document.
// Nothing changes when the file is rejected.
func (s *Store) Import(ctx context.Context, raw []byte) (*schema.WorkflowDocument, *schema.ValidationResult, error) {
	doc, result, err := s.validator.ParseImport(ctx, raw, s.reducer.timestamp())
	if err != nil {
		s.metrics.ObserveIntent(ImportWorkflow{}.Kind(), err)
		s.logger.InfoContext(ctx, "import rejected", "error", err)
		return nil, result, err
	}
	if _, err := s.Dispatch(logging.WithWorkflowID(ctx, doc.ID), ImportWorkflow{Document: doc}); err != nil {
		return nil, result, err
	}
	return doc, result, nil
}

// Export snapshots the working set. Fails with NOTHING_TO_EXPORT when there
// are no nodes.
func (s *Store) Export() (*schema.ExportDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Export(s.reducer.timestamp)
}

// Validate runs the document pipeline over the working set.
func (s *Store) Validate(ctx context.Context) *schema.ValidationResult {
	doc := s.State().WorkingSet()
	return s.validator.Validate(ctx, doc)
}

// QueryScope selects the data a query runs over.
type QueryScope string

const (
	// ScopeWorkingSet exposes {workflow, nodes, edges} of the working set.
	ScopeWorkingSet QueryScope = "current"
	// ScopeSaved exposes {workflows} of the saved collection.
	ScopeSaved QueryScope = "saved"
)

// Query evaluates an expression with the named engine over a snapshot.
func (s *Store) Query(ctx context.Context, engines *expressions.Registry, engine, expression string, scope QueryScope) (any, error) {
	e, err := engines.Get(engine)
	if err != nil {
		return nil, err
	}
	st := s.State()
	var data map[string]any
	switch scope {
	case ScopeSaved:
		data, err = expressions.CollectionData(st.Saved)
	case ScopeWorkingSet, "":
		data, err = expressions.DocumentData(st.WorkingSet())
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown query scope %q", scope)
	}
	if err != nil {
		return nil, err
	}
	return e.Evaluate(ctx, expression, data)
}

// Flush waits for queued writes to reach durable storage.
func (s *Store) Flush(ctx context.Context) error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Flush(ctx)
}

// Close drains pending writes. The durable store itself is not closed.
func (s *Store) Close() {
	if s.writer != nil && s.ownWriter {
		s.writer.Close()
	}
}
