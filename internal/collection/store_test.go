package collection

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/cdnflow/internal/document"
	"github.com/rendis/cdnflow/internal/expressions"
	"github.com/rendis/cdnflow/internal/metrics"
	"github.com/rendis/cdnflow/internal/registry"
	"github.com/rendis/cdnflow/internal/store"
	"github.com/rendis/cdnflow/internal/streaming"
	"github.com/rendis/cdnflow/internal/validation"
	"github.com/rendis/cdnflow/pkg/schema"
)

type storeFixture struct {
	store   *Store
	records *store.MemoryStore
	hub     *streaming.MemoryHub
	metrics *metrics.Metrics
	keys    store.Keys
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	r, _ := newTestReducer(t)
	v, err := validation.NewDocumentValidator(registry.Builtin(), nil)
	require.NoError(t, err)

	f := &storeFixture{
		records: store.NewMemoryStore(),
		hub:     streaming.NewMemoryHub(),
		metrics: metrics.New(nil),
		keys:    store.NewKeys(""),
	}
	f.store = NewStore(Config{
		Reducer:   r,
		Validator: v,
		Records:   f.records,
		Keys:      f.keys,
		Hub:       f.hub,
		Metrics:   f.metrics,
	})
	t.Cleanup(f.store.Close)
	return f
}

func (f *storeFixture) dispatch(t *testing.T, intent Intent) Change {
	t.Helper()
	c, err := f.store.Dispatch(context.Background(), intent)
	require.NoError(t, err, intent.Kind())
	return c
}

func (f *storeFixture) persisted(t *testing.T) ([]schema.WorkflowDocument, bool) {
	t.Helper()
	require.NoError(t, f.store.Flush(context.Background()))
	raw, err := f.records.Get(context.Background(), f.keys.Workflows())
	if schema.IsCode(err, schema.ErrCodeNotFound) {
		return nil, false
	}
	require.NoError(t, err)
	var docs []schema.WorkflowDocument
	require.NoError(t, json.Unmarshal(raw, &docs))
	return docs, true
}

func TestStorePersistsSavedCollection(t *testing.T) {
	f := newStoreFixture(t)

	c := f.dispatch(t, CreateWorkflow{Name: "Test"})
	docs, ok := f.persisted(t)
	require.True(t, ok)
	require.Len(t, docs, 1)
	assert.Equal(t, "Test", docs[0].Name)
	assert.False(t, docs[0].CreatedAt.IsZero(), "timestamps survive the round trip")

	f.dispatch(t, AddNode{Type: registry.TypeOriginServer})
	docs, _ = f.persisted(t)
	assert.Empty(t, docs[0].Nodes, "working set edits are not persisted until saved")

	f.dispatch(t, SaveCurrent{})
	docs, _ = f.persisted(t)
	assert.Len(t, docs[0].Nodes, 1)

	f.dispatch(t, DeleteWorkflow{ID: c.WorkflowID})
	_, ok = f.persisted(t)
	assert.False(t, ok, "an empty collection removes the record")

	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.SavedWorkflows))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IntentTotal.WithLabelValues("CreateWorkflow", metrics.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.StoreWriteTotal.WithLabelValues("delete", metrics.OutcomeOK)))
}

func TestStoreRejectedIntent(t *testing.T) {
	f := newStoreFixture(t)

	_, err := f.store.Dispatch(context.Background(), CreateWorkflow{Name: ""})
	assert.True(t, schema.IsCode(err, schema.ErrCodeNameRequired))
	assert.Empty(t, f.store.State().Saved)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IntentTotal.WithLabelValues("CreateWorkflow", metrics.OutcomeError)))

	_, ok := f.persisted(t)
	assert.False(t, ok)
}

func TestStorePublishesEvents(t *testing.T) {
	f := newStoreFixture(t)
	ch, cancel, err := f.hub.Subscribe(context.Background(), streaming.EventFilter{})
	require.NoError(t, err)
	defer cancel()

	c := f.dispatch(t, AddNode{Type: registry.TypeWAF})
	f.dispatch(t, SelectNode{ID: c.NodeID})
	f.dispatch(t, SwitchWorkflow{ID: "ghost"})
	f.dispatch(t, StartRun{RunID: "run-9"})

	var got []streaming.StreamEvent
	for range 3 {
		select {
		case e := <-ch:
			got = append(got, e)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	assert.Equal(t, schema.EventNodeAdded, got[0].EventType)
	assert.Equal(t, c.NodeID, got[0].NodeID)
	assert.Equal(t, schema.EventSelectionChange, got[1].EventType)
	assert.Equal(t, schema.EventRunStarted, got[2].EventType, "no-op intents publish nothing")
	assert.Equal(t, "run-9", got[2].RunID)
}

func TestStoreStateIsACopy(t *testing.T) {
	f := newStoreFixture(t)
	f.dispatch(t, AddNode{Type: registry.TypeOriginServer})

	st := f.store.State()
	_, err := st.Graph.AddNode(registry.TypeEndUser, schema.Position{})
	require.NoError(t, err)

	assert.Equal(t, 1, f.store.State().Graph.Len())
}

func TestStoreLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("missing record", func(t *testing.T) {
		f := newStoreFixture(t)
		result := f.store.Load(ctx)
		assert.True(t, result.Valid())
		assert.Empty(t, f.store.State().Saved)
	})

	t.Run("malformed record", func(t *testing.T) {
		f := newStoreFixture(t)
		require.NoError(t, f.records.Put(ctx, f.keys.Workflows(), []byte(`{not json`)))
		result := f.store.Load(ctx)
		assert.False(t, result.Valid())
		assert.Empty(t, f.store.State().Saved)
	})

	t.Run("invalid entries are skipped", func(t *testing.T) {
		f := newStoreFixture(t)
		record := `[
		  {"id": "workflow_a", "name": "A", "version": "1.0.0", "nodes": [], "edges": [],
		   "createdAt": "2024-06-01T09:00:00Z", "updatedAt": "2024-06-01T10:00:00.5Z"},
		  {"id": "workflow_b", "name": "B", "nodes": [{"id": "n1", "type": "warp-drive", "position": {"x": 0, "y": 0}, "data": {"label": "?"}}],
		   "edges": [], "createdAt": "2024-06-01T09:00:00Z", "updatedAt": "2024-06-01T09:00:00Z"},
		  {"name": "no id", "nodes": [], "edges": []}
		]`
		require.NoError(t, f.records.Put(ctx, f.keys.Workflows(), []byte(record)))

		result := f.store.Load(ctx)
		assert.Len(t, result.Errors, 2)

		saved := f.store.State().Saved
		require.Len(t, saved, 1)
		assert.Equal(t, "workflow_a", saved[0].ID)
		want := time.Date(2024, 6, 1, 10, 0, 0, 500_000_000, time.UTC)
		assert.True(t, want.Equal(saved[0].UpdatedAt), "dates are parsed back into timestamps")

		_, err := f.records.Get(ctx, f.keys.Workflows())
		require.NoError(t, err, "loading does not rewrite the record")
	})
}

func TestStoreExportImportRoundTrip(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	_, err := f.store.Export()
	assert.True(t, schema.IsCode(err, schema.ErrCodeNothingToExport))

	f.dispatch(t, AddNode{Type: registry.TypeOriginServer})
	f.dispatch(t, AddNode{Type: registry.TypeEdgeCache, Position: schema.Position{X: 200, Y: 40}})
	ids := f.store.State().Graph.NodeIDs()
	f.dispatch(t, AddEdge{Connection: document.Connection{Source: ids[0], Target: ids[1], SourceHandle: "success"}})
	f.dispatch(t, ConfigureNode{ID: ids[1], Config: schema.Config{"ttl": schema.NumberValue(600)}})
	f.dispatch(t, SaveAs{Name: "edge-pipeline"})

	exp, err := f.store.Export()
	require.NoError(t, err)
	assert.Equal(t, "edge-pipeline.json", exp.FileName())
	raw, err := json.Marshal(exp)
	require.NoError(t, err)

	f.dispatch(t, ClearWorkflow{})
	doc, result, err := f.store.Import(ctx, raw)
	require.NoError(t, err)
	assert.True(t, result.Valid())
	assert.Equal(t, "edge-pipeline", doc.Name)

	st := f.store.State()
	assert.JSONEq(t, mustJSON(t, exp.Nodes), mustJSON(t, st.Graph.Nodes()))
	assert.JSONEq(t, mustJSON(t, exp.Edges), mustJSON(t, st.Graph.Edges()))
}

func TestStoreImportRejectsWithoutMutation(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	f.dispatch(t, CreateWorkflow{Name: "keep"})
	f.dispatch(t, AddNode{Type: registry.TypeOriginServer})

	for name, raw := range map[string]string{
		"not json":      `{"name": "x", "nodes": [`,
		"missing keys":  `{"name": "x"}`,
		"unknown type":  `{"name": "x", "nodes": [{"id": "n", "type": "teleporter", "position": {"x": 0, "y": 0}, "data": {"label": "t"}}], "edges": []}`,
		"dangling edge": `{"name": "x", "nodes": [], "edges": [{"id": "e", "source": "a", "target": "b"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := f.store.Import(ctx, []byte(raw))
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, schema.ErrCodeImportParse))

			st := f.store.State()
			assert.Equal(t, "keep", st.Current.Name)
			assert.Equal(t, 1, st.Graph.Len())
		})
	}
}

func TestStoreQuery(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	engines, err := expressions.DefaultRegistry()
	require.NoError(t, err)

	f.dispatch(t, CreateWorkflow{Name: "A"})
	f.dispatch(t, AddNode{Type: registry.TypeOriginServer})
	f.dispatch(t, AddNode{Type: registry.TypeEdgeCache})
	f.dispatch(t, CreateWorkflow{Name: "B"})
	f.dispatch(t, AddNode{Type: registry.TypeWAF})

	got, err := f.store.Query(ctx, engines, "jq", "[.nodes[].type]", ScopeWorkingSet)
	require.NoError(t, err)
	assert.Equal(t, []any{"waf"}, got)

	got, err = f.store.Query(ctx, engines, "expr", "len(workflows)", ScopeSaved)
	require.NoError(t, err)
	assert.Equal(t, 2, got)

	_, err = f.store.Query(ctx, engines, "lua", "1", ScopeSaved)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	_, err = f.store.Query(ctx, engines, "jq", ".", QueryScope("everything"))
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestStoreValidate(t *testing.T) {
	f := newStoreFixture(t)
	f.dispatch(t, AddNode{Type: registry.TypeEdgeCache})

	result := f.store.Validate(context.Background())
	assert.True(t, result.Valid())
	assert.NotEmpty(t, result.Warnings, "a lone cache has no source or destination")
}

func TestStoreWithoutPersistence(t *testing.T) {
	r, _ := newTestReducer(t)
	v, err := validation.NewDocumentValidator(registry.Builtin(), nil)
	require.NoError(t, err)
	s := NewStore(Config{Reducer: r, Validator: v})
	defer s.Close()

	_, err = s.Dispatch(context.Background(), CreateWorkflow{Name: "ephemeral"})
	require.NoError(t, err)
	require.NoError(t, s.Flush(context.Background()))
	assert.True(t, s.Load(context.Background()).Valid())
	assert.Empty(t, s.State().Saved, "load with no records resets to empty")
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
