package simulator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rendis/cdnflow/internal/collection"
	"github.com/rendis/cdnflow/internal/document"
	"github.com/rendis/cdnflow/internal/metrics"
	"github.com/rendis/cdnflow/internal/registry"
	"github.com/rendis/cdnflow/internal/store"
	"github.com/rendis/cdnflow/internal/validation"
	"github.com/rendis/cdnflow/pkg/schema"
)

// fakeSleeper records requested delays without waiting. The call numbered
// blockAt (1-based) blocks until released or cancelled.
type fakeSleeper struct {
	mu      sync.Mutex
	calls   []time.Duration
	blockAt int
	reached chan struct{}
	release chan struct{}
}

func newFakeSleeper(blockAt int) *fakeSleeper {
	return &fakeSleeper{
		blockAt: blockAt,
		reached: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (f *fakeSleeper) sleep(ctx context.Context, block bool) error {
	if !block {
		return ctx.Err()
	}
	close(f.reached)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.release:
		return nil
	}
}

func (f *fakeSleeper) record(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.calls = append(f.calls, d)
	block := len(f.calls) == f.blockAt
	f.mu.Unlock()
	return f.sleep(ctx, block)
}

func (f *fakeSleeper) Calls() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.calls...)
}

type fixture struct {
	coll    *collection.Store
	records *store.MemoryStore
	metrics *metrics.Metrics
	sleeper *fakeSleeper
	sim     *Simulator
	nodes   []string
	edges   []string
}

// newFixture opens a workflow with origin -> edge cache -> end user and a
// simulator over it.
func newFixture(t *testing.T, blockAt int) *fixture {
	t.Helper()
	r := collection.NewReducer(registry.Builtin())
	v, err := validation.NewDocumentValidator(registry.Builtin(), nil)
	require.NoError(t, err)

	f := &fixture{
		records: store.NewMemoryStore(),
		metrics: metrics.New(nil),
		sleeper: newFakeSleeper(blockAt),
	}
	f.coll = collection.NewStore(collection.Config{Reducer: r, Validator: v})
	t.Cleanup(f.coll.Close)

	f.dispatch(t, collection.CreateWorkflow{Name: "Pipeline"})
	for i, typ := range []string{registry.TypeOriginServer, registry.TypeEdgeCache, registry.TypeEndUser} {
		c := f.dispatch(t, collection.AddNode{Type: typ, Position: schema.Position{X: float64(i * 200)}})
		f.nodes = append(f.nodes, c.NodeID)
	}
	for i, handle := range []string{"success", "hit"} {
		c := f.dispatch(t, collection.AddEdge{Connection: document.Connection{
			Source: f.nodes[i], Target: f.nodes[i+1], SourceHandle: handle,
		}})
		f.edges = append(f.edges, c.EdgeID)
	}

	runs := 0
	f.sim = New(Config{
		Dispatcher: f.coll,
		Records:    f.records,
		Sleep:      f.sleeper.record,
		NewRunID: func() string {
			runs++
			return "run-" + string(rune('0'+runs))
		},
		Metrics: f.metrics,
	})
	t.Cleanup(f.sim.Close)
	return f
}

func (f *fixture) dispatch(t *testing.T, intent collection.Intent) collection.Change {
	t.Helper()
	c, err := f.coll.Dispatch(context.Background(), intent)
	require.NoError(t, err, intent.Kind())
	return c
}

func (f *fixture) status(t *testing.T, nodeID string) schema.NodeStatus {
	t.Helper()
	n, ok := f.coll.State().Graph.Node(nodeID)
	require.True(t, ok, nodeID)
	return n.Data.Status
}

func (f *fixture) executing(t *testing.T, edgeID string) bool {
	t.Helper()
	for _, e := range f.coll.State().Graph.Edges() {
		if e.ID == edgeID {
			return e.IsExecuting
		}
	}
	t.Fatalf("edge %s not found", edgeID)
	return false
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func wait(t *testing.T, run *Run) *schema.Execution {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	exec, err := run.Wait(ctx)
	require.NoError(t, err)
	return exec
}
