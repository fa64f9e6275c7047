package collection

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rendis/cdnflow/internal/document"
	"github.com/rendis/cdnflow/internal/registry"
	"github.com/rendis/cdnflow/pkg/schema"
)

// testClock advances one second on every read.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func sequence(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s_%d", prefix, n)
	}
}

func newTestReducer(t *testing.T) (*Reducer, *testClock) {
	t.Helper()
	clock := newTestClock()
	ids := sequence("id")
	r := NewReducer(registry.Builtin(),
		WithClock(clock.Now),
		WithWorkflowIDs(sequence("workflow")),
		WithGraphOptions(document.WithIDFunc(func(prefix string) string { return prefix + "-" + ids() })),
	)
	return r, clock
}

func mustReduce(t *testing.T, r *Reducer, s State, intent Intent) (State, Change) {
	t.Helper()
	next, change, err := r.Reduce(s, intent)
	require.NoError(t, err, intent.Kind())
	return next, change
}

// pipeline builds origin -> edge cache -> end user in the working set and
// returns the node ids in order.
func pipeline(t *testing.T, r *Reducer, s State) (State, []string) {
	t.Helper()
	var ids []string
	for i, typ := range []string{registry.TypeOriginServer, registry.TypeEdgeCache, registry.TypeEndUser} {
		var c Change
		s, c = mustReduce(t, r, s, AddNode{Type: typ, Position: schema.Position{X: float64(i * 200), Y: 100}})
		ids = append(ids, c.NodeID)
	}
	s, _ = mustReduce(t, r, s, AddEdge{Connection: document.Connection{Source: ids[0], Target: ids[1], SourceHandle: "success"}})
	s, _ = mustReduce(t, r, s, AddEdge{Connection: document.Connection{Source: ids[1], Target: ids[2], SourceHandle: "hit"}})
	return s, ids
}
