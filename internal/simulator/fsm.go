package simulator

import (
	"context"
	"slices"
	"sync"

	"github.com/rendis/cdnflow/internal/collection"
	"github.com/rendis/cdnflow/pkg/schema"
)

// Dispatcher applies collection intents. Satisfied by *collection.Store.
type Dispatcher interface {
	Dispatch(ctx context.Context, intent collection.Intent) (collection.Change, error)
	State() collection.State
}

// Transition is one node status change within a run.
type Transition struct {
	RunID  string
	NodeID string
	From   schema.NodeStatus
	To     schema.NodeStatus
}

// TransitionHook is called before or after a node transition.
type TransitionHook func(ctx context.Context, t Transition) error

type hookKey struct {
	from, to schema.NodeStatus
}

// NodeFSM validates node status transitions of a run and applies them to
// the collection.
type NodeFSM struct {
	mu         sync.Mutex
	dispatcher Dispatcher
	before     map[hookKey][]TransitionHook
	after      map[hookKey][]TransitionHook
}

// NewNodeFSM creates a NodeFSM that applies transitions through d.
func NewNodeFSM(d Dispatcher) *NodeFSM {
	return &NodeFSM{
		dispatcher: d,
		before:     make(map[hookKey][]TransitionHook),
		after:      make(map[hookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a transition is applied.
func (f *NodeFSM) OnBefore(from, to schema.NodeStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a transition was applied.
func (f *NodeFSM) OnAfter(from, to schema.NodeStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and applies one node transition. A run that was
// stopped fails with CANCELLED and no hooks run after the rejection.
func (f *NodeFSM) Transition(ctx context.Context, t Transition) error {
	f.mu.Lock()
	key := hookKey{t.From, t.To}
	before := slices.Clone(f.before[key])
	after := slices.Clone(f.after[key])
	f.mu.Unlock()

	if !IsValidTransition(t.From, t.To) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid node transition: %s -> %s", t.From, t.To).
			WithNode(t.NodeID).
			WithDetails(map[string]any{"run_id": t.RunID, "from": string(t.From), "to": string(t.To)})
	}

	for _, hook := range before {
		if err := hook(ctx, t); err != nil {
			return err
		}
	}

	if _, err := f.dispatcher.Dispatch(ctx, collection.NodeTransition{
		RunID:  t.RunID,
		NodeID: t.NodeID,
		Status: t.To,
	}); err != nil {
		return err
	}

	for _, hook := range after {
		if err := hook(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// IsValidTransition reports whether a node may move from one status to
// another during a run.
func IsValidTransition(from, to schema.NodeStatus) bool {
	allowed, ok := ValidNodeTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// ValidNodeTransitions defines the phases a node goes through in a run.
// Every status may be reset to idle.
var ValidNodeTransitions = map[schema.NodeStatus][]schema.NodeStatus{
	schema.NodeStatusIdle:    {schema.NodeStatusWaiting, schema.NodeStatusIdle},
	schema.NodeStatusWaiting: {schema.NodeStatusRunning, schema.NodeStatusIdle},
	schema.NodeStatusRunning: {schema.NodeStatusSuccess, schema.NodeStatusIdle},
	schema.NodeStatusSuccess: {schema.NodeStatusIdle},
}
