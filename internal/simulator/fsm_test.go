package simulator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/cdnflow/internal/collection"
	"github.com/rendis/cdnflow/pkg/schema"
)

// recordingDispatcher records intents and accepts them all.
type recordingDispatcher struct {
	mu      sync.Mutex
	intents []collection.Intent
	err     error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, intent collection.Intent) (collection.Change, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return collection.Change{}, d.err
	}
	d.intents = append(d.intents, intent)
	return collection.Change{}, nil
}

func (d *recordingDispatcher) State() collection.State { return collection.State{} }

func TestNodeFSMValidTransitions(t *testing.T) {
	d := &recordingDispatcher{}
	fsm := NewNodeFSM(d)
	ctx := context.Background()

	steps := []schema.NodeStatus{schema.NodeStatusWaiting, schema.NodeStatusRunning, schema.NodeStatusSuccess, schema.NodeStatusIdle}
	from := schema.NodeStatusIdle
	for _, to := range steps {
		require.NoError(t, fsm.Transition(ctx, Transition{RunID: "run-1", NodeID: "n1", From: from, To: to}))
		from = to
	}

	require.Len(t, d.intents, 4)
	assert.Equal(t, collection.NodeTransition{RunID: "run-1", NodeID: "n1", Status: schema.NodeStatusWaiting}, d.intents[0])
	assert.Equal(t, collection.NodeTransition{RunID: "run-1", NodeID: "n1", Status: schema.NodeStatusIdle}, d.intents[3])
}

func TestNodeFSMInvalidTransition(t *testing.T) {
	tests := []struct {
		from, to schema.NodeStatus
	}{
		{schema.NodeStatusIdle, schema.NodeStatusRunning},
		{schema.NodeStatusIdle, schema.NodeStatusSuccess},
		{schema.NodeStatusWaiting, schema.NodeStatusSuccess},
		{schema.NodeStatusSuccess, schema.NodeStatusRunning},
		{schema.NodeStatusError, schema.NodeStatusWaiting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			d := &recordingDispatcher{}
			err := NewNodeFSM(d).Transition(context.Background(), Transition{NodeID: "n1", From: tt.from, To: tt.to})
			require.Error(t, err)

			var cerr *schema.CdnflowError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, schema.ErrCodeInvalidTransition, cerr.Code)
			assert.Equal(t, "n1", cerr.NodeID)
			assert.Empty(t, d.intents)
		})
	}
}

func TestNodeFSMHooks(t *testing.T) {
	d := &recordingDispatcher{}
	fsm := NewNodeFSM(d)
	var order []string

	fsm.OnBefore(schema.NodeStatusIdle, schema.NodeStatusWaiting, func(_ context.Context, tr Transition) error {
		order = append(order, "before:"+tr.NodeID)
		return nil
	})
	fsm.OnAfter(schema.NodeStatusIdle, schema.NodeStatusWaiting, func(_ context.Context, tr Transition) error {
		order = append(order, "after:"+tr.NodeID)
		return nil
	})

	require.NoError(t, fsm.Transition(context.Background(), Transition{NodeID: "n1", From: schema.NodeStatusIdle, To: schema.NodeStatusWaiting}))
	assert.Equal(t, []string{"before:n1", "after:n1"}, order)

	// Hooks are keyed by transition.
	require.NoError(t, fsm.Transition(context.Background(), Transition{NodeID: "n1", From: schema.NodeStatusWaiting, To: schema.NodeStatusRunning}))
	assert.Len(t, order, 2)
}

func TestNodeFSMBeforeHookAborts(t *testing.T) {
	d := &recordingDispatcher{}
	fsm := NewNodeFSM(d)
	afterCalled := false
	fsm.OnBefore(schema.NodeStatusIdle, schema.NodeStatusWaiting, func(context.Context, Transition) error {
		return errors.New("denied")
	})
	fsm.OnAfter(schema.NodeStatusIdle, schema.NodeStatusWaiting, func(context.Context, Transition) error {
		afterCalled = true
		return nil
	})

	err := fsm.Transition(context.Background(), Transition{NodeID: "n1", From: schema.NodeStatusIdle, To: schema.NodeStatusWaiting})
	require.EqualError(t, err, "denied")
	assert.Empty(t, d.intents)
	assert.False(t, afterCalled)
}

func TestNodeFSMRejectedDispatchSkipsAfterHooks(t *testing.T) {
	d := &recordingDispatcher{err: schema.NewError(schema.ErrCodeCancelled, "run run-1 is no longer active")}
	fsm := NewNodeFSM(d)
	afterCalled := false
	fsm.OnAfter(schema.NodeStatusIdle, schema.NodeStatusWaiting, func(context.Context, Transition) error {
		afterCalled = true
		return nil
	})

	err := fsm.Transition(context.Background(), Transition{RunID: "run-1", NodeID: "n1", From: schema.NodeStatusIdle, To: schema.NodeStatusWaiting})
	assert.True(t, schema.IsCode(err, schema.ErrCodeCancelled))
	assert.False(t, afterCalled)
}
