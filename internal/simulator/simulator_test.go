package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/cdnflow/internal/collection"
	"github.com/rendis/cdnflow/internal/metrics"
	"github.com/rendis/cdnflow/internal/store"
	"github.com/rendis/cdnflow/pkg/schema"
)

func TestRunWalksNodesInOrder(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	run, err := f.sim.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	exec := wait(t, run)

	assert.Equal(t, schema.ExecutionCompleted, exec.Status)
	assert.Equal(t, 3, exec.Metrics.TotalNodes)
	assert.Equal(t, 3, exec.Metrics.CompletedNodes)
	require.NotNil(t, exec.EndTime)

	st := f.coll.State()
	assert.False(t, st.IsRunning)
	assert.Empty(t, st.RunID)
	for _, id := range f.nodes {
		assert.Equal(t, schema.NodeStatusSuccess, f.status(t, id))
	}
	for _, id := range f.edges {
		assert.False(t, f.executing(t, id))
	}

	ms := time.Millisecond
	assert.Equal(t, []time.Duration{300 * ms, 1500 * ms, 300 * ms, 1500 * ms, 300 * ms, 1500 * ms, 500 * ms}, f.sleeper.Calls())

	logs, err := f.records.ListRunLogs(ctx, "run-1", 0)
	require.NoError(t, err)
	var sequence []string
	for _, l := range logs {
		if l.NodeID != "" {
			sequence = append(sequence, l.NodeID+":"+string(l.Status))
		}
	}
	var want []string
	for _, id := range f.nodes {
		want = append(want, id+":waiting", id+":running", id+":success")
	}
	assert.Equal(t, want, sequence)
	assert.Equal(t, "run started with 3 nodes", logs[0].Message)
	assert.Equal(t, "run completed", logs[len(logs)-1].Message)

	stored, err := f.sim.Execution(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionCompleted, stored.Status)
	assert.Len(t, stored.Logs, len(logs))

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RunTotal.WithLabelValues(metrics.OutcomeCompleted)))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.NodeTransitionTotal.WithLabelValues(string(schema.NodeStatusSuccess))))
}

func TestStopDuringRun(t *testing.T) {
	// Fourth delay is the second node's running hold.
	f := newFixture(t, 4)
	ctx := context.Background()

	run, err := f.sim.Start(ctx)
	require.NoError(t, err)
	waitFor(t, f.sleeper.reached)

	assert.Equal(t, schema.NodeStatusSuccess, f.status(t, f.nodes[0]))
	assert.Equal(t, schema.NodeStatusRunning, f.status(t, f.nodes[1]))
	assert.Equal(t, schema.NodeStatusIdle, f.status(t, f.nodes[2]))
	assert.False(t, f.executing(t, f.edges[0]))
	assert.True(t, f.executing(t, f.edges[1]))
	assert.Same(t, run, f.sim.Active())

	change, err := f.sim.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.EventRunStopped, change.Event)

	st := f.coll.State()
	assert.False(t, st.IsRunning)
	for _, id := range f.nodes {
		assert.Equal(t, schema.NodeStatusIdle, f.status(t, id))
	}
	for _, id := range f.edges {
		assert.False(t, f.executing(t, id))
	}

	exec := wait(t, run)
	assert.Equal(t, schema.ExecutionCancelled, exec.Status)
	assert.Equal(t, 1, exec.Metrics.CompletedNodes)
	assert.Len(t, f.sleeper.Calls(), 4)
	assert.Nil(t, f.sim.Active())

	for _, id := range f.nodes {
		assert.Equal(t, schema.NodeStatusIdle, f.status(t, id), "nothing applied after stop")
	}
	for _, l := range exec.Logs {
		assert.NotEqual(t, f.nodes[2], l.NodeID, "last node never left idle")
	}
	assert.Equal(t, "run stopped", exec.Logs[len(exec.Logs)-1].Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RunTotal.WithLabelValues(metrics.OutcomeStopped)))
}

func TestStartRejected(t *testing.T) {
	t.Run("empty workflow", func(t *testing.T) {
		f := newFixture(t, 0)
		f.dispatch(t, collection.ClearWorkflow{})
		_, err := f.sim.Start(context.Background())
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeEmptyWorkflow))
		assert.False(t, f.coll.State().IsRunning)
	})

	t.Run("already running", func(t *testing.T) {
		f := newFixture(t, 1)
		ctx := context.Background()
		run, err := f.sim.Start(ctx)
		require.NoError(t, err)
		waitFor(t, f.sleeper.reached)

		_, err = f.sim.Start(ctx)
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeAlreadyRunning))

		_, err = f.sim.Stop(ctx)
		require.NoError(t, err)
		assert.Equal(t, schema.ExecutionCancelled, wait(t, run).Status)
	})
}

func TestWorkingSetReplacedDuringRun(t *testing.T) {
	f := newFixture(t, 2)
	run, err := f.sim.Start(context.Background())
	require.NoError(t, err)
	waitFor(t, f.sleeper.reached)

	f.dispatch(t, collection.ClearWorkflow{})
	close(f.sleeper.release)

	exec := wait(t, run)
	assert.Equal(t, schema.ExecutionCancelled, exec.Status)
	assert.Equal(t, 0, exec.Metrics.CompletedNodes)
	assert.False(t, f.coll.State().IsRunning)
}

func TestNodeDeletedDuringRun(t *testing.T) {
	// Third delay is the second node's waiting hold.
	f := newFixture(t, 3)
	run, err := f.sim.Start(context.Background())
	require.NoError(t, err)
	waitFor(t, f.sleeper.reached)

	f.dispatch(t, collection.DeleteNode{ID: f.nodes[2]})
	close(f.sleeper.release)

	exec := wait(t, run)
	assert.Equal(t, schema.ExecutionCompleted, exec.Status)
	assert.Equal(t, 3, exec.Metrics.TotalNodes)
	assert.Equal(t, 2, exec.Metrics.CompletedNodes)
	assert.Len(t, f.sleeper.Calls(), 5)
}

func TestCloseReleasesCollection(t *testing.T) {
	f := newFixture(t, 2)
	run, err := f.sim.Start(context.Background())
	require.NoError(t, err)
	waitFor(t, f.sleeper.reached)

	f.sim.Close()
	<-run.Done()

	assert.False(t, f.coll.State().IsRunning)
	exec, err := f.records.GetExecution(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionCancelled, exec.Status)
}

func TestExecutionsWithoutRecords(t *testing.T) {
	f := newFixture(t, 0)
	sim := New(Config{Dispatcher: f.coll, Sleep: f.sleeper.record})
	ctx := context.Background()

	run, err := sim.Start(ctx)
	require.NoError(t, err)
	exec := wait(t, run)
	assert.Equal(t, schema.ExecutionCompleted, exec.Status)
	for i, l := range exec.Logs {
		assert.Equal(t, int64(i+1), l.Sequence)
	}

	_, err = sim.Execution(ctx, run.ID)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
	list, err := sim.Executions(ctx, store.ExecutionFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Sleep(ctx, 0), context.Canceled)
}
