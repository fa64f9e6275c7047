package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/cdnflow/internal/collection"
	"github.com/rendis/cdnflow/internal/logging"
	"github.com/rendis/cdnflow/internal/metrics"
	"github.com/rendis/cdnflow/internal/store"
	"github.com/rendis/cdnflow/pkg/schema"
)

// Timing holds the fixed delays of a run.
type Timing struct {
	// Waiting is held after a node enters waiting.
	Waiting time.Duration
	// Running is held after a node enters running.
	Running time.Duration
	// Trailing is held after the last node succeeds, before the run ends.
	Trailing time.Duration
}

// DefaultTiming returns the standard animation delays.
func DefaultTiming() Timing {
	return Timing{
		Waiting:  300 * time.Millisecond,
		Running:  1500 * time.Millisecond,
		Trailing: 500 * time.Millisecond,
	}
}

// SleepFunc waits for d. It returns early with ctx.Err() when ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the SleepFunc backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Config holds the dependencies of a Simulator. Dispatcher is required.
type Config struct {
	Dispatcher Dispatcher
	// Records stores execution records and run logs. Nil keeps them in
	// memory only.
	Records  store.Store
	Timing   Timing
	Sleep    SleepFunc
	NewRunID func() string
	Now      func() time.Time
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Simulator plays runs over the current working set. Nodes are walked one
// at a time in list order; nothing is executed.
type Simulator struct {
	dispatcher Dispatcher
	fsm        *NodeFSM
	records    store.Store
	runLog     *store.RunLog
	timing     Timing
	sleep      SleepFunc
	newRunID   func() string
	now        func() time.Time
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu   sync.Mutex
	runs map[string]*Run
}

// New creates a Simulator.
func New(cfg Config) *Simulator {
	s := &Simulator{
		dispatcher: cfg.Dispatcher,
		fsm:        NewNodeFSM(cfg.Dispatcher),
		records:    cfg.Records,
		timing:     cfg.Timing,
		sleep:      cfg.Sleep,
		newRunID:   cfg.NewRunID,
		now:        cfg.Now,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		runs:       make(map[string]*Run),
	}
	if s.timing == (Timing{}) {
		s.timing = DefaultTiming()
	}
	if s.sleep == nil {
		s.sleep = Sleep
	}
	if s.newRunID == nil {
		s.newRunID = func() string { return "run-" + uuid.NewString() }
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "simulator")
	if s.records != nil {
		s.runLog = store.NewRunLog(s.records)
	}

	for from, targets := range ValidNodeTransitions {
		for _, to := range targets {
			if to != schema.NodeStatusIdle {
				s.fsm.OnAfter(from, to, s.recordTransition)
			}
		}
	}
	return s
}

// FSM exposes the node state machine so callers can register hooks.
func (s *Simulator) FSM() *NodeFSM { return s.fsm }

// Run is a handle on one simulation run.
type Run struct {
	ID string

	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	exec *schema.Execution
}

// Done is closed when the run has ended.
func (r *Run) Done() <-chan struct{} { return r.done }

// Execution returns a snapshot of the run's record.
func (r *Run) Execution() *schema.Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exec.Clone()
}

// Wait blocks until the run ends and returns its final record.
func (r *Run) Wait(ctx context.Context) (*schema.Execution, error) {
	select {
	case <-r.done:
		return r.Execution(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start begins a run over the current working set and returns immediately.
// It fails with EMPTY_WORKFLOW when there are no nodes and with
// ALREADY_RUNNING when a run is in progress.
func (s *Simulator) Start(ctx context.Context) (*Run, error) {
	runID := s.newRunID()
	change, err := s.dispatcher.Dispatch(ctx, collection.StartRun{RunID: runID})
	if err != nil {
		return nil, err
	}
	nodes := startedNodes(change)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = logging.WithRunID(runCtx, runID)
	if change.WorkflowID != "" {
		runCtx = logging.WithWorkflowID(runCtx, change.WorkflowID)
	}
	run := &Run{
		ID:     runID,
		cancel: cancel,
		done:   make(chan struct{}),
		exec: &schema.Execution{
			ID:         runID,
			WorkflowID: change.WorkflowID,
			Status:     schema.ExecutionRunning,
			StartTime:  s.now(),
			Logs:       []schema.ExecutionLog{},
			Metrics:    schema.WorkflowMetrics{TotalNodes: len(nodes)},
		},
	}
	s.mu.Lock()
	s.runs[runID] = run
	s.mu.Unlock()

	s.saveExecution(runCtx, run)
	s.appendLog(runCtx, run, schema.ExecutionLog{
		Level:   schema.LogInfo,
		Message: fmt.Sprintf("run started with %d nodes", len(nodes)),
	})
	logging.LogWith(runCtx, s.logger).InfoContext(runCtx, "run started", "nodes", len(nodes))

	go s.walk(runCtx, run, nodes)
	return run, nil
}

// Stop ends the active run at once: every node goes back to idle and every
// edge stops executing. Pending phases of the stopped run are never
// applied. Stopping when nothing runs still resets the statuses.
func (s *Simulator) Stop(ctx context.Context) (collection.Change, error) {
	change, err := s.dispatcher.Dispatch(ctx, collection.StopRun{})
	s.mu.Lock()
	for _, r := range s.runs {
		r.cancel()
	}
	s.mu.Unlock()
	return change, err
}

// Active returns the run in progress, or nil.
func (s *Simulator) Active() *Run {
	st := s.dispatcher.State()
	if !st.IsRunning {
		return nil
	}
	return s.run(st.RunID)
}

// Execution returns the record of a run, in progress or finished.
func (s *Simulator) Execution(ctx context.Context, runID string) (*schema.Execution, error) {
	if r := s.run(runID); r != nil {
		return r.Execution(), nil
	}
	if s.records == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "run %s not found", runID)
	}
	return s.records.GetExecution(ctx, runID)
}

// Executions lists finished and active runs, newest first.
func (s *Simulator) Executions(ctx context.Context, filter store.ExecutionFilter) ([]*schema.Execution, error) {
	if s.records == nil {
		return []*schema.Execution{}, nil
	}
	return s.records.ListExecutions(ctx, filter)
}

// Close cancels every run, releasing the collection, and waits for them to
// end.
func (s *Simulator) Close() {
	s.mu.Lock()
	runs := make([]*Run, 0, len(s.runs))
	for _, r := range s.runs {
		r.cancel()
		runs = append(runs, r)
	}
	s.mu.Unlock()
	for _, r := range runs {
		<-r.done
	}
}

func (s *Simulator) run(id string) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

func (s *Simulator) walk(ctx context.Context, run *Run, nodes []string) {
	defer close(run.done)
	defer func() {
		s.mu.Lock()
		delete(s.runs, run.ID)
		s.mu.Unlock()
		run.cancel()
	}()

	completed, err := s.advance(ctx, run, nodes)
	status := schema.ExecutionCompleted
	if err != nil {
		status = schema.ExecutionCancelled
		if !schema.IsCode(err, schema.ErrCodeCancelled) {
			// The walk ended without a Stop; release the collection.
			if _, serr := s.dispatcher.Dispatch(context.WithoutCancel(ctx), collection.StopRun{RunID: run.ID}); serr != nil && !schema.IsCode(serr, schema.ErrCodeCancelled) {
				logging.LogWith(ctx, s.logger).WarnContext(ctx, "release run", "error", serr)
			}
		}
	}
	s.finish(ctx, run, status, completed)
}

// advance walks every node through its phases and ends the run. It returns
// the number of nodes that reached success.
func (s *Simulator) advance(ctx context.Context, run *Run, nodes []string) (int, error) {
	completed := 0
	for _, nodeID := range nodes {
		err := s.advanceNode(ctx, run.ID, nodeID)
		switch {
		case schema.IsCode(err, schema.ErrCodeNodeNotFound):
			logging.LogWith(ctx, s.logger).WarnContext(ctx, "node removed during run, skipping", "node_id", nodeID)
			continue
		case err != nil:
			return completed, err
		}
		completed++
	}
	if err := s.sleep(ctx, s.timing.Trailing); err != nil {
		return completed, err
	}
	_, err := s.dispatcher.Dispatch(ctx, collection.FinishRun{RunID: run.ID})
	return completed, err
}

func (s *Simulator) advanceNode(ctx context.Context, runID, nodeID string) error {
	from := schema.NodeStatusIdle
	for _, p := range []struct {
		status schema.NodeStatus
		hold   time.Duration
	}{
		{schema.NodeStatusWaiting, s.timing.Waiting},
		{schema.NodeStatusRunning, s.timing.Running},
		{schema.NodeStatusSuccess, 0},
	} {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.fsm.Transition(ctx, Transition{RunID: runID, NodeID: nodeID, From: from, To: p.status}); err != nil {
			return err
		}
		from = p.status
		if p.hold > 0 {
			if err := s.sleep(ctx, p.hold); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Simulator) finish(ctx context.Context, run *Run, status schema.ExecutionStatus, completed int) {
	end := s.now()
	run.mu.Lock()
	run.exec.Status = status
	run.exec.EndTime = &end
	run.exec.Metrics.CompletedNodes = completed
	run.exec.Metrics.DurationMs = end.Sub(run.exec.StartTime).Milliseconds()
	elapsed := end.Sub(run.exec.StartTime)
	run.mu.Unlock()

	entry := schema.ExecutionLog{Level: schema.LogInfo, Message: "run completed"}
	if status == schema.ExecutionCancelled {
		entry = schema.ExecutionLog{Level: schema.LogWarn, Message: "run stopped"}
	}
	s.appendLog(ctx, run, entry)
	s.saveExecution(ctx, run)
	s.metrics.ObserveRun(status, elapsed)
	logging.LogWith(ctx, s.logger).InfoContext(ctx, "run ended", "status", status, "completed_nodes", completed)
}

func (s *Simulator) recordTransition(ctx context.Context, t Transition) error {
	s.metrics.ObserveTransition(t.To)
	run := s.run(t.RunID)
	if run == nil {
		return nil
	}
	s.appendLog(ctx, run, schema.ExecutionLog{
		Level:   schema.LogInfo,
		Message: fmt.Sprintf("node %s is %s", t.NodeID, t.To),
		NodeID:  t.NodeID,
		Status:  t.To,
	})
	return nil
}

func (s *Simulator) appendLog(ctx context.Context, run *Run, entry schema.ExecutionLog) {
	entry.RunID = run.ID
	entry.Timestamp = s.now()
	run.mu.Lock()
	defer run.mu.Unlock()
	if s.runLog != nil {
		if err := s.runLog.Append(context.WithoutCancel(ctx), &entry); err != nil {
			logging.LogWith(ctx, s.logger).WarnContext(ctx, "append run log", "error", err)
			entry.Sequence = int64(len(run.exec.Logs) + 1)
		}
	} else {
		entry.Sequence = int64(len(run.exec.Logs) + 1)
	}
	run.exec.Logs = append(run.exec.Logs, entry)
}

func (s *Simulator) saveExecution(ctx context.Context, run *Run) {
	if s.records == nil {
		return
	}
	exec := run.Execution()
	if err := s.records.SaveExecution(context.WithoutCancel(ctx), exec); err != nil {
		logging.LogWith(ctx, s.logger).WarnContext(ctx, "save execution", "error", err)
	}
}

func startedNodes(change collection.Change) []string {
	payload, ok := change.Payload.(map[string]any)
	if !ok {
		return nil
	}
	nodes, _ := payload["nodes"].([]string)
	return nodes
}
