package collection

import (
	"github.com/rendis/cdnflow/pkg/schema"
)

// StartRun marks a simulation run as active and resets every node to idle.
type StartRun struct {
	RunID string `json:"runId"`
}

func (StartRun) Kind() string { return "StartRun" }

func (i StartRun) apply(_ *Reducer, s *State) (Change, error) {
	if s.IsRunning {
		return Change{}, schema.NewErrorf(schema.ErrCodeAlreadyRunning, "run %s is already in progress", s.RunID)
	}
	if s.Graph.Len() == 0 {
		return Change{}, schema.NewError(schema.ErrCodeEmptyWorkflow, "add some nodes to the workflow before running it")
	}
	if i.RunID == "" {
		return Change{}, schema.NewError(schema.ErrCodeValidation, "run id is empty")
	}
	s.Graph.ResetStatuses()
	s.IsRunning = true
	s.RunID = i.RunID
	return Change{
		Event:      schema.EventRunStarted,
		WorkflowID: currentID(s),
		Payload:    map[string]any{"runId": i.RunID, "nodes": s.Graph.NodeIDs()},
	}, nil
}

// NodeTransition applies one status change of a run. Entering running marks
// the node's outgoing edges as executing; entering success clears them.
// A transition for a run that is no longer active fails with CANCELLED, so
// nothing a stopped run does can reach the working set.
type NodeTransition struct {
	RunID  string            `json:"runId"`
	NodeID string            `json:"nodeId"`
	Status schema.NodeStatus `json:"status"`
}

func (NodeTransition) Kind() string { return "NodeTransition" }

func (i NodeTransition) apply(_ *Reducer, s *State) (Change, error) {
	if err := checkRun(s, i.RunID); err != nil {
		return Change{}, err
	}
	if err := s.Graph.SetNodeStatus(i.NodeID, i.Status); err != nil {
		return Change{}, err
	}
	var edges []string
	switch i.Status {
	case schema.NodeStatusRunning:
		edges = s.Graph.SetOutgoingExecuting(i.NodeID, true)
	case schema.NodeStatusSuccess:
		edges = s.Graph.SetOutgoingExecuting(i.NodeID, false)
	}
	return Change{
		Event:      schema.EventNodeStatus,
		WorkflowID: currentID(s),
		NodeID:     i.NodeID,
		Payload:    map[string]any{"runId": i.RunID, "status": i.Status, "edges": edges},
	}, nil
}

// FinishRun ends an active run normally. Node statuses are left as the run
// set them.
type FinishRun struct {
	RunID string `json:"runId"`
}

func (FinishRun) Kind() string { return "FinishRun" }

func (i FinishRun) apply(_ *Reducer, s *State) (Change, error) {
	if err := checkRun(s, i.RunID); err != nil {
		return Change{}, err
	}
	s.IsRunning = false
	s.RunID = ""
	return Change{
		Event:      schema.EventRunCompleted,
		WorkflowID: currentID(s),
		Payload:    map[string]string{"runId": i.RunID},
	}, nil
}

// StopRun ends any active run and resets every node to idle and every edge
// to not executing. Stopping when nothing runs still resets. When RunID is
// set, only that run is stopped and any other state fails with CANCELLED.
type StopRun struct {
	RunID string `json:"runId,omitempty"`
}

func (StopRun) Kind() string { return "StopRun" }

func (i StopRun) apply(_ *Reducer, s *State) (Change, error) {
	if i.RunID != "" {
		if err := checkRun(s, i.RunID); err != nil {
			return Change{}, err
		}
	}
	runID := s.RunID
	s.IsRunning = false
	s.RunID = ""
	s.Graph.ResetStatuses()
	return Change{
		Event:      schema.EventRunStopped,
		WorkflowID: currentID(s),
		Payload:    map[string]string{"runId": runID},
	}, nil
}

func checkRun(s *State, runID string) error {
	if !s.IsRunning || s.RunID != runID {
		return schema.NewErrorf(schema.ErrCodeCancelled, "run %s is no longer active", runID)
	}
	return nil
}

func currentID(s *State) string {
	if s.Current == nil {
		return ""
	}
	return s.Current.ID
}
