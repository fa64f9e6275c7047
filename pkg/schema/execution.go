package schema

import "time"

// ExecutionStatus is the lifecycle state of a simulation run.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the run has finished.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionCompleted || s == ExecutionCancelled
}

// LogLevel is the severity of an execution log entry.
type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// ExecutionLog is one entry of a run log.
type ExecutionLog struct {
	RunID     string     `json:"runId,omitempty"`
	Sequence  int64      `json:"sequence"`
	Timestamp time.Time  `json:"timestamp"`
	Level     LogLevel   `json:"level"`
	Message   string     `json:"message"`
	NodeID    string     `json:"nodeId,omitempty"`
	Status    NodeStatus `json:"status,omitempty"`
}

// WorkflowMetrics summarizes a run.
type WorkflowMetrics struct {
	TotalNodes     int   `json:"totalNodes"`
	CompletedNodes int   `json:"completedNodes"`
	DurationMs     int64 `json:"durationMs"`
}

// Execution is the record of one simulation run.
type Execution struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflowId,omitempty"`
	Status     ExecutionStatus `json:"status"`
	StartTime  time.Time       `json:"startTime"`
	EndTime    *time.Time      `json:"endTime,omitempty"`
	Logs       []ExecutionLog  `json:"logs"`
	Metrics    WorkflowMetrics `json:"metrics"`
}

// Clone returns a deep copy of the execution.
func (e *Execution) Clone() *Execution {
	if e == nil {
		return nil
	}
	out := *e
	out.Logs = append([]ExecutionLog(nil), e.Logs...)
	if e.EndTime != nil {
		t := *e.EndTime
		out.EndTime = &t
	}
	return &out
}
