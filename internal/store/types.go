package store

import (
	"time"

	"github.com/rendis/cdnflow/pkg/schema"
)

// DefaultNamespace prefixes record keys when none is configured.
const DefaultNamespace = "anycdn"

// Keys names the records the application persists under a namespace.
type Keys struct {
	Namespace string
}

// NewKeys returns the record keys for ns, or for DefaultNamespace if ns is empty.
func NewKeys(ns string) Keys {
	if ns == "" {
		ns = DefaultNamespace
	}
	return Keys{Namespace: ns}
}

// Workflows is the key of the saved workflow collection.
func (k Keys) Workflows() string { return k.Namespace + "-workflows" }

// Settings is the key of the global settings record.
func (k Keys) Settings() string { return k.Namespace + "-flow-settings" }

// ExecutionFilter narrows ListExecutions. Results are newest first.
type ExecutionFilter struct {
	WorkflowID string
	Status     *schema.ExecutionStatus
	Limit      int
}

func (f ExecutionFilter) match(e *schema.Execution) bool {
	if f.WorkflowID != "" && e.WorkflowID != f.WorkflowID {
		return false
	}
	if f.Status != nil && e.Status != *f.Status {
		return false
	}
	return true
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.CdnflowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeError(op string, err error) *schema.CdnflowError {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %v", op, err).WithCause(err)
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// headless returns a copy of e without logs.
func headless(e *schema.Execution) *schema.Execution {
	out := e.Clone()
	out.Logs = nil
	return out
}
