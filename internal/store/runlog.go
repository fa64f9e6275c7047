package store

import (
	"context"
	"fmt"

	"github.com/rendis/cdnflow/pkg/schema"
)

// RunLog provides replay on top of a Store's run log.
type RunLog struct {
	store Store
}

// NewRunLog wraps a Store.
func NewRunLog(s Store) *RunLog {
	return &RunLog{store: s}
}

// Append persists an entry and assigns its sequence.
func (rl *RunLog) Append(ctx context.Context, entry *schema.ExecutionLog) error {
	return rl.store.AppendRunLog(ctx, entry)
}

// Entries returns entries of a run with sequence > since.
func (rl *RunLog) Entries(ctx context.Context, runID string, since int64) ([]schema.ExecutionLog, error) {
	return rl.store.ListRunLogs(ctx, runID, since)
}

// Replay rebuilds the last recorded status of every node touched by a run.
// Returns a STORE_ERROR if the sequence has gaps.
func (rl *RunLog) Replay(ctx context.Context, runID string) (map[string]schema.NodeStatus, error) {
	entries, err := rl.store.ListRunLogs(ctx, runID, 0)
	if err != nil {
		return nil, fmt.Errorf("get run log for replay: %w", err)
	}

	statuses := make(map[string]schema.NodeStatus)
	for i, e := range entries {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in run %s: expected %d, got %d", runID, expected, e.Sequence)
		}
		if e.NodeID == "" || e.Status == "" {
			continue
		}
		statuses[e.NodeID] = e.Status
	}
	return statuses, nil
}
