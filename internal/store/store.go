package store

import (
	"context"

	"github.com/rendis/cdnflow/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Records (namespaced JSON blobs: the workflow collection, settings)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Executions (simulation run records, logs stored separately)
	SaveExecution(ctx context.Context, exec *schema.Execution) error
	GetExecution(ctx context.Context, id string) (*schema.Execution, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*schema.Execution, error)

	// Run log (append-only)
	AppendRunLog(ctx context.Context, entry *schema.ExecutionLog) error
	ListRunLogs(ctx context.Context, runID string, since int64) ([]schema.ExecutionLog, error)

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
