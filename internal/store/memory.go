package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rendis/cdnflow/pkg/schema"
)

// MemoryStore keeps everything in process memory. Used for ephemeral
// sessions and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	records    map[string][]byte
	executions map[string]*schema.Execution
	logs       map[string][]schema.ExecutionLog
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:    make(map[string][]byte),
		executions: make(map[string]*schema.Execution),
		logs:       make(map[string][]schema.ExecutionLog),
	}
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }
func (m *MemoryStore) Close() error                  { return nil }

// --- Records ---

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.records[key]
	if !ok {
		return nil, storeNotFound("record", key)
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

func (m *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := []string{}
	for k := range m.records {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// --- Executions ---

func (m *MemoryStore) SaveExecution(_ context.Context, exec *schema.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := headless(exec)
	cp.StartTime = timeOrNow(cp.StartTime)
	if prev, ok := m.executions[exec.ID]; ok {
		cp.StartTime = prev.StartTime
		cp.WorkflowID = prev.WorkflowID
	}
	m.executions[exec.ID] = cp
	return nil
}

func (m *MemoryStore) GetExecution(_ context.Context, id string) (*schema.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exec, ok := m.executions[id]
	if !ok {
		return nil, storeNotFound("execution", id)
	}
	out := exec.Clone()
	out.Logs = append([]schema.ExecutionLog{}, m.logs[id]...)
	return out, nil
}

func (m *MemoryStore) ListExecutions(_ context.Context, filter ExecutionFilter) ([]*schema.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*schema.Execution{}
	for _, e := range m.executions {
		if filter.match(e) {
			cp := e.Clone()
			cp.Logs = []schema.ExecutionLog{}
			out = append(out, cp)
		}
	}
	sortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// --- Run log ---

func (m *MemoryStore) AppendRunLog(_ context.Context, entry *schema.ExecutionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.Sequence = int64(len(m.logs[entry.RunID]) + 1)
	entry.Timestamp = timeOrNow(entry.Timestamp)
	m.logs[entry.RunID] = append(m.logs[entry.RunID], *entry)
	return nil
}

func (m *MemoryStore) ListRunLogs(_ context.Context, runID string, since int64) ([]schema.ExecutionLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []schema.ExecutionLog{}
	for _, e := range m.logs[runID] {
		if e.Sequence > since {
			out = append(out, e)
		}
	}
	return out, nil
}

func sortNewestFirst(execs []*schema.Execution) {
	sort.Slice(execs, func(i, j int) bool {
		if !execs[i].StartTime.Equal(execs[j].StartTime) {
			return execs[i].StartTime.After(execs[j].StartTime)
		}
		return execs[i].ID > execs[j].ID
	})
}
