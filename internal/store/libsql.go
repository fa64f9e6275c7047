package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/cdnflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/cdnflow.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	ms, err := loadMigrations(migrationFS)
	if err != nil {
		return err
	}
	return runMigrations(ctx, s.db, ms)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Records ---

func (s *LibSQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM records WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("record", key)
	}
	if err != nil {
		return nil, storeError("get record", err)
	}
	return []byte(value), nil
}

func (s *LibSQLStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, string(value), formatTime(time.Now()),
	)
	if err != nil {
		return storeError("put record", err)
	}
	return nil
}

func (s *LibSQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key); err != nil {
		return storeError("delete record", err)
	}
	return nil
}

func (s *LibSQLStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM records WHERE substr(key, 1, ?) = ? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, storeError("list records", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, storeError("scan record key", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// --- Executions ---

func (s *LibSQLStore) SaveExecution(ctx context.Context, exec *schema.Execution) error {
	metrics, err := json.Marshal(exec.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	var end any
	if exec.EndTime != nil {
		end = formatTime(*exec.EndTime)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (id, workflow_id, status, start_time, end_time, metrics) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status=excluded.status, end_time=excluded.end_time, metrics=excluded.metrics`,
		exec.ID, nullStr(exec.WorkflowID), string(exec.Status), formatTime(timeOrNow(exec.StartTime)), end, string(metrics),
	)
	if err != nil {
		return storeError("save execution", err)
	}
	return nil
}

func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*schema.Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, status, start_time, end_time, metrics FROM executions WHERE id = ?`, id)
	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("execution", id)
	}
	if err != nil {
		return nil, err
	}
	exec.Logs, err = s.ListRunLogs(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	return exec, nil
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*schema.Execution, error) {
	var where []string
	var args []any
	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := "SELECT id, workflow_id, status, start_time, end_time, metrics FROM executions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_time DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("list executions", err)
	}
	defer rows.Close()

	out := []*schema.Execution{}
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*schema.Execution, error) {
	var (
		exec               schema.Execution
		workflowID, endStr sql.NullString
		status, startStr   string
		metrics            string
	)
	if err := row.Scan(&exec.ID, &workflowID, &status, &startStr, &endStr, &metrics); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, storeError("scan execution", err)
	}
	exec.WorkflowID = workflowID.String
	exec.Status = schema.ExecutionStatus(status)
	start, err := parseTime(startStr)
	if err != nil {
		return nil, storeError("parse start_time", err)
	}
	exec.StartTime = start
	if endStr.Valid {
		end, err := parseTime(endStr.String)
		if err != nil {
			return nil, storeError("parse end_time", err)
		}
		exec.EndTime = &end
	}
	if err := json.Unmarshal([]byte(metrics), &exec.Metrics); err != nil {
		return nil, storeError("unmarshal metrics", err)
	}
	exec.Logs = []schema.ExecutionLog{}
	return &exec, nil
}

// --- Run log ---

// AppendRunLog appends an entry with a monotonically increasing per-run sequence.
func (s *LibSQLStore) AppendRunLog(ctx context.Context, entry *schema.ExecutionLog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin run log tx", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM run_logs WHERE run_id = ?`, entry.RunID,
	).Scan(&seq); err != nil {
		return storeError("next run log sequence", err)
	}
	entry.Sequence = seq
	entry.Timestamp = timeOrNow(entry.Timestamp)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO run_logs (run_id, sequence, timestamp, level, message, node_id, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID, seq, formatTime(entry.Timestamp), string(entry.Level), entry.Message,
		nullStr(entry.NodeID), nullStr(string(entry.Status)),
	); err != nil {
		return storeError("insert run log", err)
	}
	if err := tx.Commit(); err != nil {
		return storeError("commit run log", err)
	}
	return nil
}

// ListRunLogs returns entries of a run with sequence > since, ordered by sequence.
func (s *LibSQLStore) ListRunLogs(ctx context.Context, runID string, since int64) ([]schema.ExecutionLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, sequence, timestamp, level, message, node_id, status
		 FROM run_logs WHERE run_id = ? AND sequence > ? ORDER BY sequence`, runID, since)
	if err != nil {
		return nil, storeError("list run logs", err)
	}
	defer rows.Close()

	out := []schema.ExecutionLog{}
	for rows.Next() {
		var (
			e              schema.ExecutionLog
			ts, level      string
			nodeID, status sql.NullString
		)
		if err := rows.Scan(&e.RunID, &e.Sequence, &ts, &level, &e.Message, &nodeID, &status); err != nil {
			return nil, storeError("scan run log", err)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, storeError("parse run log timestamp", err)
		}
		e.Level = schema.LogLevel(level)
		e.NodeID = nodeID.String
		e.Status = schema.NodeStatus(status.String)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
