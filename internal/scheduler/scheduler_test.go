package scheduler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/cdnflow/internal/metrics"
	"github.com/rendis/cdnflow/pkg/schema"
)

type fakeSource struct {
	mu   sync.Mutex
	docs []schema.WorkflowDocument
}

func (f *fakeSource) SavedDocuments() []schema.WorkflowDocument {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schema.WorkflowDocument(nil), f.docs...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func savedDocs() []schema.WorkflowDocument {
	return []schema.WorkflowDocument{
		{ID: "w1", Name: "Static Site", Nodes: []schema.GraphNode{{ID: "n1", Type: "origin-server"}}, Edges: []schema.GraphEdge{}},
		{ID: "w2", Name: "Static Site", Nodes: []schema.GraphNode{}, Edges: []schema.GraphEdge{}},
		{ID: "w3", Name: "eu/us split", Nodes: []schema.GraphNode{}, Edges: []schema.GraphEdge{}},
		{ID: "w4", Nodes: []schema.GraphNode{}, Edges: []schema.GraphEdge{}},
	}
}

func newTestScheduler(t *testing.T, docs []schema.WorkflowDocument, keep int) (*Scheduler, *fakeClock, *metrics.Metrics) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 6, 1, 2, 30, 0, 0, time.UTC)}
	m := metrics.New(nil)
	s, err := New(Config{
		Source:  &fakeSource{docs: docs},
		Dir:     t.TempDir(),
		Cron:    "0 3 * * *",
		Keep:    keep,
		Now:     clock.Now,
		Metrics: m,
	})
	require.NoError(t, err)
	return s, clock, m
}

func TestNewRejectsInvalidCron(t *testing.T) {
	_, err := New(Config{Source: &fakeSource{}, Cron: "every day"})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestNextRun(t *testing.T) {
	s, _, _ := newTestScheduler(t, nil, 0)
	assert.Equal(t, time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC), s.NextRun())
}

func TestBackupWritesExportFiles(t *testing.T) {
	s, _, m := newTestScheduler(t, savedDocs(), 0)

	dir, err := s.Backup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.dir, "20240601T023000.000Z"), dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"Static Site.json", "Static Site-2.json", "eu_us split.json", "untitled-workflow.json"}, names)

	data, err := os.ReadFile(filepath.Join(dir, "Static Site.json"))
	require.NoError(t, err)
	var export schema.ExportDocument
	require.NoError(t, json.Unmarshal(data, &export))
	assert.Equal(t, "Static Site", export.Name)
	require.Len(t, export.Nodes, 1)
	assert.Equal(t, "n1", export.Nodes[0].ID)
	assert.True(t, export.ExportedAt.Equal(time.Date(2024, 6, 1, 2, 30, 0, 0, time.UTC)))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackupTotal.WithLabelValues(metrics.OutcomeOK)))
}

func TestBackupSkipsEmptyCollection(t *testing.T) {
	s, _, m := newTestScheduler(t, nil, 0)
	dir, err := s.Backup(context.Background())
	require.NoError(t, err)
	assert.Empty(t, dir)
	_, ok, err := s.LastBackup()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, testutil.CollectAndCount(m.BackupTotal))
}

func TestBackupPrunesOldest(t *testing.T) {
	s, clock, _ := newTestScheduler(t, savedDocs(), 2)
	ctx := context.Background()
	var dirs []string
	for range 3 {
		dir, err := s.Backup(ctx)
		require.NoError(t, err)
		dirs = append(dirs, filepath.Base(dir))
		clock.Advance(time.Hour)
	}

	kept, err := s.backups()
	require.NoError(t, err)
	assert.Equal(t, dirs[1:], kept)

	last, ok, err := s.LastBackup()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.Equal(time.Date(2024, 6, 1, 4, 30, 0, 0, time.UTC)))
}

func TestBackupConflict(t *testing.T) {
	s, _, _ := newTestScheduler(t, savedDocs(), 0)
	require.True(t, s.tryAcquire())
	_, err := s.Backup(context.Background())
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))
	s.release()

	_, err = s.Backup(context.Background())
	assert.NoError(t, err)
}

func TestTick(t *testing.T) {
	s, clock, _ := newTestScheduler(t, savedDocs(), 0)
	ctx := context.Background()

	s.tick(ctx)
	_, ok, _ := s.LastBackup()
	assert.False(t, ok, "not due before 03:00")

	clock.Advance(45 * time.Minute)
	s.tick(ctx)
	last, ok, _ := s.LastBackup()
	require.True(t, ok)
	assert.True(t, last.Equal(time.Date(2024, 6, 1, 3, 15, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2024, 6, 2, 3, 0, 0, 0, time.UTC), s.NextRun())
}

func TestRecoverMissed(t *testing.T) {
	t.Run("no backup yet", func(t *testing.T) {
		s, _, _ := newTestScheduler(t, savedDocs(), 0)
		require.NoError(t, s.RecoverMissed(context.Background()))
		_, ok, _ := s.LastBackup()
		assert.True(t, ok)
	})

	t.Run("schedule fired since last backup", func(t *testing.T) {
		s, clock, _ := newTestScheduler(t, savedDocs(), 0)
		_, err := s.Backup(context.Background())
		require.NoError(t, err)

		clock.Advance(time.Hour)
		require.NoError(t, s.RecoverMissed(context.Background()))
		dirs, _ := s.backups()
		assert.Len(t, dirs, 2)
	})

	t.Run("up to date", func(t *testing.T) {
		s, clock, _ := newTestScheduler(t, savedDocs(), 0)
		_, err := s.Backup(context.Background())
		require.NoError(t, err)

		clock.Advance(10 * time.Minute)
		require.NoError(t, s.RecoverMissed(context.Background()))
		dirs, _ := s.backups()
		assert.Len(t, dirs, 1)
	})
}

func TestStartStop(t *testing.T) {
	s, _, _ := newTestScheduler(t, savedDocs(), 0)
	s.interval = 10 * time.Millisecond
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx), "double start")
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop(), "stop is idempotent")
}

func TestFileName(t *testing.T) {
	used := map[string]int{}
	assert.Equal(t, "a.json", fileName("a.json", used))
	assert.Equal(t, "a-2.json", fileName("a.json", used))
	assert.Equal(t, "a-3.json", fileName("a.json", used))
	assert.Equal(t, "x_y_z.json", fileName(`x/y\z.json`, used))

	tests := []struct {
		name  string
		names []string
		want  []string
	}{
		{"suffix taken by a later workflow", []string{"a", "a", "a-2"}, []string{"a.json", "a-2.json", "a-2-2.json"}},
		{"suffix taken by an earlier workflow", []string{"a-2", "a", "a"}, []string{"a-2.json", "a.json", "a-3.json"}},
		{"three of a kind", []string{"b", "b-2", "b", "b"}, []string{"b.json", "b-2.json", "b-3.json", "b-4.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			used := map[string]int{}
			var got []string
			for _, n := range tt.names {
				got = append(got, fileName(n+".json", used))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
