package store

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLibSQLStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLibSQLStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return newTestLibSQLStore(t) })
}

func TestLibSQLStore_MigrateIdempotent(t *testing.T) {
	s := newTestLibSQLStore(t)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	var version int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version))
	assert.Equal(t, 2, version)
}

func TestLibSQLStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := "file:" + filepath.Join(t.TempDir(), "reopen.db")

	s, err := NewLibSQLStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Put(ctx, "anycdn-workflows", []byte(`[{"id":"w1"}]`)))
	require.NoError(t, s.Close())

	s, err = NewLibSQLStore(dbPath)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Migrate(ctx))
	got, err := s.Get(ctx, "anycdn-workflows")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"w1"}]`, string(got))
}

func TestLibSQLStore_Vacuum(t *testing.T) {
	s := newTestLibSQLStore(t)
	require.NoError(t, s.Vacuum(context.Background()))
}

func TestLoadMigrations(t *testing.T) {
	ms, err := loadMigrations(migrationFS)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, 1, ms[0].Version)
	assert.Equal(t, "records", ms[0].Name)
	assert.Equal(t, "runs", ms[1].Name)

	_, err = loadMigrations(fstest.MapFS{
		"migrations/001_a.sql": {Data: []byte("SELECT 1;")},
		"migrations/1_b.sql":   {Data: []byte("SELECT 2;")},
	})
	assert.ErrorContains(t, err, "duplicate migration version 1")

	_, err = loadMigrations(fstest.MapFS{"migrations/initial.sql": {Data: []byte("SELECT 1;")}})
	assert.ErrorContains(t, err, "expected NNN_name.sql")
}

func TestSplitStatements(t *testing.T) {
	script := `-- header comment
CREATE TABLE a (x INTEGER);

-- only a comment;
CREATE INDEX i ON a(x);
`
	stmts := splitStatements(script)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x INTEGER)", stmts[0])
	assert.Equal(t, "CREATE INDEX i ON a(x)", stmts[1])
}
