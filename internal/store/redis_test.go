package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/cdnflow/pkg/schema"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "")
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, _ := newTestRedisStore(t)
		return s
	})
}

func TestRedisStore_KeyLayout(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "anycdn-workflows", []byte(`[]`)))
	got, err := mr.Get("cdnflow:record:anycdn-workflows")
	require.NoError(t, err)
	assert.Equal(t, "[]", got)
	assert.True(t, mr.Exists("cdnflow:records"))

	require.NoError(t, s.AppendRunLog(ctx, &schema.ExecutionLog{RunID: "r1", Level: schema.LogInfo, Message: "x"}))
	assert.True(t, mr.Exists("cdnflow:runlog:r1"))
	seq, err := mr.Get("cdnflow:runlog:r1:seq")
	require.NoError(t, err)
	assert.Equal(t, "1", seq)
}

func TestRedisStore_MigrateFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	err := NewRedisStore(client, "x:").Migrate(context.Background())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeStore))
}
