package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/rendis/cdnflow/pkg/schema"
)

// DefaultRedisPrefix namespaces every key the RedisStore writes.
const DefaultRedisPrefix = "cdnflow:"

// RedisStore implements Store on Redis. Records are plain string keys
// tracked in a set; executions are JSON blobs indexed by a sorted set on
// start time; run logs are lists with an INCR sequence counter.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps client. An empty prefix means DefaultRedisPrefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) recordKey(key string) string   { return s.prefix + "record:" + key }
func (s *RedisStore) recordSet() string             { return s.prefix + "records" }
func (s *RedisStore) executionKey(id string) string { return s.prefix + "execution:" + id }
func (s *RedisStore) executionIndex() string        { return s.prefix + "executions" }
func (s *RedisStore) runLogKey(runID string) string { return s.prefix + "runlog:" + runID }
func (s *RedisStore) runSeqKey(runID string) string { return s.prefix + "runlog:" + runID + ":seq" }

// Migrate checks connectivity; Redis needs no schema.
func (s *RedisStore) Migrate(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return storeError("ping redis", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error { return s.client.Close() }

// --- Records ---

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.recordKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storeNotFound("record", key)
	}
	if err != nil {
		return nil, storeError("get record", err)
	}
	return data, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.recordKey(key), value, 0)
		p.SAdd(ctx, s.recordSet(), key)
		return nil
	})
	if err != nil {
		return storeError("put record", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.recordKey(key))
		p.SRem(ctx, s.recordSet(), key)
		return nil
	})
	if err != nil {
		return storeError("delete record", err)
	}
	return nil
}

func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.recordSet()).Result()
	if err != nil {
		return nil, storeError("list records", err)
	}
	keys := []string{}
	for _, k := range members {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// --- Executions ---

func (s *RedisStore) SaveExecution(ctx context.Context, exec *schema.Execution) error {
	cp := headless(exec)
	cp.StartTime = timeOrNow(cp.StartTime)

	prev, err := s.getExecution(ctx, exec.ID)
	switch {
	case err == nil:
		cp.StartTime = prev.StartTime
		cp.WorkflowID = prev.WorkflowID
	case !schema.IsCode(err, schema.ErrCodeNotFound):
		return err
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return storeError("marshal execution", err)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.executionKey(cp.ID), data, 0)
		p.ZAdd(ctx, s.executionIndex(), redis.Z{Score: float64(cp.StartTime.UnixNano()), Member: cp.ID})
		return nil
	})
	if err != nil {
		return storeError("save execution", err)
	}
	return nil
}

func (s *RedisStore) getExecution(ctx context.Context, id string) (*schema.Execution, error) {
	data, err := s.client.Get(ctx, s.executionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storeNotFound("execution", id)
	}
	if err != nil {
		return nil, storeError("get execution", err)
	}
	var exec schema.Execution
	if err := json.Unmarshal(data, &exec); err != nil {
		return nil, storeError("unmarshal execution", err)
	}
	exec.Logs = []schema.ExecutionLog{}
	return &exec, nil
}

func (s *RedisStore) GetExecution(ctx context.Context, id string) (*schema.Execution, error) {
	exec, err := s.getExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	exec.Logs, err = s.ListRunLogs(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	return exec, nil
}

func (s *RedisStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*schema.Execution, error) {
	ids, err := s.client.ZRevRange(ctx, s.executionIndex(), 0, -1).Result()
	if err != nil {
		return nil, storeError("list executions", err)
	}
	out := []*schema.Execution{}
	for _, id := range ids {
		exec, err := s.getExecution(ctx, id)
		if schema.IsCode(err, schema.ErrCodeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !filter.match(exec) {
			continue
		}
		out = append(out, exec)
	}
	sortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// --- Run log ---

func (s *RedisStore) AppendRunLog(ctx context.Context, entry *schema.ExecutionLog) error {
	seq, err := s.client.Incr(ctx, s.runSeqKey(entry.RunID)).Result()
	if err != nil {
		return storeError("next run log sequence", err)
	}
	entry.Sequence = seq
	entry.Timestamp = timeOrNow(entry.Timestamp)

	data, err := json.Marshal(entry)
	if err != nil {
		return storeError("marshal run log", err)
	}
	if err := s.client.RPush(ctx, s.runLogKey(entry.RunID), data).Err(); err != nil {
		return storeError("append run log", err)
	}
	return nil
}

func (s *RedisStore) ListRunLogs(ctx context.Context, runID string, since int64) ([]schema.ExecutionLog, error) {
	raw, err := s.client.LRange(ctx, s.runLogKey(runID), 0, -1).Result()
	if err != nil {
		return nil, storeError("list run logs", err)
	}
	out := []schema.ExecutionLog{}
	for _, item := range raw {
		var e schema.ExecutionLog
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, storeError("unmarshal run log", err)
		}
		if e.Sequence > since {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}
