package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sheetflow/sheetflow/model"
)

// RedisTaskStore implements TaskKVStore. The key scheme is exact, not
// illustrative (§3 supplement): a hash at `{kind}:task:{task_id}` holding
// the task's fields, and a set at `{kind}:import:{import_name}:tasks`
// tracking every task id seen for that import name.
type RedisTaskStore struct {
	client *redis.Client
}

// NewRedisTaskStoreFromClient wraps an already-connected client, for
// callers (the resilient decorator) that manage the connection's lifecycle
// themselves.
func NewRedisTaskStoreFromClient(client *redis.Client) *RedisTaskStore {
	return &RedisTaskStore{client: client}
}

// NewRedisTaskStore dials url and verifies connectivity with a Ping.
func NewRedisTaskStore(url string) (*RedisTaskStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisTaskStore{client: client}, nil
}

func taskKey(kind model.TaskKind, taskID string) string {
	return fmt.Sprintf("%s:task:%s", kind, taskID)
}

func importKey(kind model.TaskKind, importName string) string {
	return fmt.Sprintf("%s:import:%s:tasks", kind, importName)
}

// Set writes task as a hash and registers it under its import-name set,
// applying ttl to both keys.
func (s *RedisTaskStore) Set(ctx context.Context, task model.Task, ttl time.Duration) error {
	data, err := json.Marshal(task.Data)
	if err != nil {
		return fmt.Errorf("marshal task data: %w", err)
	}

	tk := taskKey(task.Kind, task.TaskID)
	fields := map[string]interface{}{
		"status":      string(task.Status),
		"code":        task.Code,
		"message":     task.Message,
		"data":        string(data),
		"import_name": task.ImportName,
		"upload_date": task.UploadDate.Format(time.RFC3339),
		"update_date": task.UpdateDate.Format(time.RFC3339),
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, tk, fields)
	pipe.Expire(ctx, tk, ttl)
	if task.ImportName != "" {
		ik := importKey(task.Kind, task.ImportName)
		pipe.SAdd(ctx, ik, task.TaskID)
		pipe.Expire(ctx, ik, ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// SetTTL re-applies ttl to task_id's hash and its import-name set, per
// §4.1's "update re-sets TTL to ttl(status)" rule.
func (s *RedisTaskStore) SetTTL(ctx context.Context, taskID string, kind model.TaskKind, ttl time.Duration) error {
	tk := taskKey(kind, taskID)
	importName, err := s.client.HGet(ctx, tk, "import_name").Result()
	if err != nil && err != redis.Nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Expire(ctx, tk, ttl)
	if importName != "" {
		pipe.Expire(ctx, importKey(kind, importName), ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Get reads task_id's hash, reshaping code/data on the way out. found is
// false (no error) when the hash does not exist, so the repository's
// read-through path falls back to the document store.
func (s *RedisTaskStore) Get(ctx context.Context, taskID string, kind model.TaskKind) (model.Task, bool, error) {
	raw, err := s.client.HGetAll(ctx, taskKey(kind, taskID)).Result()
	if err != nil {
		return model.Task{}, false, err
	}
	if len(raw) == 0 {
		return model.Task{}, false, nil
	}
	task, err := decodeTaskHash(taskID, kind, raw)
	return task, true, err
}

// GetByImport resolves task ids via the import-name set, then reads each
// task's hash. Malformed or expired entries are skipped.
func (s *RedisTaskStore) GetByImport(ctx context.Context, importName string, kind model.TaskKind) ([]model.Task, error) {
	ids, err := s.client.SMembers(ctx, importKey(kind, importName)).Result()
	if err != nil {
		return nil, err
	}
	var tasks []model.Task
	for _, id := range ids {
		task, found, err := s.Get(ctx, id, kind)
		if err != nil || !found {
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// GetCache returns every task hash currently resident in the KV tier
// (§3 supplement: a debug/ops introspection surface).
func (s *RedisTaskStore) GetCache(ctx context.Context) ([]model.Task, error) {
	keys, err := s.client.Keys(ctx, "*:task:*").Result()
	if err != nil {
		return nil, err
	}
	var tasks []model.Task
	for _, key := range keys {
		kind, taskID, ok := splitTaskKey(key)
		if !ok {
			continue
		}
		task, found, err := s.Get(ctx, taskID, kind)
		if err != nil || !found {
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// ClearCache deletes every task hash and import-name set (§3 supplement:
// used by integration tests and ops tooling to reset state).
func (s *RedisTaskStore) ClearCache(ctx context.Context) error {
	for _, pattern := range []string{"*:task:*", "*:import:*"} {
		keys, err := s.client.Keys(ctx, pattern).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *RedisTaskStore) Close() error {
	return s.client.Close()
}

func decodeTaskHash(taskID string, kind model.TaskKind, raw map[string]string) (model.Task, error) {
	code, _ := strconv.Atoi(raw["code"])
	var data map[string]interface{}
	if raw["data"] != "" {
		if err := json.Unmarshal([]byte(raw["data"]), &data); err != nil {
			return model.Task{}, fmt.Errorf("decode task %q data: %w", taskID, err)
		}
	}
	uploadDate, _ := time.Parse(time.RFC3339, raw["upload_date"])
	updateDate, _ := time.Parse(time.RFC3339, raw["update_date"])
	return model.Task{
		TaskID:     taskID,
		Kind:       kind,
		Status:     model.TaskStatus(raw["status"]),
		Code:       code,
		Message:    raw["message"],
		Data:       data,
		ImportName: raw["import_name"],
		UploadDate: uploadDate,
		UpdateDate: updateDate,
	}, nil
}

// splitTaskKey parses "{kind}:task:{task_id}" back into its parts.
func splitTaskKey(key string) (model.TaskKind, string, bool) {
	const marker = ":task:"
	idx := strings.Index(key, marker)
	if idx < 0 {
		return "", "", false
	}
	return model.TaskKind(key[:idx]), key[idx+len(marker):], true
}
