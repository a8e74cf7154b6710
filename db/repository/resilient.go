package repository

import (
	"context"
	"time"

	"github.com/sheetflow/sheetflow/common"
	"github.com/sheetflow/sheetflow/db/connection"
	"github.com/sheetflow/sheetflow/model"
	"github.com/sheetflow/sheetflow/retry"
)

// ResilientKVStore implements TaskKVStore over a connection.KVManager,
// giving every operation the resilient RPC gateway's (C4) retry/reconnect
// behavior: transient failures retry with backoff, and every attempt after
// the first forces the manager to reconnect before trying again.
type ResilientKVStore struct {
	mgr    *connection.KVManager
	policy retry.Policy
}

// NewResilientKVStore wires mgr behind policy.
func NewResilientKVStore(mgr *connection.KVManager, policy retry.Policy) *ResilientKVStore {
	return &ResilientKVStore{mgr: mgr, policy: policy}
}

func (s *ResilientKVStore) store(ctx context.Context, forceReconnect bool) (*RedisTaskStore, error) {
	client, err := s.mgr.Get(ctx, forceReconnect)
	if err != nil {
		return nil, common.NewTaskError(common.KindTransient, "kv connect", err)
	}
	return NewRedisTaskStoreFromClient(client), nil
}

func (s *ResilientKVStore) Set(ctx context.Context, task model.Task, ttl time.Duration) error {
	_, err := retry.Execute(ctx, s.policy, func(ctx context.Context, forceReconnect bool) (struct{}, error) {
		store, err := s.store(ctx, forceReconnect)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, store.Set(ctx, task, ttl)
	})
	return err
}

func (s *ResilientKVStore) Get(ctx context.Context, taskID string, kind model.TaskKind) (model.Task, bool, error) {
	type result struct {
		task  model.Task
		found bool
	}
	r, err := retry.Execute(ctx, s.policy, func(ctx context.Context, forceReconnect bool) (result, error) {
		store, err := s.store(ctx, forceReconnect)
		if err != nil {
			return result{}, err
		}
		task, found, err := store.Get(ctx, taskID, kind)
		return result{task: task, found: found}, err
	})
	return r.task, r.found, err
}

func (s *ResilientKVStore) GetByImport(ctx context.Context, importName string, kind model.TaskKind) ([]model.Task, error) {
	return retry.Execute(ctx, s.policy, func(ctx context.Context, forceReconnect bool) ([]model.Task, error) {
		store, err := s.store(ctx, forceReconnect)
		if err != nil {
			return nil, err
		}
		return store.GetByImport(ctx, importName, kind)
	})
}

func (s *ResilientKVStore) SetTTL(ctx context.Context, taskID string, kind model.TaskKind, ttl time.Duration) error {
	_, err := retry.Execute(ctx, s.policy, func(ctx context.Context, forceReconnect bool) (struct{}, error) {
		store, err := s.store(ctx, forceReconnect)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, store.SetTTL(ctx, taskID, kind, ttl)
	})
	return err
}

func (s *ResilientKVStore) GetCache(ctx context.Context) ([]model.Task, error) {
	return retry.Execute(ctx, s.policy, func(ctx context.Context, forceReconnect bool) ([]model.Task, error) {
		store, err := s.store(ctx, forceReconnect)
		if err != nil {
			return nil, err
		}
		return store.GetCache(ctx)
	})
}

func (s *ResilientKVStore) ClearCache(ctx context.Context) error {
	_, err := retry.Execute(ctx, s.policy, func(ctx context.Context, forceReconnect bool) (struct{}, error) {
		store, err := s.store(ctx, forceReconnect)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, store.ClearCache(ctx)
	})
	return err
}

func (s *ResilientKVStore) Close() error {
	return s.mgr.Close()
}

// ResilientDocStore implements TaskDocumentStore over a connection.DocManager,
// with the same retry/reconnect behavior as ResilientKVStore.
type ResilientDocStore struct {
	mgr    *connection.DocManager
	policy retry.Policy
}

// NewResilientDocStore wires mgr behind policy.
func NewResilientDocStore(mgr *connection.DocManager, policy retry.Policy) *ResilientDocStore {
	return &ResilientDocStore{mgr: mgr, policy: policy}
}

func (s *ResilientDocStore) store(ctx context.Context, forceReconnect bool) (*CouchTaskStore, error) {
	client, err := s.mgr.Get(ctx, forceReconnect)
	if err != nil {
		return nil, common.NewTaskError(common.KindTransient, "doc connect", err)
	}
	tasks, _, err := NewCouchStoresFromClient(ctx, client)
	if err != nil {
		return nil, common.NewTaskError(common.KindTransient, "doc ensure database", err)
	}
	return tasks, nil
}

func (s *ResilientDocStore) Upsert(ctx context.Context, task model.Task) error {
	_, err := retry.Execute(ctx, s.policy, func(ctx context.Context, forceReconnect bool) (struct{}, error) {
		store, err := s.store(ctx, forceReconnect)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, store.Upsert(ctx, task)
	})
	return err
}

func (s *ResilientDocStore) Get(ctx context.Context, taskID string, kind model.TaskKind) (model.Task, bool, error) {
	type result struct {
		task  model.Task
		found bool
	}
	r, err := retry.Execute(ctx, s.policy, func(ctx context.Context, forceReconnect bool) (result, error) {
		store, err := s.store(ctx, forceReconnect)
		if err != nil {
			return result{}, err
		}
		task, found, err := store.Get(ctx, taskID, kind)
		return result{task: task, found: found}, err
	})
	return r.task, r.found, err
}

func (s *ResilientDocStore) GetByImport(ctx context.Context, importName string, kind model.TaskKind) ([]model.Task, error) {
	return retry.Execute(ctx, s.policy, func(ctx context.Context, forceReconnect bool) ([]model.Task, error) {
		store, err := s.store(ctx, forceReconnect)
		if err != nil {
			return nil, err
		}
		return store.GetByImport(ctx, importName, kind)
	})
}

func (s *ResilientDocStore) Close() error {
	return s.mgr.Close()
}

// ResilientSchemaStore implements SchemaStore over a connection.DocManager,
// sharing the document tier's connection with ResilientDocStore.
type ResilientSchemaStore struct {
	mgr    *connection.DocManager
	policy retry.Policy
}

// NewResilientSchemaStore wires mgr behind policy.
func NewResilientSchemaStore(mgr *connection.DocManager, policy retry.Policy) *ResilientSchemaStore {
	return &ResilientSchemaStore{mgr: mgr, policy: policy}
}

func (s *ResilientSchemaStore) store(ctx context.Context, forceReconnect bool) (*CouchSchemaStore, error) {
	client, err := s.mgr.Get(ctx, forceReconnect)
	if err != nil {
		return nil, common.NewTaskError(common.KindTransient, "doc connect", err)
	}
	_, schemas, err := NewCouchStoresFromClient(ctx, client)
	if err != nil {
		return nil, common.NewTaskError(common.KindTransient, "doc ensure database", err)
	}
	return schemas, nil
}

func (s *ResilientSchemaStore) Find(ctx context.Context, importName string) (model.SchemaDocument, bool, error) {
	type result struct {
		doc   model.SchemaDocument
		found bool
	}
	r, err := retry.Execute(ctx, s.policy, func(ctx context.Context, forceReconnect bool) (result, error) {
		store, err := s.store(ctx, forceReconnect)
		if err != nil {
			return result{}, err
		}
		doc, found, err := store.Find(ctx, importName)
		return result{doc: doc, found: found}, err
	})
	return r.doc, r.found, err
}

func (s *ResilientSchemaStore) Upsert(ctx context.Context, importName string, schema []byte, raw bool) (model.SchemaUpdateResult, error) {
	return retry.Execute(ctx, s.policy, func(ctx context.Context, forceReconnect bool) (model.SchemaUpdateResult, error) {
		store, err := s.store(ctx, forceReconnect)
		if err != nil {
			return "", err
		}
		return store.Upsert(ctx, importName, schema, raw)
	})
}

func (s *ResilientSchemaStore) Delete(ctx context.Context, importName string) (model.SchemaUpdateResult, error) {
	return retry.Execute(ctx, s.policy, func(ctx context.Context, forceReconnect bool) (model.SchemaUpdateResult, error) {
		store, err := s.store(ctx, forceReconnect)
		if err != nil {
			return "", err
		}
		return store.Delete(ctx, importName)
	})
}

func (s *ResilientSchemaStore) CountAll(ctx context.Context) (int64, error) {
	return retry.Execute(ctx, s.policy, func(ctx context.Context, forceReconnect bool) (int64, error) {
		store, err := s.store(ctx, forceReconnect)
		if err != nil {
			return 0, err
		}
		return store.CountAll(ctx)
	})
}

func (s *ResilientSchemaStore) Close() error {
	return s.mgr.Close()
}
