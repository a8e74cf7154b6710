package repository

import (
	"context"
	"fmt"

	"github.com/sheetflow/sheetflow/common"
	"github.com/sheetflow/sheetflow/model"
)

// ErrTaskNotFound is returned by Update when neither tier has a record for
// the given (task_id, kind).
var ErrTaskNotFound = fmt.Errorf("task: %w", common.ErrNotFound)

// TaskRepository is the dual-store task repository (C2): every write goes
// to both the KV tier and the document tier; every read tries the KV tier
// first and falls back to the document tier (read-through, §8 invariant 3).
type TaskRepository struct {
	kv   TaskKVStore
	docs TaskDocumentStore
	ttl  TTLTable
}

// NewTaskRepository wires kv and docs behind the read-through contract,
// using ttlTable to resolve each status's KV time-to-live.
func NewTaskRepository(kv TaskKVStore, docs TaskDocumentStore, ttlTable TTLTable) *TaskRepository {
	return &TaskRepository{kv: kv, docs: docs, ttl: ttlTable}
}

// Set writes task to both stores. A write failure in either store
// propagates as a single error; no rollback is attempted on the surviving
// store — subsequent reads heal via the read-through path (§4.1).
func (r *TaskRepository) Set(ctx context.Context, task model.Task) error {
	if err := r.kv.Set(ctx, task, r.ttl.TTL(task.Status)); err != nil {
		return err
	}
	return r.docs.Upsert(ctx, task)
}

// Update applies one field mutation to task (task_id, kind), re-setting
// the KV TTL when the mutated field is "status". Both stores are updated;
// the merge of Data vs. reset_data happens before either store is touched
// so both tiers see the same resulting Task.
func (r *TaskRepository) Update(ctx context.Context, taskID string, kind model.TaskKind, upd model.TaskUpdate) error {
	task, found, err := r.Get(ctx, taskID, kind)
	if err != nil {
		return err
	}
	if !found {
		return ErrTaskNotFound
	}

	applyFieldUpdate(&task, upd)

	if err := r.kv.Set(ctx, task, r.ttl.TTL(task.Status)); err != nil {
		return err
	}
	return r.docs.Upsert(ctx, task)
}

func applyFieldUpdate(task *model.Task, upd model.TaskUpdate) {
	switch upd.Field {
	case "status":
		if status, ok := upd.Value.(model.TaskStatus); ok {
			task.Status = status
		}
	case "code":
		if code, ok := upd.Value.(int); ok {
			task.Code = code
		}
	}
	if upd.Message != "" {
		task.Message = upd.Message
	}
	if upd.Data != nil {
		if upd.ResetData || task.Data == nil {
			task.Data = upd.Data
		} else {
			for k, v := range upd.Data {
				task.Data[k] = v
			}
		}
	}
}

// Get reads (task_id, kind) through the KV tier first, falling back to the
// document tier on a miss (§8 invariant 3).
func (r *TaskRepository) Get(ctx context.Context, taskID string, kind model.TaskKind) (model.Task, bool, error) {
	task, found, err := r.kv.Get(ctx, taskID, kind)
	if err != nil {
		return model.Task{}, false, err
	}
	if found {
		return task, true, nil
	}
	return r.docs.Get(ctx, taskID, kind)
}

// GetByImport tries the KV tier's set-membership lookup first; if it
// yields nothing, falls back to the document store.
func (r *TaskRepository) GetByImport(ctx context.Context, importName string, kind model.TaskKind) ([]model.Task, error) {
	tasks, err := r.kv.GetByImport(ctx, importName, kind)
	if err != nil {
		return nil, err
	}
	if len(tasks) > 0 {
		return tasks, nil
	}
	return r.docs.GetByImport(ctx, importName, kind)
}

// GetCache exposes the KV tier's full task-hash inventory (§3 supplement).
func (r *TaskRepository) GetCache(ctx context.Context) ([]model.Task, error) {
	return r.kv.GetCache(ctx)
}

// ClearCache resets the KV tier (§3 supplement).
func (r *TaskRepository) ClearCache(ctx context.Context) error {
	return r.kv.ClearCache(ctx)
}

func (r *TaskRepository) Close() error {
	kvErr := r.kv.Close()
	docsErr := r.docs.Close()
	if kvErr != nil {
		return kvErr
	}
	return docsErr
}
