package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetflow/sheetflow/common"
	"github.com/sheetflow/sheetflow/db/repository"
	"github.com/sheetflow/sheetflow/model"
)

// fakeKVStore and fakeDocStore mirror db/repository's own test fakes, kept
// package-local since those are unexported there.

type fakeKVStore struct{ tasks map[string]model.Task }

func newFakeKVStore() *fakeKVStore { return &fakeKVStore{tasks: map[string]model.Task{}} }
func (f *fakeKVStore) key(id string, kind model.TaskKind) string { return string(kind) + ":" + id }
func (f *fakeKVStore) Set(_ context.Context, t model.Task, _ time.Duration) error {
	f.tasks[f.key(t.TaskID, t.Kind)] = t
	return nil
}
func (f *fakeKVStore) Get(_ context.Context, id string, kind model.TaskKind) (model.Task, bool, error) {
	t, ok := f.tasks[f.key(id, kind)]
	return t, ok, nil
}
func (f *fakeKVStore) GetByImport(_ context.Context, importName string, kind model.TaskKind) ([]model.Task, error) {
	var out []model.Task
	for _, t := range f.tasks {
		if t.Kind == kind && t.ImportName == importName {
			out = append(out, t)
		}
	}
	return out, nil
}
func (f *fakeKVStore) SetTTL(context.Context, string, model.TaskKind, time.Duration) error { return nil }
func (f *fakeKVStore) GetCache(context.Context) ([]model.Task, error)                      { return nil, nil }
func (f *fakeKVStore) ClearCache(context.Context) error                                    { return nil }
func (f *fakeKVStore) Close() error                                                        { return nil }

type fakeDocStore struct{ tasks map[string]model.Task }

func newFakeDocStore() *fakeDocStore { return &fakeDocStore{tasks: map[string]model.Task{}} }
func (f *fakeDocStore) Upsert(_ context.Context, t model.Task) error {
	f.tasks[t.DocID()] = t
	return nil
}
func (f *fakeDocStore) Get(_ context.Context, id string, kind model.TaskKind) (model.Task, bool, error) {
	t, ok := f.tasks[string(kind)+":"+id]
	return t, ok, nil
}
func (f *fakeDocStore) GetByImport(context.Context, string, model.TaskKind) ([]model.Task, error) {
	return nil, nil
}
func (f *fakeDocStore) Close() error { return nil }

type fakeSchemaStore struct {
	active map[string]json.RawMessage
}

func newFakeSchemaStore() *fakeSchemaStore { return &fakeSchemaStore{active: map[string]json.RawMessage{}} }
func (f *fakeSchemaStore) Find(_ context.Context, importName string) (model.SchemaDocument, bool, error) {
	schema, ok := f.active[importName]
	if !ok {
		return model.SchemaDocument{}, false, nil
	}
	return model.SchemaDocument{ImportName: importName, ActiveSchema: schema}, true, nil
}
func (f *fakeSchemaStore) Upsert(_ context.Context, importName string, schema []byte, _ bool) (model.SchemaUpdateResult, error) {
	if existing, ok := f.active[importName]; ok && model.SchemasEqual(existing, schema) {
		return model.SchemaNoChange, nil
	}
	_, existed := f.active[importName]
	f.active[importName] = schema
	if existed {
		return model.SchemaUpdated, nil
	}
	return model.SchemaCreated, nil
}
func (f *fakeSchemaStore) Delete(_ context.Context, importName string) (model.SchemaUpdateResult, error) {
	if _, ok := f.active[importName]; !ok {
		return "", common.ErrNotFound
	}
	delete(f.active, importName)
	return model.SchemaReverted, nil
}
func (f *fakeSchemaStore) CountAll(context.Context) (int64, error) { return int64(len(f.active)), nil }
func (f *fakeSchemaStore) Close() error                            { return nil }

func newTestProcessor() (*Processor, *repository.TaskRepository, *fakeSchemaStore) {
	tasks := repository.NewTaskRepository(newFakeKVStore(), newFakeDocStore(), repository.DefaultTTLTable())
	schemas := newFakeSchemaStore()
	return New(tasks, schemas, nil), tasks, schemas
}

func TestProcessor_SchemaUpdate_CreatesNewSchemaAndMarksTaskCreated(t *testing.T) {
	p, tasks, _ := newTestProcessor()
	ctx := context.Background()
	require.NoError(t, tasks.Set(ctx, model.Task{TaskID: "t1", Kind: model.KindSchemas, Status: model.StatusReceivedSchemaUpdate, ImportName: "u1"}))

	err := p.Process(ctx, model.Message{ID: "t1", Task: model.OpSchemaUpdate, ImportName: "u1", Schema: json.RawMessage(`{"type":"object"}`)})
	require.NoError(t, err)

	got, found, err := tasks.Get(ctx, "t1", model.KindSchemas)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.StatusSchemaCreated, got.Status)
}

func TestProcessor_SchemaUpdate_NoChangeMarksTaskCompleted(t *testing.T) {
	p, tasks, schemas := newTestProcessor()
	ctx := context.Background()
	schema := json.RawMessage(`{"type":"object"}`)
	_, err := schemas.Upsert(ctx, "u1", schema, false)
	require.NoError(t, err)
	require.NoError(t, tasks.Set(ctx, model.Task{TaskID: "t2", Kind: model.KindSchemas, Status: model.StatusReceivedSchemaUpdate, ImportName: "u1"}))

	err = p.Process(ctx, model.Message{ID: "t2", Task: model.OpSchemaUpdate, ImportName: "u1", Schema: schema})
	require.NoError(t, err)

	got, _, err := tasks.Get(ctx, "t2", model.KindSchemas)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
}

func TestProcessor_ValidationUpload_NoActiveSchemaMarksError(t *testing.T) {
	p, tasks, _ := newTestProcessor()
	ctx := context.Background()
	require.NoError(t, tasks.Set(ctx, model.Task{TaskID: "t3", Kind: model.KindValidation, Status: model.StatusAccepted, ImportName: "u1"}))

	err := p.Process(ctx, model.Message{ID: "t3", Task: model.OpValidationUpload, ImportName: "u1", FileData: "deadbeef"})
	require.NoError(t, err)

	got, _, err := tasks.Get(ctx, "t3", model.KindValidation)
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, got.Status)
}

func TestProcessor_ValidationUpload_WithActiveSchemaSucceeds(t *testing.T) {
	p, tasks, schemas := newTestProcessor()
	ctx := context.Background()
	_, err := schemas.Upsert(ctx, "u1", json.RawMessage(`{"type":"object"}`), false)
	require.NoError(t, err)
	require.NoError(t, tasks.Set(ctx, model.Task{TaskID: "t4", Kind: model.KindValidation, Status: model.StatusAccepted, ImportName: "u1"}))

	err = p.Process(ctx, model.Message{ID: "t4", Task: model.OpValidationUpload, ImportName: "u1", FileData: "deadbeef"})
	require.NoError(t, err)

	got, _, err := tasks.Get(ctx, "t4", model.KindValidation)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, got.Status)
}

func TestProcessor_ValidationUpload_MalformedFileDataMarksError(t *testing.T) {
	p, tasks, _ := newTestProcessor()
	ctx := context.Background()
	require.NoError(t, tasks.Set(ctx, model.Task{TaskID: "t5", Kind: model.KindValidation, Status: model.StatusAccepted, ImportName: "u1"}))

	err := p.Process(ctx, model.Message{ID: "t5", Task: model.OpValidationUpload, ImportName: "u1", FileData: "not-hex!"})
	require.NoError(t, err)

	got, _, err := tasks.Get(ctx, "t5", model.KindValidation)
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, got.Status)
}

func TestProcessor_UnsupportedOpReturnsError(t *testing.T) {
	p, _, _ := newTestProcessor()
	err := p.Process(context.Background(), model.Message{ID: "t6", Task: model.MessageOp("unknown.op")})
	assert.Error(t, err)
}

func TestProcessor_Run_DrainsStreamUntilClosed(t *testing.T) {
	p, tasks, schemas := newTestProcessor()
	ctx := context.Background()
	_, err := schemas.Upsert(ctx, "u1", json.RawMessage(`{"type":"object"}`), false)
	require.NoError(t, err)
	require.NoError(t, tasks.Set(ctx, model.Task{TaskID: "t7", Kind: model.KindValidation, Status: model.StatusAccepted, ImportName: "u1"}))

	stream := make(chan model.Message, 2)
	stream <- model.Message{} // liveness sentinel, should be skipped
	stream <- model.Message{ID: "t7", Task: model.OpValidationUpload, ImportName: "u1", FileData: "beef"}
	close(stream)

	require.NoError(t, p.Run(ctx, stream))

	got, _, err := tasks.Get(ctx, "t7", model.KindValidation)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, got.Status)
}
