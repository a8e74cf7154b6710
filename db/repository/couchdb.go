package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/sheetflow/sheetflow/common"
	"github.com/sheetflow/sheetflow/model"
)

// CouchTaskStore implements TaskDocumentStore over a "tasks" CouchDB
// database (one document per task_id+kind, per §6 Persisted state).
type CouchTaskStore struct {
	client *kivik.Client
	db     *kivik.DB
}

// CouchSchemaStore implements SchemaStore over a "schemas" CouchDB database
// (one document per import_name, per §6 Persisted state). It is a distinct
// type from CouchTaskStore, not a second role on the same type, because the
// two stores' Upsert contracts take different arguments and a single
// receiver cannot export both.
type CouchSchemaStore struct {
	client *kivik.Client
	db     *kivik.DB
}

func dialCouch(url, user, password string) (*kivik.Client, error) {
	connectionURL := url
	if user != "" && password != "" && !strings.Contains(connectionURL, "@") {
		parts := strings.SplitN(connectionURL, "://", 2)
		if len(parts) == 2 {
			connectionURL = fmt.Sprintf("%s://%s:%s@%s", parts[0], user, password, parts[1])
		}
	}
	return kivik.New("couch", connectionURL)
}

// NewCouchStores connects to url, injecting user/password into the
// connection URL when not already present, and ensures the "tasks" and
// "schemas" databases exist, returning both stores over that one client.
func NewCouchStores(ctx context.Context, url, user, password string) (*CouchTaskStore, *CouchSchemaStore, error) {
	client, err := dialCouch(url, user, password)
	if err != nil {
		return nil, nil, fmt.Errorf("create couchdb client: %w", err)
	}
	return newCouchStoresFromClient(ctx, client)
}

// NewCouchStoresFromClient builds both stores over an already-connected
// client, for callers (the resilient decorator) that manage the
// connection's lifecycle themselves.
func NewCouchStoresFromClient(ctx context.Context, client *kivik.Client) (*CouchTaskStore, *CouchSchemaStore, error) {
	return newCouchStoresFromClient(ctx, client)
}

func newCouchStoresFromClient(ctx context.Context, client *kivik.Client) (*CouchTaskStore, *CouchSchemaStore, error) {
	tasksDB, err := ensureDB(ctx, client, "tasks")
	if err != nil {
		return nil, nil, err
	}
	schemasDB, err := ensureDB(ctx, client, "schemas")
	if err != nil {
		return nil, nil, err
	}
	return &CouchTaskStore{client: client, db: tasksDB}, &CouchSchemaStore{client: client, db: schemasDB}, nil
}

func ensureDB(ctx context.Context, client *kivik.Client, name string) (*kivik.DB, error) {
	db := client.DB(name)
	if err := db.Err(); err != nil {
		if err := client.CreateDB(ctx, name); err != nil {
			return nil, fmt.Errorf("create database %q: %w", name, err)
		}
		db = client.DB(name)
	}
	return db, nil
}

// Upsert writes task by its deterministic DocID, preserving _rev when the
// document already exists (optimistic-lock MVCC per CouchDB convention).
func (c *CouchTaskStore) Upsert(ctx context.Context, task model.Task) error {
	doc := taskToDoc(task)

	var existing map[string]interface{}
	if err := c.db.Get(ctx, task.DocID()).ScanDoc(&existing); err == nil {
		if rev, ok := existing["_rev"].(string); ok {
			doc["_rev"] = rev
		}
	}
	_, err := c.db.Put(ctx, task.DocID(), doc)
	return err
}

// Get fetches task_id's document by its deterministic id.
func (c *CouchTaskStore) Get(ctx context.Context, taskID string, kind model.TaskKind) (model.Task, bool, error) {
	docID := string(kind) + ":" + taskID
	var doc map[string]interface{}
	err := c.db.Get(ctx, docID).ScanDoc(&doc)
	if kivik.HTTPStatus(err) == 404 {
		return model.Task{}, false, nil
	}
	if err != nil {
		return model.Task{}, false, err
	}
	task, err := docToTask(doc)
	return task, true, err
}

// GetByImport queries the tasks database by import_name and kind via a
// Mango selector; malformed documents are skipped per §4.1.
func (c *CouchTaskStore) GetByImport(ctx context.Context, importName string, kind model.TaskKind) ([]model.Task, error) {
	selector := map[string]interface{}{
		"import_name": importName,
		"task_kind":   string(kind),
	}
	rows := c.db.Find(ctx, map[string]interface{}{"selector": selector})
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var doc map[string]interface{}
		if err := rows.ScanDoc(&doc); err != nil {
			continue
		}
		task, err := docToTask(doc)
		if err != nil {
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (c *CouchTaskStore) Close() error {
	return c.client.Close()
}

func taskToDoc(task model.Task) map[string]interface{} {
	return map[string]interface{}{
		"_id":         task.DocID(),
		"task_id":     task.TaskID,
		"task_kind":   string(task.Kind),
		"status":      string(task.Status),
		"code":        task.Code,
		"message":     task.Message,
		"data":        task.Data,
		"import_name": task.ImportName,
		"upload_date": task.UploadDate,
		"update_date": task.UpdateDate,
	}
}

func docToTask(doc map[string]interface{}) (model.Task, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return model.Task{}, err
	}
	var view struct {
		TaskID     string                 `json:"task_id"`
		Kind       model.TaskKind         `json:"task_kind"`
		Status     model.TaskStatus       `json:"status"`
		Code       int                    `json:"code"`
		Message    string                 `json:"message"`
		Data       map[string]interface{} `json:"data"`
		ImportName string                 `json:"import_name"`
		UploadDate time.Time              `json:"upload_date"`
		UpdateDate time.Time              `json:"update_date"`
	}
	if err := json.Unmarshal(data, &view); err != nil {
		return model.Task{}, err
	}
	return model.Task{
		TaskID:     view.TaskID,
		Kind:       view.Kind,
		Status:     view.Status,
		Code:       view.Code,
		Message:    view.Message,
		Data:       view.Data,
		ImportName: view.ImportName,
		UploadDate: view.UploadDate,
		UpdateDate: view.UpdateDate,
	}, nil
}

// Find returns import_name's schema document.
func (c *CouchSchemaStore) Find(ctx context.Context, importName string) (model.SchemaDocument, bool, error) {
	var doc model.SchemaDocument
	err := c.db.Get(ctx, importName).ScanDoc(&doc)
	if kivik.HTTPStatus(err) == 404 {
		return model.SchemaDocument{}, false, nil
	}
	if err != nil {
		return model.SchemaDocument{}, false, err
	}
	doc.ImportName = importName
	return doc, true, nil
}

// Upsert implements the schema-update contract (§8 S1): identical schema
// → no_change; absent document → created; otherwise the old active schema
// is pushed onto history and replaced → updated.
func (c *CouchSchemaStore) Upsert(ctx context.Context, importName string, schema []byte, raw bool) (model.SchemaUpdateResult, error) {
	existing, found, err := c.Find(ctx, importName)
	if err != nil {
		return "", err
	}

	if !found {
		doc := model.SchemaDocument{
			ImportName:      importName,
			ActiveSchema:    schema,
			CreatedAt:       time.Now().UTC(),
			SchemasReleases: nil,
		}
		if _, err := c.db.Put(ctx, importName, doc); err != nil {
			return "", err
		}
		return model.SchemaCreated, nil
	}

	if model.SchemasEqual(existing.ActiveSchema, schema) {
		return model.SchemaNoChange, nil
	}

	existing.SchemasReleases = append(existing.SchemasReleases, existing.ActiveSchema)
	existing.ActiveSchema = schema
	if _, err := c.db.Put(ctx, importName, existing); err != nil {
		return "", err
	}
	return model.SchemaUpdated, nil
}

// Delete implements §3's revert-on-delete invariant: with non-empty
// history, the last release becomes active again rather than the document
// being removed; an empty-history document is deleted outright.
func (c *CouchSchemaStore) Delete(ctx context.Context, importName string) (model.SchemaUpdateResult, error) {
	existing, found, err := c.Find(ctx, importName)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("schema %q: %w", importName, common.ErrNotFound)
	}

	if len(existing.SchemasReleases) == 0 {
		if _, err := c.db.Delete(ctx, importName, existing.Rev); err != nil {
			return "", err
		}
		return model.SchemaReverted, nil
	}

	last := existing.SchemasReleases[len(existing.SchemasReleases)-1]
	existing.SchemasReleases = existing.SchemasReleases[:len(existing.SchemasReleases)-1]
	existing.ActiveSchema = last
	if _, err := c.db.Put(ctx, importName, existing); err != nil {
		return "", err
	}
	return model.SchemaReverted, nil
}

// CountAll returns the number of schema documents.
func (c *CouchSchemaStore) CountAll(ctx context.Context) (int64, error) {
	rows := c.db.AllDocs(ctx)
	defer rows.Close()
	var n int64
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}

func (c *CouchSchemaStore) Close() error {
	return c.client.Close()
}
