// Package repository implements the dual-store task repository (C2): a
// hot key-value tier (Redis) fronting a durable document tier (CouchDB),
// plus the schema-document store backing the formula pipeline's schema
// upload/remove surface.
package repository

import (
	"context"
	"time"

	"github.com/sheetflow/sheetflow/model"
)

// TaskKVStore is the hot tier of the dual-store task repository. Every
// operation is scoped to (taskID, kind); ttl is looked up from the TTL
// policy table by the caller, not by this interface.
type TaskKVStore interface {
	Set(ctx context.Context, task model.Task, ttl time.Duration) error
	Get(ctx context.Context, taskID string, kind model.TaskKind) (model.Task, bool, error)
	GetByImport(ctx context.Context, importName string, kind model.TaskKind) ([]model.Task, error)
	SetTTL(ctx context.Context, taskID string, kind model.TaskKind, ttl time.Duration) error
	GetCache(ctx context.Context) ([]model.Task, error)
	ClearCache(ctx context.Context) error
	Close() error
}

// TaskDocumentStore is the durable tier of the dual-store task repository.
type TaskDocumentStore interface {
	Upsert(ctx context.Context, task model.Task) error
	Get(ctx context.Context, taskID string, kind model.TaskKind) (model.Task, bool, error)
	GetByImport(ctx context.Context, importName string, kind model.TaskKind) ([]model.Task, error)
	Close() error
}

// SchemaStore persists JsonSchema documents and their release history
// (§3 JsonSchema document).
type SchemaStore interface {
	Find(ctx context.Context, importName string) (model.SchemaDocument, bool, error)
	Upsert(ctx context.Context, importName string, schema []byte, raw bool) (model.SchemaUpdateResult, error)
	Delete(ctx context.Context, importName string) (model.SchemaUpdateResult, error)
	CountAll(ctx context.Context) (int64, error)
	Close() error
}

// TTLTable maps a task status to its KV-tier time-to-live, per §4.1: a
// closed configuration table, not hard-coded per-status constants.
type TTLTable map[model.TaskStatus]time.Duration

// DefaultTTLTable gives processing statuses a short TTL and terminal
// statuses a long one, matching §8 invariant 2 (status→TTL monotonicity).
func DefaultTTLTable() TTLTable {
	const (
		processing = 15 * time.Minute
		terminal   = 7 * 24 * time.Hour
	)
	return TTLTable{
		model.StatusAccepted:                 processing,
		model.StatusReceivedSampleValidation: processing,
		model.StatusProcessingFile:           processing,
		model.StatusValidatingFile:           processing,
		model.StatusReceivedSchemaUpdate:     processing,
		model.StatusReceivedRemovingSchema:   processing,
		model.StatusCreatingSchema:           processing,
		model.StatusSchemaCreated:            processing,
		model.StatusSavingSchema:             processing,
		model.StatusRemovingSchema:           processing,
		model.StatusSuccess:                  terminal,
		model.StatusWarning:                  terminal,
		model.StatusCompleted:                terminal,
		model.StatusPublished:                terminal,
		model.StatusFailedPublishingResult:   terminal,
		model.StatusFailedCreatingSchema:     terminal,
		model.StatusFailedSavingSchema:       terminal,
		model.StatusFailedRemovingSchema:     terminal,
		model.StatusError:                    terminal,
	}
}

// defaultTTL applies to any status absent from the table.
const defaultTTL = 30 * time.Minute

// TTL looks up status, falling back to defaultTTL for unknown statuses.
func (t TTLTable) TTL(status model.TaskStatus) time.Duration {
	if ttl, ok := t[status]; ok {
		return ttl
	}
	return defaultTTL
}
