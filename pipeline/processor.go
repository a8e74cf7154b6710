// Package pipeline implements the domain message handler the worker
// framework (C6) calls into after it dequeues a model.Message: schema
// upserts against the schema store and task-status bookkeeping against the
// dual-store task repository (C2). It never parses spreadsheet content
// itself — the Excel/formula parser is an external collaborator whose
// output (an already-built model.Node AST) is consumed by the compiler
// package on its own, independent path (§6's "Independent flow: Excel
// file → Formula parser (external) → compiler → DDL").
package pipeline

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sheetflow/sheetflow/common"
	"github.com/sheetflow/sheetflow/db/repository"
	"github.com/sheetflow/sheetflow/model"
)

// Processor dispatches a worker's drained messages to the domain logic
// appropriate to their MessageOp, updating task status as it goes.
type Processor struct {
	tasks   *repository.TaskRepository
	schemas repository.SchemaStore
	logger  *logrus.Entry
}

// New wires a Processor around tasks and schemas.
func New(tasks *repository.TaskRepository, schemas repository.SchemaStore, logger *logrus.Entry) *Processor {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Processor{tasks: tasks, schemas: schemas, logger: logger}
}

// Run drains stream until it closes or ctx is done, processing each
// message in turn. A single message's failure is logged and does not stop
// the drain — the task it concerns already carries the failure status.
func (p *Processor) Run(ctx context.Context, stream <-chan model.Message) error {
	for {
		select {
		case msg, open := <-stream:
			if !open {
				return nil
			}
			if msg.ID == "" {
				continue // liveness sentinel from worker.GetMessageStream
			}
			if err := p.Process(ctx, msg); err != nil {
				p.logger.WithError(err).WithField("task_id", msg.ID).Warn("message processing failed")
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Process routes msg to its domain handler by MessageOp.
func (p *Processor) Process(ctx context.Context, msg model.Message) error {
	switch msg.Task {
	case model.OpSchemaUpdate:
		return p.handleSchemaUpdate(ctx, msg)
	case model.OpValidationUpload:
		return p.handleValidationUpload(ctx, msg)
	default:
		return fmt.Errorf("pipeline: unsupported message op %q", msg.Task)
	}
}

func (p *Processor) handleSchemaUpdate(ctx context.Context, msg model.Message) error {
	kind := model.KindSchemas
	if err := p.setStatus(ctx, msg.ID, kind, model.StatusCreatingSchema, ""); err != nil {
		p.logger.WithError(err).WithField("task_id", msg.ID).Warn("failed to record creating-schema status")
	}

	result, err := p.schemas.Upsert(ctx, msg.ImportName, msg.Schema, msg.Raw)
	if err != nil {
		return p.setStatus(ctx, msg.ID, kind, model.StatusFailedSavingSchema, err.Error())
	}

	status := model.StatusSchemaCreated
	message := string(result)
	if result == model.SchemaNoChange {
		status = model.StatusCompleted
	}
	return p.setStatus(ctx, msg.ID, kind, status, message)
}

func (p *Processor) handleValidationUpload(ctx context.Context, msg model.Message) error {
	kind := model.KindValidation
	if err := p.setStatus(ctx, msg.ID, kind, model.StatusProcessingFile, ""); err != nil {
		p.logger.WithError(err).WithField("task_id", msg.ID).Warn("failed to record processing-file status")
	}

	if _, err := hex.DecodeString(msg.FileData); err != nil {
		return p.setStatus(ctx, msg.ID, kind, model.StatusError, "malformed file payload")
	}

	_, found, err := p.schemas.Find(ctx, msg.ImportName)
	if err != nil {
		return p.setStatus(ctx, msg.ID, kind, model.StatusError, err.Error())
	}
	if !found {
		return p.setStatus(ctx, msg.ID, kind, model.StatusError, fmt.Sprintf("no active schema for import %q", msg.ImportName))
	}

	if err := p.setStatus(ctx, msg.ID, kind, model.StatusValidatingFile, ""); err != nil {
		p.logger.WithError(err).WithField("task_id", msg.ID).Warn("failed to record validating-file status")
	}

	// The file's formula content is parsed into an AST by the external
	// collaborator and compiled separately (see the `compile` CLI
	// subcommand); this handler's job ends at confirming an active schema
	// exists for the import and publishing the accepted/validated status.
	return p.setStatus(ctx, msg.ID, kind, model.StatusSuccess, "")
}

func (p *Processor) setStatus(ctx context.Context, taskID string, kind model.TaskKind, status model.TaskStatus, message string) error {
	err := p.tasks.Update(ctx, taskID, kind, model.TaskUpdate{Field: "status", Value: status, Message: message})
	if err == nil {
		return nil
	}
	if common.KindOf(err) == common.KindTransient {
		return fmt.Errorf("pipeline: update task %q status %q: %w", taskID, status, err)
	}
	return err
}
