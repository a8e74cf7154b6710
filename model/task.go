// Package model defines the core data types shared across the gateway, the
// worker framework, and the compilation pipeline: tasks, schema documents,
// and the message envelopes that travel over the broker.
package model

import "time"

// TaskKind distinguishes the two asynchronous operations the pipeline
// tracks. Every Task is identified by (TaskID, Kind).
type TaskKind string

const (
	KindSchemas    TaskKind = "schemas"
	KindValidation TaskKind = "validation"
)

// TaskStatus is the closed status set the TTL table and the HTTP/RPC error
// translation tables key on. Adding a status requires adding a TTL entry.
type TaskStatus string

const (
	StatusAccepted                  TaskStatus = "accepted"
	StatusReceivedSampleValidation  TaskStatus = "received-sample-validation"
	StatusProcessingFile            TaskStatus = "processing-file"
	StatusValidatingFile            TaskStatus = "validating-file"
	StatusReceivedSchemaUpdate      TaskStatus = "received-schema-update"
	StatusReceivedRemovingSchema    TaskStatus = "received-removing-schema"
	StatusCreatingSchema            TaskStatus = "creating-schema"
	StatusSchemaCreated             TaskStatus = "schema-created"
	StatusSavingSchema              TaskStatus = "saving-schema"
	StatusRemovingSchema            TaskStatus = "removing-schema"
	StatusSuccess                   TaskStatus = "success"
	StatusWarning                   TaskStatus = "warning"
	StatusCompleted                 TaskStatus = "completed"
	StatusPublished                 TaskStatus = "published"
	StatusFailedPublishingResult    TaskStatus = "failed-publishing-result"
	StatusFailedCreatingSchema      TaskStatus = "failed-creating-schema"
	StatusFailedSavingSchema        TaskStatus = "failed-saving-schema"
	StatusFailedRemovingSchema      TaskStatus = "failed-removing-schema"
	StatusError                     TaskStatus = "error"
)

// Task is the unit of work tracked by the dual-store repository (C2).
// Identity is (TaskID, Kind); ImportName is the secondary lookup key.
type Task struct {
	TaskID     string                 `json:"task_id"`
	Kind       TaskKind               `json:"task_kind"`
	Status     TaskStatus             `json:"status"`
	Code       int                    `json:"code"`
	Message    string                 `json:"message,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	ImportName string                 `json:"import_name"`
	UploadDate time.Time              `json:"upload_date"`
	UpdateDate time.Time              `json:"update_date"`
}

// DocID is the deterministic document-store identifier for this task,
// matching the "tasks" collection's one-doc-per-(task_id,kind) contract.
func (t Task) DocID() string {
	return string(t.Kind) + ":" + t.TaskID
}

// TaskUpdate describes a single-field mutation applied by Update. Data is
// merged into the existing value unless ResetData is set.
type TaskUpdate struct {
	Field     string
	Value     interface{}
	Message   string
	Data      map[string]interface{}
	ResetData bool
}
