package model

import (
	"encoding/json"
	"time"
)

// MessageOp identifies the operation a worker message carries, driving
// routing-key selection (C7) and dispatch inside a worker (C6).
type MessageOp string

const (
	OpSchemaUpdate     MessageOp = "schemas.update"
	OpValidationUpload MessageOp = "validation.request"
)

// FileMetadata describes the uploaded file referenced by a validation
// message's payload.
type FileMetadata struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Message is the envelope carried over the broker between the publisher
// (C7), the worker framework (C6), and the streaming gateway (C8). Fields
// not relevant to a given Op are left zero; JSON `omitempty` keeps the wire
// payload compact per operation.
type Message struct {
	ID         string                 `json:"id"`
	Task       MessageOp              `json:"task"`
	ImportName string                 `json:"import_name"`
	Date       time.Time              `json:"date"`

	// Schema-update payload.
	Schema json.RawMessage `json:"schema,omitempty"`
	Raw    bool            `json:"raw,omitempty"`

	// Validation payload. FileData is lowercase hex-encoded on the wire.
	FileData string        `json:"file_data,omitempty"`
	Metadata *FileMetadata `json:"metadata,omitempty"`

	Extra map[string]interface{} `json:"extra,omitempty"`
}
