package model

import (
	"encoding/json"
	"time"
)

// SchemaDocument is the persisted record for one import name's validation
// schema, including its full release history (§3 JsonSchema document).
//
// Invariants (enforced by the repository, not by this type): ActiveSchema
// is never equal to the last entry of SchemasReleases; updates push the old
// active onto history before replacing it; deleting with non-empty history
// reverts to the last release instead of removing the document.
type SchemaDocument struct {
	ImportName      string            `json:"_id"`
	Rev             string            `json:"_rev,omitempty"`
	ActiveSchema    json.RawMessage   `json:"active_schema"`
	CreatedAt       time.Time         `json:"created_at"`
	SchemasReleases []json.RawMessage `json:"schemas_releases"`
}

// SchemaUpdateResult reports what a SchemaStore's Upsert or Delete actually
// did, matching the gateway's
// insert_one_schema / update_one_jsonschema response contract.
type SchemaUpdateResult string

const (
	SchemaNoChange SchemaUpdateResult = "no_change"
	SchemaUpdated  SchemaUpdateResult = "updated"
	SchemaCreated  SchemaUpdateResult = "created"
	SchemaReverted SchemaUpdateResult = "reverted"
)

// canonicalize produces a comparable byte form of raw JSON so schema
// equality does not depend on key order or insignificant whitespace.
func canonicalize(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// SchemasEqual reports whether two raw JSON schemas are semantically identical
// (same structure, independent of key order).
func SchemasEqual(a, b json.RawMessage) bool {
	ca, errA := canonicalize(a)
	cb, errB := canonicalize(b)
	if errA != nil || errB != nil {
		return string(a) == string(b)
	}
	return ca == cb
}
