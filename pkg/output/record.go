// Package output provides JSONL run records.
//
// A run emits one record per mapped program, skipped row, write failure
// and reconcile action, followed by a summary. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: gopathways.<type>.v<version>
const (
	// TypeProgram identifies mapped program records.
	TypeProgram = "gopathways.program.v1"

	// TypeSkip identifies rows excluded before load.
	TypeSkip = "gopathways.skip.v1"

	// TypeError identifies write and source failures.
	TypeError = "gopathways.error.v1"

	// TypeReconcile identifies deletions performed by the reconciler.
	TypeReconcile = "gopathways.reconcile.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "gopathways.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// The type field determines how to interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "gopathways.program.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID correlates records of one pipeline run.
	RunID string `json:"run_id"`

	// Source is the sheet the run read.
	Source string `json:"source"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// ProgramRecord carries one Pathways document.
type ProgramRecord struct {
	ID          string          `json:"id"`
	ProgramType string          `json:"program_type"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Document    json.RawMessage `json:"document"`
}

// SkipRecord explains why a row was not loaded.
type SkipRecord struct {
	RowID   string `json:"row_id,omitempty"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`

	// Index is the zero-based data row index when the row has no id.
	Index *int `json:"index,omitempty"`
}

// Skip reasons. The mapper reasons mirror pathways.SkipReason values.
const (
	SkipMalformedTimestamp = "malformed_timestamp"
	SkipInvalidDuration    = "invalid_duration"
	SkipInvalidDocument    = "invalid_document"
)

// ErrorRecord is the data payload for errors.
//
// Errors are emitted as records rather than failing the entire run,
// allowing partial loads when some rows fail.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// RowID is the program related to this error, if applicable.
	RowID string `json:"row_id,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodeWriteFailed indicates a row the store rejected.
	ErrCodeWriteFailed = "WRITE_FAILED"

	// ErrCodeSource indicates the sheet could not be read.
	ErrCodeSource = "SOURCE_ERROR"

	// ErrCodeStore indicates a store failure that aborted the run.
	ErrCodeStore = "STORE_ERROR"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// ReconcileRecord lists programs removed from the store.
type ReconcileRecord struct {
	// Action is ActionDeleted or ActionOptedOut.
	Action string   `json:"action"`
	IDs    []string `json:"ids"`
}

// Reconcile actions.
const (
	ActionDeleted  = "deleted"
	ActionOptedOut = "opted_out"
)

// SummaryRecord is emitted at the end of a run with aggregate counts.
type SummaryRecord struct {
	Status string `json:"status"`

	// RowsSeen counts data rows in the normalized sheet.
	RowsSeen int `json:"rows_seen"`

	// RowsChanged counts rows newer than the watermark.
	RowsChanged int `json:"rows_changed"`

	Malformed int `json:"malformed"`

	// Restamped counts first-run rows loaded with the run start time because
	// their timestamp did not parse.
	Restamped int `json:"restamped,omitempty"`

	NotEnabled int `json:"not_enabled"`
	Mapped     int `json:"mapped"`
	Skipped    int `json:"skipped"`
	Upserted   int `json:"upserted"`
	Failed     int `json:"failed"`
	Deleted    int `json:"deleted"`
	OptedOut   int `json:"opted_out"`

	// Watermark is the persisted high-water mark before the run.
	Watermark *time.Time `json:"watermark,omitempty"`

	DryRun bool `json:"dry_run,omitempty"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
