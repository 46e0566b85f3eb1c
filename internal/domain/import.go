package domain

import (
	"slices"
	"time"
)

// ImportJob is the immutable record created once an upload completes.
// The import and session identifiers are minted by the pipeline, which
// has to register them with the progress store before the job exists.
type ImportJob struct {
	ID        string    `json:"id"`
	FileName  string    `json:"fileName"`
	TotalRows int       `json:"totalRows"`
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ImportResult is the final summary attached to a completed import.
// RejectedRows failed validation (fix the source data); FailedRows
// validated but could not be persisted (retry the write). Success is
// false only when a fatal pre-flight error aborted the run before any
// row could be written.
type ImportResult struct {
	Success      bool     `json:"success"`
	TotalRows    int      `json:"totalRows"`
	ImportedRows int      `json:"importedRows"`
	RejectedRows int      `json:"rejectedRows"`
	FailedRows   int      `json:"failedRows"`
	Errors       []string `json:"errors"`
	SessionID    string   `json:"sessionId"`
	DurationMs   int64    `json:"durationMs"`
}

// Equal reports whether two results carry identical content. Used to
// make finalization idempotent.
func (r ImportResult) Equal(other ImportResult) bool {
	return r.Success == other.Success &&
		r.TotalRows == other.TotalRows &&
		r.ImportedRows == other.ImportedRows &&
		r.RejectedRows == other.RejectedRows &&
		r.FailedRows == other.FailedRows &&
		r.SessionID == other.SessionID &&
		r.DurationMs == other.DurationMs &&
		slices.Equal(r.Errors, other.Errors)
}

// ImportProgress is the durable, pollable state of one import.
// Percent only moves forward; Completed transitions once and Result is
// nil until then.
type ImportProgress struct {
	ImportID  string        `json:"importId"`
	FileName  string        `json:"fileName"`
	Percent   int           `json:"percent"`
	Step      string        `json:"currentStep"`
	Completed bool          `json:"completed"`
	Result    *ImportResult `json:"result,omitempty"`
	UpdatedAt time.Time     `json:"-"`
}
