// Package progress tracks durable, pollable import progress keyed by
// an opaque import identifier. State lives behind the Tracker
// interface so the writing and reading process never have to be the
// same long-lived instance.
package progress

import (
	"context"
	"errors"

	"github.com/Xena75/Gestione-Partesa-sub007/internal/domain"
)

var (
	// ErrNotFound is returned for unknown identifiers and for records
	// past the retention window. A stale poll hitting it is an
	// expected terminal state, distinct from a failed job.
	ErrNotFound = errors.New("import progress not found")

	// ErrCompleted is returned for writes against a finalized record.
	// Clients start a new job instead of reusing identifiers.
	ErrCompleted = errors.New("import already completed")
)

// Tracker is the durable progress store. Each import id moves through
// created, running and completed exactly once; percent never goes
// backwards; an update is atomic (percent, step and completed change
// together).
type Tracker interface {
	// Create registers a new job at zero percent under the uploaded
	// file's name. Creating an id that already exists is an error.
	Create(ctx context.Context, id, fileName string) error

	// SetProgress advances percent and step. Percent is clamped to
	// 0-99 and never lowered; completion only happens via Finalize.
	SetProgress(ctx context.Context, id string, percent int, step string) error

	// Finalize attaches the result and flips completed. Calling it
	// again with an equal result is a no-op, so a retried
	// finalization after a transient failure is safe.
	Finalize(ctx context.Context, id string, result domain.ImportResult) error

	// Get returns the current state for pollers. Expired and unknown
	// ids return ErrNotFound.
	Get(ctx context.Context, id string) (domain.ImportProgress, error)
}

func clampPercent(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 99 {
		return 99
	}
	return percent
}
