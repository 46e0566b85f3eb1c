package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Xena75/Gestione-Partesa-sub007/internal/domain"
	"github.com/Xena75/Gestione-Partesa-sub007/internal/progress"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type progressTracker struct {
	pool      *pgxpool.Pool
	retention time.Duration
}

// NewProgressTracker wires the durable progress store. Progress rows
// survive process restarts so a replaced server instance still answers
// polls for jobs another instance started.
func NewProgressTracker(pool *pgxpool.Pool, retention time.Duration) progress.Tracker {
	return &progressTracker{pool: pool, retention: retention}
}

func (t *progressTracker) Create(ctx context.Context, id, fileName string) error {
	// Expired completed records are swept opportunistically here so no
	// separate janitor process is needed.
	if t.retention > 0 {
		_, _ = t.pool.Exec(
			ctx,
			`DELETE FROM import_progress WHERE completed AND updated_at < now() - make_interval(secs => $1)`,
			t.retention.Seconds(),
		)
	}

	_, err := t.pool.Exec(
		ctx,
		`INSERT INTO import_progress (import_id, file_name, percent, step, completed)
		 VALUES ($1, $2, 0, 'created', false)`,
		id,
		fileName,
	)
	if err != nil {
		return fmt.Errorf("failed to create progress record: %w", err)
	}
	return nil
}

// SetProgress advances percent and step in one statement so pollers
// never observe a torn update. GREATEST keeps percent monotonic under
// retried stage writes.
func (t *progressTracker) SetProgress(ctx context.Context, id string, percent int, step string) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 99 {
		percent = 99
	}

	tag, err := t.pool.Exec(
		ctx,
		`UPDATE import_progress
		 SET percent = GREATEST(percent, $2), step = $3, updated_at = now()
		 WHERE import_id = $1 AND NOT completed`,
		id,
		percent,
		step,
	)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return t.missReason(ctx, id)
	}
	return nil
}

func (t *progressTracker) Finalize(ctx context.Context, id string, result domain.ImportResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal import result: %w", err)
	}

	step := "completed"
	if !result.Success {
		step = "failed"
	}

	tag, err := t.pool.Exec(
		ctx,
		`UPDATE import_progress
		 SET percent = 100, step = $3, completed = true,
		     result = $2, updated_at = now()
		 WHERE import_id = $1 AND NOT completed`,
		id,
		payload,
		step,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize progress: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Already completed. A retried finalization with the same result
	// is a no-op; anything else is rejected.
	existing, err := t.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.Completed && existing.Result != nil && existing.Result.Equal(result) {
		return nil
	}
	return progress.ErrCompleted
}

func (t *progressTracker) Get(ctx context.Context, id string) (domain.ImportProgress, error) {
	row := t.pool.QueryRow(
		ctx,
		`SELECT import_id, file_name, percent, step, completed, result, updated_at
		 FROM import_progress WHERE import_id = $1`,
		id,
	)

	var (
		record  domain.ImportProgress
		payload []byte
	)
	if err := row.Scan(&record.ImportID, &record.FileName, &record.Percent, &record.Step, &record.Completed, &payload, &record.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ImportProgress{}, progress.ErrNotFound
		}
		return domain.ImportProgress{}, fmt.Errorf("failed to read progress: %w", err)
	}

	if t.retention > 0 && record.Completed && time.Since(record.UpdatedAt) > t.retention {
		return domain.ImportProgress{}, progress.ErrNotFound
	}

	if len(payload) > 0 {
		var result domain.ImportResult
		if err := json.Unmarshal(payload, &result); err != nil {
			return domain.ImportProgress{}, fmt.Errorf("failed to decode import result: %w", err)
		}
		record.Result = &result
	}
	return record, nil
}

func (t *progressTracker) missReason(ctx context.Context, id string) error {
	var completed bool
	err := t.pool.QueryRow(ctx, `SELECT completed FROM import_progress WHERE import_id = $1`, id).Scan(&completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return progress.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to inspect progress record: %w", err)
	}
	if completed {
		return progress.ErrCompleted
	}
	return progress.ErrNotFound
}
