package repository

import (
	"context"
	"fmt"

	"github.com/Xena75/Gestione-Partesa-sub007/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type importJobRepository struct {
	pool *pgxpool.Pool
}

// NewImportJobRepository wires the audit record of completed uploads.
func NewImportJobRepository(pool *pgxpool.Pool) ImportJobRepository {
	return &importJobRepository{pool: pool}
}

func (r *importJobRepository) Create(ctx context.Context, job domain.ImportJob) error {
	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO import_jobs (id, file_name, total_rows, session_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		job.ID,
		job.FileName,
		job.TotalRows,
		job.SessionID,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create import job: %w", err)
	}
	return nil
}

func (r *importJobRepository) ListRecent(ctx context.Context, limit int) ([]domain.ImportJob, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, file_name, total_rows, session_id, created_at
		 FROM import_jobs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}
	defer rows.Close()

	jobs := []domain.ImportJob{}
	for rows.Next() {
		var job domain.ImportJob
		if err := rows.Scan(&job.ID, &job.FileName, &job.TotalRows, &job.SessionID, &job.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan import job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate import jobs: %w", err)
	}
	return jobs, nil
}
