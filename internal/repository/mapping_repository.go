package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Xena75/Gestione-Partesa-sub007/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrMappingNotFound is returned when no preset matches the key.
var ErrMappingNotFound = errors.New("column mapping not found")

type mappingRepository struct {
	pool *pgxpool.Pool
}

// NewMappingRepository wires a preset store backed by pgxpool. Entries
// are stored as a serialized jsonb document to keep their order.
func NewMappingRepository(pool *pgxpool.Pool) MappingRepository {
	return &mappingRepository{pool: pool}
}

func (r *mappingRepository) Create(ctx context.Context, mapping domain.ColumnMapping) (domain.ColumnMapping, error) {
	entries, err := json.Marshal(mapping.Entries)
	if err != nil {
		return domain.ColumnMapping{}, fmt.Errorf("failed to marshal mapping entries: %w", err)
	}

	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO column_mappings (id, name, description, entries)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, name, description, entries, created_at, updated_at`,
		mapping.ID,
		mapping.Name,
		mapping.Description,
		entries,
	)
	return scanMapping(row)
}

func (r *mappingRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ColumnMapping, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT id, name, description, entries, created_at, updated_at
		 FROM column_mappings WHERE id = $1`,
		id,
	)
	return scanMapping(row)
}

func (r *mappingRepository) GetByName(ctx context.Context, name string) (domain.ColumnMapping, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT id, name, description, entries, created_at, updated_at
		 FROM column_mappings WHERE name = $1`,
		name,
	)
	return scanMapping(row)
}

func (r *mappingRepository) List(ctx context.Context) ([]domain.ColumnMapping, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT id, name, description, entries, created_at, updated_at
		 FROM column_mappings ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer rows.Close()

	mappings := []domain.ColumnMapping{}
	for rows.Next() {
		mapping, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, mapping)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mappings: %w", err)
	}
	return mappings, nil
}

func (r *mappingRepository) Update(ctx context.Context, mapping domain.ColumnMapping) (domain.ColumnMapping, error) {
	entries, err := json.Marshal(mapping.Entries)
	if err != nil {
		return domain.ColumnMapping{}, fmt.Errorf("failed to marshal mapping entries: %w", err)
	}

	row := r.pool.QueryRow(
		ctx,
		`UPDATE column_mappings
		 SET name = $2, description = $3, entries = $4, updated_at = now()
		 WHERE id = $1
		 RETURNING id, name, description, entries, created_at, updated_at`,
		mapping.ID,
		mapping.Name,
		mapping.Description,
		entries,
	)
	return scanMapping(row)
}

func (r *mappingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM column_mappings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMappingNotFound
	}
	return nil
}

func scanMapping(row pgx.Row) (domain.ColumnMapping, error) {
	var (
		mapping   domain.ColumnMapping
		entries   []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&mapping.ID, &mapping.Name, &mapping.Description, &entries, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ColumnMapping{}, ErrMappingNotFound
		}
		return domain.ColumnMapping{}, fmt.Errorf("failed to scan mapping: %w", err)
	}
	if err := json.Unmarshal(entries, &mapping.Entries); err != nil {
		return domain.ColumnMapping{}, fmt.Errorf("failed to decode mapping entries: %w", err)
	}
	mapping.CreatedAt = createdAt
	mapping.UpdatedAt = updatedAt
	return mapping, nil
}
