package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Xena75/Gestione-Partesa-sub007/internal/domain"
	"github.com/Xena75/Gestione-Partesa-sub007/internal/enrich"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type referenceRepository struct {
	pool *pgxpool.Pool
}

// NewReferenceRepository exposes the system's reference tables through
// the enrichment engine's lookup capability. The tables themselves are
// owned by other parts of the system; this is a read-only view.
func NewReferenceRepository(pool *pgxpool.Pool) enrich.Lookup {
	return &referenceRepository{pool: pool}
}

func (r *referenceRepository) Lookup(ctx context.Context, table, key string) (string, error) {
	var query string
	switch table {
	case domain.LookupTableTariffs:
		query = `SELECT rate::text FROM tariffs WHERE code = $1`
	case domain.LookupTableDivisions:
		query = `SELECT warehouse_name FROM divisions WHERE code = $1`
	default:
		return "", fmt.Errorf("unknown reference table %q", table)
	}

	var value string
	if err := r.pool.QueryRow(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", enrich.ErrLookupNotFound
		}
		return "", fmt.Errorf("failed to query %s: %w", table, err)
	}
	return value, nil
}
