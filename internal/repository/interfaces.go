package repository

import (
	"context"

	"github.com/Xena75/Gestione-Partesa-sub007/internal/domain"

	"github.com/google/uuid"
)

// MappingRepository persists named column-mapping presets.
type MappingRepository interface {
	Create(ctx context.Context, mapping domain.ColumnMapping) (domain.ColumnMapping, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.ColumnMapping, error)
	GetByName(ctx context.Context, name string) (domain.ColumnMapping, error)
	List(ctx context.Context) ([]domain.ColumnMapping, error)
	Update(ctx context.Context, mapping domain.ColumnMapping) (domain.ColumnMapping, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// DeliveryRepository writes validated delivery rows. InsertBatch runs
// one transaction per call: the batch fully commits or fully rolls
// back. A non-empty replaceSessionID deletes that session's rows in
// the same transaction, so replaced data is only gone once its
// replacement is committed. Every row is tagged with the session id so
// a reconciliation query can find everything one run wrote.
type DeliveryRepository interface {
	InsertBatch(ctx context.Context, sessionID, replaceSessionID string, rows []domain.CanonicalRow) error
	CountBySession(ctx context.Context, sessionID string) (int64, error)
}

// ImportJobRepository records completed uploads for auditing.
type ImportJobRepository interface {
	Create(ctx context.Context, job domain.ImportJob) error
	ListRecent(ctx context.Context, limit int) ([]domain.ImportJob, error)
}

// ImportLogRepository stores row-level diagnostics for an import.
type ImportLogRepository interface {
	Record(ctx context.Context, entry domain.ImportLogEntry) error
	List(ctx context.Context, importID string, limit, offset int) ([]domain.ImportLogEntry, error)
}
