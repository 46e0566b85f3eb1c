package domain

import (
	"time"

	"github.com/google/uuid"
)

// ImportLogEntry captures one row-level problem raised during an
// import, persisted for the diagnostics endpoint.
type ImportLogEntry struct {
	ID        uuid.UUID `json:"id"`
	ImportID  string    `json:"import_id"`
	FileName  string    `json:"file_name"`
	RowNumber *int      `json:"row_number,omitempty"`
	Field     string    `json:"field,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
