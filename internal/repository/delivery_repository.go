package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Xena75/Gestione-Partesa-sub007/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type deliveryRepository struct {
	pool *pgxpool.Pool
}

// NewDeliveryRepository wires the destination table for delivery
// imports.
func NewDeliveryRepository(pool *pgxpool.Pool) DeliveryRepository {
	return &deliveryRepository{pool: pool}
}

const insertDeliverySQL = `INSERT INTO delivery_rows (
	session_id, row_position, consignment_number, delivery_date,
	division_code, warehouse_name, customer_code, customer_desc,
	article_code, article_desc, quantity, rate_code, unit_rate,
	line_total, vector_code
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

// InsertBatch writes the rows inside a single transaction via a
// pipelined pgx batch. Either every row commits or none do. When
// replaceSessionID is set the replaced session's rows are deleted in
// the same transaction: a rolled-back batch rolls the delete back too.
func (r *deliveryRepository) InsertBatch(ctx context.Context, sessionID, replaceSessionID string, rows []domain.CanonicalRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if replaceSessionID != "" {
		tag, err := tx.Exec(ctx, `DELETE FROM delivery_rows WHERE session_id = $1`, replaceSessionID)
		if err != nil {
			return fmt.Errorf("failed to clear replaced session: %w", err)
		}
		log.Printf("[IMPORT] replacing session %s (%d rows removed)", replaceSessionID, tag.RowsAffected())
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(insertDeliverySQL,
			sessionID,
			row.Position,
			textValue(row, "consignment_number"),
			dateValue(row, "delivery_date"),
			textValue(row, "division_code"),
			textValue(row, "warehouse_name"),
			textValue(row, "customer_code"),
			textValue(row, "customer_desc"),
			textValue(row, "article_code"),
			textValue(row, "article_desc"),
			decimalValue(row, "quantity"),
			textValue(row, "rate_code"),
			decimalValue(row, "unit_rate"),
			decimalValue(row, "line_total"),
			textValue(row, "vector_code"),
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("failed to insert delivery row: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close delivery batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit delivery batch: %w", err)
	}
	return nil
}

func (r *deliveryRepository) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM delivery_rows WHERE session_id = $1`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count session rows: %w", err)
	}
	return count, nil
}

func textValue(row domain.CanonicalRow, field string) any {
	if value, ok := row.Values[field].(string); ok && value != "" {
		return value
	}
	return nil
}

func decimalValue(row domain.CanonicalRow, field string) any {
	if value, ok := row.Values[field].(decimal.Decimal); ok {
		// pgx encodes the canonical string form into numeric columns.
		return value.String()
	}
	return nil
}

func dateValue(row domain.CanonicalRow, field string) any {
	if value, ok := row.Values[field].(time.Time); ok {
		return value
	}
	return nil
}
