package importer

import (
	"context"
	"fmt"
	"log"

	"github.com/Xena75/Gestione-Partesa-sub007/internal/domain"
	"github.com/Xena75/Gestione-Partesa-sub007/internal/repository"
)

// DefaultBatchSize bounds each destination transaction.
const DefaultBatchSize = 500

// WriteReport accounts for what the batch writer persisted. Failed
// rows validated but could not be written; their remediation is a
// retry, not a source-data fix, so they are tracked apart from
// validation rejects.
type WriteReport struct {
	Persisted int
	Failed    int
	Errors    []string
}

// BatchWriter inserts accepted rows in fixed-size batches, one
// transaction per batch. A failed batch marks only its own rows as
// failed and later batches still run.
type BatchWriter struct {
	deliveries repository.DeliveryRepository
	batchSize  int
}

// NewBatchWriter creates a writer with the given batch size; values
// below one fall back to DefaultBatchSize.
func NewBatchWriter(deliveries repository.DeliveryRepository, batchSize int) *BatchWriter {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &BatchWriter{deliveries: deliveries, batchSize: batchSize}
}

// Write persists rows under the session id, invoking onBatch after
// every batch with the number of rows handled so far. Cancellation is
// cooperative: it is checked between batches only, so an in-flight
// transaction always runs to completion and is never left half
// committed.
//
// A non-empty replaceSessionID rides along with batches until one
// commits: the prior session's rows are deleted in that batch's
// transaction, never on their own. If no batch ever commits the prior
// session is left untouched.
func (w *BatchWriter) Write(ctx context.Context, sessionID, replaceSessionID string, rows []domain.CanonicalRow, onBatch func(done, total int)) WriteReport {
	report := WriteReport{}
	total := len(rows)
	replace := replaceSessionID

	for start := 0; start < total; start += w.batchSize {
		if err := ctx.Err(); err != nil {
			remaining := total - start
			report.Failed += remaining
			report.Errors = append(report.Errors, fmt.Sprintf(
				"import cancelled, %d rows not written (rows %d-%d)",
				remaining, rowNumber(rows[start]), rowNumber(rows[total-1]),
			))
			break
		}

		end := start + w.batchSize
		if end > total {
			end = total
		}
		batch := rows[start:end]

		if err := w.deliveries.InsertBatch(ctx, sessionID, replace, batch); err != nil {
			log.Printf("[IMPORT] batch %d-%d failed: %v", rowNumber(batch[0]), rowNumber(batch[len(batch)-1]), err)
			report.Failed += len(batch)
			report.Errors = append(report.Errors, fmt.Sprintf(
				"rows %d-%d failed to persist: %v",
				rowNumber(batch[0]), rowNumber(batch[len(batch)-1]), err,
			))
		} else {
			report.Persisted += len(batch)
			replace = ""
		}

		if onBatch != nil {
			onBatch(end, total)
		}
	}

	return report
}

// rowNumber converts a zero-indexed position to the 1-based data row
// number used in reports.
func rowNumber(row domain.CanonicalRow) int {
	return row.Position + 1
}
