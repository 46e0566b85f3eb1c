// Package importer drives the spreadsheet import pipeline: workbook
// parsing, mapping resolution, enrichment, batched persistence and
// durable progress reporting.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Xena75/Gestione-Partesa-sub007/internal/domain"
	"github.com/Xena75/Gestione-Partesa-sub007/internal/enrich"
	"github.com/Xena75/Gestione-Partesa-sub007/internal/mapping"
	"github.com/Xena75/Gestione-Partesa-sub007/internal/progress"
	"github.com/Xena75/Gestione-Partesa-sub007/internal/repository"
	"github.com/Xena75/Gestione-Partesa-sub007/internal/workbook"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// Request describes one import execution.
type Request struct {
	FileName string
	Payload  []byte
	Sheet    workbook.Selector

	// Exactly one mapping source: a saved preset by id or name, or an
	// ad-hoc mapping supplied with the upload.
	MappingID    *uuid.UUID
	MappingName  string
	AdHocMapping *domain.ColumnMapping

	// ReplaceSessionID, when set, deletes the rows a previous run
	// wrote before this run's first batch. Never applied implicitly.
	ReplaceSessionID string
}

// Service wires the pipeline stages together.
type Service struct {
	mappings   repository.MappingRepository
	deliveries repository.DeliveryRepository
	jobs       repository.ImportJobRepository
	logs       repository.ImportLogRepository
	lookup     enrich.Lookup
	tracker    progress.Tracker
	registry   domain.FieldRegistry
	batchSize  int
}

// NewService creates the import pipeline service.
func NewService(
	mappings repository.MappingRepository,
	deliveries repository.DeliveryRepository,
	jobs repository.ImportJobRepository,
	logs repository.ImportLogRepository,
	lookup enrich.Lookup,
	tracker progress.Tracker,
	batchSize int,
) *Service {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Service{
		mappings:   mappings,
		deliveries: deliveries,
		jobs:       jobs,
		logs:       logs,
		lookup:     lookup,
		tracker:    tracker,
		registry:   domain.NewFieldRegistry(domain.DeliveryFields()),
		batchSize:  batchSize,
	}
}

// Start registers a new import and runs the pipeline in the
// background, returning the identifier the caller polls. The pipeline
// deliberately outlives the upload request's context.
func (s *Service) Start(ctx context.Context, req Request) (string, error) {
	if len(req.Payload) == 0 {
		return "", errors.New("file payload is required")
	}
	if req.MappingID == nil && req.MappingName == "" && req.AdHocMapping == nil {
		return "", errors.New("a mapping id, mapping name or ad-hoc mapping is required")
	}

	importID := uuid.NewString()
	if err := s.tracker.Create(ctx, importID, req.FileName); err != nil {
		return "", fmt.Errorf("failed to register import: %w", err)
	}

	go func() {
		result := s.Run(context.Background(), importID, req)
		log.Printf("[IMPORT] %s finished: success=%t imported=%d/%d rejected=%d failed=%d in %dms",
			importID, result.Success, result.ImportedRows, result.TotalRows,
			result.RejectedRows, result.FailedRows, result.DurationMs)
	}()

	return importID, nil
}

// Run executes the full pipeline for an already-registered import id
// and finalizes its progress record. The returned result mirrors what
// pollers observe.
func (s *Service) Run(ctx context.Context, importID string, req Request) domain.ImportResult {
	started := time.Now()
	sessionID := uuid.NewString()

	fail := func(message string) domain.ImportResult {
		result := domain.ImportResult{
			Success:    false,
			Errors:     []string{message},
			SessionID:  sessionID,
			DurationMs: time.Since(started).Milliseconds(),
		}
		s.finalize(ctx, importID, result)
		return result
	}

	// Pre-flight stage: any failure here aborts before a single row is
	// written.
	s.setProgress(ctx, importID, 5, "reading workbook")
	table, err := workbook.Read(req.Payload, req.FileName, req.Sheet)
	if err != nil {
		return fail(fmt.Sprintf("workbook: %v", err))
	}

	s.setProgress(ctx, importID, 10, "resolving mapping")
	columnMapping, err := s.loadMapping(ctx, req)
	if err != nil {
		return fail(fmt.Sprintf("mapping: %v", err))
	}
	projection, err := mapping.Resolve(table.RawHeaders, columnMapping)
	if err != nil {
		return fail(fmt.Sprintf("mapping: %v", err))
	}

	job := domain.ImportJob{
		ID:        importID,
		FileName:  req.FileName,
		TotalRows: len(table.Rows),
		SessionID: sessionID,
		CreatedAt: started,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		log.Printf("[IMPORT] failed to record job %s: %v", importID, err)
	}

	for _, field := range projection.MissingOptional {
		s.recordLog(ctx, importID, req.FileName, nil, field, "optional column not present in file")
	}

	s.setProgress(ctx, importID, 20, "validating rows")
	canonical := make([]domain.CanonicalRow, 0, len(table.Rows))
	for _, row := range table.Rows {
		canonical = append(canonical, projection.Project(row))
	}

	engine := enrich.NewEngine(s.registry, s.lookup)
	accepted, outcomes := engine.Process(ctx, canonical)

	result := domain.ImportResult{
		Success:   true,
		TotalRows: len(table.Rows),
		SessionID: sessionID,
		Errors:    []string{},
	}

	for _, outcome := range outcomes {
		for _, fieldErr := range outcome.Errors {
			rowNum := outcome.RowPosition + 1
			result.Errors = append(result.Errors, formatRowError(rowNum, fieldErr))
			s.recordLog(ctx, importID, req.FileName, &rowNum, fieldErr.Field, fieldErr.Message)
		}
		for _, warning := range outcome.Warnings {
			rowNum := outcome.RowPosition + 1
			s.recordLog(ctx, importID, req.FileName, &rowNum, warning.Field, "warning: "+warning.Message)
		}
		if !outcome.Accepted {
			result.RejectedRows++
		}
	}

	s.setProgress(ctx, importID, 25, "writing rows")
	writer := NewBatchWriter(s.deliveries, s.batchSize)
	report := writer.Write(ctx, sessionID, req.ReplaceSessionID, accepted, func(done, total int) {
		percent := 25
		if total > 0 {
			percent += done * 74 / total
		}
		s.setProgress(ctx, importID, percent, fmt.Sprintf("writing rows (%d/%d)", done, total))
	})

	result.FailedRows = report.Failed
	result.ImportedRows = report.Persisted
	result.Errors = append(result.Errors, report.Errors...)

	// The replace delete commits with the first persisted batch. If
	// nothing was persisted the prior session is still there, which the
	// caller asked to remove, so say so.
	if req.ReplaceSessionID != "" {
		if report.Persisted == 0 {
			remaining, countErr := s.deliveries.CountBySession(ctx, req.ReplaceSessionID)
			if countErr != nil {
				log.Printf("[IMPORT] %s failed to count session %s: %v", importID, req.ReplaceSessionID, countErr)
			}
			result.Errors = append(result.Errors, fmt.Sprintf(
				"session %s was not replaced (%d rows kept): no rows were persisted",
				req.ReplaceSessionID, remaining,
			))
		} else {
			log.Printf("[IMPORT] %s replaced session %s", importID, req.ReplaceSessionID)
		}
	}
	result.DurationMs = time.Since(started).Milliseconds()

	s.finalize(ctx, importID, result)
	return result
}

func (s *Service) loadMapping(ctx context.Context, req Request) (domain.ColumnMapping, error) {
	var (
		columnMapping domain.ColumnMapping
		err           error
	)
	switch {
	case req.AdHocMapping != nil:
		columnMapping = *req.AdHocMapping
		if columnMapping.Name == "" {
			columnMapping.Name = "ad-hoc"
		}
	case req.MappingID != nil:
		columnMapping, err = s.mappings.GetByID(ctx, *req.MappingID)
	case req.MappingName != "":
		columnMapping, err = s.mappings.GetByName(ctx, req.MappingName)
	default:
		return domain.ColumnMapping{}, errors.New("no mapping supplied")
	}
	if err != nil {
		return domain.ColumnMapping{}, err
	}
	if err := columnMapping.Validate(s.registry); err != nil {
		return domain.ColumnMapping{}, err
	}
	return columnMapping, nil
}

// setProgress is best-effort: a stale progress record is recoverable
// by polling again, a lost import is not, so failures are retried
// briefly and then only logged.
func (s *Service) setProgress(ctx context.Context, importID string, percent int, step string) {
	backoff := retry.WithMaxRetries(2, retry.NewConstant(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.tracker.SetProgress(ctx, importID, percent, step); err != nil {
			if errors.Is(err, progress.ErrCompleted) || errors.Is(err, progress.ErrNotFound) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		log.Printf("[PROGRESS] update failed for %s: %v", importID, err)
	}
}

func (s *Service) finalize(ctx context.Context, importID string, result domain.ImportResult) {
	backoff := retry.WithMaxRetries(3, retry.NewConstant(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.tracker.Finalize(ctx, importID, result); err != nil {
			if errors.Is(err, progress.ErrCompleted) || errors.Is(err, progress.ErrNotFound) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		log.Printf("[PROGRESS] finalize failed for %s: %v", importID, err)
	}
}

func (s *Service) recordLog(ctx context.Context, importID, fileName string, rowNumber *int, field, message string) {
	if s.logs == nil {
		return
	}
	entry := domain.ImportLogEntry{
		ImportID:  importID,
		FileName:  fileName,
		RowNumber: rowNumber,
		Field:     field,
		Message:   message,
	}
	if err := s.logs.Record(ctx, entry); err != nil {
		log.Printf("[IMPORT] failed to record log entry for %s: %v", importID, err)
	}
}

func formatRowError(rowNum int, fieldErr domain.FieldError) string {
	if fieldErr.Field == "" {
		return fmt.Sprintf("row %d: %s", rowNum, fieldErr.Message)
	}
	return fmt.Sprintf("row %d %s: %s", rowNum, fieldErr.Field, fieldErr.Message)
}
