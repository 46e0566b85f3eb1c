package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Xena75/Gestione-Partesa-sub007/internal/domain"
	"github.com/Xena75/Gestione-Partesa-sub007/internal/enrich"
	"github.com/Xena75/Gestione-Partesa-sub007/internal/progress"
	"github.com/Xena75/Gestione-Partesa-sub007/internal/repository"

	"github.com/google/uuid"
)

type stubMappingRepo struct {
	mappings map[string]domain.ColumnMapping
}

func (s *stubMappingRepo) Create(ctx context.Context, m domain.ColumnMapping) (domain.ColumnMapping, error) {
	return m, nil
}

func (s *stubMappingRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.ColumnMapping, error) {
	return domain.ColumnMapping{}, repository.ErrMappingNotFound
}

func (s *stubMappingRepo) GetByName(ctx context.Context, name string) (domain.ColumnMapping, error) {
	if m, ok := s.mappings[name]; ok {
		return m, nil
	}
	return domain.ColumnMapping{}, repository.ErrMappingNotFound
}

func (s *stubMappingRepo) List(ctx context.Context) ([]domain.ColumnMapping, error) {
	return nil, errors.New("not implemented")
}

func (s *stubMappingRepo) Update(ctx context.Context, m domain.ColumnMapping) (domain.ColumnMapping, error) {
	return domain.ColumnMapping{}, errors.New("not implemented")
}

func (s *stubMappingRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return errors.New("not implemented")
}

type stubDeliveryRepo struct {
	batches   [][]domain.CanonicalRow
	failBatch int // 1-based batch index that fails, 0 = never
	deleted   []string
	deletedAt []int // 1-based batch index each delete committed with
	priorRows int64 // rows held by a session being replaced
}

func (s *stubDeliveryRepo) InsertBatch(ctx context.Context, sessionID, replaceSessionID string, rows []domain.CanonicalRow) error {
	s.batches = append(s.batches, rows)
	if s.failBatch > 0 && len(s.batches) == s.failBatch {
		return errors.New("deadlock detected")
	}
	// The delete shares the batch transaction, so a failed batch rolls
	// it back and only committed batches record one.
	if replaceSessionID != "" {
		s.deleted = append(s.deleted, replaceSessionID)
		s.deletedAt = append(s.deletedAt, len(s.batches))
	}
	return nil
}

func (s *stubDeliveryRepo) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	return s.priorRows, nil
}

func (s *stubDeliveryRepo) persisted() int {
	count := 0
	for idx, batch := range s.batches {
		if s.failBatch > 0 && idx+1 == s.failBatch {
			continue
		}
		count += len(batch)
	}
	return count
}

type stubJobRepo struct {
	jobs []domain.ImportJob
}

func (s *stubJobRepo) Create(ctx context.Context, job domain.ImportJob) error {
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *stubJobRepo) ListRecent(ctx context.Context, limit int) ([]domain.ImportJob, error) {
	return s.jobs, nil
}

type stubLogRepo struct {
	entries []domain.ImportLogEntry
}

func (s *stubLogRepo) Record(ctx context.Context, entry domain.ImportLogEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubLogRepo) List(ctx context.Context, importID string, limit, offset int) ([]domain.ImportLogEntry, error) {
	return s.entries, nil
}

type stubLookup struct {
	tables map[string]map[string]string
}

func (s *stubLookup) Lookup(ctx context.Context, table, key string) (string, error) {
	if value, ok := s.tables[table][key]; ok {
		return value, nil
	}
	return "", enrich.ErrLookupNotFound
}

type fixture struct {
	service    *Service
	deliveries *stubDeliveryRepo
	jobs       *stubJobRepo
	logs       *stubLogRepo
	tracker    *progress.Memory
}

func newFixture(batchSize int) *fixture {
	mappings := &stubMappingRepo{mappings: map[string]domain.ColumnMapping{
		"standard": {
			ID:   uuid.New(),
			Name: "standard",
			Entries: []domain.MappingEntry{
				{SourceHeader: "Qty", CanonicalField: "quantity", Required: true},
				{SourceHeader: "Code", CanonicalField: "rate_code", Required: true},
			},
		},
	}}
	deliveries := &stubDeliveryRepo{}
	jobs := &stubJobRepo{}
	logs := &stubLogRepo{}
	lookup := &stubLookup{tables: map[string]map[string]string{
		"tariffs": {"T1": "2.50"},
	}}
	tracker := progress.NewMemory(0)

	return &fixture{
		service:    NewService(mappings, deliveries, jobs, logs, lookup, tracker, batchSize),
		deliveries: deliveries,
		jobs:       jobs,
		logs:       logs,
		tracker:    tracker,
	}
}

func (f *fixture) run(t *testing.T, req Request) (string, domain.ImportResult) {
	t.Helper()
	ctx := context.Background()
	importID := uuid.NewString()
	if err := f.tracker.Create(ctx, importID, req.FileName); err != nil {
		t.Fatalf("failed to register import: %v", err)
	}
	return importID, f.service.Run(ctx, importID, req)
}

func TestRunLookupMissRejectsOneRow(t *testing.T) {
	f := newFixture(100)

	data := "Qty,Code\n5,T1\n2,BAD\n3,T1\n"
	importID, result := f.run(t, Request{
		FileName:    "deliveries.csv",
		Payload:     []byte(data),
		MappingName: "standard",
	})

	if !result.Success {
		t.Fatalf("row-level problems must not fail the run: %+v", result)
	}
	if result.TotalRows != 3 || result.ImportedRows != 2 || result.RejectedRows != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "row 2") {
		t.Fatalf("expected one error naming row 2, got %v", result.Errors)
	}
	if !strings.Contains(result.Errors[0], "BAD") {
		t.Fatalf("error should reference the unresolved code: %v", result.Errors)
	}

	record, err := f.tracker.Get(context.Background(), importID)
	if err != nil {
		t.Fatalf("progress should be readable: %v", err)
	}
	if !record.Completed || record.Percent != 100 || record.Result == nil {
		t.Fatalf("progress not finalized: %+v", record)
	}
	if !record.Result.Equal(result) {
		t.Fatalf("polled result differs from returned result")
	}
}

func TestRunMissingRequiredHeaderAbortsBeforeWriting(t *testing.T) {
	f := newFixture(100)

	data := "Qty\n5\n3\n"
	importID, result := f.run(t, Request{
		FileName:    "deliveries.csv",
		Payload:     []byte(data),
		MappingName: "standard",
	})

	if result.Success {
		t.Fatalf("unresolved required field must fail the run: %+v", result)
	}
	if result.ImportedRows != 0 {
		t.Fatalf("nothing may be written on a pre-flight failure: %+v", result)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "rate_code") {
		t.Fatalf("expected a single mapping-resolution error, got %v", result.Errors)
	}
	if len(f.deliveries.batches) != 0 {
		t.Fatalf("no batch may reach the destination store")
	}

	record, err := f.tracker.Get(context.Background(), importID)
	if err != nil {
		t.Fatalf("progress should be readable: %v", err)
	}
	if !record.Completed || record.Result == nil || record.Result.Success {
		t.Fatalf("failed run should finalize with a failed result: %+v", record)
	}
	if record.Step != "failed" {
		t.Fatalf("expected step failed, got %q", record.Step)
	}
}

func TestRunFailedBatchIsIsolated(t *testing.T) {
	f := newFixture(500)
	f.deliveries.failBatch = 7

	var data strings.Builder
	data.WriteString("Qty,Code\n")
	for i := 0; i < 10000; i++ {
		fmt.Fprintf(&data, "%d,T1\n", i+1)
	}

	_, result := f.run(t, Request{
		FileName:    "big.csv",
		Payload:     []byte(data.String()),
		MappingName: "standard",
	})

	if !result.Success {
		t.Fatalf("a failed batch must not fail the run: %+v", result)
	}
	if result.TotalRows != 10000 {
		t.Fatalf("totalRows = %d, want 10000", result.TotalRows)
	}
	if result.ImportedRows != 9500 || result.FailedRows != 500 {
		t.Fatalf("unexpected counts: imported=%d failed=%d", result.ImportedRows, result.FailedRows)
	}
	if len(f.deliveries.batches) != 20 {
		t.Fatalf("later batches must still run, got %d batches", len(f.deliveries.batches))
	}
	if f.deliveries.persisted() != 9500 {
		t.Fatalf("persisted = %d, want 9500", f.deliveries.persisted())
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "3001-3500") {
		t.Fatalf("error should identify the failed batch row range, got %v", result.Errors)
	}
}

func TestRunMalformedWorkbookFailsFast(t *testing.T) {
	f := newFixture(100)

	_, result := f.run(t, Request{
		FileName:    "garbage.xlsx",
		Payload:     []byte("not a workbook"),
		MappingName: "standard",
	})

	if result.Success || len(result.Errors) != 1 {
		t.Fatalf("expected a single fatal error, got %+v", result)
	}
	if len(f.deliveries.batches) != 0 {
		t.Fatalf("nothing may be written for a malformed file")
	}
}

func TestRunRecordsRowDiagnostics(t *testing.T) {
	f := newFixture(100)

	data := "Qty,Code\n5,T1\nx,BAD\n"
	importID, _ := f.run(t, Request{
		FileName:    "deliveries.csv",
		Payload:     []byte(data),
		MappingName: "standard",
	})

	if len(f.logs.entries) == 0 {
		t.Fatalf("row problems should be persisted to the import log")
	}
	for _, entry := range f.logs.entries {
		if entry.ImportID != importID {
			t.Fatalf("log entry carries wrong import id: %+v", entry)
		}
	}
}

func TestRunReplaceSessionDeletesPriorRows(t *testing.T) {
	f := newFixture(100)

	data := "Qty,Code\n5,T1\n"
	_, result := f.run(t, Request{
		FileName:         "deliveries.csv",
		Payload:          []byte(data),
		MappingName:      "standard",
		ReplaceSessionID: "old-session",
	})

	if !result.Success {
		t.Fatalf("replace run failed: %+v", result)
	}
	if len(f.deliveries.deleted) != 1 || f.deliveries.deleted[0] != "old-session" {
		t.Fatalf("prior session not deleted: %v", f.deliveries.deleted)
	}
	if f.deliveries.deletedAt[0] != 1 {
		t.Fatalf("delete should ride the first batch, rode batch %d", f.deliveries.deletedAt[0])
	}
}

func TestRunReplaceKeepsPriorRowsWhenNothingPersists(t *testing.T) {
	f := newFixture(100)
	f.deliveries.failBatch = 1
	f.deliveries.priorRows = 4

	data := "Qty,Code\n5,T1\n2,T1\n"
	_, result := f.run(t, Request{
		FileName:         "deliveries.csv",
		Payload:          []byte(data),
		MappingName:      "standard",
		ReplaceSessionID: "old-session",
	})

	if len(f.deliveries.deleted) != 0 {
		t.Fatalf("a replace must not outlive its failed batch: %v", f.deliveries.deleted)
	}
	if result.ImportedRows != 0 || result.FailedRows != 2 {
		t.Fatalf("unexpected counts: %+v", result)
	}

	found := false
	for _, message := range result.Errors {
		if strings.Contains(message, "old-session") && strings.Contains(message, "not replaced") {
			found = true
			if !strings.Contains(message, "4 rows kept") {
				t.Fatalf("error should report the surviving row count: %q", message)
			}
		}
	}
	if !found {
		t.Fatalf("result should say the prior session survived, got %v", result.Errors)
	}
}

func TestRunAdHocMapping(t *testing.T) {
	f := newFixture(100)

	adHoc := &domain.ColumnMapping{
		Entries: []domain.MappingEntry{
			{SourceHeader: "Qty", CanonicalField: "quantity", Required: true},
		},
	}
	_, result := f.run(t, Request{
		FileName:     "deliveries.csv",
		Payload:      []byte("Qty\n5\n"),
		AdHocMapping: adHoc,
	})

	if !result.Success || result.ImportedRows != 1 {
		t.Fatalf("ad-hoc mapping run failed: %+v", result)
	}
}

func TestRunUnknownCanonicalFieldIsConfigError(t *testing.T) {
	f := newFixture(100)

	adHoc := &domain.ColumnMapping{
		Entries: []domain.MappingEntry{
			{SourceHeader: "Qty", CanonicalField: "no_such_field", Required: true},
		},
	}
	_, result := f.run(t, Request{
		FileName:     "deliveries.csv",
		Payload:      []byte("Qty\n5\n"),
		AdHocMapping: adHoc,
	})

	if result.Success {
		t.Fatalf("unknown canonical field must abort the run: %+v", result)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "no_such_field") {
		t.Fatalf("expected configuration error, got %v", result.Errors)
	}
}
