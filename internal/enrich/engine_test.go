package enrich

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Xena75/Gestione-Partesa-sub007/internal/domain"

	"github.com/shopspring/decimal"
)

type stubLookup struct {
	tables map[string]map[string]string
	calls  int
}

func (s *stubLookup) Lookup(ctx context.Context, table, key string) (string, error) {
	s.calls++
	if value, ok := s.tables[table][key]; ok {
		return value, nil
	}
	return "", ErrLookupNotFound
}

func newTestEngine(lookup Lookup) *Engine {
	return NewEngine(domain.NewFieldRegistry(domain.DeliveryFields()), lookup)
}

func row(position int, values map[string]any) domain.CanonicalRow {
	return domain.CanonicalRow{Position: position, Values: values}
}

func TestProcessEmitsOneOutcomePerRow(t *testing.T) {
	lookup := &stubLookup{tables: map[string]map[string]string{
		"tariffs": {"T1": "2.50"},
	}}
	engine := newTestEngine(lookup)

	rows := []domain.CanonicalRow{
		row(0, map[string]any{"quantity": "5", "rate_code": "T1"}),
		row(1, map[string]any{"quantity": "not a number", "rate_code": "T1"}),
		row(2, map[string]any{"quantity": "2", "rate_code": "MISSING"}),
	}

	accepted, outcomes := engine.Process(context.Background(), rows)

	if len(outcomes) != len(rows) {
		t.Fatalf("expected %d outcomes, got %d", len(rows), len(outcomes))
	}
	for idx, outcome := range outcomes {
		if outcome.RowPosition != idx {
			t.Fatalf("outcome order broken at %d: %+v", idx, outcome)
		}
	}
	if len(accepted) != 1 || accepted[0].Position != 0 {
		t.Fatalf("expected only row 0 accepted, got %+v", accepted)
	}
}

func TestProcessCoercesLocaleDecimals(t *testing.T) {
	engine := newTestEngine(&stubLookup{})

	accepted, outcomes := engine.Process(context.Background(), []domain.CanonicalRow{
		row(0, map[string]any{"quantity": "1.234,56"}),
		row(1, map[string]any{"quantity": "7.5"}),
		row(2, map[string]any{"quantity": ""}),
	})

	if len(accepted) != 3 {
		t.Fatalf("all rows should pass, outcomes: %+v", outcomes)
	}
	if !accepted[0].Values["quantity"].(decimal.Decimal).Equal(decimal.RequireFromString("1234.56")) {
		t.Fatalf("comma decimal not parsed: %v", accepted[0].Values["quantity"])
	}
	if !accepted[1].Values["quantity"].(decimal.Decimal).Equal(decimal.RequireFromString("7.5")) {
		t.Fatalf("dot decimal not parsed: %v", accepted[1].Values["quantity"])
	}
	if !accepted[2].Values["quantity"].(decimal.Decimal).Equal(decimal.Zero) {
		t.Fatalf("blank quantity should mean zero, got %v", accepted[2].Values["quantity"])
	}
}

func TestProcessCoercesDates(t *testing.T) {
	engine := newTestEngine(&stubLookup{})

	accepted, outcomes := engine.Process(context.Background(), []domain.CanonicalRow{
		row(0, map[string]any{"delivery_date": "2024-03-15"}),
		row(1, map[string]any{"delivery_date": "15/03/2024"}),
		row(2, map[string]any{"delivery_date": "45366"}), // serial for 2024-03-15
	})

	if len(accepted) != 3 {
		t.Fatalf("all date rows should pass, outcomes: %+v", outcomes)
	}
	want := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	for idx, r := range accepted {
		got, ok := r.Values["delivery_date"].(time.Time)
		if !ok || !got.Equal(want) {
			t.Fatalf("row %d date = %v, want %v", idx, r.Values["delivery_date"], want)
		}
	}
}

func TestProcessRejectsInvalidDate(t *testing.T) {
	engine := newTestEngine(&stubLookup{})

	_, outcomes := engine.Process(context.Background(), []domain.CanonicalRow{
		row(0, map[string]any{"delivery_date": "soon"}),
	})

	if outcomes[0].Accepted {
		t.Fatalf("invalid date should reject the row: %+v", outcomes[0])
	}
	if len(outcomes[0].Errors) != 1 || outcomes[0].Errors[0].Field != "delivery_date" {
		t.Fatalf("expected a delivery_date error, got %+v", outcomes[0].Errors)
	}
}

func TestProcessEnrichesFromLookups(t *testing.T) {
	lookup := &stubLookup{tables: map[string]map[string]string{
		"tariffs":   {"T1": "2.50"},
		"divisions": {"W1": "Milano Nord"},
	}}
	engine := newTestEngine(lookup)

	accepted, _ := engine.Process(context.Background(), []domain.CanonicalRow{
		row(0, map[string]any{"quantity": "4", "rate_code": "T1", "division_code": "W1"}),
	})

	if len(accepted) != 1 {
		t.Fatalf("row should be accepted")
	}
	values := accepted[0].Values
	if !values["unit_rate"].(decimal.Decimal).Equal(decimal.RequireFromString("2.50")) {
		t.Fatalf("unit_rate not enriched: %v", values["unit_rate"])
	}
	if values["warehouse_name"] != "Milano Nord" {
		t.Fatalf("warehouse_name not enriched: %v", values["warehouse_name"])
	}
	if !values["line_total"].(decimal.Decimal).Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("line_total = %v, want 10.00", values["line_total"])
	}
}

func TestProcessExplicitCellWinsOverLookup(t *testing.T) {
	lookup := &stubLookup{tables: map[string]map[string]string{
		"tariffs": {"T1": "2.50"},
	}}
	engine := newTestEngine(lookup)

	accepted, _ := engine.Process(context.Background(), []domain.CanonicalRow{
		row(0, map[string]any{"quantity": "1", "rate_code": "T1", "unit_rate": "9,99"}),
	})

	if !accepted[0].Values["unit_rate"].(decimal.Decimal).Equal(decimal.RequireFromString("9.99")) {
		t.Fatalf("explicit unit_rate should win over lookup: %v", accepted[0].Values["unit_rate"])
	}
}

func TestProcessLookupMissRejectsRowOnly(t *testing.T) {
	lookup := &stubLookup{tables: map[string]map[string]string{
		"tariffs": {"T1": "2.50"},
	}}
	engine := newTestEngine(lookup)

	accepted, outcomes := engine.Process(context.Background(), []domain.CanonicalRow{
		row(0, map[string]any{"quantity": "1", "rate_code": "T1"}),
		row(1, map[string]any{"quantity": "1", "rate_code": "NOPE"}),
		row(2, map[string]any{"quantity": "1", "rate_code": "T1"}),
	})

	if len(accepted) != 2 {
		t.Fatalf("one miss must not block the other rows, accepted=%d", len(accepted))
	}
	if outcomes[1].Accepted {
		t.Fatalf("lookup miss should reject row 1")
	}
}

func TestProcessPanickingRowIsIsolated(t *testing.T) {
	lookup := LookupFunc(func(ctx context.Context, table, key string) (string, error) {
		if key == "KABOOM" {
			panic("corrupted tariff row")
		}
		return "2.50", nil
	})
	engine := newTestEngine(lookup)

	accepted, outcomes := engine.Process(context.Background(), []domain.CanonicalRow{
		row(0, map[string]any{"quantity": "1", "rate_code": "T1"}),
		row(1, map[string]any{"quantity": "1", "rate_code": "KABOOM"}),
		row(2, map[string]any{"quantity": "1", "rate_code": "T1"}),
	})

	if len(outcomes) != 3 {
		t.Fatalf("every row still gets an outcome, got %d", len(outcomes))
	}
	if outcomes[1].Accepted {
		t.Fatalf("panicking row must be rejected: %+v", outcomes[1])
	}
	if len(outcomes[1].Errors) != 1 || !strings.Contains(outcomes[1].Errors[0].Message, "corrupted tariff row") {
		t.Fatalf("panic should surface as that row's error, got %+v", outcomes[1].Errors)
	}
	if len(accepted) != 2 || accepted[0].Position != 0 || accepted[1].Position != 2 {
		t.Fatalf("neighboring rows must survive a panic, got %+v", accepted)
	}
}

func TestProcessDerivedGapAddsWarningNotError(t *testing.T) {
	engine := newTestEngine(&stubLookup{})

	accepted, outcomes := engine.Process(context.Background(), []domain.CanonicalRow{
		row(0, map[string]any{"quantity": "3"}), // no unit_rate anywhere
	})

	if len(accepted) != 1 {
		t.Fatalf("derived gap must not reject the row: %+v", outcomes)
	}
	if len(outcomes[0].Warnings) != 1 || outcomes[0].Warnings[0].Field != "line_total" {
		t.Fatalf("expected a line_total warning, got %+v", outcomes[0])
	}
	if _, set := accepted[0].Values["line_total"]; set {
		t.Fatalf("line_total should stay unset when an operand is missing")
	}
}

func TestProcessMemoizesLookups(t *testing.T) {
	lookup := &stubLookup{tables: map[string]map[string]string{
		"tariffs": {"T1": "2.50"},
	}}
	engine := newTestEngine(lookup)

	rows := make([]domain.CanonicalRow, 50)
	for i := range rows {
		rows[i] = row(i, map[string]any{"quantity": "1", "rate_code": "T1"})
	}
	engine.Process(context.Background(), rows)

	if lookup.calls != 1 {
		t.Fatalf("expected a single lookup round-trip for a repeated key, got %d", lookup.calls)
	}
}
