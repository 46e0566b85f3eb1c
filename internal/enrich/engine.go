// Package enrich coerces canonical rows into typed values, resolves
// reference lookups and computes derived fields, emitting exactly one
// validation outcome per input row.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/Xena75/Gestione-Partesa-sub007/internal/domain"

	"github.com/shopspring/decimal"
)

// ErrLookupNotFound is returned by Lookup implementations when the
// reference table has no entry for the key.
var ErrLookupNotFound = errors.New("lookup key not found")

// Lookup resolves a key against a named reference table.
type Lookup interface {
	Lookup(ctx context.Context, table, key string) (string, error)
}

// LookupFunc adapts a function to the Lookup interface.
type LookupFunc func(ctx context.Context, table, key string) (string, error)

func (f LookupFunc) Lookup(ctx context.Context, table, key string) (string, error) {
	return f(ctx, table, key)
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2006/01/02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// excelEpoch is the base date for spreadsheet serial numbers.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Engine runs type coercion, reference enrichment and derived-field
// computation over canonical rows. Lookups are memoized for the
// duration of one import: the same key is expected to resolve to the
// same value within a run.
type Engine struct {
	registry domain.FieldRegistry
	lookup   Lookup
	cache    map[string]lookupResult
}

type lookupResult struct {
	value string
	err   error
}

// NewEngine creates an engine scoped to one import execution.
func NewEngine(registry domain.FieldRegistry, lookup Lookup) *Engine {
	return &Engine{
		registry: registry,
		lookup:   lookup,
		cache:    make(map[string]lookupResult),
	}
}

// Process handles rows in order, producing one ValidationOutcome per
// row and the subset of rows that passed. A failure in one row never
// aborts the batch: one malformed cell cannot fail thousands of good
// rows.
func (e *Engine) Process(ctx context.Context, rows []domain.CanonicalRow) ([]domain.CanonicalRow, []domain.ValidationOutcome) {
	accepted := make([]domain.CanonicalRow, 0, len(rows))
	outcomes := make([]domain.ValidationOutcome, 0, len(rows))

	for _, row := range rows {
		enriched, outcome := e.processRow(ctx, row)
		outcomes = append(outcomes, outcome)
		if outcome.Accepted {
			accepted = append(accepted, enriched)
		}
	}

	return accepted, outcomes
}

func (e *Engine) processRow(ctx context.Context, row domain.CanonicalRow) (enriched domain.CanonicalRow, outcome domain.ValidationOutcome) {
	outcome = domain.ValidationOutcome{RowPosition: row.Position, Accepted: true}

	// An unexpected panic while handling a single row becomes a failed
	// outcome for that row only.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[IMPORT] row %d panicked: %v", row.Position, r)
			outcome.Accepted = false
			outcome.Errors = append(outcome.Errors, domain.FieldError{
				Field:   "",
				Message: fmt.Sprintf("unexpected error processing row: %v", r),
			})
		}
	}()

	values := make(map[string]any, len(row.Values))

	// Coercion walks the registry's declared order so error reporting
	// stays deterministic.
	for _, field := range domain.DeliveryFields() {
		raw, present := row.Values[field.Name]
		if !present {
			continue
		}
		rawStr, _ := raw.(string)
		typed, fieldErr := coerce(field, rawStr)
		if fieldErr != nil {
			outcome.Errors = append(outcome.Errors, *fieldErr)
			continue
		}
		if typed != nil {
			values[field.Name] = typed
		}
	}

	// Reference enrichment. A miss rejects the row but processing
	// continues so every bad reference in the row gets reported.
	for _, field := range domain.DeliveryFields() {
		if field.Lookup == nil {
			continue
		}
		key, ok := values[field.Name].(string)
		if !ok || key == "" {
			continue
		}
		resolved, err := e.cachedLookup(ctx, field.Lookup.Table, key)
		if err != nil {
			if errors.Is(err, ErrLookupNotFound) {
				outcome.Errors = append(outcome.Errors, domain.FieldError{
					Field:   field.Name,
					Message: fmt.Sprintf("%q not found in %s", key, field.Lookup.Table),
				})
			} else {
				outcome.Errors = append(outcome.Errors, domain.FieldError{
					Field:   field.Name,
					Message: fmt.Sprintf("lookup against %s failed: %v", field.Lookup.Table, err),
				})
			}
			continue
		}
		// An explicit cell value for the target field wins over the
		// looked-up one.
		if _, exists := values[field.Lookup.TargetField]; !exists {
			target, err := e.registry.Lookup(field.Lookup.TargetField)
			if err != nil {
				outcome.Errors = append(outcome.Errors, domain.FieldError{Field: field.Name, Message: err.Error()})
				continue
			}
			typed, fieldErr := coerce(target, resolved)
			if fieldErr != nil {
				outcome.Errors = append(outcome.Errors, domain.FieldError{
					Field:   field.Lookup.TargetField,
					Message: fmt.Sprintf("reference value %q: %s", resolved, fieldErr.Message),
				})
				continue
			}
			if typed != nil {
				values[field.Lookup.TargetField] = typed
			}
		}
	}

	// Derived fields run after all lookups for the row resolve. A
	// missing operand leaves the field unset with a warning instead of
	// failing the row.
	for _, field := range domain.DeliveryFields() {
		if field.Derived == nil {
			continue
		}
		operands := make([]decimal.Decimal, 0, len(field.Derived.Operands))
		missing := ""
		for _, name := range field.Derived.Operands {
			value, ok := values[name].(decimal.Decimal)
			if !ok {
				missing = name
				break
			}
			operands = append(operands, value)
		}
		if missing != "" {
			outcome.Warnings = append(outcome.Warnings, domain.FieldError{
				Field:   field.Name,
				Message: fmt.Sprintf("not computed: %s is missing", missing),
			})
			continue
		}
		product := operands[0]
		for _, operand := range operands[1:] {
			product = product.Mul(operand)
		}
		values[field.Name] = product
	}

	if len(outcome.Errors) > 0 {
		outcome.Accepted = false
	}

	return domain.CanonicalRow{Position: row.Position, Values: values}, outcome
}

func (e *Engine) cachedLookup(ctx context.Context, table, key string) (string, error) {
	cacheKey := table + "\x00" + key
	if cached, ok := e.cache[cacheKey]; ok {
		return cached.value, cached.err
	}
	value, err := e.lookup.Lookup(ctx, table, key)
	e.cache[cacheKey] = lookupResult{value: value, err: err}
	return value, err
}

// coerce turns a raw cell string into the field's typed value. A nil
// value with a nil error means the cell is absent for this row.
func coerce(field domain.CanonicalField, raw string) (any, *domain.FieldError) {
	raw = strings.TrimSpace(raw)

	switch field.Kind {
	case domain.FieldKindText:
		if raw == "" {
			return nil, nil
		}
		return raw, nil

	case domain.FieldKindQuantity:
		// Blank-as-zero applies to quantities only, never identifiers.
		if raw == "" {
			return decimal.Zero, nil
		}
		return parseDecimal(field.Name, raw)

	case domain.FieldKindDecimal:
		if raw == "" {
			return nil, nil
		}
		return parseDecimal(field.Name, raw)

	case domain.FieldKindDate:
		if raw == "" {
			return nil, nil
		}
		date, err := parseDate(raw)
		if err != nil {
			return nil, &domain.FieldError{Field: field.Name, Message: fmt.Sprintf("unrecognized date %q", raw)}
		}
		return date, nil

	default:
		if raw == "" {
			return nil, nil
		}
		return raw, nil
	}
}

func parseDecimal(fieldName, raw string) (any, *domain.FieldError) {
	normalized := raw
	// European sheets write 1.234,56; plain comma decimals are common
	// too. Strip thousands separators only when a comma decimal is
	// present.
	if strings.Contains(normalized, ",") {
		normalized = strings.ReplaceAll(normalized, ".", "")
		normalized = strings.ReplaceAll(normalized, ",", ".")
	}
	value, err := decimal.NewFromString(normalized)
	if err != nil {
		return nil, &domain.FieldError{Field: fieldName, Message: fmt.Sprintf("invalid number %q", raw)}
	}
	return value, nil
}

// parseDate accepts ISO and IT-localized strings plus spreadsheet
// serial numbers (days since 1899-12-30), normalized to a UTC date.
func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 && serial < 200000 {
		date := excelEpoch.AddDate(0, 0, int(serial))
		return date, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date format")
}
