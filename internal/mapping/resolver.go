// Package mapping resolves spreadsheet headers against saved or ad-hoc
// column mappings, producing the canonical-field projection the rest of
// the pipeline consumes.
package mapping

import (
	"fmt"
	"strings"

	"github.com/Xena75/Gestione-Partesa-sub007/internal/domain"
)

// ResolutionError reports required canonical fields whose configured
// source header was not found. It aborts the import before any row is
// processed; guessing at columns risks silent misimports.
type ResolutionError struct {
	MissingFields []string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("unresolved required mapping fields: %s", strings.Join(e.MissingFields, ", "))
}

// Projection maps physical column indexes to canonical field names.
// It is a pure function of the headers and the mapping: resolving the
// same inputs twice always yields the same table.
type Projection struct {
	fieldByColumn map[int]string
	// MissingOptional lists non-required fields whose header was absent.
	MissingOptional []string
}

// Resolve matches the mapping's source headers against the raw header
// row. Matching is case and whitespace insensitive because source
// spreadsheets are manually edited. All missing required fields are
// collected before failing.
func Resolve(rawHeaders []string, m domain.ColumnMapping) (*Projection, error) {
	columnByHeader := make(map[string]int, len(rawHeaders))
	for idx, header := range rawHeaders {
		normalized := normalizeHeader(header)
		if normalized == "" {
			continue
		}
		// First occurrence wins for duplicate headers.
		if _, exists := columnByHeader[normalized]; !exists {
			columnByHeader[normalized] = idx
		}
	}

	projection := &Projection{fieldByColumn: make(map[int]string, len(m.Entries))}
	var missingRequired []string

	for _, entry := range m.Entries {
		column, found := columnByHeader[normalizeHeader(entry.SourceHeader)]
		if !found {
			if entry.Required {
				missingRequired = append(missingRequired, entry.CanonicalField)
			} else {
				projection.MissingOptional = append(projection.MissingOptional, entry.CanonicalField)
			}
			continue
		}
		projection.fieldByColumn[column] = entry.CanonicalField
	}

	if len(missingRequired) > 0 {
		return nil, &ResolutionError{MissingFields: missingRequired}
	}
	return projection, nil
}

// Project converts one raw row into a canonical row in O(1) per cell.
// Values are the raw cell strings; coercion happens downstream.
func (p *Projection) Project(row domain.RawRow) domain.CanonicalRow {
	values := make(map[string]any, len(p.fieldByColumn))
	for column, field := range p.fieldByColumn {
		if column < len(row.Cells) {
			values[field] = strings.TrimSpace(row.Cells[column])
		} else {
			values[field] = ""
		}
	}
	return domain.CanonicalRow{Position: row.Position, Values: values}
}

// Fields returns the canonical fields the projection emits, keyed by
// their source column index.
func (p *Projection) Fields() map[int]string {
	fields := make(map[int]string, len(p.fieldByColumn))
	for column, field := range p.fieldByColumn {
		fields[column] = field
	}
	return fields
}

func normalizeHeader(header string) string {
	normalized := strings.ToLower(strings.TrimSpace(header))
	return strings.Join(strings.Fields(normalized), " ")
}
