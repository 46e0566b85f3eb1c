package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MappingEntry pairs one spreadsheet header with a canonical field.
type MappingEntry struct {
	SourceHeader   string `json:"sourceHeader"`
	CanonicalField string `json:"canonicalField"`
	Required       bool   `json:"required"`
}

// ColumnMapping is a saved, reusable header-to-canonical-field
// configuration. Entries keep their declared order.
type ColumnMapping struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Entries     []MappingEntry `json:"entries"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// NewColumnMapping creates a mapping preset with a fresh identifier.
func NewColumnMapping(name, description string, entries []MappingEntry) ColumnMapping {
	now := time.Now()
	return ColumnMapping{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		Entries:     append([]MappingEntry(nil), entries...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks the mapping against the canonical field registry.
// Referencing an unknown canonical field is a configuration error.
func (m ColumnMapping) Validate(registry FieldRegistry) error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("mapping name is required")
	}
	if len(m.Entries) == 0 {
		return fmt.Errorf("mapping %q has no entries", m.Name)
	}

	seen := make(map[string]bool, len(m.Entries))
	for _, entry := range m.Entries {
		if strings.TrimSpace(entry.SourceHeader) == "" {
			return fmt.Errorf("mapping %q: entry for field %q has an empty source header", m.Name, entry.CanonicalField)
		}
		if _, err := registry.Lookup(entry.CanonicalField); err != nil {
			return fmt.Errorf("mapping %q: %w", m.Name, err)
		}
		if seen[entry.CanonicalField] {
			return fmt.Errorf("mapping %q: canonical field %q mapped twice", m.Name, entry.CanonicalField)
		}
		seen[entry.CanonicalField] = true
	}
	return nil
}
