package domain

import "fmt"

// FieldKind classifies how a canonical field's raw cell value is coerced.
type FieldKind string

const (
	// FieldKindText keeps the trimmed cell value as-is.
	FieldKindText FieldKind = "text"
	// FieldKindDecimal parses locale decimals (comma or dot separator).
	FieldKindDecimal FieldKind = "decimal"
	// FieldKindQuantity is a decimal where a blank cell means zero.
	FieldKindQuantity FieldKind = "quantity"
	// FieldKindDate accepts ISO strings, IT-localized strings and
	// spreadsheet serial numbers, normalized to a calendar date.
	FieldKindDate FieldKind = "date"
)

// LookupSpec declares that a field's value is a key into a reference
// table and names the canonical field that receives the resolved value.
type LookupSpec struct {
	Table       string
	TargetField string
}

// DerivedSpec declares a field computed from other canonical fields
// after all lookups for the row have resolved.
type DerivedSpec struct {
	Operands []string
}

// CanonicalField describes one logical destination column, independent
// of any spreadsheet's header spelling.
type CanonicalField struct {
	Name    string
	Kind    FieldKind
	Lookup  *LookupSpec
	Derived *DerivedSpec
}

// Reference tables consulted during enrichment.
const (
	LookupTableTariffs   = "tariffs"
	LookupTableDivisions = "divisions"
)

// DeliveryFields is the fixed canonical field set for delivery imports.
// Mappings referencing a field outside this set are a configuration
// error, never a row error.
func DeliveryFields() []CanonicalField {
	return []CanonicalField{
		{Name: "consignment_number", Kind: FieldKindText},
		{Name: "delivery_date", Kind: FieldKindDate},
		{Name: "division_code", Kind: FieldKindText, Lookup: &LookupSpec{Table: LookupTableDivisions, TargetField: "warehouse_name"}},
		{Name: "warehouse_name", Kind: FieldKindText},
		{Name: "customer_code", Kind: FieldKindText},
		{Name: "customer_desc", Kind: FieldKindText},
		{Name: "article_code", Kind: FieldKindText},
		{Name: "article_desc", Kind: FieldKindText},
		{Name: "quantity", Kind: FieldKindQuantity},
		{Name: "rate_code", Kind: FieldKindText, Lookup: &LookupSpec{Table: LookupTableTariffs, TargetField: "unit_rate"}},
		{Name: "unit_rate", Kind: FieldKindDecimal},
		{Name: "line_total", Kind: FieldKindDecimal, Derived: &DerivedSpec{Operands: []string{"quantity", "unit_rate"}}},
		{Name: "vector_code", Kind: FieldKindText},
	}
}

// FieldRegistry indexes canonical fields by name.
type FieldRegistry map[string]CanonicalField

// NewFieldRegistry builds a registry from a field list.
func NewFieldRegistry(fields []CanonicalField) FieldRegistry {
	registry := make(FieldRegistry, len(fields))
	for _, field := range fields {
		registry[field.Name] = field
	}
	return registry
}

// Lookup returns the field definition for a canonical name.
func (r FieldRegistry) Lookup(name string) (CanonicalField, error) {
	field, ok := r[name]
	if !ok {
		return CanonicalField{}, fmt.Errorf("unknown canonical field %q", name)
	}
	return field, nil
}
