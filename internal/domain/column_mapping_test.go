package domain

import (
	"strings"
	"testing"
)

func TestColumnMappingValidate(t *testing.T) {
	registry := NewFieldRegistry(DeliveryFields())

	valid := NewColumnMapping("standard", "", []MappingEntry{
		{SourceHeader: "Qty", CanonicalField: "quantity", Required: true},
		{SourceHeader: "Code", CanonicalField: "rate_code", Required: true},
	})
	if err := valid.Validate(registry); err != nil {
		t.Fatalf("valid mapping rejected: %v", err)
	}

	unknown := NewColumnMapping("bad", "", []MappingEntry{
		{SourceHeader: "Qty", CanonicalField: "not_a_field"},
	})
	err := unknown.Validate(registry)
	if err == nil || !strings.Contains(err.Error(), "not_a_field") {
		t.Fatalf("unknown canonical field should be a configuration error, got %v", err)
	}

	duplicate := NewColumnMapping("dup", "", []MappingEntry{
		{SourceHeader: "Qty", CanonicalField: "quantity"},
		{SourceHeader: "Qty2", CanonicalField: "quantity"},
	})
	if err := duplicate.Validate(registry); err == nil {
		t.Fatalf("duplicate canonical field should be rejected")
	}

	empty := NewColumnMapping("empty", "", nil)
	if err := empty.Validate(registry); err == nil {
		t.Fatalf("mapping without entries should be rejected")
	}
}
