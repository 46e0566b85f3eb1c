package domain

// RawRow is one spreadsheet data row as read from the file, padded to
// the header width. Position is the zero-indexed data row number.
type RawRow struct {
	Position int
	Cells    []string
}

// CanonicalRow maps canonical field names to typed values, keeping a
// back-reference to the raw row position for error reporting. Values
// hold string, decimal.Decimal or time.Time depending on field kind.
type CanonicalRow struct {
	Position int
	Values   map[string]any
}

// FieldError is one validation problem attached to a single field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationOutcome records the fate of one row. Exactly one outcome
// exists per input row, accepted or not.
type ValidationOutcome struct {
	RowPosition int          `json:"rowPosition"`
	Accepted    bool         `json:"accepted"`
	Errors      []FieldError `json:"errors,omitempty"`
	Warnings    []FieldError `json:"warnings,omitempty"`
}
