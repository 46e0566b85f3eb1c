package workbook

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Xena75/Gestione-Partesa-sub007/internal/domain"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrMalformedWorkbook is returned when the container cannot be
	// parsed at all, regardless of the declared extension.
	ErrMalformedWorkbook = errors.New("malformed workbook")

	// ErrEmptySheet is returned when a header row exists but no data
	// rows follow. This usually means the wrong sheet was selected, so
	// it is reported instead of being treated as a zero-row success.
	ErrEmptySheet = errors.New("sheet has a header but no data rows")

	// ErrUnsupportedFormat is returned for file extensions the reader
	// does not handle.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// Selector picks the sheet to read. Name wins over Index when both are
// set; the zero value selects the first sheet. CSV files ignore it.
type Selector struct {
	Name  string
	Index int
}

// Table is the parsed workbook content: the raw header row plus every
// data row in file order, padded to the header width.
type Table struct {
	Sheet      string
	RawHeaders []string
	Rows       []domain.RawRow
}

// Read parses an uploaded spreadsheet payload into a Table. The file
// extension decides the container format; content that does not parse
// as that format fails with ErrMalformedWorkbook.
func Read(payload []byte, fileName string, sel Selector) (Table, error) {
	if len(payload) == 0 {
		return Table{}, fmt.Errorf("%w: file is empty", ErrMalformedWorkbook)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return readCSV(payload)
	case ".xlsx", ".xlsm":
		return readExcel(payload, sel)
	default:
		return Table{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func readCSV(payload []byte) (Table, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("%w: %v", ErrMalformedWorkbook, err)
	}

	return buildTable("", records)
}

func readExcel(payload []byte, sel Selector) (Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return Table{}, fmt.Errorf("%w: %v", ErrMalformedWorkbook, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, fmt.Errorf("%w: no sheets", ErrMalformedWorkbook)
	}

	sheet, err := pickSheet(sheets, sel)
	if err != nil {
		return Table{}, err
	}

	records, err := f.GetRows(sheet)
	if err != nil {
		return Table{}, fmt.Errorf("%w: %v", ErrMalformedWorkbook, err)
	}

	return buildTable(sheet, records)
}

func pickSheet(sheets []string, sel Selector) (string, error) {
	if sel.Name != "" {
		for _, sheet := range sheets {
			if strings.EqualFold(sheet, sel.Name) {
				return sheet, nil
			}
		}
		return "", fmt.Errorf("%w: sheet %q not found", ErrMalformedWorkbook, sel.Name)
	}
	if sel.Index < 0 || sel.Index >= len(sheets) {
		return "", fmt.Errorf("%w: sheet index %d out of range", ErrMalformedWorkbook, sel.Index)
	}
	return sheets[sel.Index], nil
}

// buildTable treats the first non-empty row as the header and pads
// every data row with empty cells up to the header width. A fixed
// column count is never assumed.
func buildTable(sheet string, records [][]string) (Table, error) {
	var rawHeaders []string
	var rows []domain.RawRow

	position := 0
	for _, record := range records {
		if isEmptyRow(record) {
			continue
		}
		if rawHeaders == nil {
			rawHeaders = make([]string, len(record))
			for i, cell := range record {
				rawHeaders[i] = strings.TrimSpace(cell)
			}
			continue
		}
		rows = append(rows, domain.RawRow{
			Position: position,
			Cells:    padRow(record, len(rawHeaders)),
		})
		position++
	}

	if rawHeaders == nil {
		return Table{}, fmt.Errorf("%w: no header row found", ErrMalformedWorkbook)
	}
	if len(rows) == 0 {
		return Table{}, ErrEmptySheet
	}

	return Table{Sheet: sheet, RawHeaders: rawHeaders, Rows: rows}, nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func padRow(row []string, length int) []string {
	padded := make([]string, length)
	for i := 0; i < length && i < len(row); i++ {
		padded[i] = row[i]
	}
	return padded
}
