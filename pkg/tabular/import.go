package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"letterforge/pkg/domain"
)

// ImportedColumn is a header cell with its inferred type.
type ImportedColumn struct {
	Name string
	Type domain.ColumnType
}

// ImportedSheet is the normalized output of a CSV/XLSX import.
type ImportedSheet struct {
	Columns []ImportedColumn
	Rows    []map[string]any
}

// Decode parses an uploaded spreadsheet by file extension.
func Decode(filename string, r io.Reader) (ImportedSheet, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return DecodeCSV(r)
	case ".xlsx":
		return DecodeXLSX(r)
	default:
		return ImportedSheet{}, fmt.Errorf("unsupported file type %q, expected .csv or .xlsx", filepath.Ext(filename))
	}
}

// DecodeCSV parses CSV content. Ragged rows are tolerated; short rows leave
// trailing columns empty.
func DecodeCSV(r io.Reader) (ImportedSheet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	grid, err := reader.ReadAll()
	if err != nil {
		return ImportedSheet{}, fmt.Errorf("parse csv: %w", err)
	}
	return BuildSheet(grid)
}

// DecodeXLSX parses the first sheet of an XLSX workbook.
func DecodeXLSX(r io.Reader) (ImportedSheet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return ImportedSheet{}, err
	}
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return ImportedSheet{}, fmt.Errorf("parse xlsx: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return ImportedSheet{}, fmt.Errorf("workbook has no sheets")
	}
	grid, err := wb.GetRows(sheets[0])
	if err != nil {
		return ImportedSheet{}, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return BuildSheet(grid)
}

// BuildSheet turns a raw cell grid into typed columns and keyed rows. The
// first row is the header; blank header cells get positional names and
// duplicate names get a numeric suffix. Fully blank data rows are dropped.
func BuildSheet(grid [][]string) (ImportedSheet, error) {
	if len(grid) == 0 {
		return ImportedSheet{}, fmt.Errorf("file has no rows")
	}

	names := columnNames(grid[0])
	if len(names) == 0 {
		return ImportedSheet{}, fmt.Errorf("file has no columns")
	}

	samples := make([][]string, len(names))
	rows := make([]map[string]any, 0, len(grid)-1)
	for _, raw := range grid[1:] {
		if blankRow(raw) {
			continue
		}
		row := make(map[string]any, len(names))
		for i, name := range names {
			var cell string
			if i < len(raw) {
				cell = strings.TrimSpace(raw[i])
			}
			row[name] = cell
			samples[i] = append(samples[i], cell)
		}
		rows = append(rows, row)
	}

	columns := make([]ImportedColumn, len(names))
	for i, name := range names {
		columns[i] = ImportedColumn{Name: name, Type: InferColumnType(samples[i])}
	}
	return ImportedSheet{Columns: columns, Rows: rows}, nil
}

func columnNames(header []string) []string {
	seen := map[string]bool{}
	names := make([]string, 0, len(header))
	for i, cell := range header {
		name := strings.TrimSpace(cell)
		if name == "" {
			name = fmt.Sprintf("Column %d", i+1)
		}
		base := name
		for n := 2; seen[name]; n++ {
			name = fmt.Sprintf("%s %d", base, n)
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
