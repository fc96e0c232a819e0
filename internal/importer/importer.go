// Package importer reads and writes demand lists as CSV or Excel files. CSV
// delimiters are detected automatically and columns are mapped by
// case-insensitive header names, falling back to positional columns.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/eugenenazirov/stock-cutter/internal/cutting"
)

// Format is a supported demand list file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnsupportedFormat is returned for file types other than CSV and XLSX.
var ErrUnsupportedFormat = errors.New("unsupported file format, expected .csv or .xlsx")

// ImportResult holds the results of an import operation. Labels is aligned
// with Demands and holds empty strings for unlabelled rows.
type ImportResult struct {
	Demands  []cutting.PieceDemand
	Labels   []string
	Errors   []string
	Warnings []string
}

// OK reports whether rows were imported without errors.
func (r ImportResult) OK() bool {
	return len(r.Errors) == 0 && len(r.Demands) > 0
}

// ColumnMapping maps semantic column roles to their indices in the data.
type ColumnMapping struct {
	Label    int
	Length   int
	Quantity int
}

// headerAliases maps canonical column names to their accepted aliases (all lowercase).
var headerAliases = map[string][]string{
	"label":    {"label", "name", "description", "desc", "piece", "item", "etiket"},
	"length":   {"length", "len", "length (mm)", "size", "uzunluk", "uzunluk (mm)", "boy"},
	"quantity": {"quantity", "qty", "count", "pcs", "pieces", "amount", "adet"},
}

// FormatFromName picks the format from a file name extension.
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// DetectCSVDelimiter determines the most likely CSV delimiter among comma,
// semicolon, tab and pipe. The delimiter that produces the most consistent
// multi-column rows wins.
func DetectCSVDelimiter(data []byte) rune {
	candidates := []rune{',', ';', '\t', '|'}
	bestDelimiter := ','
	bestScore := 0

	for _, delim := range candidates {
		reader := csv.NewReader(bytes.NewReader(data))
		reader.Comma = delim
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1

		records, err := reader.ReadAll()
		if err != nil || len(records) < 1 {
			continue
		}

		firstCols := len(records[0])
		if firstCols < 2 {
			continue
		}

		score := 0
		for _, row := range records {
			if len(row) == firstCols {
				score++
			}
		}

		weighted := score*10 + firstCols
		if weighted > bestScore {
			bestScore = weighted
			bestDelimiter = delim
		}
	}

	return bestDelimiter
}

// DetectColumns examines a header row and returns a ColumnMapping. The
// boolean is false when the row is not a header, in which case the mapping
// is positional: length, quantity, label.
func DetectColumns(row []string) (ColumnMapping, bool) {
	mapping := ColumnMapping{Label: -1, Length: -1, Quantity: -1}

	isHeader := false
	for i, cell := range row {
		normalized := strings.ToLower(strings.TrimSpace(cell))
		for role, aliases := range headerAliases {
			for _, alias := range aliases {
				if normalized != alias {
					continue
				}
				isHeader = true
				switch role {
				case "label":
					if mapping.Label == -1 {
						mapping.Label = i
					}
				case "length":
					if mapping.Length == -1 {
						mapping.Length = i
					}
				case "quantity":
					if mapping.Quantity == -1 {
						mapping.Quantity = i
					}
				}
			}
		}
	}

	if !isHeader {
		return ColumnMapping{Length: 0, Quantity: 1, Label: 2}, false
	}
	return mapping, true
}

// getCell safely retrieves a trimmed cell value, or "" when out of range.
func getCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseWhole accepts integers and integral decimals such as "1500.0",
// which spreadsheets commonly produce.
func parseWhole(s string) (int, error) {
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("not a whole number: %q", s)
	}
	return int(f), nil
}

// parseRow extracts a demand from a row, returning an error message on failure.
func parseRow(row []string, mapping ColumnMapping, rowLabel string) (cutting.PieceDemand, string, string) {
	lengthStr := getCell(row, mapping.Length)
	if lengthStr == "" {
		return cutting.PieceDemand{}, "", fmt.Sprintf("%s: missing length value", rowLabel)
	}
	length, err := parseWhole(lengthStr)
	if err != nil {
		return cutting.PieceDemand{}, "", fmt.Sprintf("%s: invalid length '%s'", rowLabel, lengthStr)
	}

	qtyStr := getCell(row, mapping.Quantity)
	if qtyStr == "" {
		return cutting.PieceDemand{}, "", fmt.Sprintf("%s: missing quantity value", rowLabel)
	}
	qty, err := parseWhole(qtyStr)
	if err != nil {
		return cutting.PieceDemand{}, "", fmt.Sprintf("%s: invalid quantity '%s'", rowLabel, qtyStr)
	}

	if length <= 0 || qty <= 0 {
		return cutting.PieceDemand{}, "", fmt.Sprintf("%s: length and quantity must be positive", rowLabel)
	}

	return cutting.PieceDemand{Length: length, Quantity: qty}, getCell(row, mapping.Label), ""
}

// isEmptyRow returns true if the row has no meaningful content.
func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// Import reads a demand list in the given format.
func Import(r io.Reader, format Format) ImportResult {
	switch format {
	case FormatCSV:
		data, err := io.ReadAll(r)
		if err != nil {
			return ImportResult{Errors: []string{fmt.Sprintf("cannot read file: %v", err)}}
		}
		return ImportCSV(data)
	case FormatXLSX:
		return ImportExcel(r)
	default:
		return ImportResult{Errors: []string{ErrUnsupportedFormat.Error()}}
	}
}

// ImportFile reads a demand list from disk, choosing the format from the
// file extension.
func ImportFile(path string) ImportResult {
	format, err := FormatFromName(path)
	if err != nil {
		return ImportResult{Errors: []string{err.Error()}}
	}

	f, err := os.Open(path)
	if err != nil {
		return ImportResult{Errors: []string{fmt.Sprintf("cannot open file: %v", err)}}
	}
	defer f.Close()

	return Import(f, format)
}

// ImportCSV imports demands from CSV content with automatic delimiter detection.
func ImportCSV(data []byte) ImportResult {
	result := ImportResult{}

	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		result.Errors = append(result.Errors, "file is empty")
		return result
	}

	delimiter := DetectCSVDelimiter(data)
	if delimiter != ',' {
		delimName := map[rune]string{';': "semicolon", '\t': "tab", '|': "pipe"}[delimiter]
		result.Warnings = append(result.Warnings, fmt.Sprintf("detected %s delimiter", delimName))
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("cannot read CSV: %v", err))
		return result
	}

	return importFromRows(records, "line", result.Warnings)
}

// ImportExcel imports demands from the first sheet of an XLSX workbook.
func ImportExcel(r io.Reader) ImportResult {
	result := ImportResult{}

	f, err := excelize.OpenReader(r)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("cannot open Excel file: %v", err))
		return result
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		result.Errors = append(result.Errors, "Excel file has no sheets")
		return result
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("cannot read Excel data: %v", err))
		return result
	}

	return importFromRows(rows, "row", nil)
}

// importFromRows is the shared import logic for both CSV and Excel data.
func importFromRows(rows [][]string, rowPrefix string, initialWarnings []string) ImportResult {
	result := ImportResult{Warnings: initialWarnings}

	if len(rows) == 0 {
		result.Errors = append(result.Errors, "no data rows found")
		return result
	}

	mapping, hasHeader := DetectColumns(rows[0])
	startRow := 0
	if hasHeader {
		startRow = 1

		var missing []string
		if mapping.Length == -1 {
			missing = append(missing, "length")
		}
		if mapping.Quantity == -1 {
			missing = append(missing, "quantity")
		}
		if len(missing) > 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("required columns not found in header: %s", strings.Join(missing, ", ")))
			return result
		}
	} else if _, err := parseWhole(getCell(rows[0], 0)); err != nil {
		// Unrecognised header: keep positional mapping and skip it.
		startRow = 1
		result.Warnings = append(result.Warnings, fmt.Sprintf("unrecognised header %v, using positional columns", rows[0]))
	}

	for i := startRow; i < len(rows); i++ {
		row := rows[i]
		if isEmptyRow(row) {
			continue
		}

		rowLabel := fmt.Sprintf("%s %d", rowPrefix, i+1)
		demand, label, errMsg := parseRow(row, mapping, rowLabel)
		if errMsg != "" {
			result.Errors = append(result.Errors, errMsg)
			continue
		}

		result.Demands = append(result.Demands, demand)
		result.Labels = append(result.Labels, label)
	}

	if len(result.Demands) == 0 && len(result.Errors) == 0 {
		result.Errors = append(result.Errors, "no data rows found")
	}
	return result
}
