package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/xuri/excelize/v2"
	"go.uber.org/multierr"

	"github.com/eugenenazirov/stock-cutter/internal/cutting"
)

// SheetName is the worksheet written by ExportExcel.
const SheetName = "Cut List"

var exportHeader = []string{"Length", "Quantity"}

// ExportCSV writes demands as a two-column CSV with a header row.
func ExportCSV(w io.Writer, demands []cutting.PieceDemand) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, d := range demands {
		if err := cw.Write([]string{strconv.Itoa(d.Length), strconv.Itoa(d.Quantity)}); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportExcel writes demands to a workbook with a single "Cut List" sheet.
func ExportExcel(w io.Writer, demands []cutting.PieceDemand) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, d := range demands {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell reference: %w", err)
		}
		if err := f.SetSheetRow(SheetName, cell, &[]int{d.Length, d.Quantity}); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Export writes demands in the given format.
func Export(w io.Writer, format Format, demands []cutting.PieceDemand) error {
	switch format {
	case FormatCSV:
		return ExportCSV(w, demands)
	case FormatXLSX:
		return ExportExcel(w, demands)
	default:
		return ErrUnsupportedFormat
	}
}

// WriteTemplate writes an empty demand list to path, choosing the format
// from the file extension.
func WriteTemplate(path string) error {
	format, err := FormatFromName(path)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return multierr.Append(Export(f, format, nil), f.Close())
}
