// Package report renders a cutting plan as a printable PDF cut list.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/go-pdf/fpdf"
	"go.uber.org/multierr"

	"github.com/eugenenazirov/stock-cutter/internal/cutting"
)

// Page layout constants (mm, A4 portrait).
const (
	pageWidth    = 210.0
	pageHeight   = 297.0
	marginX      = 15.0
	drawWidth    = pageWidth - 2*marginX
	firstBlockY  = 55.0
	nextPageY    = 25.0
	blockSpacing = 28.0
	bottomLimit  = pageHeight - 25.0
	barHeight    = 11.0
	boxSize      = 4.0
	boxGap       = 2.0
	maxBoxRows   = 2
)

// Header holds the stock figures printed at the top of the cut list.
type Header struct {
	Stock   cutting.RawStock
	Summary cutting.Summary
}

// Write renders plan to w as an A4 cut list.
func Write(w io.Writer, plan cutting.SolutionPlan, header Header) error {
	pdf := render(plan, header)
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// WriteFile renders plan into the file at path.
func WriteFile(path string, plan cutting.SolutionPlan, header Header) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create pdf: %w", err)
	}
	return multierr.Append(Write(f, plan, header), f.Close())
}

func render(plan cutting.SolutionPlan, header Header) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle("Cut List", false)
	pdf.AddPage()

	drawHeader(pdf, plan, header)

	barLength := plan.UsableLength
	if barLength <= 0 {
		barLength = header.Stock.UsableLength()
	}

	y := firstBlockY
	for _, pattern := range plan.Patterns {
		if y > bottomLimit {
			pdf.AddPage()
			y = nextPageY
		}
		drawPattern(pdf, pattern, barLength, y)
		y += blockSpacing
	}
	return pdf
}

func drawHeader(pdf *fpdf.Fpdf, plan cutting.SolutionPlan, header Header) {
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetXY(marginX, 15)
	pdf.CellFormat(drawWidth, 10, "CUT LIST", "", 1, "C", false, 0, "")

	available := "unknown"
	if header.Stock.Available > 0 {
		available = fmt.Sprintf("%d units", header.Stock.Available)
	}
	info := fmt.Sprintf("Raw length: %dmm | Stock: %s | Required: %d units | Kerf allowance: %dmm",
		header.Stock.Length, available, plan.TotalUnits, header.Stock.WasteAllowance)

	pdf.SetFont("Helvetica", "", 11)
	pdf.SetXY(marginX, 27)
	pdf.CellFormat(drawWidth, 6, info, "", 1, "C", false, 0, "")

	stats := fmt.Sprintf("Method: %s | Utilization: %s%% | Waste: %dmm",
		plan.Method, header.Summary.UtilizationPercent.StringFixed(2), header.Summary.WasteLength)
	if header.Summary.Shortage > 0 {
		stats += fmt.Sprintf(" | Short by %d units", header.Summary.Shortage)
	}
	pdf.SetXY(marginX, 33)
	pdf.CellFormat(drawWidth, 6, stats, "", 1, "C", false, 0, "")

	pdf.SetDrawColor(128, 128, 128)
	pdf.SetLineWidth(0.3)
	pdf.Line(marginX, 42, pageWidth-marginX, 42)
}

// drawPattern draws one pattern block whose bar top edge sits at y.
func drawPattern(pdf *fpdf.Fpdf, pattern cutting.PlannedPattern, barLength int, y float64) {
	boxY := y - boxSize - 2

	title := fmt.Sprintf("%d x raw unit", pattern.Count)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Text(marginX, boxY+boxSize-0.5, title)

	drawTickBoxes(pdf, pattern.Count, marginX+pdf.GetStringWidth(title)+2, boxY)

	scale := drawWidth / float64(barLength)

	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.2)
	pdf.SetFillColor(255, 255, 255)
	pdf.Rect(marginX, y, drawWidth, barHeight, "FD")

	x := marginX
	toggle := 0
	for _, piece := range pattern.Pieces {
		for range piece.Count {
			w := float64(piece.Length) * scale
			pdf.SetFillColor(211, 211, 211)
			pdf.SetDrawColor(0, 0, 0)
			pdf.Rect(x, y, w, barHeight, "FD")
			drawPieceLabel(pdf, piece.Length, x, w, y, &toggle)
			x += w
		}
	}

	if pattern.Waste <= 0 {
		return
	}
	w := float64(pattern.Waste) * scale
	if w <= 0.35 {
		return
	}
	pdf.SetFillColor(245, 245, 245)
	pdf.SetDashPattern([]float64{0.7, 0.7}, 0)
	pdf.Rect(x, y, w, barHeight, "FD")
	pdf.SetDashPattern([]float64{}, 0)

	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(0, 0, 0)
	pdf.Text(x+1.5, y+barHeight+3.5, fmt.Sprintf("Waste: %d", pattern.Waste))
}

// drawTickBoxes draws one box per repetition starting at x, wrapping onto a
// second row and printing the remainder as "+N" once both rows are full.
func drawTickBoxes(pdf *fpdf.Fpdf, count int, startX, y float64) {
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetFillColor(255, 255, 255)
	pdf.SetLineWidth(0.2)

	x := startX
	row := 1
	for drawn := 0; drawn < count; drawn++ {
		if x+boxSize > pageWidth-marginX {
			x = startX
			y -= boxSize + boxGap
			row++
		}
		if row > maxBoxRows {
			pdf.SetFont("Helvetica", "B", 10)
			pdf.SetTextColor(0, 0, 0)
			pdf.Text(pageWidth-marginX-3.5, y+boxSize+boxGap+boxSize, fmt.Sprintf("+%d", count-drawn))
			return
		}
		pdf.Rect(x, y, boxSize, boxSize, "FD")
		x += boxSize + boxGap
	}
}

// drawPieceLabel centres the piece length inside its segment. Segments too
// narrow for text get the label above or below the bar, alternating.
func drawPieceLabel(pdf *fpdf.Fpdf, length int, x, w, y float64, toggle *int) {
	size := 9.0
	switch {
	case w > 12:
		size = 14
	case w > 7:
		size = 10
	}
	pdf.SetFont("Helvetica", "B", size)
	pdf.SetTextColor(0, 0, 0)

	label := fmt.Sprintf("%d", length)
	textX := x + w/2 - pdf.GetStringWidth(label)/2
	textY := y + barHeight/2 + 1.5
	if w <= 5 {
		if *toggle%2 == 0 {
			textY = y + barHeight + 4
		} else {
			textY = y - 1
		}
		*toggle++
	}
	pdf.Text(textX, textY, label)
}
