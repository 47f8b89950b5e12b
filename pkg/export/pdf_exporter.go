package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders datasets into a landscape table, one line per cell row.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType implements Renderer.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Render creates a PDF document with an optional title and table body.
// Multi-line cell values (grid cells holding several classes) are wrapped.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.AddPage()

	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(data.Title), "", 1, "C", false, 0, "")
		pdf.Ln(4)
	}

	pdf.SetFont("Arial", "B", 9)
	colWidth := 277.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	const lineHeight = 5.0
	for _, row := range data.Rows {
		lines := 1
		for _, header := range data.Headers {
			if n := len(pdf.SplitLines([]byte(row[header]), colWidth-2)); n > lines {
				lines = n
			}
		}
		height := float64(lines) * lineHeight
		x, y := pdf.GetXY()
		for i, header := range data.Headers {
			pdf.Rect(x+float64(i)*colWidth, y, colWidth, height, "D")
			pdf.SetXY(x+float64(i)*colWidth, y)
			pdf.MultiCell(colWidth, lineHeight, row[header], "", "L", false)
		}
		pdf.SetXY(x, y+height)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
