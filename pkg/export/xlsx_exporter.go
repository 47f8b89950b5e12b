package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// XLSXExporter renders datasets into a single-sheet workbook.
type XLSXExporter struct {
	ColumnWidth float64
}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{ColumnWidth: 22}
}

// ContentType implements Renderer.
func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Render writes headers on the first row (bold) and one row per record.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one header")
	}
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	sheet := defaultSheet
	if data.Title != "" {
		sheet = sheetName(data.Title)
		if err := f.SetSheetName(defaultSheet, sheet); err != nil {
			return nil, fmt.Errorf("rename sheet: %w", err)
		}
	}

	header := make([]interface{}, len(data.Headers))
	for i, h := range data.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write xlsx headers: %w", err)
	}

	for r, row := range data.Rows {
		record := make([]interface{}, len(data.Headers))
		for i, h := range data.Headers {
			record[i] = row[h]
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return nil, fmt.Errorf("resolve xlsx cell: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &record); err != nil {
			return nil, fmt.Errorf("write xlsx row: %w", err)
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(data.Headers))
	if err != nil {
		return nil, fmt.Errorf("resolve xlsx column: %w", err)
	}
	if e.ColumnWidth > 0 {
		if err := f.SetColWidth(sheet, "A", lastCol, e.ColumnWidth); err != nil {
			return nil, fmt.Errorf("set xlsx width: %w", err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create xlsx style: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", bold); err != nil {
		return nil, fmt.Errorf("apply xlsx style: %w", err)
	}
	if len(data.Rows) > 0 {
		wrap, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
		if err != nil {
			return nil, fmt.Errorf("create xlsx style: %w", err)
		}
		if err := f.SetCellStyle(sheet, "A2", fmt.Sprintf("%s%d", lastCol, len(data.Rows)+1), wrap); err != nil {
			return nil, fmt.Errorf("apply xlsx style: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

// sheetName trims a title to the 31 character limit and strips reserved runes.
func sheetName(title string) string {
	out := make([]rune, 0, len(title))
	for _, r := range title {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			continue
		}
		out = append(out, r)
		if len(out) == 31 {
			break
		}
	}
	if len(out) == 0 {
		return defaultSheet
	}
	return string(out)
}
