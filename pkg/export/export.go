package export

import (
	"fmt"
	"strings"
)

// Format identifies an output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

// Dataset defines tabular export content.
type Dataset struct {
	Title   string
	Headers []string
	Rows    []map[string]string
}

// Renderer encodes a dataset into a file body.
type Renderer interface {
	Render(data Dataset) ([]byte, error)
	ContentType() string
}

// ParseFormat normalises user input into a supported format.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatPDF:
		return FormatPDF, nil
	case FormatXLSX, "excel":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported export format %q", raw)
}

// RendererFor returns the renderer registered for the format.
func RendererFor(format Format) (Renderer, error) {
	switch format {
	case FormatCSV:
		return NewCSVExporter(), nil
	case FormatPDF:
		return NewPDFExporter(), nil
	case FormatXLSX:
		return NewXLSXExporter(), nil
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}
