package tableview

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
)

// ErrUnknownFormat is returned for output formats without a writer.
var ErrUnknownFormat = errors.New("unknown output format")

// Format names an output encoding of a Table.
type Format string

const (
	FormatJSON Format = "json"
	FormatHTML Format = "html"
	FormatText Format = "text"
	FormatPDF  Format = "pdf"
)

// Formats lists every supported format.
var Formats = []Format{FormatJSON, FormatHTML, FormatText, FormatPDF}

// ParseFormat resolves a case-insensitive format name. Empty selects JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "html", "htm":
		return FormatHTML, nil
	case "text", "txt", "term":
		return FormatText, nil
	case "pdf":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ContentType is the MIME type written for f.
func (f Format) ContentType() string {
	switch f {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatText:
		return "text/plain; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/json; charset=utf-8"
	}
}

// Write encodes t to w in format f.
func Write(w io.Writer, t *Table, f Format) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, t)
	case FormatHTML:
		return WriteHTML(w, t)
	case FormatText:
		return WriteText(w, t)
	case FormatPDF:
		return WritePDF(w, t)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
	}
}

// WriteJSON writes the table model as indented JSON.
func WriteJSON(w io.Writer, t *Table) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("encode table json: %w", err)
	}
	return nil
}
