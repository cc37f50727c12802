package labreport

import (
	"bytes"
	"errors"
	"fmt"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrInvalidPDF is returned when an upload is not a readable PDF.
var ErrInvalidPDF = errors.New("uploaded file is not a valid PDF")

var pdfMagic = []byte("%PDF-")

func init() {
	// Keep pdfcpu from creating its config directory under $HOME.
	pdfapi.DisableConfigDir()
}

// pdfPageCount checks the PDF header and cross-reference structure and
// returns the number of pages.
func pdfPageCount(data []byte) (int, error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return 0, fmt.Errorf("%w: missing %%PDF header", ErrInvalidPDF)
	}
	n, err := pdfapi.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: document has no pages", ErrInvalidPDF)
	}
	return n, nil
}
