package tableview

import (
	"fmt"
	"io"
	"strings"

	gofpdf "github.com/go-pdf/fpdf"
)

const (
	pdfLineH   = 6.0
	pdfLabelFr = 0.35
)

// WritePDF renders t as an A4 PDF document using the core Helvetica font.
// Text is translated to cp1252, which covers the placeholder dash.
func WritePDF(w io.Writer, t *Table) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(t.Title, true)
	pdf.SetCreator("labdesk", true)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	width := pageW - left - right
	labelW := width * pdfLabelFr
	valueW := width - labelW

	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(17, 24, 39)
	pdf.CellFormat(0, 10, tr(t.Title), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(30, 41, 59)
	pdf.SetTextColor(255, 255, 255)
	cols := t.Columns
	if len(cols) < 2 {
		cols = DefaultColumns
	}
	pdf.CellFormat(labelW, 8, tr(cols[0]), "1", 0, "L", true, 0, "")
	pdf.CellFormat(valueW, 8, tr(cols[1]), "1", 1, "L", true, 0, "")

	for _, sec := range t.Sections {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(243, 244, 246)
		pdf.SetTextColor(17, 24, 39)
		pdf.CellFormat(width, 8, tr(sec.Title), "1", 1, "L", true, 0, "")

		pdf.SetFont("Helvetica", "", 9)
		for _, row := range sec.Rows {
			if row.Span {
				pdf.SetTextColor(107, 114, 128)
				pdf.CellFormat(width, pdfLineH+1, tr(row.Label), "1", 1, "L", false, 0, "")
				continue
			}
			writePDFRow(pdf, tr, row, labelW, valueW)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render table pdf: %w", err)
	}
	return nil
}

func writePDFRow(pdf *gofpdf.Fpdf, tr func(string) string, row Row, labelW, valueW float64) {
	pdf.SetFont("Helvetica", "", 9)
	// SplitLines measures bytes, which matches the cp1252 text tr returns.
	var wrapped []string
	for _, line := range pdf.SplitLines([]byte(tr(strings.Join(row.Value.Strings(), "\n"))), valueW-2) {
		wrapped = append(wrapped, string(line))
	}
	if len(wrapped) == 0 {
		wrapped = []string{""}
	}
	h := pdfLineH * float64(len(wrapped))

	_, top, _, _ := pdf.GetMargins()
	if pdf.GetY()+h > pageBottom(pdf) && pdf.GetY() > top {
		pdf.AddPage()
	}

	fill := row.Shaded
	pdf.SetFillColor(250, 250, 250)
	pdf.SetTextColor(55, 65, 81)
	pdf.CellFormat(labelW, h, tr(row.Label), "1", 0, "L", fill, 0, "")

	switch row.Value.Kind {
	case KindBadge:
		setPDFColors(pdf, row.Value.Tone.Colors())
		pdf.SetFont("Helvetica", "B", 9)
		fill = true
	case KindChip:
		setPDFColors(pdf, ChipColors)
		fill = true
	case KindRef:
		pdf.SetTextColor(107, 114, 128)
		pdf.SetFont("Helvetica", "I", 9)
	}
	pdf.MultiCell(valueW, pdfLineH, strings.Join(wrapped, "\n"), "1", "L", fill)
}

func setPDFColors(pdf *gofpdf.Fpdf, c Colors) {
	pdf.SetFillColor(hexRGB(c.Background))
	pdf.SetTextColor(hexRGB(c.Text))
}

func pageBottom(pdf *gofpdf.Fpdf) float64 {
	_, pageH := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	return pageH - bottom
}
