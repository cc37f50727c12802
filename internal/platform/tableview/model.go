// Package tableview is the two-column field/value table produced by report
// rendering, and the writers that turn it into JSON, HTML, terminal text
// and PDF.
package tableview

import (
	"strconv"
	"strings"
)

// Placeholder stands in for missing or empty values.
const Placeholder = "—"

// Tone selects the colour pair of a badge.
type Tone string

const (
	ToneDefault    Tone = "default"
	ToneNormal     Tone = "normal"
	ToneLow        Tone = "low"
	ToneHigh       Tone = "high"
	ToneBorderline Tone = "borderline"
)

// Colors is a background/text pair in #rrggbb form.
type Colors struct {
	Background string `json:"background"`
	Text       string `json:"text"`
}

var palette = map[Tone]Colors{
	ToneHigh:       {Background: "#fee2e2", Text: "#991b1b"},
	ToneBorderline: {Background: "#fff4e6", Text: "#9a5800"},
	ToneLow:        {Background: "#fffbe6", Text: "#92400e"},
	ToneNormal:     {Background: "#dcfce7", Text: "#166534"},
	ToneDefault:    {Background: "#eef2ff", Text: "#374151"},
}

// ChipColors is used for neutral values without a status.
var ChipColors = Colors{Background: "#f3f4f6", Text: "#374151"}

// Colors returns the palette entry for t. Unknown tones get the default.
func (t Tone) Colors() Colors {
	if c, ok := palette[t]; ok {
		return c
	}
	return palette[ToneDefault]
}

// CellKind tells writers how to present a value.
type CellKind string

const (
	KindText  CellKind = "text"
	KindChip  CellKind = "chip"
	KindBadge CellKind = "badge"
	KindRef   CellKind = "ref"
	KindLines CellKind = "lines"
)

// Line is one labelled entry inside a multi-line cell.
type Line struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Cell is the value column of a row.
type Cell struct {
	Kind  CellKind `json:"kind"`
	Text  string   `json:"text,omitempty"`
	Tone  Tone     `json:"tone,omitempty"`
	Lines []Line   `json:"lines,omitempty"`
}

func TextCell(s string) Cell { return Cell{Kind: KindText, Text: s} }

func Chip(s string) Cell { return Cell{Kind: KindChip, Text: s} }

func Badge(s string, tone Tone) Cell { return Cell{Kind: KindBadge, Text: s, Tone: tone} }

func Ref(s string) Cell { return Cell{Kind: KindRef, Text: s} }

func Lines(lines ...Line) Cell { return Cell{Kind: KindLines, Lines: lines} }

// Strings flattens the cell into display lines for plain-text writers.
func (c Cell) Strings() []string {
	if c.Kind != KindLines {
		return []string{c.Text}
	}
	if len(c.Lines) == 0 {
		return []string{""}
	}
	out := make([]string, 0, len(c.Lines))
	for _, l := range c.Lines {
		out = append(out, l.Label+": "+l.Text)
	}
	return out
}

// Row is one field/value pair. A spanning row has only a label and fills
// the full table width.
type Row struct {
	Label  string `json:"label"`
	Value  Cell   `json:"value"`
	Shaded bool   `json:"shaded,omitempty"`
	Span   bool   `json:"span,omitempty"`
}

// Section groups rows under a heading.
type Section struct {
	Title string `json:"title"`
	Rows  []Row  `json:"rows"`
}

// Table is a titled list of sections.
type Table struct {
	Title    string    `json:"title"`
	Columns  []string  `json:"columns"`
	Sections []Section `json:"sections"`
}

// DefaultColumns are the column headers of every rendered table.
var DefaultColumns = []string{"Field", "Value"}

// New returns an empty table with the default column headers.
func New(title string) *Table {
	cols := make([]string, len(DefaultColumns))
	copy(cols, DefaultColumns)
	return &Table{Title: title, Columns: cols, Sections: []Section{}}
}

// Section returns the section with the given title, or nil.
func (t *Table) Section(title string) *Section {
	for i := range t.Sections {
		if t.Sections[i].Title == title {
			return &t.Sections[i]
		}
	}
	return nil
}

// SectionTitles lists the section titles in order.
func (t *Table) SectionTitles() []string {
	out := make([]string, 0, len(t.Sections))
	for _, s := range t.Sections {
		out = append(out, s.Title)
	}
	return out
}

// Labels lists the row labels of s in order.
func (s *Section) Labels() []string {
	out := make([]string, 0, len(s.Rows))
	for _, r := range s.Rows {
		out = append(out, r.Label)
	}
	return out
}

// hexRGB converts "#rrggbb" to components; malformed input yields black.
func hexRGB(hex string) (r, g, b int) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}
