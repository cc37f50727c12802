package tableview

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type textStyles struct {
	title   lipgloss.Style
	section lipgloss.Style
	label   lipgloss.Style
	muted   lipgloss.Style
	chip    lipgloss.Style
	tones   map[Tone]lipgloss.Style
}

// newTextStyles binds styles to a renderer so colour output follows what
// the destination supports.
func newTextStyles(r *lipgloss.Renderer) textStyles {
	s := textStyles{
		title: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#1E293B")).
			Padding(0, 1),
		section: r.NewStyle().
			Bold(true).
			Underline(true),
		label: r.NewStyle().
			Foreground(lipgloss.Color("#374151")),
		muted: r.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Italic(true),
		chip: r.NewStyle().
			Foreground(lipgloss.Color(ChipColors.Text)).
			Background(lipgloss.Color(ChipColors.Background)),
		tones: make(map[Tone]lipgloss.Style, len(palette)),
	}
	for tone, c := range palette {
		s.tones[tone] = r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(c.Text)).
			Background(lipgloss.Color(c.Background))
	}
	return s
}

// WriteText renders t for a terminal. Styling is dropped automatically
// when w is not a colour-capable terminal.
func WriteText(w io.Writer, t *Table) error {
	st := newTextStyles(lipgloss.NewRenderer(w))
	bw := bufio.NewWriter(w)

	labelW := 0
	for _, sec := range t.Sections {
		for _, row := range sec.Rows {
			if !row.Span && lipgloss.Width(row.Label) > labelW {
				labelW = lipgloss.Width(row.Label)
			}
		}
	}

	fmt.Fprintln(bw, st.title.Render(t.Title))
	if len(t.Sections) == 0 {
		fmt.Fprintln(bw, st.muted.Render("No data"))
	}
	for _, sec := range t.Sections {
		fmt.Fprintln(bw)
		fmt.Fprintln(bw, st.section.Render(sec.Title))
		for _, row := range sec.Rows {
			if row.Span {
				fmt.Fprintf(bw, "  %s\n", st.muted.Render(row.Label))
				continue
			}
			pad := strings.Repeat(" ", labelW-lipgloss.Width(row.Label))
			lines := st.cell(row.Value)
			fmt.Fprintf(bw, "  %s%s  %s\n", st.label.Render(row.Label), pad, lines[0])
			indent := strings.Repeat(" ", labelW+4)
			for _, l := range lines[1:] {
				fmt.Fprintf(bw, "%s%s\n", indent, l)
			}
		}
	}
	return bw.Flush()
}

func (s textStyles) cell(c Cell) []string {
	switch c.Kind {
	case KindBadge:
		style, ok := s.tones[c.Tone]
		if !ok {
			style = s.tones[ToneDefault]
		}
		return []string{style.Render(" " + c.Text + " ")}
	case KindChip:
		return []string{s.chip.Render(" " + c.Text + " ")}
	case KindRef:
		return []string{s.muted.Render(c.Text)}
	default:
		return c.Strings()
	}
}
