package tableview

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"

	"github.com/Masterminds/sprig/v3"
)

//go:embed templates/table.html
var htmlTemplate string

var htmlTmpl = template.Must(template.New("table").Funcs(htmlFuncs()).Parse(htmlTemplate))

func htmlFuncs() template.FuncMap {
	funcMap := sprig.FuncMap()
	// Palette values are fixed hex colours, safe to emit as CSS.
	funcMap["toneStyle"] = func(t Tone) template.CSS {
		c := t.Colors()
		return template.CSS("background: " + c.Background + "; color: " + c.Text)
	}
	funcMap["chipStyle"] = func() template.CSS {
		return template.CSS("background: " + ChipColors.Background + "; color: " + ChipColors.Text)
	}
	return funcMap
}

// WriteHTML renders t as a standalone HTML document with inline styles.
func WriteHTML(w io.Writer, t *Table) error {
	if err := htmlTmpl.Execute(w, t); err != nil {
		return fmt.Errorf("render table html: %w", err)
	}
	return nil
}
