package labreport

import (
	"strconv"

	"github.com/labdesk/labdesk/internal/platform/jsondoc"
	"github.com/labdesk/labdesk/internal/platform/ordered"
	"github.com/labdesk/labdesk/internal/platform/tableview"
)

// Section titles, in render order. The test section is titled by the
// report's test name.
const (
	SectionPatient        = "Patient"
	SectionHospital       = "Hospital"
	SectionTest           = "Test"
	SectionReferenceNotes = "Reference Notes"
	SectionNotes          = "Notes"
	SectionSignatures     = "Signatures"

	NoResultsLabel = "No results available"
	MalformedLabel = "Value"
)

// Renderer turns report documents into field/value tables. It holds no
// mutable state and is safe for concurrent use.
type Renderer struct {
	profile Profile
}

func NewRenderer(p Profile) *Renderer {
	return &Renderer{profile: p}
}

// Profile returns the profile the renderer was built with.
func (r *Renderer) Profile() Profile { return r.profile }

// Render builds the table for doc. It never fails: missing values become
// placeholders, wrongly typed values are shown as text and empty sections
// are left out. An empty title selects the profile's default.
func (r *Renderer) Render(doc jsondoc.Value, title string) *tableview.Table {
	if title == "" {
		title = r.profile.Title
	}
	t := tableview.New(title)

	add := func(s *tableview.Section) {
		if s != nil {
			t.Sections = append(t.Sections, *s)
		}
	}
	add(r.keyedSection(SectionPatient, doc.Field("patient"), r.profile.PatientOrder))
	add(r.keyedSection(SectionHospital, doc.Field("hospital"), r.profile.HospitalOrder))
	add(r.testSection(doc.Field("test"), doc.Field("timestamps")))
	add(r.referenceNotesSection(doc.Field("reference_notes")))
	add(r.notesSection(doc.Field("notes")))
	add(r.keyedSection(SectionSignatures, doc.Field("signatures"), nil))
	return t
}

// keyedSection renders a flat object with preferred keys first.
func (r *Renderer) keyedSection(title string, v jsondoc.Value, preferred []string) *tableview.Section {
	if !v.IsObject() {
		return malformedSection(title, v)
	}
	fields := v.Fields()
	if fields.Len() == 0 {
		return nil
	}
	sec := &tableview.Section{Title: title}
	for _, key := range ordered.Arrange(fields, preferred) {
		val, _ := fields.Get(key)
		sec.Rows = append(sec.Rows, tableview.Row{
			Label: r.profile.Label(key),
			Value: tableview.TextCell(displayText(val)),
		})
	}
	return sec
}

func (r *Renderer) testSection(test, timestamps jsondoc.Value) *tableview.Section {
	if test.IsBlank() {
		return nil
	}
	if !test.IsObject() {
		if sec := malformedSection(SectionTest, test); sec != nil {
			return sec
		}
		// An empty array still marks the test as present.
	}

	title := SectionTest
	if name := test.Field("name"); name.Truthy() {
		title = name.Text()
	}
	sec := &tableview.Section{Title: title}

	if sample := test.Field("sample_type"); sample.Truthy() {
		sec.Rows = append(sec.Rows, tableview.Row{Label: "Sample", Value: tableview.TextCell(sample.Text())})
	}
	if date := timestamps.Field("report_date"); date.Truthy() {
		sec.Rows = append(sec.Rows, tableview.Row{
			Label: r.profile.Label("report_date"),
			Value: tableview.TextCell(FormatDate(date)),
		})
	}

	results := test.Field("results").Elements()
	if len(results) == 0 {
		sec.Rows = append(sec.Rows, tableview.Row{Label: NoResultsLabel, Span: true})
		return sec
	}
	for i, res := range results {
		sec.Rows = append(sec.Rows, resultRows(i, res)...)
	}
	return sec
}

// resultRows renders one result and, when it carries a reference range,
// the reference row that follows it.
func resultRows(i int, res jsondoc.Value) []tableview.Row {
	label := "Parameter " + strconv.Itoa(i+1)
	if inv := res.Field("investigation"); inv.Truthy() {
		label = inv.Text()
	} else if name := res.Field("name"); name.Truthy() {
		label = name.Text()
	}

	value := tableview.Placeholder
	if result := res.Field("result"); !result.IsBlank() {
		value = result.Text()
		if unit := res.Field("unit"); unit.Truthy() {
			value += " " + unit.Text()
		}
	}

	status := res.Field("status")
	if !status.Truthy() {
		status = res.Field("flag")
	}

	var cell tableview.Cell
	if status.Truthy() {
		s := status.Text()
		cell = tableview.Badge(value+" ("+s+")", Classify(s).Tone())
	} else {
		cell = tableview.Chip(value)
	}

	shaded := i%2 == 0
	rows := []tableview.Row{{Label: label, Value: cell, Shaded: shaded}}
	if rr := res.Field("reference_range"); rr.Truthy() {
		rows = append(rows, tableview.Row{
			Label:  label + " (reference)",
			Value:  tableview.Ref(rr.Text()),
			Shaded: shaded,
		})
	}
	return rows
}

func (r *Renderer) referenceNotesSection(v jsondoc.Value) *tableview.Section {
	if !v.IsObject() {
		return malformedSection(SectionReferenceNotes, v)
	}
	if v.Len() == 0 {
		return nil
	}
	sec := &tableview.Section{Title: SectionReferenceNotes}
	v.Fields().Range(func(key string, note jsondoc.Value) bool {
		sec.Rows = append(sec.Rows, tableview.Row{
			Label: r.profile.Label(key),
			Value: noteCell(note),
		})
		return true
	})
	return sec
}

func noteCell(note jsondoc.Value) tableview.Cell {
	if !note.IsObject() || note.Len() == 0 {
		return tableview.TextCell(displayText(note))
	}
	lines := make([]tableview.Line, 0, note.Len())
	note.Fields().Range(func(k string, sub jsondoc.Value) bool {
		lines = append(lines, tableview.Line{Label: humanizeSubKey(k), Text: displayText(sub)})
		return true
	})
	return tableview.Lines(lines...)
}

func (r *Renderer) notesSection(v jsondoc.Value) *tableview.Section {
	if !v.IsArray() {
		return malformedSection(SectionNotes, v)
	}
	notes := v.Elements()
	if len(notes) == 0 {
		return nil
	}
	sec := &tableview.Section{Title: SectionNotes}
	for i, n := range notes {
		sec.Rows = append(sec.Rows, tableview.Row{
			Label: "Note " + strconv.Itoa(i+1),
			Value: tableview.TextCell(displayText(n)),
		})
	}
	return sec
}

// malformedSection shows a value of the wrong type as a single row so the
// data stays visible. Blank values and empty collections are omitted.
func malformedSection(title string, v jsondoc.Value) *tableview.Section {
	if v.IsBlank() || ((v.IsArray() || v.IsObject()) && v.Len() == 0) {
		return nil
	}
	return &tableview.Section{
		Title: title,
		Rows:  []tableview.Row{{Label: MalformedLabel, Value: tableview.TextCell(v.Text())}},
	}
}

// displayText coerces v to text, substituting the placeholder for blanks.
func displayText(v jsondoc.Value) string {
	if v.IsBlank() {
		return tableview.Placeholder
	}
	return v.Text()
}
