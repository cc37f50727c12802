package labreport

import (
	"strings"
	"time"

	"github.com/labdesk/labdesk/internal/platform/jsondoc"
)

// DisplayDateLayout renders dates as "15 Apr 2025".
const DisplayDateLayout = "02 Jan 2006"

// dateLayouts are the shapes timestamps arrive in from lab systems. Layouts
// with an offset keep it, so a date is shown on the day it was written.
// Slashed dates are month first; "15/04/2025" does not parse.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"1/2/2006 15:04:05",
	"1/2/2006",
	"2-Jan-2006 15:04:05",
	"2-Jan-2006",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon Jan 2 2006 15:04:05",
	"Jan 2, 2006 15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
}

// ParseDate parses s against the known timestamp layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDate renders a timestamp value for display. Falsy values render
// empty, numbers are epoch milliseconds, and anything that does not parse
// as a date is shown as written.
func FormatDate(v jsondoc.Value) string {
	if !v.Truthy() {
		return ""
	}
	if ms, ok := v.Float(); ok {
		return time.UnixMilli(int64(ms)).UTC().Format(DisplayDateLayout)
	}
	s, ok := v.Str()
	if !ok {
		return v.Text()
	}
	if t, ok := ParseDate(s); ok {
		return t.Format(DisplayDateLayout)
	}
	return s
}
