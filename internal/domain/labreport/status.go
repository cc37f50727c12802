package labreport

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/labdesk/labdesk/internal/platform/tableview"
)

// Category is the classified meaning of a free-text result status or flag.
type Category string

const (
	CategoryDefault    Category = "default"
	CategoryNormal     Category = "normal"
	CategoryLow        Category = "low"
	CategoryHigh       Category = "high"
	CategoryBorderline Category = "borderline"
)

type statusRule struct {
	match    func(status string) bool
	category Category
}

func containsAny(subs ...string) func(string) bool {
	return func(s string) bool {
		for _, sub := range subs {
			if strings.Contains(s, sub) {
				return true
			}
		}
		return false
	}
}

func containsOrEquals(sub, exact string) func(string) bool {
	return func(s string) bool {
		return s == exact || strings.Contains(s, sub)
	}
}

// statusRules are evaluated in order against the case-folded status; the
// first match wins. "borderline high" is therefore Borderline.
var statusRules = []statusRule{
	{match: containsAny("borderline"), category: CategoryBorderline},
	{match: containsOrEquals("high", "h"), category: CategoryHigh},
	{match: containsOrEquals("low", "l"), category: CategoryLow},
	{match: containsAny("normal", "within", "ok"), category: CategoryNormal},
}

// Classify maps a status or flag text to its category.
func Classify(status string) Category {
	s := cases.Fold().String(status)
	for _, rule := range statusRules {
		if rule.match(s) {
			return rule.category
		}
	}
	return CategoryDefault
}

// Tone is the badge colouring used for c.
func (c Category) Tone() tableview.Tone {
	switch c {
	case CategoryNormal:
		return tableview.ToneNormal
	case CategoryLow:
		return tableview.ToneLow
	case CategoryHigh:
		return tableview.ToneHigh
	case CategoryBorderline:
		return tableview.ToneBorderline
	default:
		return tableview.ToneDefault
	}
}
