package labreport

import (
	"strings"
	"unicode"
)

// HumanizeKey turns a machine key into a display label: underscores become
// spaces and the first letter of every word is title-cased. The rest of each
// word is left as written, so "hba1c_IFCC" becomes "Hba1c IFCC".
func HumanizeKey(key string) string {
	s := strings.ReplaceAll(key, "_", " ")

	var b strings.Builder
	b.Grow(len(s))
	inWord := false
	for _, r := range s {
		isWord := unicode.IsLetter(r) || unicode.IsDigit(r)
		if isWord && !inWord {
			b.WriteRune(unicode.ToTitle(r))
		} else {
			b.WriteRune(r)
		}
		inWord = isWord
	}
	return b.String()
}

// humanizeSubKey is the lighter treatment given to keys nested inside
// reference notes.
func humanizeSubKey(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}
