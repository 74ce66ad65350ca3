package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Fold returns the comparison form of s: full-width characters narrowed,
// diacritics stripped, case folded and whitespace collapsed.
func Fold(s string) string {
	// Transformers carry state, so the chain is built per call.
	t := transform.Chain(width.Fold, norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC, cases.Fold())
	out, _, err := transform.String(t, s)
	if err != nil {
		out = strings.ToLower(s)
	}
	return strings.Join(strings.Fields(out), " ")
}

// matches reports whether the folded query occurs in any folded name.
func matches(foldedQuery string, names ...string) (exact, partial bool) {
	for _, n := range names {
		f := Fold(n)
		if f == "" {
			continue
		}
		if f == foldedQuery {
			return true, true
		}
		if strings.Contains(f, foldedQuery) {
			partial = true
		}
	}
	return false, partial
}
