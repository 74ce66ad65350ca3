package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var htmlTag = regexp.MustCompile(`(?i)<(html|body|head|div|p|span|a|br|img|script|style|h[1-6]|ul|ol|li|table|article|section)[\s/>]`)

// CleanText strips markup from s and collapses whitespace. Plain text and
// markdown pass through with whitespace collapsed.
func CleanText(s string) string {
	if htmlTag.MatchString(s) {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			doc.Find("script, style, noscript, nav, footer, iframe").Remove()
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

// Script is the writing system a text is predominantly written in.
type Script string

const (
	ScriptHan   Script = "han"
	ScriptLatin Script = "latin"
	ScriptOther Script = "other"
	ScriptNone  Script = "none" // no letters at all
)

// PredominantScript counts letters per script and returns the largest group.
// Ties prefer Han over Latin over other scripts. The result does not depend
// on how long the text is.
func PredominantScript(s string) Script {
	var han, latin, other int
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Han, r):
			han++
		case unicode.Is(unicode.Latin, r):
			latin++
		case unicode.IsLetter(r):
			other++
		}
	}
	switch {
	case han+latin+other == 0:
		return ScriptNone
	case han >= latin && han >= other:
		return ScriptHan
	case latin >= other:
		return ScriptLatin
	default:
		return ScriptOther
	}
}

// AcceptedScript reports whether text is written in the directory's primary
// (Han) or secondary (Latin) script.
func AcceptedScript(text string) bool {
	switch PredominantScript(text) {
	case ScriptHan, ScriptLatin:
		return true
	default:
		return false
	}
}
