package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/scrypster/luminaries/internal/identity"
	"github.com/scrypster/luminaries/internal/sources"
	"github.com/scrypster/luminaries/pkg/types"
)

// Rejection reasons reported by Filter.Check.
const (
	ReasonScript    = "script"
	ReasonNoName    = "no_name"
	ReasonNoContext = "no_corroboration"
	ReasonNegative  = "negative_signal"
)

// DefaultDomainTerms corroborate that a text is about someone in the AI field.
var DefaultDomainTerms = []string{
	"artificial intelligence", "machine learning", "deep learning", "neural network",
	"reinforcement learning", "computer vision", "natural language processing", "nlp",
	"llm", "large language model", "transformer", "ai", "research", "researcher",
	"scientist", "professor", "phd", "arxiv", "paper", "model", "dataset", "github",
	"人工智能", "机器学习", "深度学习", "神经网络", "大模型", "研究", "教授", "论文", "科学家",
}

// DefaultNegativeTerms describe a well-known different profession or era.
// A term that also appears among the person's own occupations is ignored.
var DefaultNegativeTerms = []string{
	"footballer", "soccer player", "basketball player", "baseball player", "boxer",
	"racing driver", "film actor", "television actor", "actress", "singer", "rapper",
	"pop star", "politician", "senator", "mayor", "bishop", "painter", "novelist", "poet",
	"18th century", "19th century", "足球运动员", "演员", "歌手", "政治家",
}

// Filter decides whether an item is about the person. The zero value is not
// usable; use NewFilter.
type Filter struct {
	domainTerms   []string
	negativeTerms []string
}

// NewFilter builds a filter with the given corroborating domain terms and
// negative terms. Nil slices select the defaults.
func NewFilter(domainTerms, negativeTerms []string) *Filter {
	if domainTerms == nil {
		domainTerms = DefaultDomainTerms
	}
	if negativeTerms == nil {
		negativeTerms = DefaultNegativeTerms
	}
	return &Filter{domainTerms: foldAll(domainTerms), negativeTerms: foldAll(negativeTerms)}
}

// Bypass reports whether an item skips the identity check. Knowledge-base
// entities, social profiles and anything fetched through the person's own
// handle are attributed by construction. They are still language checked.
func Bypass(source types.SourceKind, metadata map[string]any) bool {
	if source == types.SourceKnowledgeBase {
		return true
	}
	kind, _ := metadata[sources.MetaKind].(string)
	if source == types.SourceSocial && kind == sources.KindProfile {
		return true
	}
	verified, _ := metadata[sources.MetaVerified].(bool)
	return verified
}

// Check returns "" when the item passes or the rejection reason otherwise.
func (f *Filter) Check(id types.PersonIdentity, source types.SourceKind, title, body string, metadata map[string]any) string {
	text := strings.TrimSpace(title + " " + body)
	if !AcceptedScript(text) {
		return ReasonScript
	}
	if Bypass(source, metadata) {
		return ""
	}

	folded := identity.Fold(text)
	names := foldAll(id.Names())
	if !containsAny(folded, names) {
		return ReasonNoName
	}

	// The name itself must not corroborate, e.g. "Researcher" in a surname.
	rest := folded
	for _, n := range names {
		rest = strings.ReplaceAll(rest, n, " ")
	}

	own := foldAll(id.Occupations)
	corroborating := append(append(foldAll(id.Organizations), own...), f.domainTerms...)
	if !containsAny(rest, corroborating) {
		return ReasonNoContext
	}

	for _, neg := range f.negativeTerms {
		if containsTerm(rest, neg) && !mentionedBy(own, neg) {
			return ReasonNegative
		}
	}
	return ""
}

// mentionedBy reports whether one of the person's own tags contains term,
// e.g. "professor" vs "research professor".
func mentionedBy(tags []string, term string) bool {
	for _, t := range tags {
		if containsTerm(t, term) || containsTerm(term, t) {
			return true
		}
	}
	return false
}

func foldAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if f := identity.Fold(s); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if containsTerm(text, t) {
			return true
		}
	}
	return false
}

// containsTerm finds term in text on word boundaries. Han characters are not
// space separated, so a Han edge needs no boundary.
func containsTerm(text, term string) bool {
	if term == "" {
		return false
	}
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], term)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(term)
		if boundaryBefore(text, start, term) && boundaryAfter(text, end, term) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return false
}

func boundaryBefore(text string, start int, term string) bool {
	first, _ := utf8.DecodeRuneInString(term)
	if start == 0 || unicode.Is(unicode.Han, first) {
		return true
	}
	prev, _ := utf8.DecodeLastRuneInString(text[:start])
	return !isWordRune(prev)
}

func boundaryAfter(text string, end int, term string) bool {
	last, _ := utf8.DecodeLastRuneInString(term)
	if end >= len(text) || unicode.Is(unicode.Han, last) {
		return true
	}
	next, _ := utf8.DecodeRuneInString(text[end:])
	return !isWordRune(next)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
