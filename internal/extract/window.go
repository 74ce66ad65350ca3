package extract

import (
	"sort"
	"strings"
	"time"

	"github.com/scrypster/luminaries/pkg/types"
)

// Default window bounds, in runes.
const (
	DefaultPerSourceRunes = 4000
	DefaultTotalRunes     = 16000
)

// sourceRank orders sources by how reliably they state career facts.
var sourceRank = map[types.SourceKind]int{
	types.SourceKnowledgeBase: 0,
	types.SourceAcademic:      1,
	types.SourceWebSearch:     2,
	types.SourceSocial:        3,
	types.SourceVideo:         4,
	types.SourceCode:          5,
}

// CorpusText is one text offered to the extractor.
type CorpusText struct {
	Source      types.SourceKind
	Title       string
	Text        string
	URL         string
	PublishedAt *time.Time
}

// CorpusFromContent converts stored items, skipping retracted ones.
func CorpusFromContent(items []*types.ContentItem) []CorpusText {
	out := make([]CorpusText, 0, len(items))
	for _, it := range items {
		if it.Retracted() {
			continue
		}
		out = append(out, CorpusText{
			Source:      it.Source,
			Title:       it.Title,
			Text:        it.Body,
			URL:         it.URL,
			PublishedAt: it.PublishedAt,
		})
	}
	return out
}

// Window bounds how much text goes into one extraction request.
type Window struct {
	PerSourceRunes int
	TotalRunes     int
}

func (w Window) withDefaults() Window {
	if w.PerSourceRunes <= 0 {
		w.PerSourceRunes = DefaultPerSourceRunes
	}
	if w.TotalRunes <= 0 {
		w.TotalRunes = DefaultTotalRunes
	}
	return w
}

// Build concatenates corpus texts, best-ranked source first and newest text
// first within a source. Each source is truncated to PerSourceRunes and the
// whole window to TotalRunes.
func (w Window) Build(corpus []CorpusText) string {
	w = w.withDefaults()

	sorted := append([]CorpusText(nil), corpus...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := rank(sorted[i].Source), rank(sorted[j].Source)
		if ri != rj {
			return ri < rj
		}
		return newer(sorted[i].PublishedAt, sorted[j].PublishedAt)
	})

	var b strings.Builder
	total := 0
	used := map[types.SourceKind]int{}
	for _, c := range sorted {
		text := strings.TrimSpace(joinLines(c.Title, c.Text))
		if text == "" {
			continue
		}
		block := "[" + string(c.Source) + "] " + text
		budget := min(w.PerSourceRunes-used[c.Source], w.TotalRunes-total)
		if budget <= 0 {
			continue
		}
		r := []rune(block)
		if len(r) > budget {
			r = r[:budget]
		}
		b.WriteString(string(r))
		b.WriteString("\n\n")
		used[c.Source] += len(r)
		total += len(r)
		if total >= w.TotalRunes {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

func rank(s types.SourceKind) int {
	if r, ok := sourceRank[s]; ok {
		return r
	}
	return len(sourceRank)
}

func newer(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.After(*b)
	}
}

func joinLines(title, text string) string {
	switch {
	case title == "":
		return text
	case text == "":
		return title
	case strings.HasPrefix(text, title):
		return text
	default:
		return title + "\n" + text
	}
}
