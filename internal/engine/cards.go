package engine

import (
	"fmt"
	"strings"

	"github.com/scrypster/luminaries/internal/scoring"
	"github.com/scrypster/luminaries/internal/sources"
	"github.com/scrypster/luminaries/pkg/types"
)

// Card kinds.
const (
	CardSummary     = "summary"
	CardCurrentRole = "current_role"
	CardRepository  = "top_repository"
	CardPublication = "top_publication"
	CardVideo       = "latest_video"
	CardCourses     = "courses"
)

// maxCourseLines bounds the course card body.
const maxCourseLines = 5

// BuildCards derives summary cards from stored facts. Cards are only
// produced when there is something to show, so an empty profile has none.
func BuildCards(p *types.Person, events []*types.CareerEvent, courses []*types.Course, items []*types.ContentItem) []*types.Card {
	var cards []*types.Card
	add := func(kind, title, body string) {
		cards = append(cards, &types.Card{Kind: kind, Title: title, Body: body})
	}

	if p.Description != "" || len(p.Occupations) > 0 {
		add(CardSummary, p.Name, joinNonEmpty(" · ", p.Description, strings.Join(p.Occupations, ", ")))
	}

	var roles []string
	for _, ev := range events {
		if ev.Ongoing() {
			roles = append(roles, fmt.Sprintf("%s, %s", ev.Role, ev.Organization))
		}
	}
	if len(roles) > 0 {
		add(CardCurrentRole, "Current role", strings.Join(roles, "\n"))
	}

	if repo := topItem(items, types.SourceCode, sources.MetaStars); repo != nil {
		add(CardRepository, repo.Title, fmt.Sprintf("%d stars · %s", scoring.MetaCount(repo.Metadata[sources.MetaStars]), repo.URL))
	}
	if work := topItem(items, types.SourceAcademic, sources.MetaCitations); work != nil {
		add(CardPublication, work.Title, fmt.Sprintf("%d citations · %s", scoring.MetaCount(work.Metadata[sources.MetaCitations]), work.URL))
	}
	if video := latestItem(items, types.SourceVideo); video != nil {
		add(CardVideo, video.Title, video.URL)
	}

	if len(courses) > 0 {
		lines := make([]string, 0, maxCourseLines)
		for _, c := range courses {
			if len(lines) == maxCourseLines {
				break
			}
			line := c.Title
			if c.Institution != "" {
				line += " (" + c.Institution + ")"
			}
			lines = append(lines, line)
		}
		add(CardCourses, fmt.Sprintf("%d courses", len(courses)), strings.Join(lines, "\n"))
	}
	return cards
}

// topItem returns the non-retracted item of source with the largest metric,
// skipping profiles. Ties keep the first (newest) item.
func topItem(items []*types.ContentItem, source types.SourceKind, metric string) *types.ContentItem {
	var best *types.ContentItem
	bestN := 0
	for _, it := range items {
		if it.Source != source || it.Retracted() || it.MetaString(sources.MetaKind) == sources.KindProfile {
			continue
		}
		if n := scoring.MetaCount(it.Metadata[metric]); n > bestN {
			best, bestN = it, n
		}
	}
	return best
}

func latestItem(items []*types.ContentItem, source types.SourceKind) *types.ContentItem {
	var latest *types.ContentItem
	for _, it := range items {
		if it.Source != source || it.Retracted() || it.PublishedAt == nil {
			continue
		}
		if latest == nil || it.PublishedAt.After(*latest.PublishedAt) {
			latest = it
		}
	}
	return latest
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
