package types

import (
	"strings"
	"time"
)

// Person is the canonical profile of someone in the directory.
type Person struct {
	// Core identification fields
	ID          string   `json:"id"`           // Internal identifier (uuid)
	IdentityKey string   `json:"identity_key"` // Knowledge-base entity id, unique
	Name        string   `json:"name"`         // Display name
	Aliases     []string `json:"aliases,omitempty"`
	Description string   `json:"description,omitempty"`

	// Tags copied from the knowledge base and refined by enrichment
	Occupations   []string `json:"occupations,omitempty"`
	Organizations []string `json:"organizations,omitempty"`
	Links         []Link   `json:"links,omitempty"`
	AvatarURL     string   `json:"avatar_url,omitempty"`

	// Demographics
	Gender    string `json:"gender,omitempty"`
	Country   string `json:"country,omitempty"`
	BirthYear int    `json:"birth_year,omitempty"`

	// Lifecycle
	Status    PersonStatus `json:"status"`
	LastRunID string       `json:"last_run_id,omitempty"`

	// Scores
	Completeness          int            `json:"completeness"`
	CompletenessBreakdown map[string]int `json:"completeness_breakdown,omitempty"`
	Influence             float64        `json:"influence"`

	ViewCount int       `json:"view_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PersonIdentity is the subset of a profile that source adapters search with.
type PersonIdentity struct {
	PersonID      string
	IdentityKey   string
	Name          string
	Aliases       []string
	Occupations   []string
	Organizations []string
	Links         []Link
}

// Identity returns the adapter-facing identity of the person.
func (p *Person) Identity() PersonIdentity {
	return PersonIdentity{
		PersonID:      p.ID,
		IdentityKey:   p.IdentityKey,
		Name:          p.Name,
		Aliases:       append([]string(nil), p.Aliases...),
		Occupations:   append([]string(nil), p.Occupations...),
		Organizations: append([]string(nil), p.Organizations...),
		Links:         append([]Link(nil), p.Links...),
	}
}

// Names returns the display name followed by every alias.
func (id PersonIdentity) Names() []string {
	names := make([]string, 0, len(id.Aliases)+1)
	if id.Name != "" {
		names = append(names, id.Name)
	}
	return append(names, id.Aliases...)
}

// LinkOf returns the first link of the given kind, if any.
func (id PersonIdentity) LinkOf(kind LinkKind) (Link, bool) {
	for _, l := range id.Links {
		if l.Kind == kind {
			return l, true
		}
	}
	return Link{}, false
}

// NormalizeAliases trims, de-duplicates and drops aliases equal to the
// display name (case-insensitive). The result preserves first-seen order.
func NormalizeAliases(name string, aliases []string) []string {
	seen := map[string]bool{strings.ToLower(strings.TrimSpace(name)): true}
	out := make([]string, 0, len(aliases))
	for _, a := range aliases {
		a = strings.TrimSpace(a)
		key := strings.ToLower(a)
		if a == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

// PersonView is the read model exposed to presentation layers.
type PersonView struct {
	Person
	ContentCount int `json:"content_count"`
	CareerCount  int `json:"career_count"`
	CourseCount  int `json:"course_count"`
	CardCount    int `json:"card_count"`
}
