package identity

import (
	"context"
	"errors"

	"github.com/scrypster/luminaries/pkg/types"
)

// ErrNotFound is returned by a KnowledgeBase when the entity does not exist.
var ErrNotFound = errors.New("identity: entity not found")

// Candidate is one knowledge-base search hit.
type Candidate struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Description string   `json:"description,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
}

// Entity is the full knowledge-base record of a person.
type Entity struct {
	ID            string
	Label         string
	Description   string
	Aliases       []string
	Occupations   []string
	Organizations []string
	Links         []types.Link
	ImageURL      string
	Gender        string
	Country       string
	BirthYear     int
}

// KnowledgeBase is the external identity authority.
type KnowledgeBase interface {
	Search(ctx context.Context, name string, limit int) ([]Candidate, error)
	GetEntity(ctx context.Context, id string) (*Entity, error)
}

// ApplyEntity copies the knowledge-base facts onto p. Existing aliases and
// links are kept and merged; scalar fields are only overwritten by non-empty
// values.
func ApplyEntity(p *types.Person, e *Entity) {
	p.IdentityKey = e.ID
	if e.Label != "" {
		if p.Name != "" && p.Name != e.Label {
			p.Aliases = append(p.Aliases, p.Name)
		}
		p.Name = e.Label
	}
	p.Aliases = types.NormalizeAliases(p.Name, append(p.Aliases, e.Aliases...))
	if e.Description != "" {
		p.Description = e.Description
	}
	p.Occupations = mergeTags(p.Occupations, e.Occupations)
	p.Organizations = mergeTags(p.Organizations, e.Organizations)
	p.Links = types.NormalizeLinks(append(p.Links, e.Links...))
	if e.ImageURL != "" {
		p.AvatarURL = e.ImageURL
	}
	if e.Gender != "" {
		p.Gender = e.Gender
	}
	if e.Country != "" {
		p.Country = e.Country
	}
	if e.BirthYear != 0 {
		p.BirthYear = e.BirthYear
	}
}

// mergeTags appends the tags of add missing from base, ignoring case.
func mergeTags(base, add []string) []string {
	seen := make(map[string]bool, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, list := range [][]string{base, add} {
		for _, t := range list {
			k := Fold(t)
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, t)
		}
	}
	return out
}
