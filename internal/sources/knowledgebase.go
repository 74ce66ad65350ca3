package sources

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/luminaries/internal/identity"
	"github.com/scrypster/luminaries/pkg/types"
)

// KnowledgeBaseAdapter turns the person's knowledge-base entity into a
// single profile item.
type KnowledgeBaseAdapter struct {
	kb      identity.KnowledgeBase
	baseURL string
}

// NewKnowledgeBase creates the adapter. A nil kb leaves it unconfigured.
func NewKnowledgeBase(kb identity.KnowledgeBase, baseURL string) *KnowledgeBaseAdapter {
	if baseURL == "" {
		baseURL = "https://www.wikidata.org"
	}
	return &KnowledgeBaseAdapter{kb: kb, baseURL: strings.TrimRight(baseURL, "/")}
}

func (a *KnowledgeBaseAdapter) Kind() types.SourceKind { return types.SourceKnowledgeBase }
func (a *KnowledgeBaseAdapter) Configured() bool       { return a.kb != nil }

// Fetch ignores since: the entity is a single evolving document.
func (a *KnowledgeBaseAdapter) Fetch(ctx context.Context, id types.PersonIdentity, _ *time.Time) (FetchResult, error) {
	if !a.Configured() {
		return Unconfigured(), nil
	}
	if id.IdentityKey == "" {
		return FetchResult{Status: StatusOK}, nil
	}

	e, err := a.kb.GetEntity(ctx, id.IdentityKey)
	if err != nil {
		return FetchResult{}, fmt.Errorf("knowledge base entity %s: %w", id.IdentityKey, err)
	}

	var text []string
	if e.Description != "" {
		text = append(text, e.Label+": "+e.Description+".")
	}
	if len(e.Occupations) > 0 {
		text = append(text, "Occupations: "+strings.Join(e.Occupations, ", ")+".")
	}
	if len(e.Organizations) > 0 {
		text = append(text, "Organizations: "+strings.Join(e.Organizations, ", ")+".")
	}
	if len(e.Aliases) > 0 {
		text = append(text, "Also known as: "+strings.Join(e.Aliases, ", ")+".")
	}

	item := RawCandidate{
		URL:   a.baseURL + "/wiki/" + e.ID,
		Title: e.Label,
		Text:  strings.Join(text, " "),
		Metadata: meta(KindEntity,
			MetaVerified, true,
			"occupations", e.Occupations,
			"organizations", e.Organizations,
		),
	}
	return FetchResult{Status: StatusOK, Items: []RawCandidate{item}}, nil
}
