// Package identity resolves free-text names to canonical person identities.
//
// Resolution checks the local directory first and only falls back to the
// external knowledge base on a miss. Ambiguous results are returned to the
// caller as a choice; the resolver never creates a person on its own from a
// multi-candidate answer.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/scrypster/luminaries/internal/logging"
	"github.com/scrypster/luminaries/internal/storage"
	"github.com/scrypster/luminaries/pkg/types"
)

// DefaultCandidateLimit caps knowledge-base search results.
const DefaultCandidateLimit = 5

// Store is the slice of storage the resolver needs.
type Store interface {
	ListPersonNames(ctx context.Context) ([]storage.PersonName, error)
	GetPerson(ctx context.Context, id string) (*types.Person, error)
	GetPersonByIdentityKey(ctx context.Context, key string) (*types.Person, error)
	CreatePerson(ctx context.Context, p *types.Person) error
	UpdatePerson(ctx context.Context, p *types.Person) error
	RecordSession(ctx context.Context, s *types.ResolutionSession) error
}

// Resolution is the result of Resolve.
type Resolution struct {
	Outcome    types.ResolutionOutcome `json:"outcome"`
	Person     *types.Person           `json:"person,omitempty"`
	Candidates []Candidate             `json:"candidates,omitempty"`
	Diagnostic string                  `json:"diagnostic,omitempty"`
}

// Resolver finds or disambiguates the canonical identity for a query.
type Resolver struct {
	store Store
	kb    KnowledgeBase
	limit int
}

// NewResolver creates a resolver. kb may be nil, in which case local misses
// resolve to not_found.
func NewResolver(store Store, kb KnowledgeBase) *Resolver {
	return &Resolver{store: store, kb: kb, limit: DefaultCandidateLimit}
}

// Resolve looks query up locally, then in the knowledge base. Only invalid
// input and local store failures are returned as errors; knowledge-base
// failures degrade to not_found with a diagnostic.
func (r *Resolver) Resolve(ctx context.Context, query string) (*Resolution, error) {
	query = strings.TrimSpace(query)
	folded := Fold(query)
	if utf8.RuneCountInString(folded) < 2 {
		return nil, fmt.Errorf("%w: query must have at least two characters", storage.ErrInvalidInput)
	}

	res, err := r.resolve(ctx, query, folded)
	if err != nil {
		return nil, err
	}
	r.record(ctx, query, res)
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, query, folded string) (*Resolution, error) {
	local, err := r.matchLocal(ctx, folded)
	if err != nil {
		return nil, err
	}
	switch len(local) {
	case 0:
	case 1:
		p, err := r.store.GetPerson(ctx, local[0].ID)
		if err != nil {
			return nil, fmt.Errorf("load matched person: %w", err)
		}
		return &Resolution{Outcome: types.OutcomeLocal, Person: p}, nil
	default:
		cands := make([]Candidate, len(local))
		for i, pn := range local {
			cands[i] = Candidate{ID: pn.IdentityKey, Label: pn.Name, Aliases: pn.Aliases}
		}
		return &Resolution{Outcome: types.OutcomeAmbiguous, Candidates: cands}, nil
	}

	if r.kb == nil {
		return &Resolution{Outcome: types.OutcomeNotFound, Diagnostic: "no knowledge base configured"}, nil
	}

	cands, err := r.kb.Search(ctx, query, r.limit)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("query", query).Msg("knowledge base search failed")
		return &Resolution{Outcome: types.OutcomeNotFound, Diagnostic: "knowledge base: " + err.Error()}, nil
	}

	switch len(cands) {
	case 0:
		return &Resolution{Outcome: types.OutcomeNotFound}, nil
	case 1:
		// The entity may already be in the directory under another name.
		if p, err := r.store.GetPersonByIdentityKey(ctx, cands[0].ID); err == nil {
			return &Resolution{Outcome: types.OutcomeLocal, Person: p}, nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("lookup identity key: %w", err)
		}
		return &Resolution{Outcome: types.OutcomeExternal, Candidates: cands}, nil
	default:
		return &Resolution{Outcome: types.OutcomeAmbiguous, Candidates: cands}, nil
	}
}

// matchLocal returns the persons whose name or alias contains the folded
// query. An exact match on any name wins over substring matches.
func (r *Resolver) matchLocal(ctx context.Context, folded string) ([]storage.PersonName, error) {
	names, err := r.store.ListPersonNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list person names: %w", err)
	}

	var exact, partial []storage.PersonName
	for _, pn := range names {
		all := append([]string{pn.Name}, pn.Aliases...)
		isExact, isPartial := matches(folded, all...)
		switch {
		case isExact:
			exact = append(exact, pn)
		case isPartial:
			partial = append(partial, pn)
		}
	}
	if len(exact) > 0 {
		return exact, nil
	}
	return partial, nil
}

// Confirm creates the person for identityKey from the knowledge base, or
// refreshes the existing one. created reports whether a row was inserted.
func (r *Resolver) Confirm(ctx context.Context, identityKey string) (p *types.Person, created bool, err error) {
	identityKey = strings.TrimSpace(identityKey)
	if identityKey == "" {
		return nil, false, fmt.Errorf("%w: identity key is required", storage.ErrInvalidInput)
	}
	if r.kb == nil {
		return nil, false, errors.New("identity: no knowledge base configured")
	}

	entity, err := r.kb.GetEntity(ctx, identityKey)
	if err != nil {
		return nil, false, fmt.Errorf("get entity %s: %w", identityKey, err)
	}

	existing, err := r.store.GetPersonByIdentityKey(ctx, identityKey)
	switch {
	case err == nil:
		ApplyEntity(existing, entity)
		if err := r.store.UpdatePerson(ctx, existing); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, false, err
	}

	p = &types.Person{}
	ApplyEntity(p, entity)
	if err := r.store.CreatePerson(ctx, p); err != nil {
		return nil, false, err
	}
	logging.Ctx(ctx).Info().Str("person_id", p.ID).Str("identity_key", identityKey).Msg("person created from knowledge base")
	return p, true, nil
}

// Refresh re-reads p's entity and applies it in memory. The caller persists.
func (r *Resolver) Refresh(ctx context.Context, p *types.Person) error {
	if r.kb == nil {
		return errors.New("identity: no knowledge base configured")
	}
	entity, err := r.kb.GetEntity(ctx, p.IdentityKey)
	if err != nil {
		return fmt.Errorf("get entity %s: %w", p.IdentityKey, err)
	}
	ApplyEntity(p, entity)
	return nil
}

// KnowledgeBase returns the configured knowledge base, or nil.
func (r *Resolver) KnowledgeBase() KnowledgeBase { return r.kb }

// record writes the session row. Failures are logged only.
func (r *Resolver) record(ctx context.Context, query string, res *Resolution) {
	sess := &types.ResolutionSession{
		Query:          query,
		Outcome:        res.Outcome,
		CandidateCount: len(res.Candidates),
		Diagnostic:     res.Diagnostic,
	}
	if res.Person != nil {
		sess.PersonID = res.Person.ID
	}
	if err := r.store.RecordSession(ctx, sess); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("failed to record resolution session")
	}
}
