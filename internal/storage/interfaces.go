// Package storage provides composable storage interfaces for the Luminaries
// enrichment pipeline.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. Every mutation is a narrow
// insert, update or upsert keyed by a unique constraint, so each one is safe
// to retry.
package storage

import (
	"context"

	"github.com/scrypster/luminaries/pkg/types"
)

// PersonStore manages canonical profiles and their lifecycle status.
type PersonStore interface {
	// CreatePerson inserts a new person. Returns ErrConflict if the identity
	// key is already taken.
	CreatePerson(ctx context.Context, p *types.Person) error

	// GetPerson retrieves a person by ID.
	// Returns ErrNotFound if the person doesn't exist.
	GetPerson(ctx context.Context, id string) (*types.Person, error)

	// GetPersonByIdentityKey retrieves a person by knowledge-base id.
	GetPersonByIdentityKey(ctx context.Context, key string) (*types.Person, error)

	// UpdatePerson writes the profile fields (identity, names, description,
	// tags, links, avatar, demographics). Status and scores are untouched.
	UpdatePerson(ctx context.Context, p *types.Person) error

	// ListPersons returns a page of persons.
	ListPersons(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Person], error)

	// ListPersonNames returns id, name and aliases of every person.
	ListPersonNames(ctx context.Context) ([]PersonName, error)

	// ListPersonIDsByStatus returns ids of persons in the given status.
	ListPersonIDsByStatus(ctx context.Context, status types.PersonStatus) ([]string, error)

	// TryBeginRun atomically moves a person to building unless it already is.
	// Returns false without error when another run holds the lock.
	TryBeginRun(ctx context.Context, personID, runID string) (bool, error)

	// FinishRun moves a building person to a terminal status.
	FinishRun(ctx context.Context, personID string, status types.PersonStatus) error

	// UpdateScores stores completeness and influence.
	UpdateScores(ctx context.Context, personID string, score ScoreUpdate) error

	// ClearEnrichment removes content, cards, career events and courses of a
	// person in one transaction.
	ClearEnrichment(ctx context.Context, personID string) (ClearStats, error)

	// ReplaceIdentity writes p under its new identity key and clears what was
	// derived from the previous one, in one transaction. Returns ErrConflict
	// when another person holds the key.
	ReplaceIdentity(ctx context.Context, p *types.Person) (ClearStats, error)

	// IncrementViewCount bumps the view counter.
	IncrementViewCount(ctx context.Context, personID string) error
}

// PersonReader is the read-only contract offered to presentation layers.
type PersonReader interface {
	// GetPersonView returns the person with related-record counts.
	GetPersonView(ctx context.Context, id string) (*types.PersonView, error)
}

// ContentStore manages normalized content items.
type ContentStore interface {
	// GetContentByHash looks up an item by its (person, hash) key.
	GetContentByHash(ctx context.Context, personID, hash string) (*types.ContentItem, error)

	// InsertContent inserts a new item. Returns ErrConflict on a duplicate key.
	InsertContent(ctx context.Context, item *types.ContentItem) error

	// UpdateContent rewrites title, body, metadata, fingerprint and fetch bookkeeping.
	UpdateContent(ctx context.Context, item *types.ContentItem) error

	// FindNearDuplicate returns the id of the person's non-retracted item most
	// similar to fingerprint, if its cosine similarity is at least threshold.
	FindNearDuplicate(ctx context.Context, personID string, fingerprint []float32, threshold float64) (string, bool, error)

	// ListContent lists a person's items, newest first.
	ListContent(ctx context.Context, personID string, filter ContentFilter) ([]*types.ContentItem, error)

	// SetFetchStatus updates fetch_status (used to retract and restore items).
	SetFetchStatus(ctx context.Context, id, status string) error

	// CountContent counts a person's non-retracted items.
	CountContent(ctx context.Context, personID string) (int, error)
}

// CareerStore manages organizations and career events.
type CareerStore interface {
	// UpsertOrganization returns the organization with the same normalized
	// name, creating it if needed.
	UpsertOrganization(ctx context.Context, org *types.Organization) (*types.Organization, error)

	ListCareerEvents(ctx context.Context, personID string) ([]*types.CareerEvent, error)

	// InsertCareerEvent returns ErrConflict when (person, organization, role,
	// start period) already exists.
	InsertCareerEvent(ctx context.Context, e *types.CareerEvent) error

	CountCareerEvents(ctx context.Context, personID string) (int, error)
}

// CourseStore manages extracted courses.
type CourseStore interface {
	ListCourses(ctx context.Context, personID string) ([]*types.Course, error)

	// InsertCourse returns ErrConflict on a duplicate (person, title).
	InsertCourse(ctx context.Context, c *types.Course) error

	CountCourses(ctx context.Context, personID string) (int, error)
}

// CardStore manages generated profile cards.
type CardStore interface {
	// ReplaceCards swaps a person's cards for the given set.
	ReplaceCards(ctx context.Context, personID string, cards []*types.Card) error
	ListCards(ctx context.Context, personID string) ([]*types.Card, error)
	CountCards(ctx context.Context, personID string) (int, error)
}

// RunStore records enrichment runs.
type RunStore interface {
	CreateRun(ctx context.Context, run *types.EnrichmentRun) error
	UpdateRun(ctx context.Context, run *types.EnrichmentRun) error
	GetRun(ctx context.Context, id string) (*types.EnrichmentRun, error)
	ListRuns(ctx context.Context, personID string, limit int) ([]*types.EnrichmentRun, error)
}

// SessionStore records identity resolution attempts.
type SessionStore interface {
	RecordSession(ctx context.Context, s *types.ResolutionSession) error

	// CountSessions counts sessions with the given outcome; "" counts all.
	CountSessions(ctx context.Context, outcome types.ResolutionOutcome) (int, error)
}

// Store aggregates every repository. Implementations must be safe for
// concurrent use.
type Store interface {
	PersonStore
	PersonReader
	ContentStore
	CareerStore
	CourseStore
	CardStore
	RunStore
	SessionStore
	Close() error
}
