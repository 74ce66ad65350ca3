package storage

import (
	"errors"
	"time"

	"github.com/scrypster/luminaries/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict indicates a unique-key violation, e.g. a second person with
	// the same identity key or a duplicate (person, content hash).
	ErrConflict = errors.New("conflict")
)

// PaginatedResult represents a paginated result set with type safety using generics.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page.
	Items []T

	// Total is the total number of items across all pages.
	Total int

	// Page is the current page number (1-indexed).
	Page int

	// PageSize is the number of items per page.
	PageSize int

	// HasMore indicates whether there are more pages available.
	HasMore bool
}

// ListOptions provides pagination and filtering for ListPersons.
type ListOptions struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// Limit is the number of items per page (default: 20, max: 200).
	Limit int

	// SortBy is one of created_at, updated_at, name, completeness, influence.
	SortBy string

	// SortOrder is asc or desc (default: desc).
	SortOrder string

	// Status filters by lifecycle status. Empty means any.
	Status types.PersonStatus
}

// Normalize applies defaults and validates the ListOptions.
func (o *ListOptions) Normalize() {
	// Whitelist validation for SortBy to prevent SQL injection
	allowedSortFields := map[string]bool{
		"created_at":   true,
		"updated_at":   true,
		"name":         true,
		"completeness": true,
		"influence":    true,
	}
	if !allowedSortFields[o.SortBy] {
		o.SortBy = "created_at"
	}
	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc"
	}
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit < 1 {
		o.Limit = 20
	}
	if o.Limit > 200 {
		o.Limit = 200
	}
}

// Offset returns the row offset of the requested page.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// ContentFilter narrows ListContent.
type ContentFilter struct {
	// RunID restricts to items inserted or updated by one run.
	RunID string

	// Sources restricts to the given source kinds. Empty means all.
	Sources []types.SourceKind

	// IncludeRetracted also returns items withdrawn by re-evaluation.
	IncludeRetracted bool

	// Limit caps the result; 0 means no cap.
	Limit int
}

// PersonName is the projection the identity resolver matches against.
type PersonName struct {
	ID          string
	IdentityKey string
	Name        string
	Aliases     []string
}

// ClearStats reports how many rows ClearEnrichment removed.
type ClearStats struct {
	Content      int
	Cards        int
	CareerEvents int
	Courses      int
}

// ScoreUpdate carries the scorer's output for one person.
type ScoreUpdate struct {
	Completeness int
	Breakdown    map[string]int
	Influence    float64
	ScoredAt     time.Time
}
