package types

import "time"

// OrganizationKind classifies an organization.
type OrganizationKind string

// Organization kinds
const (
	OrgCompany    OrganizationKind = "company"
	OrgUniversity OrganizationKind = "university"
	OrgOther      OrganizationKind = "other"
)

// Organization is deduplicated by NormalizedName.
type Organization struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	NormalizedName string           `json:"normalized_name"`
	Kind           OrganizationKind `json:"kind"`
	CreatedAt      time.Time        `json:"created_at"`
}

// CareerEvent is one timeline entry linking a person to an organization.
//
// A nil EndDate with EndUnknown=false means the role is ongoing. A nil date
// with its Unknown flag set means the source did not state it.
type CareerEvent struct {
	ID             string     `json:"id"`
	PersonID       string     `json:"person_id"`
	OrganizationID string     `json:"organization_id"`
	Organization   string     `json:"organization"`
	Role           string     `json:"role"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	StartUnknown   bool       `json:"start_unknown"`
	EndUnknown     bool       `json:"end_unknown"`
	Confidence     float64    `json:"confidence"`
	Source         string     `json:"source"` // llm_extraction, manual or an adapter name
	CreatedAt      time.Time  `json:"created_at"`
}

// Ongoing reports whether the event has no end date and is not flagged unknown.
func (e *CareerEvent) Ongoing() bool {
	return e.EndDate == nil && !e.EndUnknown
}

// StartYear returns the start year or 0 when the start is not known.
func (e *CareerEvent) StartYear() int {
	if e.StartDate == nil {
		return 0
	}
	return e.StartDate.Year()
}

// Course is one course taught or published by a person.
type Course struct {
	ID          string    `json:"id"`
	PersonID    string    `json:"person_id"`
	Title       string    `json:"title"`
	Institution string    `json:"institution,omitempty"`
	Year        int       `json:"year,omitempty"`
	URL         string    `json:"url,omitempty"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}

// Card is a generated summary card shown on a profile.
type Card struct {
	ID        string    `json:"id"`
	PersonID  string    `json:"person_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
