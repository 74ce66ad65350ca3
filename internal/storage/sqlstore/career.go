package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/scrypster/luminaries/internal/storage"
	"github.com/scrypster/luminaries/pkg/types"
)

// UpsertOrganization returns the organization with org.NormalizedName,
// inserting org when none exists.
func (s *Store) UpsertOrganization(ctx context.Context, org *types.Organization) (*types.Organization, error) {
	if org == nil || org.NormalizedName == "" || org.Name == "" {
		return nil, fmt.Errorf("%w: organization requires name and normalized name", storage.ErrInvalidInput)
	}
	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	if org.Kind == "" {
		org.Kind = types.OrgOther
	}

	// DO NOTHING keeps the first-seen display name and kind.
	_, err := s.exec(ctx, s.db, `
		INSERT INTO organizations (id, name, normalized_name, kind, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (normalized_name) DO NOTHING`,
		org.ID, org.Name, org.NormalizedName, string(org.Kind), now())
	if err != nil {
		return nil, s.wrapErr("upsert organization", err)
	}

	var out types.Organization
	var kind string
	err = s.queryRow(ctx, s.db,
		`SELECT id, name, normalized_name, kind, created_at FROM organizations WHERE normalized_name = ?`,
		org.NormalizedName).Scan(&out.ID, &out.Name, &out.NormalizedName, &kind, &out.CreatedAt)
	if err != nil {
		return nil, s.wrapErr("get organization", err)
	}
	out.Kind = types.OrganizationKind(kind)
	return &out, nil
}

// ListCareerEvents returns a person's events, most recent start first.
// Dateless events sort last.
func (s *Store) ListCareerEvents(ctx context.Context, personID string) ([]*types.CareerEvent, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT id, person_id, organization_id, organization, role, start_date, end_date,
			start_unknown, end_unknown, confidence, source, created_at
		FROM career_events WHERE person_id = ?
		ORDER BY CASE WHEN start_date IS NULL THEN 1 ELSE 0 END, start_date DESC, created_at`, personID)
	if err != nil {
		return nil, s.wrapErr("list career events", err)
	}
	defer rows.Close()

	var out []*types.CareerEvent
	for rows.Next() {
		var e types.CareerEvent
		var start, end sql.NullTime
		if err := rows.Scan(&e.ID, &e.PersonID, &e.OrganizationID, &e.Organization, &e.Role, &start, &end,
			&e.StartUnknown, &e.EndUnknown, &e.Confidence, &e.Source, &e.CreatedAt); err != nil {
			return nil, s.wrapErr("scan career event", err)
		}
		e.StartDate = timePtr(start)
		e.EndDate = timePtr(end)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// InsertCareerEvent inserts e; the unique index on (person, organization,
// role, start period) turns a repeat into ErrConflict.
func (s *Store) InsertCareerEvent(ctx context.Context, e *types.CareerEvent) error {
	if e == nil || e.PersonID == "" || e.OrganizationID == "" || strings.TrimSpace(e.Role) == "" {
		return fmt.Errorf("%w: career event requires person, organization and role", storage.ErrInvalidInput)
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Source == "" {
		e.Source = types.ProvenanceLLM
	}
	e.CreatedAt = now()

	_, err := s.exec(ctx, s.db, `
		INSERT INTO career_events (id, person_id, organization_id, organization, role, role_key, start_period,
			start_date, end_date, start_unknown, end_unknown, confidence, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PersonID, e.OrganizationID, e.Organization, e.Role, RoleKey(e.Role), StartPeriod(e),
		nullTime(e.StartDate), nullTime(e.EndDate), e.StartUnknown, e.EndUnknown, e.Confidence, e.Source, e.CreatedAt,
	)
	return s.wrapErr("insert career event", err)
}

// CountCareerEvents counts a person's events.
func (s *Store) CountCareerEvents(ctx context.Context, personID string) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM career_events WHERE person_id = ?`, personID)
}

// RoleKey is the case- and space-insensitive form of a role used in the
// dedup key.
func RoleKey(role string) string {
	return strings.Join(strings.Fields(strings.ToLower(role)), " ")
}

// StartPeriod is the start year as text, or "" for a dateless event.
func StartPeriod(e *types.CareerEvent) string {
	if e.StartDate == nil {
		return ""
	}
	return strconv.Itoa(e.StartDate.Year())
}

// ListCourses returns a person's courses, newest first.
func (s *Store) ListCourses(ctx context.Context, personID string) ([]*types.Course, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT id, person_id, title, institution, year, url, source, created_at
		FROM courses WHERE person_id = ? ORDER BY year DESC, title`, personID)
	if err != nil {
		return nil, s.wrapErr("list courses", err)
	}
	defer rows.Close()

	var out []*types.Course
	for rows.Next() {
		var c types.Course
		var institution, url sql.NullString
		var year sql.NullInt64
		if err := rows.Scan(&c.ID, &c.PersonID, &c.Title, &institution, &year, &url, &c.Source, &c.CreatedAt); err != nil {
			return nil, s.wrapErr("scan course", err)
		}
		c.Institution = institution.String
		c.URL = url.String
		c.Year = int(year.Int64)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// InsertCourse inserts c; (person, normalized title) is unique.
func (s *Store) InsertCourse(ctx context.Context, c *types.Course) error {
	if c == nil || c.PersonID == "" || strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("%w: course requires person and title", storage.ErrInvalidInput)
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Source == "" {
		c.Source = types.ProvenanceLLM
	}
	c.CreatedAt = now()

	_, err := s.exec(ctx, s.db, `
		INSERT INTO courses (id, person_id, title, title_key, institution, year, url, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.PersonID, c.Title, RoleKey(c.Title), nullString(c.Institution), c.Year, nullString(c.URL), c.Source, c.CreatedAt,
	)
	return s.wrapErr("insert course", err)
}

// CountCourses counts a person's courses.
func (s *Store) CountCourses(ctx context.Context, personID string) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM courses WHERE person_id = ?`, personID)
}
