package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/scrypster/luminaries/internal/storage"
	"github.com/scrypster/luminaries/pkg/types"
)

const personColumns = `id, identity_key, name, aliases, description, occupations, organizations,
	links, avatar_url, gender, country, birth_year, status, last_run_id,
	completeness, completeness_breakdown, influence, view_count, created_at, updated_at`

// CreatePerson inserts a new person.
func (s *Store) CreatePerson(ctx context.Context, p *types.Person) error {
	if p == nil || strings.TrimSpace(p.IdentityKey) == "" || strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: person requires identity key and name", storage.ErrInvalidInput)
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = types.StatusPending
	}
	if !types.IsValidPersonStatus(p.Status) {
		return fmt.Errorf("%w: status %q", storage.ErrInvalidInput, p.Status)
	}
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt
	p.Aliases = types.NormalizeAliases(p.Name, p.Aliases)
	p.Links = types.NormalizeLinks(p.Links)

	profile, err := encodeProfile(p)
	if err != nil {
		return err
	}
	breakdown, err := marshalJSON(p.CompletenessBreakdown)
	if err != nil {
		return err
	}

	_, err = s.exec(ctx, s.db, `
		INSERT INTO persons (`+personColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.IdentityKey, p.Name, profile.aliases, p.Description, profile.occupations, profile.organizations,
		profile.links, p.AvatarURL, p.Gender, p.Country, p.BirthYear, string(p.Status), p.LastRunID,
		p.Completeness, breakdown, p.Influence, p.ViewCount, p.CreatedAt, p.UpdatedAt,
	)
	return s.wrapErr("create person", err)
}

// GetPerson retrieves a person by ID.
func (s *Store) GetPerson(ctx context.Context, id string) (*types.Person, error) {
	row := s.queryRow(ctx, s.db, `SELECT `+personColumns+` FROM persons WHERE id = ?`, id)
	p, err := scanPerson(row)
	if err != nil {
		return nil, s.wrapErr("get person", err)
	}
	return p, nil
}

// GetPersonByIdentityKey retrieves a person by knowledge-base id.
func (s *Store) GetPersonByIdentityKey(ctx context.Context, key string) (*types.Person, error) {
	row := s.queryRow(ctx, s.db, `SELECT `+personColumns+` FROM persons WHERE identity_key = ?`, key)
	p, err := scanPerson(row)
	if err != nil {
		return nil, s.wrapErr("get person by identity key", err)
	}
	return p, nil
}

// UpdatePerson writes the profile fields of p.
func (s *Store) UpdatePerson(ctx context.Context, p *types.Person) error {
	return s.updatePerson(ctx, s.db, p)
}

func (s *Store) updatePerson(ctx context.Context, q Querier, p *types.Person) error {
	if p == nil || p.ID == "" || strings.TrimSpace(p.IdentityKey) == "" {
		return fmt.Errorf("%w: person requires id and identity key", storage.ErrInvalidInput)
	}
	p.Aliases = types.NormalizeAliases(p.Name, p.Aliases)
	p.Links = types.NormalizeLinks(p.Links)
	p.UpdatedAt = now()

	profile, err := encodeProfile(p)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, q, `
		UPDATE persons SET identity_key = ?, name = ?, aliases = ?, description = ?,
			occupations = ?, organizations = ?, links = ?, avatar_url = ?,
			gender = ?, country = ?, birth_year = ?, updated_at = ?
		WHERE id = ?`,
		p.IdentityKey, p.Name, profile.aliases, p.Description,
		profile.occupations, profile.organizations, profile.links, p.AvatarURL,
		p.Gender, p.Country, p.BirthYear, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return s.wrapErr("update person", err)
	}
	return mustAffect(res, "update person")
}

// ListPersons returns a page of persons.
func (s *Store) ListPersons(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Person], error) {
	opts.Normalize()

	where := ""
	var args []any
	if opts.Status != "" {
		where = " WHERE status = ?"
		args = append(args, string(opts.Status))
	}

	total, err := s.count(ctx, `SELECT COUNT(*) FROM persons`+where, args...)
	if err != nil {
		return nil, err
	}

	// SortBy and SortOrder are whitelisted by Normalize.
	q := fmt.Sprintf(`SELECT %s FROM persons%s ORDER BY %s %s, id LIMIT ? OFFSET ?`,
		personColumns, where, opts.SortBy, opts.SortOrder)
	rows, err := s.query(ctx, s.db, q, append(args, opts.Limit, opts.Offset())...)
	if err != nil {
		return nil, s.wrapErr("list persons", err)
	}
	defer rows.Close()

	items := make([]types.Person, 0, opts.Limit)
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, s.wrapErr("scan person", err)
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrapErr("list persons", err)
	}

	return &storage.PaginatedResult[types.Person]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// ListPersonNames returns the name projection of every person.
func (s *Store) ListPersonNames(ctx context.Context) ([]storage.PersonName, error) {
	rows, err := s.query(ctx, s.db, `SELECT id, identity_key, name, aliases FROM persons ORDER BY name`)
	if err != nil {
		return nil, s.wrapErr("list person names", err)
	}
	defer rows.Close()

	var out []storage.PersonName
	for rows.Next() {
		var pn storage.PersonName
		var aliases sql.NullString
		if err := rows.Scan(&pn.ID, &pn.IdentityKey, &pn.Name, &aliases); err != nil {
			return nil, s.wrapErr("scan person name", err)
		}
		if err := unmarshalJSON(aliases, &pn.Aliases); err != nil {
			return nil, fmt.Errorf("decode aliases of %s: %w", pn.ID, err)
		}
		out = append(out, pn)
	}
	return out, rows.Err()
}

// ListPersonIDsByStatus returns ids of persons in status.
func (s *Store) ListPersonIDsByStatus(ctx context.Context, status types.PersonStatus) ([]string, error) {
	rows, err := s.query(ctx, s.db, `SELECT id FROM persons WHERE status = ? ORDER BY created_at`, string(status))
	if err != nil {
		return nil, s.wrapErr("list persons by status", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, s.wrapErr("scan person id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TryBeginRun is the advisory lock: a conditional update that only succeeds
// when the person is not already building.
func (s *Store) TryBeginRun(ctx context.Context, personID, runID string) (bool, error) {
	res, err := s.exec(ctx, s.db, `
		UPDATE persons SET status = ?, last_run_id = ?, updated_at = ?
		WHERE id = ? AND status <> ?`,
		string(types.StatusBuilding), runID, now(), personID, string(types.StatusBuilding))
	if err != nil {
		return false, s.wrapErr("begin run", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("begin run: rows affected: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	// Distinguish a held lock from a missing person.
	if _, err := s.GetPerson(ctx, personID); err != nil {
		return false, err
	}
	return false, nil
}

// FinishRun moves a building person to a terminal status.
func (s *Store) FinishRun(ctx context.Context, personID string, status types.PersonStatus) error {
	if !types.IsValidStatusTransition(types.StatusBuilding, status) {
		return fmt.Errorf("%w: cannot finish run with status %q", storage.ErrInvalidInput, status)
	}
	res, err := s.exec(ctx, s.db, `
		UPDATE persons SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(status), now(), personID, string(types.StatusBuilding))
	if err != nil {
		return s.wrapErr("finish run", err)
	}
	return mustAffect(res, "finish run")
}

// UpdateScores stores the scorer output.
func (s *Store) UpdateScores(ctx context.Context, personID string, score storage.ScoreUpdate) error {
	if score.Completeness < 0 || score.Completeness > 100 || score.Influence < 0 {
		return fmt.Errorf("%w: scores out of range", storage.ErrInvalidInput)
	}
	breakdown, err := marshalJSON(score.Breakdown)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, s.db, `
		UPDATE persons SET completeness = ?, completeness_breakdown = ?, influence = ?, updated_at = ?
		WHERE id = ?`,
		score.Completeness, breakdown, score.Influence, now(), personID)
	if err != nil {
		return s.wrapErr("update scores", err)
	}
	return mustAffect(res, "update scores")
}

// ClearEnrichment deletes everything a run derived for the person.
func (s *Store) ClearEnrichment(ctx context.Context, personID string) (storage.ClearStats, error) {
	var stats storage.ClearStats
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		stats, err = s.clearEnrichment(ctx, tx, personID)
		return err
	})
	return stats, err
}

// ReplaceIdentity writes p under its new identity key and deletes everything
// derived from the previous one. Either both happen or neither does.
func (s *Store) ReplaceIdentity(ctx context.Context, p *types.Person) (storage.ClearStats, error) {
	var stats storage.ClearStats
	if p == nil {
		return stats, storage.ErrInvalidInput
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.updatePerson(ctx, tx, p); err != nil {
			return err
		}
		var err error
		stats, err = s.clearEnrichment(ctx, tx, p.ID)
		return err
	})
	return stats, err
}

func (s *Store) clearEnrichment(ctx context.Context, tx *sql.Tx, personID string) (storage.ClearStats, error) {
	var stats storage.ClearStats
	targets := []struct {
		table string
		n     *int
	}{
		{"content_items", &stats.Content},
		{"cards", &stats.Cards},
		{"career_events", &stats.CareerEvents},
		{"courses", &stats.Courses},
	}
	for _, t := range targets {
		res, err := s.exec(ctx, tx, `DELETE FROM `+t.table+` WHERE person_id = ?`, personID)
		if err != nil {
			return stats, s.wrapErr("clear "+t.table, err)
		}
		n, _ := res.RowsAffected()
		*t.n = int(n)
	}
	return stats, nil
}

// IncrementViewCount bumps the view counter.
func (s *Store) IncrementViewCount(ctx context.Context, personID string) error {
	res, err := s.exec(ctx, s.db, `UPDATE persons SET view_count = view_count + 1 WHERE id = ?`, personID)
	if err != nil {
		return s.wrapErr("increment view count", err)
	}
	return mustAffect(res, "increment view count")
}

// GetPersonView returns the person with related-record counts.
func (s *Store) GetPersonView(ctx context.Context, id string) (*types.PersonView, error) {
	p, err := s.GetPerson(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &types.PersonView{Person: *p}
	err = s.queryRow(ctx, s.db, `
		SELECT
			(SELECT COUNT(*) FROM content_items WHERE person_id = ? AND fetch_status <> ?),
			(SELECT COUNT(*) FROM career_events WHERE person_id = ?),
			(SELECT COUNT(*) FROM courses WHERE person_id = ?),
			(SELECT COUNT(*) FROM cards WHERE person_id = ?)`,
		id, types.FetchStatusRetracted, id, id, id,
	).Scan(&view.ContentCount, &view.CareerCount, &view.CourseCount, &view.CardCount)
	if err != nil {
		return nil, s.wrapErr("person view counts", err)
	}
	return view, nil
}

type encodedProfile struct {
	aliases, occupations, organizations, links string
}

func encodeProfile(p *types.Person) (encodedProfile, error) {
	var e encodedProfile
	var err error
	if e.aliases, err = marshalJSON(nonNil(p.Aliases)); err != nil {
		return e, err
	}
	if e.occupations, err = marshalJSON(nonNil(p.Occupations)); err != nil {
		return e, err
	}
	if e.organizations, err = marshalJSON(nonNil(p.Organizations)); err != nil {
		return e, err
	}
	if p.Links == nil {
		p.Links = []types.Link{}
	}
	if e.links, err = marshalJSON(p.Links); err != nil {
		return e, err
	}
	return e, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (*types.Person, error) {
	var p types.Person
	var aliases, occupations, organizations, links, breakdown sql.NullString
	var description, avatar, gender, country, lastRun sql.NullString
	var birthYear sql.NullInt64
	var status string

	err := row.Scan(
		&p.ID, &p.IdentityKey, &p.Name, &aliases, &description, &occupations, &organizations,
		&links, &avatar, &gender, &country, &birthYear, &status, &lastRun,
		&p.Completeness, &breakdown, &p.Influence, &p.ViewCount, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status = types.PersonStatus(status)
	p.Description = description.String
	p.AvatarURL = avatar.String
	p.Gender = gender.String
	p.Country = country.String
	p.LastRunID = lastRun.String
	p.BirthYear = int(birthYear.Int64)

	for _, f := range []struct {
		src sql.NullString
		dst any
	}{
		{aliases, &p.Aliases},
		{occupations, &p.Occupations},
		{organizations, &p.Organizations},
		{breakdown, &p.CompletenessBreakdown},
	} {
		if err := unmarshalJSON(f.src, f.dst); err != nil {
			return nil, fmt.Errorf("decode person %s: %w", p.ID, err)
		}
	}

	// Links are normalized here once, whatever shape they were stored in.
	if p.Links, err = types.DecodeLinks([]byte(links.String)); err != nil {
		return nil, fmt.Errorf("decode links of person %s: %w", p.ID, err)
	}
	return &p, nil
}
