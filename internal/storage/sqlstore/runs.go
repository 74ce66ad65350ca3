package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/scrypster/luminaries/internal/storage"
	"github.com/scrypster/luminaries/pkg/types"
)

// ReplaceCards swaps a person's cards for cards in one transaction.
func (s *Store) ReplaceCards(ctx context.Context, personID string, cards []*types.Card) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, `DELETE FROM cards WHERE person_id = ?`, personID); err != nil {
			return s.wrapErr("delete cards", err)
		}
		for _, c := range cards {
			if c.ID == "" {
				c.ID = uuid.New().String()
			}
			c.PersonID = personID
			c.CreatedAt = now()
			if _, err := s.exec(ctx, tx, `
				INSERT INTO cards (id, person_id, kind, title, body, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
				c.ID, c.PersonID, c.Kind, c.Title, c.Body, c.CreatedAt); err != nil {
				return s.wrapErr("insert card", err)
			}
		}
		return nil
	})
}

// ListCards returns a person's cards.
func (s *Store) ListCards(ctx context.Context, personID string) ([]*types.Card, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT id, person_id, kind, title, body, created_at FROM cards WHERE person_id = ? ORDER BY kind, id`, personID)
	if err != nil {
		return nil, s.wrapErr("list cards", err)
	}
	defer rows.Close()

	var out []*types.Card
	for rows.Next() {
		var c types.Card
		var body sql.NullString
		if err := rows.Scan(&c.ID, &c.PersonID, &c.Kind, &c.Title, &body, &c.CreatedAt); err != nil {
			return nil, s.wrapErr("scan card", err)
		}
		c.Body = body.String
		out = append(out, &c)
	}
	return out, rows.Err()
}

// CountCards counts a person's cards.
func (s *Store) CountCards(ctx context.Context, personID string) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM cards WHERE person_id = ?`, personID)
}

// CreateRun records the start of a run.
func (s *Store) CreateRun(ctx context.Context, run *types.EnrichmentRun) error {
	if run == nil || run.PersonID == "" {
		return fmt.Errorf("%w: run requires person", storage.ErrInvalidInput)
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = now()
	}
	if run.Status == "" {
		run.Status = types.StatusBuilding
	}
	stages, counts, err := encodeRun(run)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, s.db, `
		INSERT INTO enrichment_runs (id, person_id, run_trigger, started_at, finished_at, status, stages, error, counts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.PersonID, string(run.Trigger), run.StartedAt.UTC(), nullTime(run.FinishedAt),
		string(run.Status), stages, nullString(run.Error), counts)
	return s.wrapErr("create run", err)
}

// UpdateRun stores the run's stages, counts and outcome.
func (s *Store) UpdateRun(ctx context.Context, run *types.EnrichmentRun) error {
	stages, counts, err := encodeRun(run)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, s.db, `
		UPDATE enrichment_runs SET finished_at = ?, status = ?, stages = ?, error = ?, counts = ? WHERE id = ?`,
		nullTime(run.FinishedAt), string(run.Status), stages, nullString(run.Error), counts, run.ID)
	if err != nil {
		return s.wrapErr("update run", err)
	}
	return mustAffect(res, "update run")
}

const runColumns = `id, person_id, run_trigger, started_at, finished_at, status, stages, error, counts`

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*types.EnrichmentRun, error) {
	run, err := scanRun(s.queryRow(ctx, s.db, `SELECT `+runColumns+` FROM enrichment_runs WHERE id = ?`, id))
	if err != nil {
		return nil, s.wrapErr("get run", err)
	}
	return run, nil
}

// ListRuns returns a person's most recent runs.
func (s *Store) ListRuns(ctx context.Context, personID string, limit int) ([]*types.EnrichmentRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.query(ctx, s.db,
		`SELECT `+runColumns+` FROM enrichment_runs WHERE person_id = ? ORDER BY started_at DESC LIMIT ?`,
		personID, limit)
	if err != nil {
		return nil, s.wrapErr("list runs", err)
	}
	defer rows.Close()

	var out []*types.EnrichmentRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, s.wrapErr("scan run", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// RecordSession stores a resolution attempt.
func (s *Store) RecordSession(ctx context.Context, sess *types.ResolutionSession) error {
	if sess == nil {
		return storage.ErrInvalidInput
	}
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now()
	}
	_, err := s.exec(ctx, s.db, `
		INSERT INTO resolution_sessions (id, query, outcome, person_id, candidate_count, diagnostic, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Query, string(sess.Outcome), nullString(sess.PersonID), sess.CandidateCount,
		nullString(sess.Diagnostic), sess.CreatedAt.UTC())
	return s.wrapErr("record session", err)
}

// CountSessions counts sessions with outcome, or all when outcome is "".
func (s *Store) CountSessions(ctx context.Context, outcome types.ResolutionOutcome) (int, error) {
	if outcome == "" {
		return s.count(ctx, `SELECT COUNT(*) FROM resolution_sessions`)
	}
	return s.count(ctx, `SELECT COUNT(*) FROM resolution_sessions WHERE outcome = ?`, string(outcome))
}

func encodeRun(run *types.EnrichmentRun) (string, string, error) {
	if run.Stages == nil {
		run.Stages = map[string]types.StageOutcome{}
	}
	stages, err := marshalJSON(run.Stages)
	if err != nil {
		return "", "", err
	}
	counts, err := marshalJSON(run.Counts)
	if err != nil {
		return "", "", err
	}
	return stages, counts, nil
}

func scanRun(row rowScanner) (*types.EnrichmentRun, error) {
	var run types.EnrichmentRun
	var trigger, status string
	var finished sql.NullTime
	var stages, errText, counts sql.NullString

	if err := row.Scan(&run.ID, &run.PersonID, &trigger, &run.StartedAt, &finished, &status,
		&stages, &errText, &counts); err != nil {
		return nil, err
	}
	run.Trigger = types.Trigger(trigger)
	run.Status = types.PersonStatus(status)
	run.FinishedAt = timePtr(finished)
	run.Error = errText.String
	if err := unmarshalJSON(stages, &run.Stages); err != nil {
		return nil, fmt.Errorf("decode stages of run %s: %w", run.ID, err)
	}
	if err := unmarshalJSON(counts, &run.Counts); err != nil {
		return nil, fmt.Errorf("decode counts of run %s: %w", run.ID, err)
	}
	return &run, nil
}
