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

const contentColumns = `id, person_id, source, url, content_hash, title, body, published_at,
	fetch_status, metadata, run_id, fetched_at, created_at`

// GetContentByHash looks up an item by its (person, hash) key.
func (s *Store) GetContentByHash(ctx context.Context, personID, hash string) (*types.ContentItem, error) {
	row := s.queryRow(ctx, s.db,
		`SELECT `+contentColumns+` FROM content_items WHERE person_id = ? AND content_hash = ?`, personID, hash)
	item, err := scanContent(row)
	if err != nil {
		return nil, s.wrapErr("get content by hash", err)
	}
	return item, nil
}

// InsertContent inserts a new item.
func (s *Store) InsertContent(ctx context.Context, item *types.ContentItem) error {
	if item == nil || item.PersonID == "" || item.ContentHash == "" || !types.IsValidSource(item.Source) {
		return fmt.Errorf("%w: content requires person, hash and a known source", storage.ErrInvalidInput)
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.FetchStatus == "" {
		item.FetchStatus = types.FetchStatusFetched
	}
	if item.FetchedAt.IsZero() {
		item.FetchedAt = now()
	}
	item.CreatedAt = now()

	meta, err := marshalJSON(item.Metadata)
	if err != nil {
		return err
	}
	fp, err := s.dialect.FingerprintValue(item.Fingerprint)
	if err != nil {
		return fmt.Errorf("%w: fingerprint: %v", storage.ErrInvalidInput, err)
	}

	_, err = s.exec(ctx, s.db, `
		INSERT INTO content_items (`+contentColumns+`, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.PersonID, string(item.Source), nullString(item.URL), item.ContentHash, item.Title, item.Body,
		nullTime(item.PublishedAt), item.FetchStatus, meta, nullString(item.RunID), item.FetchedAt.UTC(), item.CreatedAt, fp,
	)
	return s.wrapErr("insert content", err)
}

// UpdateContent rewrites the mutable fields of an existing item.
func (s *Store) UpdateContent(ctx context.Context, item *types.ContentItem) error {
	if item == nil || item.ID == "" {
		return fmt.Errorf("%w: content id is required", storage.ErrInvalidInput)
	}
	meta, err := marshalJSON(item.Metadata)
	if err != nil {
		return err
	}
	fp, err := s.dialect.FingerprintValue(item.Fingerprint)
	if err != nil {
		return fmt.Errorf("%w: fingerprint: %v", storage.ErrInvalidInput, err)
	}
	if item.FetchedAt.IsZero() {
		item.FetchedAt = now()
	}

	res, err := s.exec(ctx, s.db, `
		UPDATE content_items SET url = ?, title = ?, body = ?, published_at = ?, fetch_status = ?,
			metadata = ?, fingerprint = ?, run_id = ?, fetched_at = ?
		WHERE id = ?`,
		nullString(item.URL), item.Title, item.Body, nullTime(item.PublishedAt), item.FetchStatus,
		meta, fp, nullString(item.RunID), item.FetchedAt.UTC(), item.ID,
	)
	if err != nil {
		return s.wrapErr("update content", err)
	}
	return mustAffect(res, "update content")
}

// FindNearDuplicate delegates the similarity search to the dialect.
func (s *Store) FindNearDuplicate(ctx context.Context, personID string, fingerprint []float32, threshold float64) (string, bool, error) {
	if len(fingerprint) == 0 {
		return "", false, nil
	}
	id, sim, found, err := s.dialect.NearestContent(ctx, s.db, personID, fingerprint)
	if err != nil {
		return "", false, s.wrapErr("near duplicate lookup", err)
	}
	if !found || sim < threshold {
		return "", false, nil
	}
	return id, true, nil
}

// ListContent lists a person's items, newest first.
func (s *Store) ListContent(ctx context.Context, personID string, filter storage.ContentFilter) ([]*types.ContentItem, error) {
	conds := []string{"person_id = ?"}
	args := []any{personID}

	if filter.RunID != "" {
		conds = append(conds, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if !filter.IncludeRetracted {
		conds = append(conds, "fetch_status <> ?")
		args = append(args, types.FetchStatusRetracted)
	}
	if len(filter.Sources) > 0 {
		marks := make([]string, len(filter.Sources))
		for i, src := range filter.Sources {
			marks[i] = "?"
			args = append(args, string(src))
		}
		conds = append(conds, "source IN ("+strings.Join(marks, ", ")+")")
	}

	q := `SELECT ` + contentColumns + ` FROM content_items WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY fetched_at DESC, id`
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.query(ctx, s.db, q, args...)
	if err != nil {
		return nil, s.wrapErr("list content", err)
	}
	defer rows.Close()

	var items []*types.ContentItem
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, s.wrapErr("scan content", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SetFetchStatus updates fetch_status.
func (s *Store) SetFetchStatus(ctx context.Context, id, status string) error {
	switch status {
	case types.FetchStatusFetched, types.FetchStatusUpdated, types.FetchStatusRetracted:
	default:
		return fmt.Errorf("%w: fetch status %q", storage.ErrInvalidInput, status)
	}
	res, err := s.exec(ctx, s.db, `UPDATE content_items SET fetch_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return s.wrapErr("set fetch status", err)
	}
	return mustAffect(res, "set fetch status")
}

// CountContent counts a person's non-retracted items.
func (s *Store) CountContent(ctx context.Context, personID string) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM content_items WHERE person_id = ? AND fetch_status <> ?`,
		personID, types.FetchStatusRetracted)
}

func scanContent(row rowScanner) (*types.ContentItem, error) {
	var item types.ContentItem
	var source string
	var url, title, body, meta, runID sql.NullString
	var published sql.NullTime

	err := row.Scan(&item.ID, &item.PersonID, &source, &url, &item.ContentHash, &title, &body, &published,
		&item.FetchStatus, &meta, &runID, &item.FetchedAt, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	item.Source = types.SourceKind(source)
	item.URL = url.String
	item.Title = title.String
	item.Body = body.String
	item.RunID = runID.String
	item.PublishedAt = timePtr(published)
	if err := unmarshalJSON(meta, &item.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of %s: %w", item.ID, err)
	}
	return &item, nil
}
