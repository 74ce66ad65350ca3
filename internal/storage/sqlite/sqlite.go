// Package sqlite opens the SQLite-backed store (modernc.org/sqlite, CGO-free).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/scrypster/luminaries/internal/fingerprint"
	"github.com/scrypster/luminaries/internal/storage/sqlstore"
)

// Open opens (creating if needed) the database at dsn, configures WAL mode
// and applies the schema. dsn may be a file path or ":memory:".
func Open(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	// It also keeps ":memory:" databases alive for the lifetime of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	store, err := sqlstore.New(ctx, db, Dialect{})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// OpenDir opens luminaries.db inside dataPath, creating the directory.
func OpenDir(ctx context.Context, dataPath string) (*sqlstore.Store, error) {
	if err := os.MkdirAll(dataPath, 0o750); err != nil {
		return nil, fmt.Errorf("sqlite: failed to create data directory: %w", err)
	}
	return Open(ctx, filepath.Join(dataPath, "luminaries.db"))
}

// Dialect implements sqlstore.Dialect for SQLite.
type Dialect struct{}

func (Dialect) Name() string             { return "sqlite" }
func (Dialect) Schema() string           { return Schema }
func (Dialect) Placeholder(n int) string { return sqlstore.QuestionPlaceholder(n) }

// IsUniqueViolation reports SQLITE_CONSTRAINT_UNIQUE and _PRIMARYKEY errors.
func (Dialect) IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// FingerprintValue stores the vector as a JSON array.
func (Dialect) FingerprintValue(fp []float32) (any, error) {
	if len(fp) == 0 {
		return nil, nil
	}
	if len(fp) != fingerprint.Dim {
		return nil, fmt.Errorf("fingerprint has %d dimensions, want %d", len(fp), fingerprint.Dim)
	}
	b, err := json.Marshal(fp)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// NearestContent scans the person's fingerprints and compares them in Go.
// Per-person item counts are small enough that this beats an extension.
func (Dialect) NearestContent(ctx context.Context, q sqlstore.Querier, personID string, fp []float32) (string, float64, bool, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, fingerprint FROM content_items
		WHERE person_id = ? AND fetch_status <> 'retracted' AND fingerprint IS NOT NULL`, personID)
	if err != nil {
		return "", 0, false, err
	}
	defer rows.Close()

	bestID, best, found := "", -1.0, false
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return "", 0, false, err
		}
		var other []float32
		if err := json.Unmarshal([]byte(raw), &other); err != nil {
			continue
		}
		if sim := fingerprint.Cosine(fp, other); sim > best {
			bestID, best, found = id, sim, true
		}
	}
	return bestID, best, found, rows.Err()
}

var _ sqlstore.Dialect = Dialect{}
