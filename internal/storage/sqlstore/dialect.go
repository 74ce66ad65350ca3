package sqlstore

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// Dialect isolates the engine-specific parts of the store.
type Dialect interface {
	// Name is "sqlite" or "postgres".
	Name() string

	// Schema returns the idempotent DDL for every table.
	Schema() string

	// Placeholder returns the n-th (1-indexed) bind parameter.
	Placeholder(n int) string

	// IsUniqueViolation reports whether err is a unique-constraint failure.
	IsUniqueViolation(err error) bool

	// FingerprintValue converts a fingerprint to a bindable column value.
	// A nil fingerprint must map to SQL NULL.
	FingerprintValue(fp []float32) (any, error)

	// NearestContent returns the non-retracted item of personID whose
	// fingerprint is most similar to fp, with its cosine similarity.
	NearestContent(ctx context.Context, q Querier, personID string, fp []float32) (id string, similarity float64, found bool, err error)
}

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// QuestionPlaceholder renders ? placeholders.
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder renders $n placeholders.
func DollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// rebind rewrites ? placeholders in query using d. Queries in this package
// never contain a literal question mark inside a string.
func rebind(d Dialect, query string) string {
	if d.Placeholder(1) == "?" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
