package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/luminaries/internal/fingerprint"
	"github.com/scrypster/luminaries/internal/storage"
	"github.com/scrypster/luminaries/internal/storage/postgres"
	"github.com/scrypster/luminaries/internal/storage/sqlstore"
	"github.com/scrypster/luminaries/pkg/types"
)

// postgresTestDSN returns the DSN for the test database.
// If POSTGRES_TEST_DSN is not set, tests are skipped.
func postgresTestDSN(t *testing.T) string {
	t.Helper()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()

	store, err := postgres.Open(context.Background(), postgresTestDSN(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = store.DB().Exec(`TRUNCATE persons, organizations, resolution_sessions CASCADE`)
		_ = store.Close()
	})
	return store
}

func TestDialect_Placeholders(t *testing.T) {
	d := postgres.Dialect{}
	assert.Equal(t, "$1", d.Placeholder(1))
	assert.Equal(t, "$12", d.Placeholder(12))
	assert.False(t, d.IsUniqueViolation(nil))
}

func TestDialect_FingerprintValue(t *testing.T) {
	d := postgres.Dialect{}

	v, err := d.FingerprintValue(nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = d.FingerprintValue([]float32{1, 2, 3})
	assert.Error(t, err)

	v, err = d.FingerprintValue(fingerprint.Compute("open source protein folding tools"))
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestPostgres_ContentDedupAndNearDuplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := &types.Person{IdentityKey: "Q-pg-test", Name: "Jane Q. Researcher"}
	require.NoError(t, store.CreatePerson(ctx, p))

	text := "Jane Q. Researcher maintains open source protein folding tools at Acme Labs"
	item := &types.ContentItem{
		PersonID: p.ID, Source: types.SourceCode, ContentHash: "h1", Body: text,
		Fingerprint: fingerprint.Compute(text),
	}
	require.NoError(t, store.InsertContent(ctx, item))

	dup := &types.ContentItem{PersonID: p.ID, Source: types.SourceCode, ContentHash: "h1", Body: text}
	assert.ErrorIs(t, store.InsertContent(ctx, dup), storage.ErrConflict)

	id, found, err := store.FindNearDuplicate(ctx, p.ID, fingerprint.Compute(text+"."), fingerprint.NearDuplicateThreshold)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, item.ID, id)
}
