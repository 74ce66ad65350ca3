package extract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/luminaries/internal/storage/sqlite"
	"github.com/scrypster/luminaries/internal/storage/sqlstore"
	"github.com/scrypster/luminaries/pkg/types"
)

func newStore(t *testing.T) (*sqlstore.Store, string) {
	t.Helper()
	store, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	p := &types.Person{IdentityKey: "Q7", Name: "Jane Q. Researcher"}
	require.NoError(t, store.CreatePerson(context.Background(), p))
	return store, p.ID
}

func TestNormalizeOrganization(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Acme Labs", "acme labs"},
		{"ACME LABS, Inc.", "acme labs"},
		{"Ａｃｍｅ Labs", "acme labs"},
		{"École Polytechnique", "ecole polytechnique"},
		{"阿克米科技有限公司", "阿克米科技"},
		{"Inc", "inc"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeOrganization(tt.in), tt.in)
	}
}

func TestOrganizationKind(t *testing.T) {
	assert.Equal(t, types.OrgUniversity, OrganizationKind("Example University"))
	assert.Equal(t, types.OrgUniversity, OrganizationKind("清华大学"))
	assert.Equal(t, types.OrgCompany, OrganizationKind("Acme Labs"))
	assert.Equal(t, types.OrgCompany, OrganizationKind("Folding Corp."))
	assert.Equal(t, types.OrgOther, OrganizationKind("Open Science Foundation"))
}

func TestPersistTimeline_Dedup(t *testing.T) {
	store, personID := newStore(t)
	ctx := context.Background()
	start := date(2019, time.March, 1)

	n, err := PersistTimeline(ctx, store, personID, []types.CareerEvent{
		{Organization: "Acme Labs", Role: "Research Scientist", StartDate: &start, Source: types.ProvenanceLLM},
		{Organization: "Example University", Role: "PhD Student", StartUnknown: true, EndUnknown: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	later := date(2019, time.November, 1)
	next := date(2023, time.January, 1)
	n, err = PersistTimeline(ctx, store, personID, []types.CareerEvent{
		// Same organization spelled differently, role contained, same start year.
		{Organization: "ACME Labs, Inc.", Role: "Senior Research Scientist", StartDate: &later},
		// Stored event is dateless, so any start matches.
		{Organization: "Example University", Role: "phd student", StartDate: &next},
		// A new role at the same organization.
		{Organization: "Acme Labs", Role: "Director", StartDate: &next},
		// Skipped: no usable organization.
		{Organization: "  ", Role: "Consultant"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	events, err := store.ListCareerEvents(ctx, personID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "Director", events[0].Role)
	assert.Equal(t, "Acme Labs", events[1].Organization, "first-seen organization name wins")
}

func TestPersistTimeline_Idempotent(t *testing.T) {
	store, personID := newStore(t)
	ctx := context.Background()
	start := date(2019, time.March, 1)
	events := []types.CareerEvent{{Organization: "Acme Labs", Role: "Research Scientist", StartDate: &start}}

	n, err := PersistTimeline(ctx, store, personID, events)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = PersistTimeline(ctx, store, personID, events)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPersistCourses(t *testing.T) {
	store, personID := newStore(t)
	ctx := context.Background()

	n, err := PersistCourses(ctx, store, personID, []types.Course{
		{Title: "Deep Learning Foundations", Year: 2019},
		{Title: "deep  learning foundations", Year: 2020},
		{Title: ""},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := store.CountCourses(ctx, personID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
