package identity_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/luminaries/internal/identity"
	"github.com/scrypster/luminaries/internal/storage"
	"github.com/scrypster/luminaries/internal/storage/sqlite"
	"github.com/scrypster/luminaries/internal/storage/sqlstore"
	"github.com/scrypster/luminaries/pkg/types"
)

// fakeKB is an in-memory knowledge base that counts calls.
type fakeKB struct {
	candidates  []identity.Candidate
	entities    map[string]*identity.Entity
	err         error
	searchCalls int
}

func (f *fakeKB) Search(_ context.Context, _ string, _ int) ([]identity.Candidate, error) {
	f.searchCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

func (f *fakeKB) GetEntity(_ context.Context, id string) (*identity.Entity, error) {
	if f.err != nil {
		return nil, f.err
	}
	e, ok := f.entities[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return e, nil
}

func newStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestFold(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Jane Q. Researcher", "jane q. researcher"},
		{"José  Núñez", "jose nunez"},
		{"ＪＡＮＥ", "jane"},
		{"李飞飞", "李飞飞"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, identity.Fold(tt.in), tt.in)
	}
}

func TestResolve_LocalHitSkipsKnowledgeBase(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreatePerson(ctx, &types.Person{
		IdentityKey: "Q100", Name: "José Núñez", Aliases: []string{"ＪＮ Research"},
	}))

	kb := &fakeKB{}
	r := identity.NewResolver(store, kb)

	for _, q := range []string{"jose nunez", "NÚÑEZ", "jn research"} {
		res, err := r.Resolve(ctx, q)
		require.NoError(t, err, q)
		assert.Equal(t, types.OutcomeLocal, res.Outcome, q)
		require.NotNil(t, res.Person)
		assert.Equal(t, "Q100", res.Person.IdentityKey)
	}
	assert.Zero(t, kb.searchCalls)

	n, err := store.CountSessions(ctx, types.OutcomeLocal)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestResolve_LocalExactBeatsSubstring(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreatePerson(ctx, &types.Person{IdentityKey: "Q1", Name: "Li Wei"}))
	require.NoError(t, store.CreatePerson(ctx, &types.Person{IdentityKey: "Q2", Name: "Li Weiming"}))

	r := identity.NewResolver(store, &fakeKB{})
	res, err := r.Resolve(ctx, "li wei")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeLocal, res.Outcome)
	assert.Equal(t, "Q1", res.Person.IdentityKey)

	res, err = r.Resolve(ctx, "li")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeAmbiguous, res.Outcome)
	assert.Len(t, res.Candidates, 2)
}

func TestResolve_ExternalOutcomes(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		kb        *fakeKB
		want      types.ResolutionOutcome
		wantCands int
		wantDiag  bool
	}{
		{"single candidate", &fakeKB{candidates: []identity.Candidate{{ID: "Q7", Label: "Jane Q. Researcher"}}}, types.OutcomeExternal, 1, false},
		{"many candidates", &fakeKB{candidates: []identity.Candidate{{ID: "Q7"}, {ID: "Q8"}}}, types.OutcomeAmbiguous, 2, false},
		{"no candidates", &fakeKB{}, types.OutcomeNotFound, 0, false},
		{"kb failure", &fakeKB{err: errors.New("503 from upstream")}, types.OutcomeNotFound, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			r := identity.NewResolver(store, tt.kb)

			res, err := r.Resolve(ctx, "Jane Q. Researcher")
			require.NoError(t, err, "knowledge base failures must not escape")
			assert.Equal(t, tt.want, res.Outcome)
			assert.Len(t, res.Candidates, tt.wantCands)
			assert.Equal(t, tt.wantDiag, res.Diagnostic != "")
			assert.Nil(t, res.Person)

			names, err := store.ListPersonNames(ctx)
			require.NoError(t, err)
			assert.Empty(t, names, "resolution never creates persons")

			n, err := store.CountSessions(ctx, tt.want)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestResolve_ExternalCandidateAlreadyInDirectory(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreatePerson(ctx, &types.Person{IdentityKey: "Q7", Name: "简·研究员"}))

	r := identity.NewResolver(store, &fakeKB{candidates: []identity.Candidate{{ID: "Q7", Label: "Jane Q. Researcher"}}})
	res, err := r.Resolve(ctx, "Jane Q. Researcher")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeLocal, res.Outcome)
	assert.Equal(t, "Q7", res.Person.IdentityKey)
}

func TestResolve_RejectsEmptyQuery(t *testing.T) {
	r := identity.NewResolver(newStore(t), nil)
	_, err := r.Resolve(context.Background(), "  ")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestConfirm_CreatesThenRefreshes(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	kb := &fakeKB{entities: map[string]*identity.Entity{
		"Q7": {
			ID:            "Q7",
			Label:         "Jane Q. Researcher",
			Description:   "computer scientist",
			Aliases:       []string{"简·研究员", "Jane Q. Researcher"},
			Organizations: []string{"Acme Labs"},
			Occupations:   []string{"computer scientist"},
			Links:         []types.Link{types.NewLink("github", "janeqr")},
		},
	}}
	r := identity.NewResolver(store, kb)

	p, created, err := r.Confirm(ctx, "Q7")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Jane Q. Researcher", p.Name)
	assert.Equal(t, []string{"简·研究员"}, p.Aliases)
	assert.Equal(t, types.StatusPending, p.Status)

	kb.entities["Q7"].Organizations = []string{"Acme Labs", "State University"}
	again, created, err := r.Confirm(ctx, "Q7")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p.ID, again.ID)

	stored, err := store.GetPerson(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Labs", "State University"}, stored.Organizations)

	_, _, err = r.Confirm(ctx, "Q404")
	assert.ErrorIs(t, err, identity.ErrNotFound)
}

func TestApplyEntity_KeepsOldNameAsAlias(t *testing.T) {
	p := &types.Person{Name: "J. Researcher", Organizations: []string{"acme labs"}}
	identity.ApplyEntity(p, &identity.Entity{ID: "Q7", Label: "Jane Q. Researcher", Organizations: []string{"Acme Labs", "Beta"}})

	assert.Equal(t, "Q7", p.IdentityKey)
	assert.Equal(t, "Jane Q. Researcher", p.Name)
	assert.Equal(t, []string{"J. Researcher"}, p.Aliases)
	assert.Equal(t, []string{"acme labs", "Beta"}, p.Organizations)
}
