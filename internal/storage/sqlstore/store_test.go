package sqlstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/luminaries/internal/fingerprint"
	"github.com/scrypster/luminaries/internal/storage"
	"github.com/scrypster/luminaries/internal/storage/sqlite"
	"github.com/scrypster/luminaries/internal/storage/sqlstore"
	"github.com/scrypster/luminaries/pkg/types"
)

// newTestStore creates an in-memory SQLite store for testing.
func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newPerson(t *testing.T, store *sqlstore.Store, key, name string) *types.Person {
	t.Helper()
	p := &types.Person{
		IdentityKey:   key,
		Name:          name,
		Aliases:       []string{name, "J. Researcher"},
		Organizations: []string{"Acme Labs"},
		Links: []types.Link{
			types.NewLink("github", "janeqr"),
			types.NewLink("", "https://twitter.com/janeqr"),
		},
	}
	require.NoError(t, store.CreatePerson(context.Background(), p))
	return p
}

func TestPerson_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := newPerson(t, store, "Q100", "Jane Q. Researcher")
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, types.StatusPending, p.Status)
	assert.Equal(t, []string{"J. Researcher"}, p.Aliases, "display name must not repeat in aliases")

	got, err := store.GetPerson(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Q. Researcher", got.Name)
	assert.Equal(t, []string{"Acme Labs"}, got.Organizations)
	require.Len(t, got.Links, 2)
	x, ok := got.Identity().LinkOf(types.LinkSocial)
	require.True(t, ok)
	assert.Equal(t, "x", x.Platform)
	assert.Equal(t, "janeqr", x.Handle)

	byKey, err := store.GetPersonByIdentityKey(ctx, "Q100")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byKey.ID)
}

func TestPerson_DuplicateIdentityKey(t *testing.T) {
	store := newTestStore(t)
	newPerson(t, store, "Q100", "Jane Q. Researcher")

	err := store.CreatePerson(context.Background(), &types.Person{IdentityKey: "Q100", Name: "Someone Else"})
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestPerson_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetPerson(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPerson_LegacyLinkShapesDecodeOnRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newPerson(t, store, "Q100", "Jane Q. Researcher")

	// Rows written by older importers stored links as a platform map.
	_, err := store.DB().ExecContext(ctx,
		`UPDATE persons SET links = ? WHERE id = ?`, `{"github":"https://github.com/janeqr","youtube":"janeqr"}`, p.ID)
	require.NoError(t, err)

	got, err := store.GetPerson(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Links, 2)
	code, ok := got.Identity().LinkOf(types.LinkCode)
	require.True(t, ok)
	assert.Equal(t, "janeqr", code.Handle)
}

func TestPerson_ListPaginates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	newPerson(t, store, "Q1", "Ada")
	newPerson(t, store, "Q2", "Grace")
	newPerson(t, store, "Q3", "Alan")

	page, err := store.ListPersons(ctx, storage.ListOptions{Limit: 2, SortBy: "name", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Ada", page.Items[0].Name)
	assert.True(t, page.HasMore)

	names, err := store.ListPersonNames(ctx)
	require.NoError(t, err)
	assert.Len(t, names, 3)
}

func TestTryBeginRun_IsExclusive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newPerson(t, store, "Q100", "Jane Q. Researcher")

	ok, err := store.TryBeginRun(ctx, p.ID, "run-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.TryBeginRun(ctx, p.ID, "run-2")
	require.NoError(t, err)
	assert.False(t, ok, "a building person must not start a second run")

	require.NoError(t, store.FinishRun(ctx, p.ID, types.StatusReady))
	assert.Error(t, store.FinishRun(ctx, p.ID, types.StatusReady), "finishing twice must fail")

	ok, err = store.TryBeginRun(ctx, p.ID, "run-3")
	require.NoError(t, err)
	assert.True(t, ok, "a ready person can be refreshed")

	got, err := store.GetPerson(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusBuilding, got.Status)
	assert.Equal(t, "run-3", got.LastRunID)

	_, err = store.TryBeginRun(ctx, "missing", "run-4")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFinishRun_RejectsNonTerminalStatus(t *testing.T) {
	store := newTestStore(t)
	p := newPerson(t, store, "Q100", "Jane Q. Researcher")
	err := store.FinishRun(context.Background(), p.ID, types.StatusPending)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestUpdateScores_Validates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newPerson(t, store, "Q100", "Jane Q. Researcher")

	assert.ErrorIs(t, store.UpdateScores(ctx, p.ID, storage.ScoreUpdate{Completeness: 101}), storage.ErrInvalidInput)

	require.NoError(t, store.UpdateScores(ctx, p.ID, storage.ScoreUpdate{
		Completeness: 42,
		Breakdown:    map[string]int{"organization": 8},
		Influence:    3.5,
	}))
	got, err := store.GetPerson(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, got.Completeness)
	assert.Equal(t, 8, got.CompletenessBreakdown["organization"])
	assert.InDelta(t, 3.5, got.Influence, 1e-9)
}

func TestContent_HashIsUniquePerPerson(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	jane := newPerson(t, store, "Q100", "Jane Q. Researcher")
	other := newPerson(t, store, "Q200", "John Doe")

	item := &types.ContentItem{PersonID: jane.ID, Source: types.SourceCode, ContentHash: "abc", Title: "repo",
		Metadata: map[string]any{"stars": 12.0}}
	require.NoError(t, store.InsertContent(ctx, item))

	dup := &types.ContentItem{PersonID: jane.ID, Source: types.SourceCode, ContentHash: "abc"}
	assert.ErrorIs(t, store.InsertContent(ctx, dup), storage.ErrConflict)

	// The same hash under a different person is a different item.
	require.NoError(t, store.InsertContent(ctx, &types.ContentItem{PersonID: other.ID, Source: types.SourceCode, ContentHash: "abc"}))

	got, err := store.GetContentByHash(ctx, jane.ID, "abc")
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, types.FetchStatusFetched, got.FetchStatus)
	assert.Equal(t, 12.0, got.Metadata["stars"])
}

func TestContent_UpdateAndRetract(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newPerson(t, store, "Q100", "Jane Q. Researcher")

	item := &types.ContentItem{PersonID: p.ID, Source: types.SourceSocial, ContentHash: "bio", Body: "old bio", RunID: "run-1"}
	require.NoError(t, store.InsertContent(ctx, item))

	item.Body = "new bio"
	item.FetchStatus = types.FetchStatusUpdated
	item.RunID = "run-2"
	require.NoError(t, store.UpdateContent(ctx, item))

	items, err := store.ListContent(ctx, p.ID, storage.ContentFilter{RunID: "run-2"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "new bio", items[0].Body)

	require.NoError(t, store.SetFetchStatus(ctx, item.ID, types.FetchStatusRetracted))
	n, err := store.CountContent(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	all, err := store.ListContent(ctx, p.ID, storage.ContentFilter{IncludeRetracted: true})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.ErrorIs(t, store.SetFetchStatus(ctx, item.ID, "bogus"), storage.ErrInvalidInput)
}

func TestContent_FindNearDuplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newPerson(t, store, "Q100", "Jane Q. Researcher")

	text := "Jane Q. Researcher maintains open source protein folding tools at Acme Labs"
	item := &types.ContentItem{PersonID: p.ID, Source: types.SourceCode, ContentHash: "h1", Body: text,
		Fingerprint: fingerprint.Compute(text)}
	require.NoError(t, store.InsertContent(ctx, item))

	id, found, err := store.FindNearDuplicate(ctx, p.ID, fingerprint.Compute(text+"!"), fingerprint.NearDuplicateThreshold)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, item.ID, id)

	_, found, err = store.FindNearDuplicate(ctx, p.ID,
		fingerprint.Compute("a cooking show about regional noodle recipes"), fingerprint.NearDuplicateThreshold)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = store.DB().ExecContext(ctx, `UPDATE content_items SET fetch_status = 'retracted'`)
	require.NoError(t, err)
	_, found, err = store.FindNearDuplicate(ctx, p.ID, fingerprint.Compute(text), fingerprint.NearDuplicateThreshold)
	require.NoError(t, err)
	assert.False(t, found, "retracted items are not duplicate candidates")
}

func TestCareer_DedupKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newPerson(t, store, "Q100", "Jane Q. Researcher")

	org, err := store.UpsertOrganization(ctx, &types.Organization{Name: "Acme Labs", NormalizedName: "acme labs", Kind: types.OrgCompany})
	require.NoError(t, err)
	again, err := store.UpsertOrganization(ctx, &types.Organization{Name: "ACME LABS", NormalizedName: "acme labs"})
	require.NoError(t, err)
	assert.Equal(t, org.ID, again.ID)
	assert.Equal(t, "Acme Labs", again.Name, "first seen name wins")

	start := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	ev := &types.CareerEvent{PersonID: p.ID, OrganizationID: org.ID, Organization: org.Name, Role: "Research Scientist", StartDate: &start}
	require.NoError(t, store.InsertCareerEvent(ctx, ev))

	dup := &types.CareerEvent{PersonID: p.ID, OrganizationID: org.ID, Organization: org.Name, Role: "research  scientist", StartDate: &start}
	assert.ErrorIs(t, store.InsertCareerEvent(ctx, dup), storage.ErrConflict)

	dateless := &types.CareerEvent{PersonID: p.ID, OrganizationID: org.ID, Organization: org.Name, Role: "Advisor", StartUnknown: true}
	require.NoError(t, store.InsertCareerEvent(ctx, dateless))

	events, err := store.ListCareerEvents(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Research Scientist", events[0].Role)
	assert.True(t, events[0].Ongoing())
	assert.Equal(t, 2019, events[0].StartYear())
	assert.True(t, events[1].StartUnknown, "dateless events sort last")
	assert.Equal(t, types.ProvenanceLLM, events[0].Source)
}

func TestCourse_DedupByTitle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newPerson(t, store, "Q100", "Jane Q. Researcher")

	require.NoError(t, store.InsertCourse(ctx, &types.Course{PersonID: p.ID, Title: "Deep Learning 101", Year: 2021}))
	assert.ErrorIs(t, store.InsertCourse(ctx, &types.Course{PersonID: p.ID, Title: "deep learning  101"}), storage.ErrConflict)

	n, err := store.CountCourses(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClearEnrichment(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newPerson(t, store, "Q100", "Jane Q. Researcher")

	require.NoError(t, store.InsertContent(ctx, &types.ContentItem{PersonID: p.ID, Source: types.SourceCode, ContentHash: "a"}))
	require.NoError(t, store.InsertContent(ctx, &types.ContentItem{PersonID: p.ID, Source: types.SourceVideo, ContentHash: "b"}))
	require.NoError(t, store.ReplaceCards(ctx, p.ID, []*types.Card{{Kind: "career", Title: "Acme Labs"}}))
	require.NoError(t, store.InsertCourse(ctx, &types.Course{PersonID: p.ID, Title: "Deep Learning 101"}))

	view, err := store.GetPersonView(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, view.ContentCount)
	assert.Equal(t, 1, view.CardCount)
	assert.Equal(t, 1, view.CourseCount)

	stats, err := store.ClearEnrichment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.ClearStats{Content: 2, Cards: 1, Courses: 1}, stats)

	view, err = store.GetPersonView(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, view.ContentCount+view.CardCount+view.CourseCount+view.CareerCount)
}

func TestReplaceIdentity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newPerson(t, store, "Q100", "Jane Q. Researcher")
	newPerson(t, store, "Q200", "John Example")

	require.NoError(t, store.InsertContent(ctx, &types.ContentItem{PersonID: p.ID, Source: types.SourceCode, ContentHash: "a"}))
	require.NoError(t, store.InsertCourse(ctx, &types.Course{PersonID: p.ID, Title: "Deep Learning 101"}))

	// A taken key rolls back the whole change.
	p.IdentityKey = "Q200"
	_, err := store.ReplaceIdentity(ctx, p)
	assert.ErrorIs(t, err, storage.ErrConflict)

	view, err := store.GetPersonView(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Q100", view.IdentityKey)
	assert.Equal(t, 1, view.ContentCount)
	assert.Equal(t, 1, view.CourseCount)

	p.IdentityKey = "Q300"
	stats, err := store.ReplaceIdentity(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, storage.ClearStats{Content: 1, Courses: 1}, stats)

	view, err = store.GetPersonView(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Q300", view.IdentityKey)
	assert.Zero(t, view.ContentCount+view.CourseCount)
}

func TestReplaceCards(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newPerson(t, store, "Q100", "Jane Q. Researcher")

	require.NoError(t, store.ReplaceCards(ctx, p.ID, []*types.Card{{Kind: "a", Title: "one"}, {Kind: "b", Title: "two"}}))
	require.NoError(t, store.ReplaceCards(ctx, p.ID, []*types.Card{{Kind: "c", Title: "three"}}))

	cards, err := store.ListCards(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "three", cards[0].Title)
}

func TestRuns_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newPerson(t, store, "Q100", "Jane Q. Researcher")

	run := &types.EnrichmentRun{PersonID: p.ID, Trigger: types.TriggerCreated}
	require.NoError(t, store.CreateRun(ctx, run))
	assert.Equal(t, types.StatusBuilding, run.Status)

	run.SetStage(types.SourceStage(types.SourceCode), types.StageSuccess)
	run.SetStage(types.SourceStage(types.SourceVideo), types.StageUnconfigured)
	run.Counts.Inserted = 2
	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.Status = types.StatusReady
	require.NoError(t, store.UpdateRun(ctx, run))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusReady, got.Status)
	assert.Equal(t, types.TriggerCreated, got.Trigger)
	assert.Equal(t, types.StageUnconfigured, got.Stages["source:video"])
	assert.Equal(t, 2, got.Counts.Inserted)
	assert.NotNil(t, got.FinishedAt)

	runs, err := store.ListRuns(ctx, p.ID, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSessions_Count(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordSession(ctx, &types.ResolutionSession{Query: "jane", Outcome: types.OutcomeLocal}))
	require.NoError(t, store.RecordSession(ctx, &types.ResolutionSession{Query: "nobody", Outcome: types.OutcomeNotFound, Diagnostic: "kb: timeout"}))
	require.NoError(t, store.RecordSession(ctx, &types.ResolutionSession{Query: "john", Outcome: types.OutcomeAmbiguous, CandidateCount: 3}))

	all, err := store.CountSessions(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, all)

	nf, err := store.CountSessions(ctx, types.OutcomeNotFound)
	require.NoError(t, err)
	assert.Equal(t, 1, nf)
}
