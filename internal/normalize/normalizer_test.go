package normalize_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/luminaries/internal/normalize"
	"github.com/scrypster/luminaries/internal/sources"
	"github.com/scrypster/luminaries/internal/storage"
	"github.com/scrypster/luminaries/internal/storage/sqlite"
	"github.com/scrypster/luminaries/internal/storage/sqlstore"
	"github.com/scrypster/luminaries/pkg/types"
)

func setup(t *testing.T) (*sqlstore.Store, types.PersonIdentity) {
	t.Helper()
	store, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	p := &types.Person{
		IdentityKey:   "Q7",
		Name:          "Jane Q. Researcher",
		Aliases:       []string{"简·研究员"},
		Occupations:   []string{"computer scientist"},
		Organizations: []string{"Acme Labs"},
	}
	require.NoError(t, store.CreatePerson(context.Background(), p))
	return store, p.Identity()
}

func repo(url, title, text string) sources.RawCandidate {
	return sources.RawCandidate{
		URL:      url,
		Title:    title,
		Text:     text,
		Metadata: map[string]any{sources.MetaKind: sources.KindRepo, sources.MetaVerified: true, sources.MetaStars: 10},
	}
}

func TestNormalizeAndUpsert_IdempotentRefetch(t *testing.T) {
	store, id := setup(t)
	ctx := context.Background()
	n := normalize.New(store).WithRun("run-1")

	raws := []sources.RawCandidate{
		repo("https://github.com/janeqr/fold-kit", "fold-kit", "janeqr/fold-kit: Protein folding toolkit. Language: Python."),
		repo("https://www.github.com/janeqr/fold-kit/?utm_source=feed", "fold-kit", "janeqr/fold-kit: Protein folding toolkit. Language: Python."),
		repo("https://github.com/janeqr/tensor-tiles", "tensor-tiles", "janeqr/tensor-tiles: Tiled matrix kernels for accelerators written in Rust with benchmarks."),
	}

	stats, err := n.NormalizeAndUpsert(ctx, id, types.SourceCode, raws)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, 1, stats.Skipped, "url variant of the same repo")

	again, err := normalize.New(store).WithRun("run-2").NormalizeAndUpsert(ctx, id, types.SourceCode, raws)
	require.NoError(t, err)
	assert.Equal(t, normalize.UpsertStats{Skipped: 3}, again)

	items, err := store.ListContent(ctx, id.PersonID, storage.ContentFilter{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, "run-1", it.RunID, "unchanged items keep the run that wrote them")
		assert.Equal(t, types.FetchStatusFetched, it.FetchStatus)
	}
}

func TestNormalizeAndUpsert_UpdatesChangedText(t *testing.T) {
	store, id := setup(t)
	ctx := context.Background()
	n := normalize.New(store)

	_, err := n.NormalizeAndUpsert(ctx, id, types.SourceCode, []sources.RawCandidate{
		repo("https://github.com/janeqr/fold-kit", "fold-kit", "old description"),
	})
	require.NoError(t, err)

	stats, err := n.WithRun("run-2").NormalizeAndUpsert(ctx, id, types.SourceCode, []sources.RawCandidate{
		repo("https://github.com/janeqr/fold-kit", "fold-kit", "new description"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated)

	items, err := store.ListContent(ctx, id.PersonID, storage.ContentFilter{RunID: "run-2"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "new description", items[0].Body)
	assert.Equal(t, types.FetchStatusUpdated, items[0].FetchStatus)
}

func TestNormalizeAndUpsert_StarsChangeUpdates(t *testing.T) {
	store, id := setup(t)
	ctx := context.Background()
	n := normalize.New(store)

	r := repo("https://github.com/janeqr/fold-kit", "fold-kit", "same text")
	_, err := n.NormalizeAndUpsert(ctx, id, types.SourceCode, []sources.RawCandidate{r})
	require.NoError(t, err)

	r.Metadata = map[string]any{sources.MetaKind: sources.KindRepo, sources.MetaVerified: true, sources.MetaStars: 11}
	stats, err := n.NormalizeAndUpsert(ctx, id, types.SourceCode, []sources.RawCandidate{r})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated)
}

func TestNormalizeAndUpsert_NearDuplicate(t *testing.T) {
	store, id := setup(t)
	ctx := context.Background()
	text := "Jane Q. Researcher explains how Acme Labs trains large language models on curated scientific corpora."

	stats, err := normalize.New(store).NormalizeAndUpsert(ctx, id, types.SourceWebSearch, []sources.RawCandidate{
		{URL: "https://news.example/jane-interview", Text: text},
		{URL: "https://mirror.example/copy-of-interview", Text: text},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 1, stats.NearDuplicates)
}

func TestNormalizeAndUpsert_RejectsAndMalformed(t *testing.T) {
	store, id := setup(t)
	ctx := context.Background()

	stats, err := normalize.New(store).NormalizeAndUpsert(ctx, id, types.SourceSocial, []sources.RawCandidate{
		{URL: "https://x.com/janeqr", Text: "Researcher. Opinions my own.", Metadata: map[string]any{sources.MetaKind: sources.KindProfile}},
		{URL: "https://x.com/janeqr/status/1", Text: "Lunch was great", Metadata: map[string]any{sources.MetaKind: sources.KindPost}},
		{URL: "https://x.com/janeqr/status/2", Text: "Джейн Q. Researcher о машинном обучении", Metadata: map[string]any{sources.MetaKind: sources.KindPost}},
		{URL: "ftp://files.example/x", Text: "Jane Q. Researcher deep learning notes"},
		{Text: "   "},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inserted, "the profile always passes")
	assert.Equal(t, 2, stats.Rejected)
	assert.Equal(t, 2, stats.Malformed)
}

func TestNormalizeAndUpsert_TextOnlyItemsHashByText(t *testing.T) {
	store, id := setup(t)
	ctx := context.Background()
	answer := sources.RawCandidate{
		Text:     "Jane Q. Researcher is a computer scientist at Acme Labs.",
		Metadata: map[string]any{sources.MetaKind: sources.KindAnswer},
	}

	n := normalize.New(store)
	first, err := n.NormalizeAndUpsert(ctx, id, types.SourceWebSearch, []sources.RawCandidate{answer})
	require.NoError(t, err)
	second, err := n.NormalizeAndUpsert(ctx, id, types.SourceWebSearch, []sources.RawCandidate{answer})
	require.NoError(t, err)

	assert.Equal(t, 1, first.Inserted)
	assert.Equal(t, 1, second.Skipped)
}

func TestReevaluate_RetractsAfterContextChange(t *testing.T) {
	store, id := setup(t)
	ctx := context.Background()
	n := normalize.New(store)

	_, err := n.NormalizeAndUpsert(ctx, id, types.SourceVideo, []sources.RawCandidate{
		{URL: "https://youtube.com/watch?v=a", Text: "Jane Q. Researcher visits Acme Labs"},
		{URL: "https://youtube.com/watch?v=b", Text: "Jane Q. Researcher talks about deep learning"},
	})
	require.NoError(t, err)

	// Organization tags changed: the first video no longer corroborates.
	id.Organizations = []string{"Other Institute"}
	stats, err := n.Reevaluate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, normalize.ReevaluateStats{Checked: 2, Retracted: 1}, stats)

	again, err := n.Reevaluate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, normalize.ReevaluateStats{Checked: 2}, again, "second pass changes nothing")

	count, err := store.CountContent(ctx, id.PersonID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	id.Organizations = []string{"Acme Labs"}
	restored, err := n.Reevaluate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, restored.Restored)
}
