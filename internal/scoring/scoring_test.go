package scoring

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/luminaries/internal/sources"
	"github.com/scrypster/luminaries/pkg/types"
)

func full() Snapshot {
	return Snapshot{
		AvatarURL:     "https://img.example/jane.png",
		Description:   strings.Repeat("d", DescriptionFull),
		Occupations:   []string{"computer scientist"},
		Organizations: []string{"Acme Labs"},
		Links:         4,
		Gender:        "female",
		Country:       "Canada",
		BirthYear:     1985,
		ContentItems:  20,
		CareerEvents:  10,
		Cards:         8,
	}
}

func TestWeightsSumTo100(t *testing.T) {
	sum := 0
	for _, w := range Weights {
		sum += w
	}
	assert.Equal(t, 100, sum)
	assert.Equal(t, 100, Score(full()).Total)
}

func TestScore_Empty(t *testing.T) {
	res := Score(Snapshot{})
	assert.Zero(t, res.Total)
	assert.Len(t, res.Breakdown, len(Weights))
}

func TestScore_ClampsEverySubScore(t *testing.T) {
	s := full()
	s.Links = 50
	s.ContentItems = 10_000
	s.CareerEvents = 500
	s.Cards = 99
	res := Score(s)
	assert.Equal(t, 100, res.Total)
	for field, points := range res.Breakdown {
		assert.LessOrEqual(t, points, Weights[field], field)
	}
	assert.Equal(t, 12, res.Breakdown[FieldLinks])
}

func TestScore_NegativeCountsScoreZero(t *testing.T) {
	res := Score(Snapshot{Links: -3, ContentItems: -1})
	assert.Zero(t, res.Total)
}

func TestScore_PartialFields(t *testing.T) {
	tests := []struct {
		name  string
		snap  Snapshot
		field string
		want  int
	}{
		{"short description", Snapshot{Description: strings.Repeat("d", DescriptionPartial)}, FieldDescription, 5},
		{"tiny description", Snapshot{Description: "AI person"}, FieldDescription, 0},
		{"han description counts runes", Snapshot{Description: strings.Repeat("研", DescriptionFull)}, FieldDescription, 10},
		{"one link", Snapshot{Links: 1}, FieldLinks, 6},
		{"three links", Snapshot{Links: 3}, FieldLinks, 11},
		{"one demographic", Snapshot{Country: "Canada"}, FieldDemographics, 2},
		{"two demographics", Snapshot{Country: "Canada", BirthYear: 1985}, FieldDemographics, 4},
		{"blank occupation tag", Snapshot{Occupations: []string{""}}, FieldOccupation, 0},
		{"one content item", Snapshot{ContentItems: 1}, FieldContent, 3},
		{"two content items", Snapshot{ContentItems: 2}, FieldContent, 5},
		{"one career event", Snapshot{CareerEvents: 1}, FieldCareer, 4},
		{"one card", Snapshot{Cards: 1}, FieldCards, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.snap).Breakdown[tt.field])
		})
	}
}

func TestScore_MonotonicInCounts(t *testing.T) {
	prev := -1
	for n := 0; n <= 25; n++ {
		got := Score(Snapshot{ContentItems: n}).Breakdown[FieldContent]
		assert.GreaterOrEqual(t, got, prev, "n=%d", n)
		prev = got
	}
}

func TestScore_LinkCreditDiminishes(t *testing.T) {
	var gains []int
	prev := 0
	for n := 1; n <= 4; n++ {
		got := Score(Snapshot{Links: n}).Breakdown[FieldLinks]
		gains = append(gains, got-prev)
		prev = got
	}
	assert.Equal(t, []int{6, 3, 2, 1}, gains)
	assert.Equal(t, Weights[FieldLinks], Score(Snapshot{Links: 9}).Breakdown[FieldLinks])
}

func TestScore_Deterministic(t *testing.T) {
	s := full()
	s.ContentItems = 7
	assert.Equal(t, Score(s), Score(s))
}

func TestInfluence(t *testing.T) {
	assert.Zero(t, Influence(InfluenceInput{}))
	assert.InDelta(t, 30.0, Influence(InfluenceInput{Stars: 999}), 0.01)

	base := Influence(InfluenceInput{Stars: 100, Followers: 1000})
	ranked := Influence(InfluenceInput{Stars: 100, Followers: 1000, FeedRank: 2})
	assert.InDelta(t, 25.0, ranked-base, 0.01)

	override := 7.5
	assert.Equal(t, 7.5, Influence(InfluenceInput{Stars: 1e6, Override: &override}))
	negative := -3.0
	assert.Zero(t, Influence(InfluenceInput{Override: &negative}))
}

func TestInfluenceInputFor(t *testing.T) {
	items := []*types.ContentItem{
		{Source: types.SourceCode, Metadata: map[string]any{sources.MetaStars: float64(500)}},
		{Source: types.SourceCode, Metadata: map[string]any{sources.MetaStars: 40}},
		{Source: types.SourceCode, FetchStatus: types.FetchStatusRetracted, Metadata: map[string]any{sources.MetaStars: 9000}},
		{Source: types.SourceSocial, Metadata: map[string]any{sources.MetaKind: sources.KindProfile, sources.MetaFollowers: float64(1200)}},
		{Source: types.SourceAcademic, Metadata: map[string]any{sources.MetaKind: sources.KindWork, sources.MetaCitations: 900}},
	}
	feed := NewFeed([]FeedEntry{{IdentityKey: "Q7", Rank: 3}})

	in := InfluenceInputFor("Q7", "Jane Q. Researcher", items, feed)
	assert.Equal(t, 540, in.Stars)
	assert.Equal(t, 1200, in.Followers)
	assert.Equal(t, 900, in.Citations, "work citations when there is no author profile")
	assert.Equal(t, 3, in.FeedRank)

	none := InfluenceInputFor("Q8", "Someone Else", nil, nil)
	assert.Equal(t, InfluenceInput{}, none)
}

func TestLoadFeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
persons:
  - identity_key: Q7
    rank: 1
  - name: Jane Q. Researcher
    influence: 88.5
`), 0o600))

	feed, err := LoadFeed(path)
	require.NoError(t, err)

	e, ok := feed.Lookup("Q7", "")
	require.True(t, ok)
	assert.Equal(t, 1, e.Rank)

	e, ok = feed.Lookup("Q404", "jane q. researcher")
	require.True(t, ok)
	require.NotNil(t, e.Influence)
	assert.Equal(t, 88.5, *e.Influence)

	_, ok = feed.Lookup("", "nobody")
	assert.False(t, ok)

	empty, err := LoadFeed("")
	require.NoError(t, err)
	_, ok = empty.Lookup("Q7", "")
	assert.False(t, ok)
}

func TestLoadFeed_Invalid(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("persons:\n  - rank: 2\n"), 0o600))
	_, err := LoadFeed(bad)
	assert.Error(t, err)

	_, err = LoadFeed(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
