package sources

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/luminaries/internal/config"
	"github.com/scrypster/luminaries/internal/identity"
	"github.com/scrypster/luminaries/pkg/types"
)

// testConfig points every adapter at srv with credentials set and retries off.
func testConfig(srv *httptest.Server) config.SourcesConfig {
	cfg := config.Default().Sources
	cfg.MaxRetries = 0
	cfg.RequestTimeout = 2 * time.Second
	cfg.GitHubRate = 1000
	cfg.WikidataRate = 1000
	for _, u := range []*string{&cfg.WikidataURL, &cfg.GitHubURL, &cfg.YouTubeURL, &cfg.XURL, &cfg.OpenAlexURL, &cfg.WebSearchURL} {
		*u = srv.URL
	}
	cfg.GitHubToken = "gh-token"
	cfg.YouTubeAPIKey = "yt-key"
	cfg.XBearerToken = "x-token"
	cfg.WebSearchAPIKey = "ws-key"
	return cfg
}

func jane() types.PersonIdentity {
	return types.PersonIdentity{
		PersonID:      "p1",
		IdentityKey:   "Q7",
		Name:          "Jane Q. Researcher",
		Aliases:       []string{"简·研究员"},
		Organizations: []string{"Acme Labs"},
		Links: []types.Link{
			types.NewLink("github", "janeqr"),
			types.NewLink("x", "janeqr"),
			types.NewLink("orcid", "0000-0002-1825-0097"),
			types.NewLink("youtube", "UCjane"),
		},
	}
}

func TestUnconfiguredAdapters(t *testing.T) {
	cfg := config.Default().Sources
	adapters := NewAdapters(cfg, nil)
	require.Len(t, adapters, len(types.AllSources))

	want := map[types.SourceKind]bool{
		types.SourceKnowledgeBase: false,
		types.SourceCode:          false,
		types.SourceVideo:         false,
		types.SourceSocial:        false,
		types.SourceAcademic:      true, // OpenAlex needs no credential
		types.SourceWebSearch:     false,
	}
	for _, a := range adapters {
		assert.Equal(t, want[a.Kind()], a.Configured(), a.Kind())
		if a.Configured() {
			continue
		}
		res, err := a.Fetch(context.Background(), jane(), nil)
		require.NoError(t, err, "unconfigured adapters must not error")
		assert.Equal(t, StatusUnconfigured, res.Status)
		assert.Empty(t, res.Items)
	}
}

func TestGitHub_RanksByStarsAndCaps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/janeqr/repos", r.URL.Path)
		assert.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[
			{"name":"small","html_url":"https://github.com/janeqr/small","stargazers_count":3},
			{"name":"forked","html_url":"https://github.com/janeqr/forked","stargazers_count":900,"fork":true},
			{"name":"big","full_name":"janeqr/big","html_url":"https://github.com/janeqr/big","stargazers_count":500,"description":"Protein folding toolkit","language":"Python","pushed_at":"2024-05-01T10:00:00Z"},
			{"name":"mid","html_url":"https://github.com/janeqr/mid","stargazers_count":40}
		]`))
	}))
	defer srv.Close()

	cfg := testConfig(srv)
	cfg.GitHubMaxRepos = 2
	res, err := NewGitHub(cfg).Fetch(context.Background(), jane(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "big", res.Items[0].Title)
	assert.Equal(t, "mid", res.Items[1].Title)
	assert.Equal(t, 500, res.Items[0].Metadata[MetaStars])
	assert.Equal(t, true, res.Items[0].Metadata[MetaVerified])
	assert.Contains(t, res.Items[0].Text, "Protein folding toolkit")
	require.NotNil(t, res.Items[0].PublishedAt)
	assert.Equal(t, 2024, res.Items[0].PublishedAt.Year())
}

func TestGitHub_NoHandle(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	id := jane()
	id.Links = nil
	res, err := NewGitHub(testConfig(srv)).Fetch(context.Background(), id, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Empty(t, res.Items)
}

func TestGitHub_ServerErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewGitHub(testConfig(srv)).Fetch(context.Background(), jane(), nil)
	assert.Error(t, err)
}

func TestYouTube_MergesQueriesByVideoID(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		assert.Equal(t, "yt-key", q.Get("key"))
		assert.Equal(t, "2024-01-01T00:00:00Z", q.Get("publishedAfter"))
		switch {
		case q.Get("channelId") == "UCjane":
			_, _ = w.Write([]byte(`{"items":[{"id":{"videoId":"v1"},"snippet":{"title":"Keynote","channelTitle":"Jane"}}]}`))
		case q.Get("q") == "Jane Q. Researcher":
			_, _ = w.Write([]byte(`{"items":[
				{"id":{"videoId":"v1"},"snippet":{"title":"Keynote","channelTitle":"Jane"}},
				{"id":{"videoId":"v2"},"snippet":{"title":"Interview","publishedAt":"2024-02-03T04:05:06Z"}}]}`))
		case q.Get("q") == "简·研究员":
			_, _ = w.Write([]byte(`{"items":[{"id":{"videoId":"v2"},"snippet":{"title":"Interview"}},{"id":{"videoId":"v3"},"snippet":{"title":"访谈"}}]}`))
		default:
			t.Errorf("unexpected query %v", q)
		}
	}))
	defer srv.Close()

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	res, err := NewYouTube(testConfig(srv)).Fetch(context.Background(), jane(), &since)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())

	require.Len(t, res.Items, 3)
	ids := []string{}
	for _, it := range res.Items {
		ids = append(ids, it.Metadata["video_id"].(string))
	}
	assert.Equal(t, []string{"v1", "v2", "v3"}, ids)
	assert.Equal(t, true, res.Items[0].Metadata[MetaVerified])
	assert.Equal(t, false, res.Items[1].Metadata[MetaVerified])
	assert.Equal(t, "https://www.youtube.com/watch?v=v2", res.Items[1].URL)
}

func TestYouTube_PartialFailureKeepsOtherQueries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "简·研究员" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"id":{"videoId":"v1"},"snippet":{"title":"Keynote"}}]}`))
	}))
	defer srv.Close()

	res, err := NewYouTube(testConfig(srv)).Fetch(context.Background(), jane(), nil)
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
	assert.Len(t, res.Warnings, 1)
}

func TestX_ProfileAndPosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer x-token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/users/by/username/janeqr":
			_, _ = w.Write([]byte(`{"data":{"id":"42","name":"Jane Q. Researcher","username":"janeqr",
				"description":"Research scientist at Acme Labs","public_metrics":{"followers_count":1200}}}`))
		case "/users/42/tweets":
			_, _ = w.Write([]byte(`{"data":[{"id":"1","text":"New paper on protein folding","created_at":"2024-03-01T00:00:00Z"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	res, err := NewX(testConfig(srv)).Fetch(context.Background(), jane(), nil)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)

	profile := res.Items[0]
	assert.Equal(t, KindProfile, profile.Metadata[MetaKind])
	assert.Equal(t, 1200, profile.Metadata[MetaFollowers])
	assert.Equal(t, "https://x.com/janeqr", profile.URL)

	post := res.Items[1]
	assert.Equal(t, KindPost, post.Metadata[MetaKind])
	assert.Nil(t, post.Metadata[MetaVerified], "posts are subject to relevance filtering")
	assert.Equal(t, "https://x.com/janeqr/status/1", post.URL)
}

func TestX_TimelineFailureKeepsProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/users/by/username/") {
			_, _ = w.Write([]byte(`{"data":{"id":"42","name":"Jane","username":"janeqr"}}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	res, err := NewX(testConfig(srv)).Fetch(context.Background(), jane(), nil)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Len(t, res.Warnings, 1)
}

func TestOpenAlex_PrefersORCID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/authors/orcid:0000-0002-1825-0097":
			_, _ = w.Write([]byte(`{"id":"https://openalex.org/A1","display_name":"Jane Q. Researcher",
				"works_count":12,"cited_by_count":3400,"last_known_institutions":[{"display_name":"Acme Labs"}]}`))
		case "/works":
			assert.Equal(t, "author.id:A1", r.URL.Query().Get("filter"))
			_, _ = w.Write([]byte(`{"results":[{"id":"https://openalex.org/W1","doi":"https://doi.org/10.1/abc",
				"display_name":"Folding at scale","cited_by_count":900,"publication_date":"2021-06-01",
				"abstract_inverted_index":{"We":[0],"fold":[1],"proteins":[2]},
				"authorships":[{"author":{"display_name":"Jane Q. Researcher"},"institutions":[{"display_name":"Acme Labs"}]}]}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	res, err := NewOpenAlex(testConfig(srv)).Fetch(context.Background(), jane(), nil)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, ConfidenceHigh, res.Items[0].Metadata[MetaConfidence])
	assert.Equal(t, 3400, res.Items[0].Metadata[MetaCitations])

	work := res.Items[1]
	assert.Equal(t, "https://doi.org/10.1/abc", work.URL)
	assert.Contains(t, work.Text, "We fold proteins")
	assert.Contains(t, work.Text, "Affiliation: Acme Labs.")
	assert.Equal(t, true, work.Metadata[MetaVerified])
}

func TestOpenAlex_NameSearchFallbackIsLowConfidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/authors":
			assert.Equal(t, "Jane Q. Researcher", r.URL.Query().Get("search"))
			_, _ = w.Write([]byte(`{"results":[
				{"id":"https://openalex.org/A9","display_name":"Jane Researcher","cited_by_count":9000},
				{"id":"https://openalex.org/A2","display_name":"Jane Q. Researcher","cited_by_count":10}]}`))
		case "/works":
			assert.Equal(t, "author.id:A2", r.URL.Query().Get("filter"))
			_, _ = w.Write([]byte(`{"results":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	id := jane()
	id.Links = nil
	res, err := NewOpenAlex(testConfig(srv)).Fetch(context.Background(), id, nil)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, ConfidenceLow, res.Items[0].Metadata[MetaConfidence])
	assert.Equal(t, false, res.Items[0].Metadata[MetaVerified])
}

func TestWebSearch_ConvertsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req wsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ws-key", req.APIKey)
		assert.Equal(t, "Jane Q. Researcher Acme Labs", req.Query)
		_, _ = w.Write([]byte(`{"answer":"Jane Q. Researcher is a scientist at Acme Labs.",
			"results":[{"title":"Profile","url":"https://acme.example/jane",
			"raw_content":"<html><body><h1>Jane</h1><p>Leads <b>folding</b> research.</p></body></html>"}]}`))
	}))
	defer srv.Close()

	res, err := NewWebSearch(testConfig(srv)).Fetch(context.Background(), jane(), nil)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, KindAnswer, res.Items[0].Metadata[MetaKind])
	assert.Empty(t, res.Items[0].URL)

	page := res.Items[1]
	assert.NotContains(t, page.Text, "<p>")
	assert.Contains(t, page.Text, "# Jane")
	assert.Contains(t, page.Text, "**folding**")
}

// stubKB serves a single entity.
type stubKB struct{ err error }

func (s stubKB) Search(context.Context, string, int) ([]identity.Candidate, error) { return nil, nil }
func (s stubKB) GetEntity(_ context.Context, id string) (*identity.Entity, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &identity.Entity{ID: id, Label: "Jane Q. Researcher", Description: "computer scientist",
		Organizations: []string{"Acme Labs"}}, nil
}

func TestKnowledgeBaseAdapter(t *testing.T) {
	a := NewKnowledgeBase(stubKB{}, "https://kb.example")
	res, err := a.Fetch(context.Background(), jane(), nil)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "https://kb.example/wiki/Q7", res.Items[0].URL)
	assert.Contains(t, res.Items[0].Text, "Organizations: Acme Labs.")

	_, err = NewKnowledgeBase(stubKB{err: errors.New("down")}, "").Fetch(context.Background(), jane(), nil)
	assert.Error(t, err)
}

func TestRebuildAbstract(t *testing.T) {
	idx := map[string]any{"world": []any{1.0}, "hello": []any{0.0, 2.0}}
	assert.Equal(t, "hello world hello", rebuildAbstract(idx))
	assert.Empty(t, rebuildAbstract(nil))

	bogus := map[string]any{"hello": []any{0.0}, "world": []any{1.0}, "junk": []any{4e9, -3.0}}
	assert.Equal(t, "hello world", rebuildAbstract(bogus), "out-of-range positions are dropped")
}
