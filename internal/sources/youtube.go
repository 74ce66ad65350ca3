package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scrypster/luminaries/internal/config"
	"github.com/scrypster/luminaries/internal/logging"
	"github.com/scrypster/luminaries/internal/resilience"
	"github.com/scrypster/luminaries/pkg/types"
)

// YouTube searches videos by the person's names and, when known, lists the
// person's own channel.
type YouTube struct {
	apiKey      string
	baseURL     string
	concurrency int
	maxResults  int
	http        *resilience.HTTPClient
}

// NewYouTube creates the video adapter.
func NewYouTube(cfg config.SourcesConfig) *YouTube {
	return &YouTube{
		apiKey:      cfg.YouTubeAPIKey,
		baseURL:     strings.TrimRight(cfg.YouTubeURL, "/"),
		concurrency: max(cfg.YouTubeConcurrency, 1),
		maxResults:  max(cfg.YouTubeMaxResults, 1),
		http:        newClient("youtube", cfg, 0),
	}
}

func (y *YouTube) Kind() types.SourceKind { return types.SourceVideo }
func (y *YouTube) Configured() bool       { return y.apiKey != "" }

type ytSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			PublishedAt  string `json:"publishedAt"`
			ChannelID    string `json:"channelId"`
			ChannelTitle string `json:"channelTitle"`
			Title        string `json:"title"`
			Description  string `json:"description"`
		} `json:"snippet"`
	} `json:"items"`
}

type ytQuery struct {
	q         string
	channelID string
}

// Fetch runs one search per name and alias, plus one for the person's own
// channel, with bounded concurrency. Results are merged by video id in
// query order; a video seen on the person's channel is marked verified.
func (y *YouTube) Fetch(ctx context.Context, id types.PersonIdentity, since *time.Time) (FetchResult, error) {
	if !y.Configured() {
		return Unconfigured(), nil
	}

	var queries []ytQuery
	if l, ok := id.LinkOf(types.LinkVideo); ok && l.Platform == "youtube" && strings.HasPrefix(l.Handle, "UC") {
		queries = append(queries, ytQuery{channelID: l.Handle})
	}
	for _, name := range id.Names() {
		queries = append(queries, ytQuery{q: name})
	}
	if len(queries) == 0 {
		return FetchResult{Status: StatusOK}, nil
	}

	results := make([]*ytSearchResponse, len(queries))
	var mu sync.Mutex
	var warnings []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(y.concurrency)
	for i, q := range queries {
		g.Go(func() error {
			resp, err := y.search(gctx, q, since)
			if err != nil {
				// One failed query must not discard the others.
				logging.Ctx(ctx).Warn().Err(err).Str("query", q.q).Msg("youtube query failed")
				mu.Lock()
				warnings = append(warnings, err.Error())
				mu.Unlock()
				return nil
			}
			results[i] = resp
			return nil
		})
	}
	_ = g.Wait()

	if len(warnings) == len(queries) {
		return FetchResult{}, fmt.Errorf("youtube: all %d queries failed: %s", len(queries), warnings[0])
	}

	seen := map[string]int{}
	var items []RawCandidate
	for i, resp := range results {
		if resp == nil {
			continue
		}
		own := queries[i].channelID != ""
		for _, v := range resp.Items {
			vid := v.ID.VideoID
			if vid == "" {
				continue
			}
			if idx, ok := seen[vid]; ok {
				if own {
					items[idx].Metadata[MetaVerified] = true
				}
				continue
			}
			seen[vid] = len(items)
			items = append(items, RawCandidate{
				URL:         "https://www.youtube.com/watch?v=" + vid,
				Title:       v.Snippet.Title,
				Text:        joinNonEmpty("\n", v.Snippet.Title, v.Snippet.Description, "Channel: "+v.Snippet.ChannelTitle),
				PublishedAt: parseTime(v.Snippet.PublishedAt),
				Metadata: meta(KindVideo,
					MetaVerified, own,
					"video_id", vid,
					"channel_id", v.Snippet.ChannelID,
					"channel_title", v.Snippet.ChannelTitle,
				),
			})
		}
	}
	return FetchResult{Status: StatusOK, Items: items, Warnings: warnings}, nil
}

func (y *YouTube) search(ctx context.Context, q ytQuery, since *time.Time) (*ytSearchResponse, error) {
	v := url.Values{}
	v.Set("part", "snippet")
	v.Set("type", "video")
	v.Set("maxResults", strconv.Itoa(y.maxResults))
	v.Set("key", y.apiKey)
	if q.channelID != "" {
		v.Set("channelId", q.channelID)
		v.Set("order", "date")
	} else {
		v.Set("q", q.q)
		v.Set("order", "relevance")
	}
	if since != nil {
		v.Set("publishedAfter", since.UTC().Format(time.RFC3339))
	}

	var resp ytSearchResponse
	if err := y.http.GetJSON(ctx, y.baseURL+"/search?"+v.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
