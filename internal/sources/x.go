package sources

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/scrypster/luminaries/internal/config"
	"github.com/scrypster/luminaries/internal/logging"
	"github.com/scrypster/luminaries/internal/resilience"
	"github.com/scrypster/luminaries/pkg/types"
)

// X fetches the person's profile and recent posts from the X API v2.
type X struct {
	token    string
	baseURL  string
	maxPosts int
	http     *resilience.HTTPClient
}

// NewX creates the social adapter.
func NewX(cfg config.SourcesConfig) *X {
	return &X{
		token:    cfg.XBearerToken,
		baseURL:  strings.TrimRight(cfg.XURL, "/"),
		maxPosts: min(max(cfg.XMaxPosts, 5), 100),
		http:     newClient("x", cfg, 0),
	}
}

func (x *X) Kind() types.SourceKind { return types.SourceSocial }
func (x *X) Configured() bool       { return x.token != "" }

type xUserResponse struct {
	Data struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		Username      string `json:"username"`
		Description   string `json:"description"`
		Location      string `json:"location"`
		CreatedAt     string `json:"created_at"`
		PublicMetrics struct {
			Followers int `json:"followers_count"`
			Following int `json:"following_count"`
			Posts     int `json:"tweet_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}

type xPostsResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Text          string `json:"text"`
		CreatedAt     string `json:"created_at"`
		PublicMetrics struct {
			Likes   int `json:"like_count"`
			Reposts int `json:"retweet_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}

// Fetch returns one profile item, always kept downstream, followed by post
// items tagged kind=post for relevance filtering. A failed timeline request
// still returns the profile.
func (x *X) Fetch(ctx context.Context, id types.PersonIdentity, since *time.Time) (FetchResult, error) {
	if !x.Configured() {
		return Unconfigured(), nil
	}
	handle := ""
	if l, ok := id.LinkOf(types.LinkSocial); ok && l.Platform == "x" {
		handle = l.Handle
	}
	if handle == "" {
		return FetchResult{Status: StatusOK}, nil
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+x.token)

	var user xUserResponse
	u := x.baseURL + "/users/by/username/" + url.PathEscape(handle) +
		"?user.fields=description,location,created_at,public_metrics"
	if err := x.http.GetJSON(ctx, u, header, &user); err != nil {
		return FetchResult{}, err
	}

	profile := RawCandidate{
		URL:         "https://x.com/" + user.Data.Username,
		Title:       user.Data.Name + " (@" + user.Data.Username + ")",
		Text:        joinNonEmpty("\n", user.Data.Name, user.Data.Description, user.Data.Location),
		PublishedAt: parseTime(user.Data.CreatedAt),
		Metadata: meta(KindProfile,
			MetaVerified, true,
			MetaFollowers, user.Data.PublicMetrics.Followers,
			"user_id", user.Data.ID,
			"posts", user.Data.PublicMetrics.Posts,
		),
	}
	result := FetchResult{Status: StatusOK, Items: []RawCandidate{profile}}

	v := url.Values{}
	v.Set("max_results", strconv.Itoa(x.maxPosts))
	v.Set("tweet.fields", "created_at,public_metrics")
	v.Set("exclude", "retweets,replies")
	if since != nil {
		v.Set("start_time", since.UTC().Format(time.RFC3339))
	}
	var posts xPostsResponse
	if err := x.http.GetJSON(ctx, x.baseURL+"/users/"+url.PathEscape(user.Data.ID)+"/tweets?"+v.Encode(), header, &posts); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("handle", handle).Msg("x timeline request failed")
		result.Warnings = append(result.Warnings, err.Error())
		return result, nil
	}

	for _, p := range posts.Data {
		result.Items = append(result.Items, RawCandidate{
			URL:         "https://x.com/" + user.Data.Username + "/status/" + p.ID,
			Text:        p.Text,
			PublishedAt: parseTime(p.CreatedAt),
			Metadata: meta(KindPost,
				"likes", p.PublicMetrics.Likes,
				"reposts", p.PublicMetrics.Reposts,
			),
		})
	}
	return result, nil
}
