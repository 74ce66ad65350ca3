package sources

import (
	"context"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/scrypster/luminaries/internal/config"
	"github.com/scrypster/luminaries/internal/logging"
	"github.com/scrypster/luminaries/internal/resilience"
	"github.com/scrypster/luminaries/pkg/types"
)

// maxPageChars bounds the text kept per result page.
const maxPageChars = 8000

// WebSearch queries a QA search API (Tavily-compatible) for the person.
type WebSearch struct {
	apiKey     string
	baseURL    string
	maxResults int
	http       *resilience.HTTPClient
}

// NewWebSearch creates the web-search adapter.
func NewWebSearch(cfg config.SourcesConfig) *WebSearch {
	return &WebSearch{
		apiKey:     cfg.WebSearchAPIKey,
		baseURL:    strings.TrimRight(cfg.WebSearchURL, "/"),
		maxResults: max(cfg.WebSearchMax, 1),
		http:       newClient("websearch", cfg, 0),
	}
}

func (w *WebSearch) Kind() types.SourceKind { return types.SourceWebSearch }
func (w *WebSearch) Configured() bool       { return w.apiKey != "" }

type wsRequest struct {
	APIKey            string `json:"api_key"`
	Query             string `json:"query"`
	SearchDepth       string `json:"search_depth"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeRawContent bool   `json:"include_raw_content"`
	MaxResults        int    `json:"max_results"`
}

type wsResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title         string  `json:"title"`
		URL           string  `json:"url"`
		Content       string  `json:"content"`
		RawContent    string  `json:"raw_content"`
		PublishedDate string  `json:"published_date"`
		Score         float64 `json:"score"`
	} `json:"results"`
}

// Fetch asks one question combining the name with the strongest context
// term, returning the synthesized answer and each result page as text.
func (w *WebSearch) Fetch(ctx context.Context, id types.PersonIdentity, _ *time.Time) (FetchResult, error) {
	if !w.Configured() {
		return Unconfigured(), nil
	}
	if id.Name == "" {
		return FetchResult{Status: StatusOK}, nil
	}

	query := id.Name
	switch {
	case len(id.Organizations) > 0:
		query += " " + id.Organizations[0]
	case len(id.Occupations) > 0:
		query += " " + id.Occupations[0]
	}

	var resp wsResponse
	err := w.http.PostJSON(ctx, w.baseURL+"/search", nil, wsRequest{
		APIKey:            w.apiKey,
		Query:             query,
		SearchDepth:       "basic",
		IncludeAnswer:     true,
		IncludeRawContent: true,
		MaxResults:        w.maxResults,
	}, &resp)
	if err != nil {
		return FetchResult{}, err
	}

	var items []RawCandidate
	if a := strings.TrimSpace(resp.Answer); a != "" {
		items = append(items, RawCandidate{
			Title:    query,
			Text:     a,
			Metadata: meta(KindAnswer, "query", query),
		})
	}
	for _, r := range resp.Results {
		text := r.Content
		if raw := strings.TrimSpace(r.RawContent); raw != "" {
			text = pageText(ctx, raw)
		}
		items = append(items, RawCandidate{
			URL:         r.URL,
			Title:       r.Title,
			Text:        text,
			PublishedAt: parseTime(r.PublishedDate),
			Metadata:    meta(KindPage, "score", r.Score),
		})
	}
	return FetchResult{Status: StatusOK, Items: items}, nil
}

// pageText converts raw page HTML to markdown text. Content that is already
// plain text is passed through.
func pageText(ctx context.Context, raw string) string {
	if strings.Contains(raw, "</") {
		md, err := htmltomarkdown.ConvertString(raw)
		if err != nil {
			logging.Ctx(ctx).Debug().Err(err).Msg("html to markdown failed, keeping raw text")
		} else {
			raw = md
		}
	}
	raw = strings.TrimSpace(raw)
	if r := []rune(raw); len(r) > maxPageChars {
		raw = string(r[:maxPageChars])
	}
	return raw
}
