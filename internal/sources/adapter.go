// Package sources contains one adapter per external system. Each adapter
// turns a person identity into raw candidate items; deduplication, filtering
// and persistence happen downstream in the normalizer.
package sources

import (
	"context"
	"strings"
	"time"

	"github.com/scrypster/luminaries/internal/config"
	"github.com/scrypster/luminaries/internal/identity"
	"github.com/scrypster/luminaries/internal/resilience"
	"github.com/scrypster/luminaries/pkg/types"
)

// FetchStatus distinguishes "source unavailable" from "source returned nothing".
type FetchStatus string

const (
	StatusOK           FetchStatus = "ok"
	StatusUnconfigured FetchStatus = "unconfigured"
)

// Metadata keys shared between adapters and the normalizer.
const (
	MetaKind       = "kind"       // profile, post, repo, video, work, entity, answer, page
	MetaVerified   = "verified"   // true when fetched through the person's own handle or id
	MetaConfidence = "confidence" // high or low (academic)
	MetaStars      = "stars"
	MetaFollowers  = "followers"
	MetaCitations  = "citations"
)

// Item kinds stored under MetaKind.
const (
	KindProfile = "profile"
	KindPost    = "post"
	KindRepo    = "repo"
	KindVideo   = "video"
	KindWork    = "work"
	KindEntity  = "entity"
	KindAnswer  = "answer"
	KindPage    = "page"
)

// RawCandidate is one item as fetched, before normalization.
type RawCandidate struct {
	URL         string
	Title       string
	Text        string
	PublishedAt *time.Time
	Metadata    map[string]any
}

// FetchResult is what an adapter returns for one person.
type FetchResult struct {
	Status FetchStatus
	Items  []RawCandidate

	// Warnings lists sub-requests that failed while others succeeded.
	Warnings []string
}

// Unconfigured is the result of an adapter without credentials.
func Unconfigured() FetchResult {
	return FetchResult{Status: StatusUnconfigured}
}

// Adapter fetches candidate content for a person from one external system.
type Adapter interface {
	Kind() types.SourceKind

	// Configured reports whether the adapter has what it needs to run.
	Configured() bool

	// Fetch returns candidates published after since, when the source
	// supports it. A nil since fetches everything.
	Fetch(ctx context.Context, id types.PersonIdentity, since *time.Time) (FetchResult, error)
}

// NewAdapters builds every adapter from cfg. kb backs the knowledge-base
// adapter and may be nil.
func NewAdapters(cfg config.SourcesConfig, kb identity.KnowledgeBase) []Adapter {
	return []Adapter{
		NewKnowledgeBase(kb, cfg.WikidataURL),
		NewGitHub(cfg),
		NewYouTube(cfg),
		NewX(cfg),
		NewOpenAlex(cfg),
		NewWebSearch(cfg),
	}
}

func newClient(name string, cfg config.SourcesConfig, rps float64) *resilience.HTTPClient {
	return resilience.NewHTTPClient(resilience.HTTPConfig{
		Name:       name,
		Timeout:    cfg.RequestTimeout,
		Rate:       rps,
		MaxRetries: cfg.MaxRetries,
		UserAgent:  cfg.UserAgent,
	})
}

func meta(kind string, kv ...any) map[string]any {
	m := map[string]any{MetaKind: kind}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			m[k] = kv[i+1]
		}
	}
	return m
}

// parseTime accepts RFC 3339 timestamps and bare dates.
func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "Mon, 02 Jan 2006 15:04:05 MST"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
