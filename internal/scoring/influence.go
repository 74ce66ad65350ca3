package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/luminaries/internal/sources"
	"github.com/scrypster/luminaries/pkg/types"
)

// InfluenceInput carries the popularity signals influence is derived from.
type InfluenceInput struct {
	FeedRank  int      // 1-based rank in the external feed, 0 when absent
	Override  *float64 // a feed-supplied value that replaces the computed score
	Stars     int      // summed over the person's repositories
	Followers int
	Citations int
}

// Influence returns a non-negative, unbounded score. Each signal is log
// scaled so that no single platform dominates; a feed rank adds a bonus
// that halves with every doubling of the rank.
func Influence(in InfluenceInput) float64 {
	if in.Override != nil {
		return math.Max(*in.Override, 0)
	}
	score := 10*math.Log10(1+float64(max(in.Stars, 0))) +
		10*math.Log10(1+float64(max(in.Followers, 0))) +
		10*math.Log10(1+float64(max(in.Citations, 0)))
	if in.FeedRank > 0 {
		score += 50 / float64(in.FeedRank)
	}
	return math.Round(score*100) / 100
}

// FeedEntry is one person in the influence feed.
type FeedEntry struct {
	IdentityKey string   `yaml:"identity_key"`
	Name        string   `yaml:"name"`
	Rank        int      `yaml:"rank"`
	Influence   *float64 `yaml:"influence"`
}

// Feed is an externally maintained ranking of people, read from YAML:
//
//	persons:
//	  - identity_key: Q7
//	    rank: 3
//	  - name: Jane Q. Researcher
//	    influence: 88.5
type Feed struct {
	Persons []FeedEntry `yaml:"persons"`

	byKey  map[string]FeedEntry
	byName map[string]FeedEntry
}

// LoadFeed reads a feed file. An empty path yields an empty feed.
func LoadFeed(path string) (*Feed, error) {
	if path == "" {
		return NewFeed(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read influence feed: %w", err)
	}
	var f Feed
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse influence feed %s: %w", path, err)
	}
	for i, e := range f.Persons {
		if e.IdentityKey == "" && e.Name == "" {
			return nil, fmt.Errorf("influence feed entry %d needs identity_key or name", i)
		}
	}
	return NewFeed(f.Persons), nil
}

// NewFeed indexes entries.
func NewFeed(entries []FeedEntry) *Feed {
	f := &Feed{Persons: entries, byKey: map[string]FeedEntry{}, byName: map[string]FeedEntry{}}
	for _, e := range entries {
		if e.IdentityKey != "" {
			f.byKey[e.IdentityKey] = e
		}
		if e.Name != "" {
			f.byName[strings.ToLower(strings.TrimSpace(e.Name))] = e
		}
	}
	return f
}

// Lookup finds the entry for a person, by identity key first.
func (f *Feed) Lookup(identityKey, name string) (FeedEntry, bool) {
	if f == nil {
		return FeedEntry{}, false
	}
	if e, ok := f.byKey[identityKey]; ok && identityKey != "" {
		return e, true
	}
	e, ok := f.byName[strings.ToLower(strings.TrimSpace(name))]
	return e, ok
}

// InfluenceInputFor gathers signals from a person's content and the feed.
// Stars are summed over repositories; followers and citations take the
// largest profile value, falling back to summed work citations.
func InfluenceInputFor(identityKey, name string, items []*types.ContentItem, feed *Feed) InfluenceInput {
	var in InfluenceInput
	workCitations := 0
	for _, it := range items {
		if it.Retracted() {
			continue
		}
		kind := it.MetaString(sources.MetaKind)
		switch it.Source {
		case types.SourceCode:
			in.Stars += MetaCount(it.Metadata[sources.MetaStars])
		case types.SourceSocial:
			in.Followers = max(in.Followers, MetaCount(it.Metadata[sources.MetaFollowers]))
		case types.SourceAcademic:
			if kind == sources.KindProfile {
				in.Citations = max(in.Citations, MetaCount(it.Metadata[sources.MetaCitations]))
			} else {
				workCitations += MetaCount(it.Metadata[sources.MetaCitations])
			}
		}
	}
	if in.Citations == 0 {
		in.Citations = workCitations
	}
	if e, ok := feed.Lookup(identityKey, name); ok {
		in.FeedRank = e.Rank
		in.Override = e.Influence
	}
	return in
}

// MetaCount reads a metadata count that may have been through JSON.
func MetaCount(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}
