package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/scrypster/luminaries/internal/resilience"
	"github.com/scrypster/luminaries/pkg/types"
)

// Wikidata property ids read from a person entity.
const (
	propImage      = "P18"
	propGender     = "P21"
	propCountry    = "P27"
	propOccupation = "P106"
	propEmployer   = "P108"
	propEducated   = "P69"
	propBirth      = "P569"
	propWebsite    = "P856"
	propORCID      = "P496"
	propTwitter    = "P2002"
	propGitHub     = "P2037"
	propYouTube    = "P2397"
)

var genderLabels = map[string]string{
	"Q6581097": "male",
	"Q6581072": "female",
	"Q1097630": "intersex",
	"Q48270":   "non-binary",
}

// WikidataConfig configures the Wikidata client.
type WikidataConfig struct {
	BaseURL    string   // default: https://www.wikidata.org
	Languages  []string // label preference order (default: en, zh)
	Rate       float64  // requests per second (default: 2)
	Timeout    time.Duration
	MaxRetries int
	UserAgent  string
}

// Wikidata implements KnowledgeBase over the MediaWiki action API.
type Wikidata struct {
	cfg  WikidataConfig
	http *resilience.HTTPClient
}

// NewWikidata creates a Wikidata client.
func NewWikidata(cfg WikidataConfig) *Wikidata {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.wikidata.org"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"en", "zh"}
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 2
	}
	return &Wikidata{
		cfg: cfg,
		http: resilience.NewHTTPClient(resilience.HTTPConfig{
			Name:       "wikidata",
			Timeout:    cfg.Timeout,
			Rate:       cfg.Rate,
			MaxRetries: cfg.MaxRetries,
			UserAgent:  cfg.UserAgent,
		}),
	}
}

type wdSearchResponse struct {
	Search []struct {
		ID          string   `json:"id"`
		Label       string   `json:"label"`
		Description string   `json:"description"`
		Aliases     []string `json:"aliases"`
	} `json:"search"`
}

// Search runs wbsearchentities for name.
func (w *Wikidata) Search(ctx context.Context, name string, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	q := url.Values{}
	q.Set("action", "wbsearchentities")
	q.Set("search", name)
	q.Set("language", w.cfg.Languages[0])
	q.Set("uselang", w.cfg.Languages[0])
	q.Set("type", "item")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("format", "json")

	var resp wdSearchResponse
	if err := w.http.GetJSON(ctx, w.cfg.BaseURL+"/w/api.php?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(resp.Search))
	for _, s := range resp.Search {
		out = append(out, Candidate{ID: s.ID, Label: s.Label, Description: s.Description, Aliases: s.Aliases})
	}
	return out, nil
}

type wdValue struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

type wdClaim struct {
	MainSnak struct {
		DataValue struct {
			Value json.RawMessage `json:"value"`
		} `json:"datavalue"`
	} `json:"mainsnak"`
	Rank string `json:"rank"`
}

type wdEntity struct {
	ID           string               `json:"id"`
	Missing      *string              `json:"missing,omitempty"`
	Labels       map[string]wdValue   `json:"labels"`
	Descriptions map[string]wdValue   `json:"descriptions"`
	Aliases      map[string][]wdValue `json:"aliases"`
	Claims       map[string][]wdClaim `json:"claims"`
}

type wdEntitiesResponse struct {
	Entities map[string]wdEntity `json:"entities"`
	Error    *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error,omitempty"`
}

// GetEntity loads the entity and resolves the labels of its item-valued
// claims with one extra batched request.
func (w *Wikidata) GetEntity(ctx context.Context, id string) (*Entity, error) {
	ents, err := w.getEntities(ctx, []string{id}, "labels|descriptions|aliases|claims")
	if err != nil {
		return nil, err
	}
	raw, ok := ents[id]
	if !ok || raw.Missing != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	e := &Entity{
		ID:          id,
		Label:       w.pick(raw.Labels),
		Description: w.pick(raw.Descriptions),
	}

	// Labels in other languages are localized aliases.
	for _, lang := range sortedKeys(raw.Labels) {
		if v := raw.Labels[lang].Value; v != e.Label {
			e.Aliases = append(e.Aliases, v)
		}
	}
	for _, lang := range w.cfg.Languages {
		for _, a := range raw.Aliases[lang] {
			e.Aliases = append(e.Aliases, a.Value)
		}
	}
	e.Aliases = types.NormalizeAliases(e.Label, e.Aliases)

	occupations := itemIDs(raw.Claims[propOccupation])
	orgs := append(itemIDs(raw.Claims[propEmployer]), itemIDs(raw.Claims[propEducated])...)
	countries := itemIDs(raw.Claims[propCountry])

	lookup := append(append(append([]string{}, occupations...), orgs...), countries...)
	labels := map[string]string{}
	if len(lookup) > 0 {
		labels, err = w.labels(ctx, lookup)
		if err != nil {
			return nil, fmt.Errorf("resolve claim labels: %w", err)
		}
	}
	e.Occupations = labelled(occupations, labels)
	e.Organizations = labelled(orgs, labels)
	if c := labelled(countries, labels); len(c) > 0 {
		e.Country = c[0]
	}
	if g := itemIDs(raw.Claims[propGender]); len(g) > 0 {
		e.Gender = genderLabels[g[0]]
	}
	if t := stringValues(raw.Claims[propBirth], "time"); len(t) > 0 {
		e.BirthYear = parseWikidataYear(t[0])
	}
	if img := stringValues(raw.Claims[propImage], ""); len(img) > 0 {
		e.ImageURL = "https://commons.wikimedia.org/wiki/Special:FilePath/" + url.PathEscape(strings.ReplaceAll(img[0], " ", "_"))
	}

	for prop, platform := range map[string]string{
		propGitHub:  "github",
		propTwitter: "x",
		propYouTube: "youtube",
		propORCID:   "orcid",
	} {
		for _, h := range stringValues(raw.Claims[prop], "") {
			e.Links = append(e.Links, types.NewLink(platform, h))
		}
	}
	for _, site := range stringValues(raw.Claims[propWebsite], "") {
		e.Links = append(e.Links, types.NewLink("", site))
	}
	e.Links = types.NormalizeLinks(e.Links)
	return e, nil
}

func (w *Wikidata) getEntities(ctx context.Context, ids []string, props string) (map[string]wdEntity, error) {
	q := url.Values{}
	q.Set("action", "wbgetentities")
	q.Set("ids", strings.Join(ids, "|"))
	q.Set("props", props)
	q.Set("languages", strings.Join(w.cfg.Languages, "|"))
	q.Set("format", "json")

	var resp wdEntitiesResponse
	if err := w.http.GetJSON(ctx, w.cfg.BaseURL+"/w/api.php?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		if resp.Error.Code == "no-such-entity" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, resp.Error.Info)
		}
		return nil, fmt.Errorf("wikidata: %s: %s", resp.Error.Code, resp.Error.Info)
	}
	return resp.Entities, nil
}

// labels resolves item ids to their preferred label, 50 ids per request.
func (w *Wikidata) labels(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	uniq := dedupe(ids)
	for start := 0; start < len(uniq); start += 50 {
		end := min(start+50, len(uniq))
		ents, err := w.getEntities(ctx, uniq[start:end], "labels")
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		for id, ent := range ents {
			if l := w.pick(ent.Labels); l != "" {
				out[id] = l
			}
		}
	}
	return out, nil
}

// pick returns the value in the most preferred available language.
func (w *Wikidata) pick(vals map[string]wdValue) string {
	for _, lang := range w.cfg.Languages {
		if v, ok := vals[lang]; ok && v.Value != "" {
			return v.Value
		}
	}
	for _, lang := range sortedKeys(vals) {
		if v := vals[lang].Value; v != "" {
			return v
		}
	}
	return ""
}

// itemIDs returns the entity ids of item-valued claims, skipping deprecated ones.
func itemIDs(claims []wdClaim) []string {
	var ids []string
	for _, c := range claims {
		if c.Rank == "deprecated" {
			continue
		}
		var v struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(c.MainSnak.DataValue.Value, &v) == nil && v.ID != "" {
			ids = append(ids, v.ID)
		}
	}
	return ids
}

// stringValues returns plain string claim values, or the named field of
// object-valued claims when field is set.
func stringValues(claims []wdClaim, field string) []string {
	var out []string
	for _, c := range claims {
		if c.Rank == "deprecated" {
			continue
		}
		raw := c.MainSnak.DataValue.Value
		if field == "" {
			var s string
			if json.Unmarshal(raw, &s) == nil && s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj map[string]any
		if json.Unmarshal(raw, &obj) == nil {
			if s, ok := obj[field].(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// parseWikidataYear reads the year of a time value like "+1980-03-01T00:00:00Z".
func parseWikidataYear(t string) int {
	t = strings.TrimPrefix(t, "+")
	if i := strings.IndexByte(t, '-'); i > 0 {
		t = t[:i]
	}
	y, err := strconv.Atoi(t)
	if err != nil {
		return 0
	}
	return y
}

func labelled(ids []string, labels map[string]string) []string {
	var out []string
	for _, id := range ids {
		if l, ok := labels[id]; ok {
			out = append(out, l)
		}
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ KnowledgeBase = (*Wikidata)(nil)
