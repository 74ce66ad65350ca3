package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/scrypster/luminaries/internal/config"
	"github.com/scrypster/luminaries/internal/identity"
	"github.com/scrypster/luminaries/internal/resilience"
	"github.com/scrypster/luminaries/pkg/types"
)

// Confidence levels of academic matches.
const (
	ConfidenceHigh = "high"
	ConfidenceLow  = "low"
)

// OpenAlex fetches the person's author record and most cited works.
type OpenAlex struct {
	baseURL  string
	mailto   string
	maxWorks int
	http     *resilience.HTTPClient
}

// NewOpenAlex creates the academic adapter. OpenAlex needs no credential.
func NewOpenAlex(cfg config.SourcesConfig) *OpenAlex {
	return &OpenAlex{
		baseURL:  strings.TrimRight(cfg.OpenAlexURL, "/"),
		mailto:   cfg.OpenAlexMailto,
		maxWorks: min(max(cfg.OpenAlexMax, 1), 200),
		http:     newClient("openalex", cfg, 0),
	}
}

func (o *OpenAlex) Kind() types.SourceKind { return types.SourceAcademic }
func (o *OpenAlex) Configured() bool       { return o.baseURL != "" }

type oaAuthor struct {
	ID           string `json:"id"`
	ORCID        string `json:"orcid"`
	DisplayName  string `json:"display_name"`
	WorksCount   int    `json:"works_count"`
	CitedByCount int    `json:"cited_by_count"`
	Institutions []struct {
		DisplayName string `json:"display_name"`
	} `json:"last_known_institutions"`
}

type oaWork struct {
	ID              string         `json:"id"`
	DOI             string         `json:"doi"`
	Title           string         `json:"display_name"`
	PublicationDate string         `json:"publication_date"`
	CitedByCount    int            `json:"cited_by_count"`
	Abstract        map[string]any `json:"abstract_inverted_index"`
	Authorships     []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
		Institutions []struct {
			DisplayName string `json:"display_name"`
		} `json:"institutions"`
	} `json:"authorships"`
	PrimaryLocation struct {
		Source struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
}

// Fetch prefers the person's ORCID; without one it falls back to a name
// search whose items carry confidence=low and must pass the identity filter.
func (o *OpenAlex) Fetch(ctx context.Context, id types.PersonIdentity, since *time.Time) (FetchResult, error) {
	if !o.Configured() {
		return Unconfigured(), nil
	}

	author, confidence, err := o.findAuthor(ctx, id)
	if err != nil {
		return FetchResult{}, err
	}
	if author == nil {
		return FetchResult{Status: StatusOK}, nil
	}
	verified := confidence == ConfidenceHigh

	var institutions []string
	for _, inst := range author.Institutions {
		institutions = append(institutions, inst.DisplayName)
	}
	profile := RawCandidate{
		URL:   author.ID,
		Title: author.DisplayName,
		Text: joinNonEmpty(" ", author.DisplayName+".",
			affiliation(institutions),
			fmt.Sprintf("%d works, cited %d times.", author.WorksCount, author.CitedByCount)),
		Metadata: meta(KindProfile,
			MetaVerified, verified,
			MetaConfidence, confidence,
			MetaCitations, author.CitedByCount,
			"works_count", author.WorksCount,
		),
	}
	result := FetchResult{Status: StatusOK, Items: []RawCandidate{profile}}

	works, err := o.works(ctx, author.ID, since)
	if err != nil {
		result.Warnings = append(result.Warnings, err.Error())
		return result, nil
	}
	for _, w := range works {
		var authors, insts []string
		for _, a := range w.Authorships {
			authors = append(authors, a.Author.DisplayName)
			for _, inst := range a.Institutions {
				insts = append(insts, inst.DisplayName)
			}
		}
		link := w.DOI
		if link == "" {
			link = w.ID
		}
		result.Items = append(result.Items, RawCandidate{
			URL:   link,
			Title: w.Title,
			Text: joinNonEmpty("\n", w.Title,
				"Authors: "+strings.Join(authors, ", "),
				affiliation(dedupeStrings(insts)),
				w.PrimaryLocation.Source.DisplayName,
				rebuildAbstract(w.Abstract)),
			PublishedAt: parseTime(w.PublicationDate),
			Metadata: meta(KindWork,
				MetaVerified, verified,
				MetaConfidence, confidence,
				MetaCitations, w.CitedByCount,
			),
		})
	}
	return result, nil
}

func (o *OpenAlex) findAuthor(ctx context.Context, id types.PersonIdentity) (*oaAuthor, string, error) {
	if l, ok := id.LinkOf(types.LinkAcademic); ok && l.Platform == "orcid" && l.Handle != "" {
		var a oaAuthor
		err := o.http.GetJSON(ctx, o.endpoint("/authors/orcid:"+url.PathEscape(l.Handle), nil), nil, &a)
		if err == nil && a.ID != "" {
			return &a, ConfidenceHigh, nil
		}
		var statusErr *resilience.StatusError
		if err != nil && !(errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound) {
			return nil, "", err
		}
	}

	if id.Name == "" {
		return nil, "", nil
	}
	var resp struct {
		Results []oaAuthor `json:"results"`
	}
	q := url.Values{}
	q.Set("search", id.Name)
	q.Set("per-page", "5")
	if err := o.http.GetJSON(ctx, o.endpoint("/authors", q), nil, &resp); err != nil {
		return nil, "", err
	}
	if len(resp.Results) == 0 {
		return nil, "", nil
	}

	// Prefer an exact name match, else the most cited result.
	want := map[string]bool{}
	for _, n := range id.Names() {
		want[identity.Fold(n)] = true
	}
	for i := range resp.Results {
		if want[identity.Fold(resp.Results[i].DisplayName)] {
			return &resp.Results[i], ConfidenceLow, nil
		}
	}
	sort.SliceStable(resp.Results, func(i, j int) bool {
		return resp.Results[i].CitedByCount > resp.Results[j].CitedByCount
	})
	return &resp.Results[0], ConfidenceLow, nil
}

func (o *OpenAlex) works(ctx context.Context, authorID string, since *time.Time) ([]oaWork, error) {
	short := authorID[strings.LastIndex(authorID, "/")+1:]
	filter := "author.id:" + short
	if since != nil {
		filter += ",from_publication_date:" + since.UTC().Format("2006-01-02")
	}
	q := url.Values{}
	q.Set("filter", filter)
	q.Set("sort", "cited_by_count:desc")
	q.Set("per-page", strconv.Itoa(o.maxWorks))

	var resp struct {
		Results []oaWork `json:"results"`
	}
	if err := o.http.GetJSON(ctx, o.endpoint("/works", q), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (o *OpenAlex) endpoint(path string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	if o.mailto != "" {
		q.Set("mailto", o.mailto)
	}
	if len(q) == 0 {
		return o.baseURL + path
	}
	return o.baseURL + path + "?" + q.Encode()
}

// maxAbstractWords bounds a rebuilt abstract. Positions beyond it are ignored.
const maxAbstractWords = 5000

// rebuildAbstract turns OpenAlex's inverted index (word -> positions) back
// into text.
func rebuildAbstract(idx map[string]any) string {
	if len(idx) == 0 {
		return ""
	}
	words := map[int]string{}
	maxPos := -1
	for word, raw := range idx {
		positions, ok := raw.([]any)
		if !ok {
			continue
		}
		for _, p := range positions {
			if f, ok := p.(float64); ok {
				pos := int(f)
				if pos < 0 || pos >= maxAbstractWords {
					continue
				}
				words[pos] = word
				maxPos = max(maxPos, pos)
			}
		}
	}
	out := make([]string, 0, maxPos+1)
	for i := 0; i <= maxPos; i++ {
		if w, ok := words[i]; ok {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}

func affiliation(institutions []string) string {
	if len(institutions) == 0 {
		return ""
	}
	return "Affiliation: " + strings.Join(institutions, ", ") + "."
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
