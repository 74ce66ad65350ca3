package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/luminaries/internal/config"
	"github.com/scrypster/luminaries/internal/resilience"
	"github.com/scrypster/luminaries/pkg/types"
)

// GitHub fetches a person's most starred repositories.
type GitHub struct {
	token    string
	baseURL  string
	maxRepos int
	http     *resilience.HTTPClient
}

// NewGitHub creates the code-hosting adapter.
func NewGitHub(cfg config.SourcesConfig) *GitHub {
	maxRepos := cfg.GitHubMaxRepos
	if maxRepos <= 0 {
		maxRepos = 25
	}
	return &GitHub{
		token:    cfg.GitHubToken,
		baseURL:  strings.TrimRight(cfg.GitHubURL, "/"),
		maxRepos: maxRepos,
		http:     newClient("github", cfg, cfg.GitHubRate),
	}
}

func (g *GitHub) Kind() types.SourceKind { return types.SourceCode }
func (g *GitHub) Configured() bool       { return g.token != "" }

type ghRepo struct {
	Name        string   `json:"name"`
	FullName    string   `json:"full_name"`
	HTMLURL     string   `json:"html_url"`
	Description string   `json:"description"`
	Language    string   `json:"language"`
	Topics      []string `json:"topics"`
	Stars       int      `json:"stargazers_count"`
	Forks       int      `json:"forks_count"`
	Fork        bool     `json:"fork"`
	Archived    bool     `json:"archived"`
	PushedAt    string   `json:"pushed_at"`
	CreatedAt   string   `json:"created_at"`
}

// Fetch lists the repositories owned by the person's GitHub handle, ranked
// by stars. Forks are skipped. since is ignored: popularity, not recency,
// decides what is kept.
func (g *GitHub) Fetch(ctx context.Context, id types.PersonIdentity, _ *time.Time) (FetchResult, error) {
	if !g.Configured() {
		return Unconfigured(), nil
	}
	handle := githubHandle(id)
	if handle == "" {
		return FetchResult{Status: StatusOK}, nil
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+g.token)
	header.Set("X-GitHub-Api-Version", "2022-11-28")

	var repos []ghRepo
	for page := 1; page <= 3; page++ {
		var batch []ghRepo
		u := fmt.Sprintf("%s/users/%s/repos?type=owner&sort=pushed&per_page=100&page=%d",
			g.baseURL, url.PathEscape(handle), page)
		if err := g.http.GetJSON(ctx, u, header, &batch); err != nil {
			if page == 1 {
				return FetchResult{}, err
			}
			return g.result(repos, []string{err.Error()}), nil
		}
		repos = append(repos, batch...)
		if len(batch) < 100 {
			break
		}
	}
	return g.result(repos, nil), nil
}

func (g *GitHub) result(repos []ghRepo, warnings []string) FetchResult {
	kept := repos[:0:0]
	for _, r := range repos {
		if !r.Fork {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Stars > kept[j].Stars })
	if len(kept) > g.maxRepos {
		kept = kept[:g.maxRepos]
	}

	items := make([]RawCandidate, 0, len(kept))
	for _, r := range kept {
		text := joinNonEmpty(" ", r.FullName+":", r.Description)
		if len(r.Topics) > 0 {
			text += " Topics: " + strings.Join(r.Topics, ", ") + "."
		}
		if r.Language != "" {
			text += " Language: " + r.Language + "."
		}
		published := parseTime(r.PushedAt)
		if published == nil {
			published = parseTime(r.CreatedAt)
		}
		items = append(items, RawCandidate{
			URL:         r.HTMLURL,
			Title:       r.Name,
			Text:        text,
			PublishedAt: published,
			Metadata: meta(KindRepo,
				MetaVerified, true,
				MetaStars, r.Stars,
				"forks", r.Forks,
				"language", r.Language,
				"archived", r.Archived,
			),
		})
	}
	return FetchResult{Status: StatusOK, Items: items, Warnings: warnings}
}

func githubHandle(id types.PersonIdentity) string {
	for _, l := range id.Links {
		if l.Kind == types.LinkCode && l.Platform == "github" && l.Handle != "" {
			return l.Handle
		}
	}
	return ""
}
