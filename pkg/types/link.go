package types

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// LinkKind classifies an official link of a person.
type LinkKind string

// Link kinds
const (
	LinkCode     LinkKind = "code"
	LinkSocial   LinkKind = "social"
	LinkVideo    LinkKind = "video"
	LinkAcademic LinkKind = "academic"
	LinkWebsite  LinkKind = "website"
	LinkOther    LinkKind = "other"
)

// Link is one official link of a person.
// Links are normalized once when they cross the store boundary; nothing
// downstream branches on the shape they were originally recorded in.
type Link struct {
	Kind     LinkKind `json:"kind"`
	Platform string   `json:"platform,omitempty"` // github, x, youtube, orcid, ...
	Handle   string   `json:"handle,omitempty"`
	URL      string   `json:"url,omitempty"`
}

// platformKinds maps well-known platform names (and their hosts) to link kinds.
var platformKinds = map[string]LinkKind{
	"github":        LinkCode,
	"gitlab":        LinkCode,
	"huggingface":   LinkCode,
	"x":             LinkSocial,
	"twitter":       LinkSocial,
	"linkedin":      LinkSocial,
	"weibo":         LinkSocial,
	"mastodon":      LinkSocial,
	"youtube":       LinkVideo,
	"bilibili":      LinkVideo,
	"orcid":         LinkAcademic,
	"scholar":       LinkAcademic,
	"googlescholar": LinkAcademic,
	"openalex":      LinkAcademic,
	"dblp":          LinkAcademic,
	"arxiv":         LinkAcademic,
	"website":       LinkWebsite,
	"homepage":      LinkWebsite,
	"blog":          LinkWebsite,
}

var hostPlatforms = map[string]string{
	"github.com":         "github",
	"gitlab.com":         "gitlab",
	"huggingface.co":     "huggingface",
	"x.com":              "x",
	"twitter.com":        "twitter",
	"linkedin.com":       "linkedin",
	"weibo.com":          "weibo",
	"youtube.com":        "youtube",
	"youtu.be":           "youtube",
	"bilibili.com":       "bilibili",
	"orcid.org":          "orcid",
	"scholar.google.com": "scholar",
	"openalex.org":       "openalex",
	"dblp.org":           "dblp",
	"arxiv.org":          "arxiv",
}

// KindForPlatform returns the link kind for a platform name or URL host.
func KindForPlatform(platform string) LinkKind {
	p := strings.ToLower(strings.TrimSpace(platform))
	p = strings.ReplaceAll(p, "_", "")
	p = strings.ReplaceAll(p, " ", "")
	if k, ok := platformKinds[p]; ok {
		return k
	}
	if name, ok := hostPlatforms[strings.TrimPrefix(p, "www.")]; ok {
		return platformKinds[name]
	}
	return LinkOther
}

// platformFromURL guesses the platform of a link from its host.
func platformFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	return hostPlatforms[host]
}

// handleFromURL returns the first path segment of a profile URL, which is the
// handle on every supported platform except ORCID and YouTube channel ids.
func handleFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) == 0 || segs[0] == "" {
		return ""
	}
	if (segs[0] == "channel" || segs[0] == "user" || segs[0] == "c") && len(segs) > 1 {
		return segs[1]
	}
	return strings.TrimPrefix(segs[0], "@")
}

// NewLink builds a normalized link from a platform name and a handle or URL.
func NewLink(platform, handleOrURL string) Link {
	v := strings.TrimSpace(handleOrURL)
	l := Link{Platform: strings.ToLower(strings.TrimSpace(platform))}
	if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
		l.URL = v
		if l.Platform == "" {
			l.Platform = platformFromURL(v)
		}
		l.Handle = handleFromURL(v)
	} else {
		l.Handle = strings.TrimPrefix(v, "@")
	}
	if l.Platform == "twitter" {
		l.Platform = "x"
	}
	l.Kind = KindForPlatform(l.Platform)
	if l.Kind == LinkOther && l.URL != "" && l.Platform == "" {
		l.Kind = LinkWebsite
	}
	return l
}

// NormalizeLinks drops empty entries and duplicates (same kind, platform and
// handle or URL). Output is sorted by kind then platform for stable storage.
func NormalizeLinks(links []Link) []Link {
	seen := make(map[string]bool, len(links))
	out := make([]Link, 0, len(links))
	for _, l := range links {
		if l.Handle == "" && l.URL == "" {
			continue
		}
		if l.Kind == "" {
			l = NewLink(l.Platform, firstNonEmpty(l.URL, l.Handle))
		}
		key := strings.ToLower(fmt.Sprintf("%s|%s|%s", l.Kind, l.Platform, firstNonEmpty(l.Handle, l.URL)))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Platform < out[j].Platform
	})
	return out
}

// DecodeLinks decodes the historical shapes official links were stored in:
//
//	[{"kind":"code","handle":"jq","url":"..."}]     current shape
//	[{"platform":"github","username":"jq"}]         array with mixed key names
//	{"github":"https://github.com/jq","x":"@jq"}    platform -> url/handle map
//	["https://github.com/jq"]                      bare URLs
//
// Empty input and JSON null decode to an empty slice.
func DecodeLinks(data []byte) ([]Link, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return []Link{}, nil
	}

	var raw any
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, fmt.Errorf("decode links: %w", err)
	}

	var links []Link
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			switch e := item.(type) {
			case string:
				links = append(links, NewLink("", e))
			case map[string]any:
				if l, ok := linkFromObject(e); ok {
					links = append(links, l)
				}
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, platform := range keys {
			if s, ok := v[platform].(string); ok {
				links = append(links, NewLink(platform, s))
			}
		}
	default:
		return nil, fmt.Errorf("decode links: unsupported shape %T", raw)
	}
	return NormalizeLinks(links), nil
}

func linkFromObject(obj map[string]any) (Link, bool) {
	str := func(keys ...string) string {
		for _, k := range keys {
			if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
		return ""
	}
	platform := str("platform", "site", "type", "name")
	handle := str("handle", "username", "user", "id")
	u := str("url", "href", "link")
	if handle == "" && u == "" {
		return Link{}, false
	}

	l := NewLink(platform, firstNonEmpty(u, handle))
	if handle != "" {
		l.Handle = strings.TrimPrefix(handle, "@")
	}
	if kind := LinkKind(strings.ToLower(str("kind"))); kind != "" {
		switch kind {
		case LinkCode, LinkSocial, LinkVideo, LinkAcademic, LinkWebsite, LinkOther:
			l.Kind = kind
		}
	}
	return l, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
