package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// HashTextRunes is how much cleaned text identifies an item without a URL.
const HashTextRunes = 512

var errBadURL = errors.New("not an absolute http(s) url")

// trackingParams are query parameters that never change what a URL points to.
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"dclid":   true,
	"msclkid": true,
	"igshid":  true,
	"mc_cid":  true,
	"mc_eid":  true,
	"ref":     true,
	"ref_src": true,
	"ref_url": true,
	"si":      true,
	"feature": true,
	"spm":     true,
	"from":    true,
}

func isTrackingParam(key string) bool {
	k := strings.ToLower(key)
	return strings.HasPrefix(k, "utm_") || trackingParams[k]
}

// CanonicalURL normalizes raw so that trivially different spellings of the
// same address compare equal: https for both web schemes, lowercase host,
// no "www." prefix, no default port, no fragment, no tracking parameters, no
// trailing slash and a sorted query string.
func CanonicalURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("canonical url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("canonical url %q: %w", raw, errBadURL)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if port := u.Port(); port != "" && !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
		host += ":" + port
	}

	q := u.Query()
	for key := range q {
		if isTrackingParam(key) {
			q.Del(key)
		}
	}

	out := url.URL{
		Scheme:   "https",
		Host:     host,
		Path:     strings.TrimRight(u.Path, "/"),
		RawQuery: q.Encode(), // Encode sorts by key
	}
	return out.String(), nil
}

// ContentHash returns the identity hash of an item: the canonical URL when
// there is one, otherwise the leading runes of its cleaned text.
func ContentHash(canonicalURL, cleanedText string) string {
	key := canonicalURL
	if key == "" {
		r := []rune(cleanedText)
		if len(r) > HashTextRunes {
			r = r[:HashTextRunes]
		}
		key = "text:" + string(r)
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
