package common

import (
	"net/url"
	"strings"
)

// trackingParams are query parameters stripped during normalization. Job
// boards and aggregators append these to otherwise identical listing URLs.
var trackingParams = map[string]bool{
	"gclid":  true,
	"fbclid": true,
	"mc_cid": true,
	"mc_eid": true,
	"gh_src": true,
	"ref":    true,
	"src":    true,
}

// NormalizeURL canonicalizes URLs for deduplication: the scheme defaults to
// https, scheme and host are lowercased, fragments and tracking parameters
// are stripped, query parameters are sorted, and trailing slashes are
// removed. Normalizing an already-normalized URL returns it unchanged.
func NormalizeURL(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return ""
	}
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		trimmed = "https://" + trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return strings.ToLower(trimmed)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	// Drop tracking parameters, then re-encode; Encode sorts keys so the
	// query ordering is stable across submissions.
	if u.RawQuery != "" {
		query := u.Query()
		for key := range query {
			if trackingParams[key] || strings.HasPrefix(key, "utm_") {
				delete(query, key)
			}
		}
		u.RawQuery = query.Encode()
	}

	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
	} else if u.Path == "/" {
		u.Path = ""
	}

	return u.String()
}

// DomainOf returns the host of a URL without the www prefix or port,
// lowercased. Returns "" when the URL cannot be parsed.
func DomainOf(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return ""
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// SameDomain reports whether two URLs share a host after normalization.
func SameDomain(a, b string) bool {
	da := DomainOf(a)
	return da != "" && da == DomainOf(b)
}
