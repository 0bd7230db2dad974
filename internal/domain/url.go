package domain

import (
	"errors"
	"net/url"
	"sort"
	"strings"
)

// ErrInvalidURL is returned for input that cannot be turned into an http(s) URL.
var ErrInvalidURL = errors.New("invalid url")

// trackingParams are dropped from the comparison key.
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"mc_cid":  true,
	"mc_eid":  true,
	"igshid":  true,
	"yclid":   true,
	"msclkid": true,
}

// CanonicalURL trims raw, defaults the scheme to https and validates it.
// The returned string is what gets stored on the bookmark.
func CanonicalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + strings.TrimPrefix(raw, "//")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", ErrInvalidURL
	}
	if u.Hostname() == "" || strings.ContainsAny(u.Host, " \t") {
		return "", ErrInvalidURL
	}
	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	return u.String(), nil
}

// NormalizeKey derives the comparison key used for duplicate detection:
// lowercase scheme+host+path+query, trailing slashes stripped, default ports
// removed, query parameters sorted, tracking parameters and fragment dropped.
// Input that does not parse falls back to its lowercased, trimmed form.
func NormalizeKey(raw string) string {
	canonical, err := CanonicalURL(raw)
	if err != nil {
		return strings.TrimRight(strings.ToLower(strings.TrimSpace(raw)), "/")
	}
	u, err := url.Parse(canonical)
	if err != nil {
		return strings.ToLower(canonical)
	}

	host := u.Hostname()
	if port := u.Port(); port != "" && !isDefaultPort(u.Scheme, port) {
		host += ":" + port
	}

	path := strings.TrimRight(u.EscapedPath(), "/")

	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(path)
	if q := sortedQuery(u.Query()); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}
	return strings.ToLower(b.String())
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "https" && port == "443") || (scheme == "http" && port == "80")
}

func sortedQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || trackingParams[lk] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		vals := append([]string(nil), values[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

// Hostname returns the lowercased host of raw without port or "www." prefix.
func Hostname(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		if c, cerr := CanonicalURL(raw); cerr == nil {
			u, err = url.Parse(c)
		}
	}
	if err != nil || u == nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Origin returns scheme://host of raw, or "" if raw is not a URL.
func Origin(raw string) string {
	c, err := CanonicalURL(raw)
	if err != nil {
		return ""
	}
	u, err := url.Parse(c)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// PlaceholderTitle is what a bookmark is called until metadata arrives.
func PlaceholderTitle(raw string) string {
	if h := Hostname(raw); h != "" {
		return h
	}
	return raw
}
