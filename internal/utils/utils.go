// Package utils holds locator helpers shared by the detector, the filter and
// the classifier cache.
package utils

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/net/idna"
)

var (
	ErrEmptyLocator      = errors.New("empty locator")
	ErrUnsupportedScheme = errors.New("unsupported locator scheme")
)

// Common tracking params dropped from cache keys.
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {}, "utm_content": {},
	"gclid": {}, "fbclid": {}, "mc_cid": {}, "mc_eid": {},
}

// ResolveLocator turns an attribute or CSS url() value into an absolute
// locator.
//
// Examples (base https://example.com/app/page.html):
//
//	ResolveLocator(base, "img/a.png")   → "https://example.com/app/img/a.png"
//	ResolveLocator(base, "//cdn.x/b")   → "https://cdn.x/b"
//	ResolveLocator(base, "data:image/") → unchanged
//	ResolveLocator(base, "javascript:") → ErrUnsupportedScheme
func ResolveLocator(base, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyLocator
	}
	if strings.HasPrefix(strings.ToLower(raw), "data:") {
		return raw, nil
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse locator %q: %w", raw, err)
	}
	if b, err := url.Parse(base); err == nil && base != "" {
		ref = b.ResolveReference(ref)
	}
	switch strings.ToLower(ref.Scheme) {
	case "http", "https", "file", "":
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, ref.Scheme)
	}
	ref.Fragment = ""
	return ref.String(), nil
}

// CacheKey normalises a locator so visually identical references share a
// key: lower-cased scheme and host, punycode host, default port and
// fragment dropped, tracking params removed and the query sorted. Inputs
// that are not absolute http(s) URLs are returned unchanged.
func CacheKey(locator string) string {
	u, err := url.Parse(strings.TrimSpace(locator))
	if err != nil || u.Host == "" {
		return locator
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return locator
	}

	host := strings.ToLower(u.Hostname())
	if puny, err := idna.Lookup.ToASCII(host); err == nil {
		host = puny
	}
	switch port := u.Port(); {
	case port == "", u.Scheme == "http" && port == "80", u.Scheme == "https" && port == "443":
		u.Host = host
	default:
		u.Host = net.JoinHostPort(host, port)
	}
	u.User = nil
	u.Fragment = ""
	if u.Path != "" {
		u.Path = path.Clean(u.Path)
	}

	q := u.Query()
	for k := range q {
		if _, ok := trackingParams[strings.ToLower(k)]; ok {
			q.Del(k)
		}
	}
	for _, vs := range q {
		slices.Sort(vs)
	}
	// Encode sorts by key.
	u.RawQuery = q.Encode()
	return u.String()
}

// MatchesRule reports whether an allow/block rule applies to locator. Rules
// containing '*' are globs matched against the whole locator; any other rule
// matches as a case-insensitive substring. Empty rules never match.
func MatchesRule(locator, rule string) bool {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return false
	}
	loc := strings.ToLower(locator)
	rule = strings.ToLower(rule)
	if strings.Contains(rule, "*") {
		return globRegexp(rule).MatchString(loc)
	}
	return strings.Contains(loc, rule)
}

// globRegexp compiles a '*' glob where the wildcard also crosses '/'.
func globRegexp(glob string) *regexp.Regexp {
	parts := strings.Split(glob, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}

// MatchesAny returns the first rule matching locator.
func MatchesAny(locator string, rules []string) (string, bool) {
	for _, r := range rules {
		if MatchesRule(locator, r) {
			return r, true
		}
	}
	return "", false
}

// Hostname returns the lower-cased host of locator, or "" when it has none.
func Hostname(locator string) string {
	u, err := url.Parse(locator)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
