package extraction

import (
	"net/url"
	"strings"

	"github.com/AI-Template-SDK/senso-visibility/internal/textnorm"
)

// weakMatchMinLen is the shortest variation allowed to match inside a URL.
const weakMatchMinLen = 5

// CanonicalHost lowercases a domain or URL and strips the scheme, path and a
// leading "www.".
func CanonicalHost(s string) string {
	return strings.TrimPrefix(textnorm.HostOf(s), "www.")
}

// urlHost extracts the canonical host of a URL, tolerating missing schemes.
func urlHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return CanonicalHost(raw)
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// HostMatches reports whether rawURL points at domain itself or one of its
// subdomains. Lookalikes such as "notgetquipu.com" do not match.
func HostMatches(rawURL, domain string) bool {
	want := CanonicalHost(domain)
	if want == "" || !strings.Contains(want, ".") {
		return false
	}
	host := urlHost(rawURL)
	if host == "" {
		return false
	}
	return host == want || strings.HasSuffix(host, "."+want)
}

// WeakURLMatch reports whether any sufficiently long variation occurs as a whole
// word anywhere in rawURL, path included.
func WeakURLMatch(rawURL string, variations []string) bool {
	for _, v := range variations {
		if len([]rune(v)) < weakMatchMinLen {
			continue
		}
		if textnorm.ContainsWord(v, rawURL) {
			return true
		}
	}
	return false
}
