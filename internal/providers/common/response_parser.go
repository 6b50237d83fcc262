package common

import (
	"fmt"
	"net/http"
	"strings"

	"mvdan.cc/xurls/v2"

	"github.com/AI-Template-SDK/senso-visibility/internal/models"
)

var urlFinder = xurls.Strict()

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// EstimateTokens approximates a token count at four characters per token.
func EstimateTokens(s string) int {
	return len(s) / 4
}

// Usage fills token counts, estimating them when the provider reported none.
func Usage(prompt, content string, inputTokens, outputTokens int) (int, int) {
	if inputTokens <= 0 && outputTokens <= 0 {
		return EstimateTokens(prompt), EstimateTokens(content)
	}
	return inputTokens, outputTokens
}

// ExtractSources harvests the http(s) URLs that appear inline in content, in
// order of first appearance.
func ExtractSources(content string) []models.Source {
	var sources []models.Source
	seen := make(map[string]bool)
	for _, raw := range urlFinder.FindAllString(content, -1) {
		u := strings.TrimRight(raw, ".,;:)]}'\"")
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			continue
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		sources = append(sources, models.Source{URL: u})
	}
	return sources
}

// MergeSources appends extra sources that are not already present.
func MergeSources(primary, extra []models.Source) []models.Source {
	seen := make(map[string]bool, len(primary))
	out := make([]models.Source, 0, len(primary)+len(extra))
	for _, s := range primary {
		if s.URL == "" || seen[s.URL] {
			continue
		}
		seen[s.URL] = true
		out = append(out, s)
	}
	for _, s := range extra {
		if s.URL == "" || seen[s.URL] {
			continue
		}
		seen[s.URL] = true
		out = append(out, s)
	}
	return out
}

// KindForStatus maps an HTTP status to an error kind. Rate limits and server
// errors are transient; other client errors are permanent.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return ErrorTransient
	case status >= 400:
		return ErrorPermanent
	}
	return ErrorTransient
}

// ExtractJSONObject returns the first balanced {...} region of s, honouring
// string literals and escapes.
func ExtractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
