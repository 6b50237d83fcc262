// Package extraction turns free-form provider responses into structured brand
// visibility signals: mentions, list positions, source matches and competitor
// counts.
package extraction

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/textnorm"
)

// contextRadius is the number of bytes kept on each side of a mention.
const contextRadius = 150

// Brand is the tracked brand descriptor.
type Brand struct {
	Name     string
	Domain   string
	Keywords []string
}

// Variations returns the brand's search strings.
func (b Brand) Variations() []string {
	return textnorm.BrandVariations(b.Domain, b.Keywords)
}

// MentionResult is the structured outcome of Extract.
type MentionResult struct {
	BrandMentioned       bool
	MentionCount         int
	Contexts             []string
	AppearsInList        bool
	Position             *int
	TotalItems           *int
	PositionSource       string
	PositionMethod       string
	LinkOnly             bool
	BrandInText          bool
	BrandInLink          bool
	MatchedSourceURL     string
	CompetitorsMentioned map[string]int
}

// Extract computes brand and competitor mentions for one response. Sources are
// the URLs the response cited; competitors must carry stable keys.
func Extract(text string, brand Brand, sources []models.Source, competitors []models.Competitor) MentionResult {
	result := MentionResult{CompetitorsMentioned: map[string]int{}}

	variations := brand.Variations()
	if len(variations) == 0 {
		return result
	}

	spans := mergeSpans(collectSpans(text, variations))
	for _, s := range spans {
		if len(result.Contexts) >= models.MaxMentionContexts {
			break
		}
		result.Contexts = append(result.Contexts, contextWindow(text, s))
	}
	result.BrandInText = len(spans) > 0
	result.MentionCount = len(spans)

	result.MatchedSourceURL = matchSources(sources, brand.Domain, variations)
	result.BrandInLink = result.MatchedSourceURL != ""
	if result.BrandInLink && len(result.Contexts) < models.MaxMentionContexts {
		result.Contexts = append(result.Contexts, fmt.Sprintf("[source] %s", result.MatchedSourceURL))
	}

	result.BrandMentioned = result.BrandInText || result.BrandInLink
	if result.BrandInLink && !result.BrandInText && result.MentionCount < 1 {
		result.MentionCount = 1
	}

	pos := DetectPosition(text, variations)
	result.AppearsInList = pos.AppearsInList
	result.Position = pos.Position
	result.TotalItems = pos.TotalItems
	result.PositionMethod = pos.Method

	switch {
	case result.BrandInText && result.BrandInLink:
		result.PositionSource = models.PositionSourceBoth
	case result.BrandInText:
		result.PositionSource = models.PositionSourceText
	case result.BrandInLink:
		result.PositionSource = models.PositionSourceLink
		if result.Position == nil {
			result.Position = intPtr(models.LinkOnlyPosition)
			result.LinkOnly = true
		}
	}

	for _, c := range competitors {
		if n := countCompetitor(text, sources, c); n > 0 {
			result.CompetitorsMentioned[c.Key] = n
		}
	}

	return result
}

// matchSources returns the first strongly matching source URL, otherwise the
// first weakly matching one, otherwise "".
func matchSources(sources []models.Source, domain string, variations []string) string {
	if domain != "" {
		for _, s := range sources {
			if HostMatches(s.URL, domain) {
				return s.URL
			}
		}
	}
	for _, s := range sources {
		if WeakURLMatch(s.URL, variations) {
			return s.URL
		}
	}
	return ""
}

func countCompetitor(text string, sources []models.Source, c models.Competitor) int {
	keywords := c.Keywords
	if c.DisplayName != "" {
		keywords = append(append([]string{}, keywords...), c.DisplayName)
	}
	variations := textnorm.BrandVariations(c.Domain, keywords)
	if len(variations) == 0 {
		return 0
	}

	count := len(mergeSpans(collectSpans(text, variations)))
	for _, s := range sources {
		if (c.Domain != "" && HostMatches(s.URL, c.Domain)) || WeakURLMatch(s.URL, variations) {
			count++
		}
	}
	return count
}

func collectSpans(text string, variations []string) []textnorm.Span {
	var spans []textnorm.Span
	for _, v := range variations {
		spans = append(spans, textnorm.WordBoundaryMatch(v, text)...)
	}
	return spans
}

// mergeSpans orders spans by position and drops any span overlapping one
// already kept, so "getquipu.com" and "getquipu" over the same bytes count once.
func mergeSpans(spans []textnorm.Span) []textnorm.Span {
	if len(spans) == 0 {
		return nil
	}
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End > spans[j].End
	})
	merged := []textnorm.Span{spans[0]}
	for _, s := range spans[1:] {
		last := merged[len(merged)-1]
		if s.Start < last.End {
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func contextWindow(text string, s textnorm.Span) string {
	start := s.Start - contextRadius
	if start < 0 {
		start = 0
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	end := s.End + contextRadius
	if end > len(text) {
		end = len(text)
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	return strings.TrimSpace(text[start:end])
}
