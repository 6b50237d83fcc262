package serp

import (
	"strings"

	"github.com/AI-Template-SDK/senso-visibility/internal/extraction"
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
)

// overviewKeys are the SERP blocks that can hold a generative answer, in
// precedence order.
var overviewKeys = []string{
	"ai_overview",
	"ai_overview_first_person_singular",
	"ai_overview_complete",
	"ai_overview_inline",
	"generative_ai",
	"bard_answer",
	"answer_box",
}

var flatTextFields = []string{"text", "answer", "snippet", "description"}

var referenceFields = []string{"references", "sources", "links", "citations"}

// Reference is one cited link inside an AI overview block.
type Reference struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Element is a valid AI overview block.
type Element struct {
	Key           string      `json:"key"`
	ContentLength int         `json:"content_length"`
	Text          string      `json:"text"`
	References    []Reference `json:"references"`
}

// AIAnalysis is the verdict for one SERP and tracked domain.
type AIAnalysis struct {
	HasAIOverview          bool      `json:"has_ai_overview"`
	DomainIsAISource       bool      `json:"domain_is_ai_source"`
	DomainAISourcePosition *int      `json:"domain_ai_source_position,omitempty"`
	DomainAISourceLink     *string   `json:"domain_ai_source_link,omitempty"`
	Elements               []Element `json:"elements"`
}

// AnalyzeAIOverview finds valid AI overview blocks and where, if anywhere, the
// tracked domain is cited. Blocks with neither content nor references are
// placeholders and are discarded.
func AnalyzeAIOverview(resp Response, trackedDomain string) AIAnalysis {
	var out AIAnalysis
	for _, key := range overviewKeys {
		block, ok := resp[key].(map[string]interface{})
		if !ok {
			continue
		}
		el := parseBlock(key, block)
		if el.ContentLength == 0 && len(el.References) == 0 {
			continue
		}
		out.Elements = append(out.Elements, el)
	}
	out.HasAIOverview = len(out.Elements) > 0

	if trackedDomain == "" {
		return out
	}
	for _, el := range out.Elements {
		for i, ref := range el.References {
			if !extraction.HostMatches(ref.URL, trackedDomain) {
				continue
			}
			out.DomainIsAISource = true
			out.DomainAISourcePosition = models.IntPtr(i + 1)
			out.DomainAISourceLink = models.StrPtr(ref.URL)
			return out
		}
	}
	return out
}

func parseBlock(key string, block map[string]interface{}) Element {
	el := Element{Key: key}
	var parts []string

	if blocks, ok := block["text_blocks"].([]interface{}); ok {
		for _, b := range blocks {
			m, ok := b.(map[string]interface{})
			if !ok {
				continue
			}
			parts = appendTextBlock(parts, m)
		}
	}
	for _, f := range flatTextFields {
		if s, ok := block[f].(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	for _, p := range parts {
		el.ContentLength += len(p)
	}
	el.Text = strings.Join(parts, "\n")

	for _, f := range referenceFields {
		raw, ok := block[f].([]interface{})
		if !ok {
			continue
		}
		el.References = parseReferences(raw)
		break
	}
	return el
}

// appendTextBlock collects a block snippet and the snippets of nested list items.
func appendTextBlock(parts []string, m map[string]interface{}) []string {
	if s, ok := m["snippet"].(string); ok && s != "" {
		parts = append(parts, s)
	}
	if items, ok := m["list"].([]interface{}); ok {
		for _, item := range items {
			if im, ok := item.(map[string]interface{}); ok {
				parts = appendTextBlock(parts, im)
			}
		}
	}
	return parts
}

func parseReferences(raw []interface{}) []Reference {
	refs := make([]Reference, 0, len(raw))
	for _, r := range raw {
		switch v := r.(type) {
		case string:
			if v != "" {
				refs = append(refs, Reference{URL: v})
			}
		case map[string]interface{}:
			ref := Reference{URL: firstString(v, "link", "url", "href")}
			ref.Title, _ = v["title"].(string)
			if ref.URL != "" {
				refs = append(refs, ref)
			}
		}
	}
	return refs
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// OverviewText renders the valid blocks as plain text for mention extraction.
func (a AIAnalysis) OverviewText() string {
	parts := make([]string, 0, len(a.Elements))
	for _, el := range a.Elements {
		if el.Text != "" {
			parts = append(parts, el.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Sources flattens the references of every valid block, in order.
func (a AIAnalysis) Sources() []models.Source {
	var out []models.Source
	seen := make(map[string]bool)
	for _, el := range a.Elements {
		for _, ref := range el.References {
			if seen[ref.URL] {
				continue
			}
			seen[ref.URL] = true
			out = append(out, models.Source{URL: ref.URL, Title: ref.Title})
		}
	}
	return out
}
