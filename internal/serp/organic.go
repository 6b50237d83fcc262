package serp

import "github.com/AI-Template-SDK/senso-visibility/internal/extraction"

// OrganicPosition returns the rank of the first organic result hosted on
// domain, or nil when the domain does not rank on the page.
func OrganicPosition(resp Response, domain string) *int {
	results, ok := resp["organic_results"].([]interface{})
	if !ok || domain == "" {
		return nil
	}
	for i, r := range results {
		m, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		link := firstString(m, "link", "url")
		if link == "" || !extraction.HostMatches(link, domain) {
			continue
		}
		pos := i + 1
		if p, ok := m["position"].(float64); ok && p > 0 {
			pos = int(p)
		}
		return &pos
	}
	return nil
}
