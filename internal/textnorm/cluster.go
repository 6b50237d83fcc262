package textnorm

import (
	"regexp"
	"strings"

	"github.com/AI-Template-SDK/senso-visibility/internal/models"
)

// Cluster match methods.
const (
	MatchContains   = "contains"
	MatchExact      = "exact"
	MatchStartsWith = "starts_with"
	MatchRegex      = "regex"
)

// MatchCluster reports whether text belongs to the cluster under its match
// method. Comparisons other than regex run on folded text.
func MatchCluster(text string, cluster models.TopicCluster) bool {
	folded := Fold(strings.TrimSpace(text))
	for _, term := range cluster.Terms {
		if term = strings.TrimSpace(term); term == "" {
			continue
		}
		switch cluster.MatchMethod {
		case MatchExact:
			if folded == Fold(term) {
				return true
			}
		case MatchStartsWith:
			if strings.HasPrefix(folded, Fold(term)) {
				return true
			}
		case MatchRegex:
			re, err := regexp.Compile("(?i)" + term)
			if err != nil {
				continue
			}
			if re.MatchString(text) || re.MatchString(folded) {
				return true
			}
		default:
			if strings.Contains(folded, Fold(term)) {
				return true
			}
		}
	}
	return false
}

// MatchClusters returns the names of every enabled cluster the text matches.
func MatchClusters(text string, clusters models.TopicClusters) []string {
	if !clusters.Enabled {
		return nil
	}
	var names []string
	for _, c := range clusters.Clusters {
		if MatchCluster(text, c) {
			names = append(names, c.Name)
		}
	}
	return names
}
