// internal/models/models.go
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Query types used by the provisioning templates.
const (
	QueryTypeGeneral        = "general"
	QueryTypeWithBrand      = "with_brand"
	QueryTypeWithCompetitor = "with_competitor"
)

// Position sources recorded on a ProbeResult.
const (
	PositionSourceText = "text"
	PositionSourceLink = "link"
	PositionSourceBoth = "both"
)

// Sentiment labels.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// Event types written to the project timeline.
const (
	EventProjectCreated      = "project_created"
	EventCompetitorsChanged  = "competitors_changed"
	EventAnalysisStarted     = "analysis_started"
	EventAnalysisCompleted   = "analysis_completed"
	EventAnalysisStopped     = "analysis_stopped"
	EventAnalysisFailed      = "analysis_failed"
	QuotaSourceManualAI      = "manual_ai"
	LinkOnlyPosition         = 15
	MaxMentionContexts       = 5
	MinQueriesPerSurface     = 5
	MaxQueriesPerSurface     = 60
	DefaultQueriesPerSurface = 15
)

// Competitor is one tracked rival brand. Key is stable across runs and names the
// competitor in snapshot breakdowns.
type Competitor struct {
	ID          string   `json:"id"`
	Key         string   `json:"key"`
	DisplayName string   `json:"display_name"`
	Domain      string   `json:"domain"`
	Keywords    []string `json:"keywords"`
}

// TopicCluster groups query text under a named theme.
type TopicCluster struct {
	Name        string   `json:"name"`
	Terms       []string `json:"terms"`
	MatchMethod string   `json:"match_method"`
}

type TopicClusters struct {
	Enabled  bool           `json:"enabled"`
	Clusters []TopicCluster `json:"clusters"`
}

// Project is a tracked brand together with its competitor set and surface config.
type Project struct {
	ID                 uuid.UUID     `db:"id" json:"id"`
	UserID             uuid.UUID     `db:"user_id" json:"user_id"`
	BrandName          string        `db:"brand_name" json:"brand_name"`
	BrandDomain        string        `db:"brand_domain" json:"brand_domain"`
	BrandKeywords      StringList    `db:"brand_keywords" json:"brand_keywords"`
	Competitors        Competitors   `db:"competitors" json:"competitors"`
	CompetitorDomains  StringList    `db:"competitor_domains" json:"competitor_domains"`
	CompetitorKeywords StringList    `db:"competitor_keywords" json:"competitor_keywords"`
	EnabledSurfaces    StringList    `db:"enabled_surfaces" json:"enabled_surfaces"`
	CountryCode        string        `db:"country_code" json:"country_code"`
	Language           string        `db:"language" json:"language"`
	QueriesPerSurface  int           `db:"queries_per_surface" json:"queries_per_surface"`
	TopicClusters      TopicClusters `db:"topic_clusters" json:"topic_clusters"`
	IsActive           bool          `db:"is_active" json:"is_active"`
	LastAnalysisDate   *time.Time    `db:"last_analysis_date" json:"last_analysis_date,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// SurfaceEnabled reports whether the project tracks the given surface.
func (p *Project) SurfaceEnabled(surface string) bool {
	for _, s := range p.EnabledSurfaces {
		if strings.EqualFold(s, surface) {
			return true
		}
	}
	return false
}

// UnifiedCompetitors returns the authoritative competitor sequence. When the
// unified list is empty the legacy flat arrays are zipped by index. Every
// returned competitor carries a non-empty, unique Key.
func (p *Project) UnifiedCompetitors() []Competitor {
	var out []Competitor
	if len(p.Competitors) > 0 {
		out = make([]Competitor, len(p.Competitors))
		copy(out, p.Competitors)
	} else {
		n := len(p.CompetitorDomains)
		if len(p.CompetitorKeywords) > n {
			n = len(p.CompetitorKeywords)
		}
		for i := 0; i < n; i++ {
			var c Competitor
			if i < len(p.CompetitorDomains) {
				c.Domain = p.CompetitorDomains[i]
			}
			if i < len(p.CompetitorKeywords) && strings.TrimSpace(p.CompetitorKeywords[i]) != "" {
				c.Keywords = []string{p.CompetitorKeywords[i]}
			}
			out = append(out, c)
		}
	}

	seen := make(map[string]bool, len(out))
	for i := range out {
		key := out[i].Key
		if key == "" {
			key = CompetitorKey(out[i], i)
		}
		if seen[key] {
			key = fmt.Sprintf("%s_%d", key, i)
		}
		seen[key] = true
		out[i].Key = key
	}
	return out
}

// CompetitorKey derives a stable key: the leftmost label of the domain, else the
// lowercased display name or first keyword, else a positional name.
func CompetitorKey(c Competitor, index int) string {
	if host := bareHost(c.Domain); host != "" {
		if label := strings.Split(host, ".")[0]; label != "" {
			return label
		}
	}
	if name := strings.ToLower(strings.TrimSpace(c.DisplayName)); name != "" {
		return name
	}
	if len(c.Keywords) > 0 {
		if kw := strings.ToLower(strings.TrimSpace(c.Keywords[0])); kw != "" {
			return kw
		}
	}
	return fmt.Sprintf("competitor_%d", index+1)
}

func bareHost(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	return strings.TrimPrefix(d, "www.")
}

// Query is a prompt sent to the LLM surfaces.
type Query struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ProjectID uuid.UUID `db:"project_id" json:"project_id"`
	QueryText string    `db:"query_text" json:"query_text"`
	Language  string    `db:"language" json:"language"`
	QueryType string    `db:"query_type" json:"query_type"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Keyword is a search term analysed on the SERP surface.
type Keyword struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ProjectID uuid.UUID `db:"project_id" json:"project_id"`
	Text      string    `db:"text" json:"text"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Source is a URL cited by a response.
type Source struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// ProbeResult is one measurement for (project, subject, surface, date).
type ProbeResult struct {
	ID           uuid.UUID `db:"id" json:"id"`
	ProjectID    uuid.UUID `db:"project_id" json:"project_id"`
	SubjectID    uuid.UUID `db:"subject_id" json:"subject_id"`
	SubjectText  string    `db:"subject_text" json:"subject_text"`
	Surface      string    `db:"surface" json:"surface"`
	AnalysisDate time.Time `db:"analysis_date" json:"analysis_date"`

	BrandMentioned  bool       `db:"brand_mentioned" json:"brand_mentioned"`
	MentionCount    int        `db:"mention_count" json:"mention_count"`
	MentionContexts StringList `db:"mention_contexts" json:"mention_contexts"`

	AppearsInList  bool    `db:"appears_in_list" json:"appears_in_list"`
	Position       *int    `db:"position" json:"position,omitempty"`
	TotalItems     *int    `db:"total_items" json:"total_items,omitempty"`
	PositionSource *string `db:"position_source" json:"position_source,omitempty"`
	PositionMethod *string `db:"position_method" json:"position_method,omitempty"`
	LinkOnly       bool    `db:"link_only" json:"link_only"`

	HasAIOverview          bool    `db:"has_ai_overview" json:"has_ai_overview"`
	DomainIsAISource       bool    `db:"domain_is_ai_source" json:"domain_is_ai_source"`
	DomainAISourcePosition *int    `db:"domain_ai_source_position" json:"domain_ai_source_position,omitempty"`
	DomainAISourceLink     *string `db:"domain_ai_source_link" json:"domain_ai_source_link,omitempty"`
	OrganicPosition        *int    `db:"organic_position" json:"organic_position,omitempty"`

	CompetitorsMentioned CountMap `db:"competitors_mentioned" json:"competitors_mentioned"`

	Sentiment       *string  `db:"sentiment" json:"sentiment,omitempty"`
	SentimentScore  *float64 `db:"sentiment_score" json:"sentiment_score,omitempty"`
	SentimentMethod *string  `db:"sentiment_method" json:"sentiment_method,omitempty"`

	ModelID         string     `db:"model_id" json:"model_id"`
	TokensIn        int        `db:"tokens_in" json:"tokens_in"`
	TokensOut       int        `db:"tokens_out" json:"tokens_out"`
	CostUSD         float64    `db:"cost_usd" json:"cost_usd"`
	LatencyMS       int        `db:"latency_ms" json:"latency_ms"`
	Sources         SourceList `db:"sources" json:"sources"`
	MatchedClusters StringList `db:"matched_clusters" json:"matched_clusters"`

	HasError     bool    `db:"has_error" json:"has_error"`
	ErrorMessage *string `db:"error_message" json:"error_message,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Snapshot is the daily roll-up for (project, surface, date).
type Snapshot struct {
	ID           uuid.UUID `db:"id" json:"id"`
	ProjectID    uuid.UUID `db:"project_id" json:"project_id"`
	Surface      string    `db:"surface" json:"surface"`
	SnapshotDate time.Time `db:"snapshot_date" json:"snapshot_date"`

	TotalQueries  int     `db:"total_queries" json:"total_queries"`
	TotalMentions int     `db:"total_mentions" json:"total_mentions"`
	MentionRate   float64 `db:"mention_rate" json:"mention_rate"`

	AvgPosition     *float64 `db:"avg_position" json:"avg_position,omitempty"`
	AppearedInTop3  int      `db:"appeared_in_top3" json:"appeared_in_top3"`
	AppearedInTop5  int      `db:"appeared_in_top5" json:"appeared_in_top5"`
	AppearedInTop10 int      `db:"appeared_in_top10" json:"appeared_in_top10"`

	TotalCompetitorMentions     int       `db:"total_competitor_mentions" json:"total_competitor_mentions"`
	ShareOfVoice                float64   `db:"share_of_voice" json:"share_of_voice"`
	CompetitorBreakdown         CountMap  `db:"competitor_breakdown" json:"competitor_breakdown"`
	WeightedShareOfVoice        float64   `db:"weighted_share_of_voice" json:"weighted_share_of_voice"`
	WeightedCompetitorBreakdown WeightMap `db:"weighted_competitor_breakdown" json:"weighted_competitor_breakdown"`

	PositiveMentions  int     `db:"positive_mentions" json:"positive_mentions"`
	NeutralMentions   int     `db:"neutral_mentions" json:"neutral_mentions"`
	NegativeMentions  int     `db:"negative_mentions" json:"negative_mentions"`
	AvgSentimentScore float64 `db:"avg_sentiment_score" json:"avg_sentiment_score"`

	AvgResponseTimeMS float64 `db:"avg_response_time_ms" json:"avg_response_time_ms"`
	TotalCostUSD      float64 `db:"total_cost_usd" json:"total_cost_usd"`
	TotalTokens       int     `db:"total_tokens" json:"total_tokens"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ModelRegistryEntry prices one provider model.
type ModelRegistryEntry struct {
	ID               uuid.UUID `db:"id" json:"id" yaml:"-"`
	Provider         string    `db:"provider" json:"provider" yaml:"provider"`
	ModelID          string    `db:"model_id" json:"model_id" yaml:"model_id"`
	DisplayName      string    `db:"display_name" json:"display_name" yaml:"display_name"`
	InputPricePer1M  float64   `db:"input_price_per_1m" json:"input_price_per_1m" yaml:"input_price_per_1m"`
	OutputPricePer1M float64   `db:"output_price_per_1m" json:"output_price_per_1m" yaml:"output_price_per_1m"`
	ContextWindow    int       `db:"context_window" json:"context_window" yaml:"context_window"`
	IsCurrent        bool      `db:"is_current" json:"is_current" yaml:"is_current"`
	IsAvailable      bool      `db:"is_available" json:"is_available" yaml:"is_available"`
}

// Event is an append-only annotation on a project timeline.
type Event struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	ProjectID        uuid.UUID  `db:"project_id" json:"project_id"`
	EventDate        time.Time  `db:"event_date" json:"event_date"`
	EventType        string     `db:"event_type" json:"event_type"`
	Title            string     `db:"title" json:"title"`
	Description      *string    `db:"description" json:"description,omitempty"`
	KeywordsAffected StringList `db:"keywords_affected" json:"keywords_affected,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// GlobalDomain is one domain cited by an AI overview for a keyword.
type GlobalDomain struct {
	ProjectID            uuid.UUID `db:"project_id" json:"project_id"`
	KeywordID            uuid.UUID `db:"keyword_id" json:"keyword_id"`
	Keyword              string    `db:"keyword" json:"keyword"`
	AnalysisDate         time.Time `db:"analysis_date" json:"analysis_date"`
	DetectedDomain       string    `db:"detected_domain" json:"detected_domain"`
	DomainPosition       int       `db:"domain_position" json:"domain_position"`
	SourceURL            string    `db:"source_url" json:"source_url"`
	IsProjectDomain      bool      `db:"is_project_domain" json:"is_project_domain"`
	IsSelectedCompetitor bool      `db:"is_selected_competitor" json:"is_selected_competitor"`
}

// UserQuota is the per-user resource-unit allowance.
type UserQuota struct {
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	Plan        string    `db:"plan" json:"plan"`
	QuotaLimit  int       `db:"quota_limit" json:"quota_limit"`
	QuotaUsed   int       `db:"quota_used" json:"quota_used"`
	PeriodStart time.Time `db:"period_start" json:"period_start"`
}

// QuotaStatus is the read side of the quota gate.
type QuotaStatus struct {
	CanConsume bool   `json:"can_consume"`
	Plan       string `json:"plan"`
	QuotaUsed  int    `json:"quota_used"`
	QuotaLimit int    `json:"quota_limit"`
	Remaining  int    `json:"remaining"`
	Message    string `json:"message"`
}

// IntPtr and friends build optional columns.
func IntPtr(v int) *int           { return &v }
func StrPtr(v string) *string     { return &v }
func FloatPtr(v float64) *float64 { return &v }
