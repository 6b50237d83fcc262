// services/interfaces.go
package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/senso-visibility/internal/database"
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/repositories/interfaces"
	"github.com/AI-Template-SDK/senso-visibility/internal/repositories/postgresql"
)

// RepositoryManager manages all database repositories
type RepositoryManager struct {
	Projects      interfaces.ProjectRepository
	Queries       interfaces.QueryRepository
	Keywords      interfaces.KeywordRepository
	ProbeResults  interfaces.ProbeResultRepository
	Snapshots     interfaces.SnapshotRepository
	Models        interfaces.ModelRegistryRepository
	Events        interfaces.EventRepository
	GlobalDomains interfaces.GlobalDomainRepository
	Quotas        interfaces.QuotaRepository
}

// NewRepositoryManager creates a new repository manager with all repositories
func NewRepositoryManager(db *database.Client) *RepositoryManager {
	return &RepositoryManager{
		Projects:      postgresql.NewProjectRepo(db),
		Queries:       postgresql.NewQueryRepo(db),
		Keywords:      postgresql.NewKeywordRepo(db),
		ProbeResults:  postgresql.NewProbeResultRepo(db),
		Snapshots:     postgresql.NewSnapshotRepo(db),
		Models:        postgresql.NewModelRegistryRepo(db),
		Events:        postgresql.NewEventRepo(db),
		GlobalDomains: postgresql.NewGlobalDomainRepo(db),
		Quotas:        postgresql.NewQuotaRepo(db),
	}
}

// ProbeRunner fans a project's queries out to the healthy chat providers.
type ProbeRunner interface {
	Run(ctx context.Context, projectID uuid.UUID, opts ProbeOptions) (*ProbeSummary, error)
}

// SerpRunner analyses a project's keywords on Google result pages.
type SerpRunner interface {
	Run(ctx context.Context, projectID uuid.UUID, opts SerpOptions, userID uuid.UUID) (*SerpSummary, error)
}

// SnapshotAggregator rolls a day of probe results into one snapshot row.
type SnapshotAggregator interface {
	Aggregate(ctx context.Context, projectID uuid.UUID, surface string, date time.Time, expected int) (*models.Snapshot, error)
}

// QuotaGate is the read and write side of resource-unit accounting.
type QuotaGate interface {
	Status(ctx context.Context, userID uuid.UUID) (*models.QuotaStatus, error)
	// Track is best effort: failures are logged, never returned.
	Track(ctx context.Context, userID uuid.UUID, units int, source string, metadata models.Metadata)
}

// QueryProvisioner synthesises the starter query set for a project.
type QueryProvisioner interface {
	Generate(project *models.Project) []*models.Query
	EnsureQueries(ctx context.Context, project *models.Project) ([]*models.Query, error)
}

type ProjectService interface {
	Create(ctx context.Context, project *models.Project) error
	UpdateCompetitors(ctx context.Context, projectID uuid.UUID, competitors []models.Competitor) (*models.Project, error)
	Deactivate(ctx context.Context, projectID uuid.UUID) error
	Delete(ctx context.Context, projectID uuid.UUID) error
}

type ModelRegistryService interface {
	// Load returns the stored registry, seeding it from the embedded defaults
	// when the table is empty.
	Load(ctx context.Context) ([]models.ModelRegistryEntry, error)
	SetCurrent(ctx context.Context, provider, modelID string) error
}

type Orchestrator interface {
	AnalyzeProject(ctx context.Context, projectID uuid.UUID, opts AnalyzeOptions) (*AnalysisReport, error)
	RunDailyForAllActive(ctx context.Context) *DailyRunReport
}

// ProbeOptions scopes one multi-LLM run.
type ProbeOptions struct {
	Date time.Time

	// Providers restricts the run; empty means every enabled chat surface.
	Providers []string
}

// ProviderCompleteness is the per-provider outcome of a probe run.
type ProviderCompleteness struct {
	QueriesExpected int     `json:"queries_expected"`
	QueriesAnalyzed int     `json:"queries_analyzed"`
	FailedQueries   int     `json:"failed_queries"`
	CompletenessPct float64 `json:"completeness_pct"`
}

// ProbeSummary is returned by ProbeRunner.Run.
type ProbeSummary struct {
	ProjectID          uuid.UUID                       `json:"project_id"`
	AnalysisDate       time.Time                       `json:"analysis_date"`
	Providers          map[string]ProviderCompleteness `json:"providers"`
	UnhealthyProviders []string                        `json:"unhealthy_providers"`
	FailedQueries      int                             `json:"failed_queries"`
	RetryPasses        int                             `json:"retry_passes"`
	CompletenessPct    float64                         `json:"completeness_pct"`
	AllQueriesAnalyzed bool                            `json:"all_queries_analyzed"`
	TotalCostUSD       float64                         `json:"total_cost_usd"`
	Snapshots          []*models.Snapshot              `json:"snapshots,omitempty"`
}

type SerpOptions struct {
	ForceOverwrite bool
	Date           time.Time
}

// SerpKeywordResult is the per-keyword line of a SERP run.
type SerpKeywordResult struct {
	KeywordID        uuid.UUID `json:"keyword_id"`
	Keyword          string    `json:"keyword"`
	Status           string    `json:"status"`
	HasAIOverview    bool      `json:"has_ai_overview"`
	DomainIsAISource bool      `json:"domain_is_ai_source"`
	Position         *int      `json:"domain_ai_source_position,omitempty"`
	FromCache        bool      `json:"from_cache"`
	Error            string    `json:"error,omitempty"`
}

// Keyword statuses reported by SerpRunner.
const (
	KeywordAnalyzed  = "analyzed"
	KeywordUnchanged = "unchanged"
	KeywordFailed    = "failed"
)

// SerpSummary is returned by SerpRunner.Run. QuotaExceeded runs stop early and
// report how far they got.
type SerpSummary struct {
	ProjectID         uuid.UUID           `json:"project_id"`
	AnalysisDate      time.Time           `json:"analysis_date"`
	Results           []SerpKeywordResult `json:"results"`
	KeywordsAnalyzed  int                 `json:"keywords_analyzed"`
	KeywordsUnchanged int                 `json:"keywords_unchanged"`
	KeywordsFailed    int                 `json:"keywords_failed"`
	KeywordsRemaining int                 `json:"keywords_remaining"`
	QuotaExceeded     bool                `json:"quota_exceeded"`
	QuotaInfo         *models.QuotaStatus `json:"quota_info,omitempty"`
	Error             *QuotaExceededError `json:"error,omitempty"`
	Snapshot          *models.Snapshot    `json:"snapshot,omitempty"`
}

type AnalyzeOptions struct {
	// SurfaceFilter restricts the run; empty means every enabled surface.
	SurfaceFilter  []string
	ForceOverwrite bool

	// UserID is charged for SERP resource units; zero uses the project owner.
	UserID uuid.UUID
}

// AnalysisReport is the structured summary of an on-demand analysis.
type AnalysisReport struct {
	OK                 bool                   `json:"ok"`
	ProjectID          uuid.UUID              `json:"project_id"`
	AnalysisDate       time.Time              `json:"analysis_date"`
	SurfaceResults     map[string]interface{} `json:"surface_results"`
	IncompleteSurfaces []string               `json:"incomplete_surfaces"`
	Stopped            bool                   `json:"stopped"`
}

// DailyRunReport accumulates the cron sweep.
type DailyRunReport struct {
	Date      time.Time         `json:"date"`
	Processed int               `json:"processed"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Failures  map[string]string `json:"failures,omitempty"`
}
