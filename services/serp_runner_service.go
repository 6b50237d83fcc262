// services/serp_runner_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility/internal/config"
	"github.com/AI-Template-SDK/senso-visibility/internal/extraction"
	"github.com/AI-Template-SDK/senso-visibility/internal/metrics"
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/serp"
	"github.com/AI-Template-SDK/senso-visibility/internal/textnorm"
)

const serpModelID = "serpapi-google"

type serpRunner struct {
	cfg       *config.Config
	repos     *RepositoryManager
	client    serp.Adapter
	cache     serp.Cache
	quota     QuotaGate
	snapshots SnapshotAggregator
	metrics   *metrics.Metrics
}

func NewSerpRunner(cfg *config.Config, repos *RepositoryManager, client serp.Adapter, cache serp.Cache,
	quota QuotaGate, snapshots SnapshotAggregator, m *metrics.Metrics) SerpRunner {
	return &serpRunner{
		cfg:       cfg,
		repos:     repos,
		client:    client,
		cache:     cache,
		quota:     quota,
		snapshots: snapshots,
		metrics:   m,
	}
}

// serpRun is the per-call state shared by every keyword.
type serpRun struct {
	project     *models.Project
	date        time.Time
	locale      serp.Locale
	brand       extraction.Brand
	competitors []models.Competitor
	force       bool
}

func (r *serpRunner) Run(ctx context.Context, projectID uuid.UUID, opts SerpOptions, userID uuid.UUID) (*SerpSummary, error) {
	project, err := loadActiveProject(ctx, r.repos, projectID)
	if err != nil {
		return nil, err
	}
	date := opts.Date
	if date.IsZero() {
		date = r.cfg.Today()
	}
	summary := &SerpSummary{
		ProjectID:    projectID,
		AnalysisDate: date,
		Results:      []SerpKeywordResult{},
	}

	keywords, err := r.repos.Keywords.ListActive(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keywords: %w", err)
	}
	if len(keywords) == 0 {
		log.Info().Str("project_id", projectID.String()).Msg("[RunSerp] no active keywords, nothing to do")
		return summary, nil
	}

	status, err := r.quota.Status(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !status.CanConsume {
		log.Warn().
			Str("project_id", projectID.String()).
			Str("user_id", userID.String()).
			Str("plan", status.Plan).
			Msg("[RunSerp] quota exhausted before run")
		summary.QuotaExceeded = true
		summary.QuotaInfo = status
		summary.Error = quotaExceeded(status)
		summary.KeywordsRemaining = len(keywords)
		return summary, nil
	}

	run := &serpRun{
		project: project,
		date:    date,
		locale:  serp.LocaleFor(project.CountryCode, project.Language),
		brand: extraction.Brand{
			Name:     project.BrandName,
			Domain:   project.BrandDomain,
			Keywords: project.BrandKeywords,
		},
		competitors: project.UnifiedCompetitors(),
		force:       opts.ForceOverwrite,
	}

	log.Info().
		Str("project_id", projectID.String()).
		Int("keywords", len(keywords)).
		Str("country", run.locale.CountryCode).
		Bool("force_overwrite", opts.ForceOverwrite).
		Msg("[RunSerp] starting SERP run")

	for i, kw := range keywords {
		if ctx.Err() != nil {
			summary.KeywordsRemaining = len(keywords) - i
			break
		}

		status, err := r.quota.Status(ctx, userID)
		if err != nil {
			log.Error().Err(err).Str("keyword", kw.Text).Msg("[RunSerp] quota check failed")
			summary.Results = append(summary.Results, failedKeyword(kw, err))
			summary.KeywordsFailed++
			continue
		}
		if status.Remaining < 1 {
			summary.QuotaExceeded = true
			summary.QuotaInfo = status
			summary.Error = quotaExceeded(status)
			summary.KeywordsRemaining = len(keywords) - i
			log.Warn().
				Str("project_id", projectID.String()).
				Int("keywords_remaining", summary.KeywordsRemaining).
				Msg("[RunSerp] quota exhausted mid-run, stopping")
			break
		}

		result, err := r.analyzeKeyword(ctx, run, kw)
		if err != nil {
			var blocked *serp.QuotaBlockedError
			if errors.As(err, &blocked) {
				summary.QuotaExceeded = true
				summary.QuotaInfo = status
				summary.Error = &QuotaExceededError{
					Plan:           status.Plan,
					QuotaUsed:      status.QuotaUsed,
					QuotaLimit:     status.QuotaLimit,
					ActionRequired: ActionContactSupport,
					Message:        blocked.Message,
				}
				summary.KeywordsRemaining = len(keywords) - i
				log.Error().
					Str("project_id", projectID.String()).
					Str("keyword", kw.Text).
					Str("message", blocked.Message).
					Msg("[RunSerp] upstream search quota blocked, stopping")
				break
			}
			log.Error().
				Err(err).
				Str("project_id", projectID.String()).
				Str("keyword", kw.Text).
				Msg("[RunSerp] keyword failed")
			summary.Results = append(summary.Results, failedKeyword(kw, err))
			summary.KeywordsFailed++
			continue
		}

		summary.Results = append(summary.Results, result)
		switch result.Status {
		case KeywordUnchanged:
			summary.KeywordsUnchanged++
		case KeywordAnalyzed:
			summary.KeywordsAnalyzed++
			r.quota.Track(ctx, userID, 1, models.QuotaSourceManualAI, models.Metadata{
				"project_id": projectID.String(),
				"keyword":    kw.Text,
				"country":    run.locale.CountryCode,
			})
		}
	}

	// The day's rows are summarised even when the run stopped early.
	finishCtx := context.WithoutCancel(ctx)
	if summary.KeywordsAnalyzed+summary.KeywordsUnchanged > 0 {
		snapshot, err := r.snapshots.Aggregate(finishCtx, projectID, config.SurfaceSERP, date, len(keywords))
		if err != nil {
			log.Error().Err(err).Str("project_id", projectID.String()).Msg("[RunSerp] snapshot failed")
		} else {
			summary.Snapshot = snapshot
		}
		if err := r.repos.Projects.UpdateLastAnalysisDate(finishCtx, projectID, date); err != nil {
			log.Error().Err(err).Str("project_id", projectID.String()).Msg("[RunSerp] failed to update last analysis date")
		}
	}

	log.Info().
		Str("project_id", projectID.String()).
		Int("analyzed", summary.KeywordsAnalyzed).
		Int("unchanged", summary.KeywordsUnchanged).
		Int("failed", summary.KeywordsFailed).
		Bool("quota_exceeded", summary.QuotaExceeded).
		Msg("[RunSerp] SERP run finished")
	return summary, nil
}

// analyzeKeyword handles one keyword end to end. Fetch errors keep their
// *serp.QuotaBlockedError so the caller can stop the run.
func (r *serpRunner) analyzeKeyword(ctx context.Context, run *serpRun, kw *models.Keyword) (SerpKeywordResult, error) {
	result := SerpKeywordResult{KeywordID: kw.ID, Keyword: kw.Text}
	projectID := run.project.ID

	exists, err := r.repos.ProbeResults.Exists(ctx, projectID, kw.ID, config.SurfaceSERP, run.date)
	if err != nil {
		return result, fmt.Errorf("failed to check existing result: %w", err)
	}
	if exists {
		if !run.force {
			result.Status = KeywordUnchanged
			return result, nil
		}
		if err := r.repos.ProbeResults.Delete(ctx, projectID, kw.ID, config.SurfaceSERP, run.date); err != nil {
			return result, fmt.Errorf("failed to clear existing result: %w", err)
		}
	}

	key := serp.CacheKey(kw.Text, run.project.BrandDomain, run.locale.CountryCode)
	entry, hit := r.cached(ctx, key)
	var latency time.Duration
	if !hit {
		start := time.Now()
		resp, err := r.client.Fetch(ctx, kw.Text, run.locale)
		latency = time.Since(start)
		if err != nil {
			return result, fmt.Errorf("failed to fetch results for %q: %w", kw.Text, err)
		}
		entry = &serp.CacheEntry{
			Response: resp,
			Analysis: serp.AnalyzeAIOverview(resp, run.project.BrandDomain),
		}
		if err := r.cache.Set(ctx, key, entry, r.cfg.Serp.CacheTTL); err != nil {
			log.Warn().Err(err).Str("keyword", kw.Text).Msg("[analyzeKeyword] failed to cache results")
		}
	}
	ai := entry.Analysis

	row := &models.ProbeResult{
		ProjectID:              projectID,
		SubjectID:              kw.ID,
		SubjectText:            kw.Text,
		Surface:                config.SurfaceSERP,
		AnalysisDate:           run.date,
		HasAIOverview:          ai.HasAIOverview,
		DomainIsAISource:       ai.DomainIsAISource,
		DomainAISourcePosition: ai.DomainAISourcePosition,
		DomainAISourceLink:     ai.DomainAISourceLink,
		OrganicPosition:        serp.OrganicPosition(entry.Response, run.project.BrandDomain),
		CompetitorsMentioned:   models.CountMap{},
		ModelID:                serpModelID,
		LatencyMS:              int(latency.Milliseconds()),
		Sources:                models.SourceList{},
	}
	if ai.HasAIOverview {
		mention := extraction.Extract(ai.OverviewText(), run.brand, ai.Sources(), run.competitors)
		applyMention(row, mention)
		// A brand cited only in the references ranks at its reference number.
		if mention.LinkOnly && ai.DomainAISourcePosition != nil {
			row.Position = ai.DomainAISourcePosition
			row.PositionSource = models.StrPtr(models.PositionSourceLink)
		}
	}
	if run.project.TopicClusters.Enabled {
		row.MatchedClusters = textnorm.MatchClusters(kw.Text, run.project.TopicClusters)
	}

	if err := r.repos.ProbeResults.Upsert(ctx, row); err != nil {
		r.metrics.ProbeResult(config.SurfaceSERP, true)
		return result, fmt.Errorf("failed to store result: %w", err)
	}
	r.metrics.ProbeResult(config.SurfaceSERP, false)

	// Without an overview the day's cited domains are cleared.
	var domains []*models.GlobalDomain
	if ai.HasAIOverview {
		domains = globalDomains(run, kw, ai)
	}
	if err := r.repos.GlobalDomains.ReplaceForKeyword(ctx, projectID, kw.ID, run.date, domains); err != nil {
		log.Warn().Err(err).Str("keyword", kw.Text).Msg("[analyzeKeyword] failed to store cited domains")
	}

	result.Status = KeywordAnalyzed
	result.HasAIOverview = ai.HasAIOverview
	result.DomainIsAISource = ai.DomainIsAISource
	result.Position = ai.DomainAISourcePosition
	result.FromCache = hit
	return result, nil
}

// cached returns a stored analysis. Cache errors degrade to a miss.
func (r *serpRunner) cached(ctx context.Context, key string) (*serp.CacheEntry, bool) {
	entry, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("[analyzeKeyword] cache lookup failed")
		ok = false
	}
	r.metrics.SerpCacheLookup(ok)
	if !ok || entry == nil {
		return nil, false
	}
	return entry, true
}

// globalDomains lists every cited domain of the overview once, at the position
// of its first reference.
func globalDomains(run *serpRun, kw *models.Keyword, ai serp.AIAnalysis) []*models.GlobalDomain {
	var rows []*models.GlobalDomain
	seen := make(map[string]bool)
	for i, src := range ai.Sources() {
		domain := extraction.CanonicalHost(src.URL)
		if domain == "" || seen[domain] {
			continue
		}
		seen[domain] = true

		competitor := false
		for _, c := range run.competitors {
			if c.Domain != "" && extraction.HostMatches(src.URL, c.Domain) {
				competitor = true
				break
			}
		}
		rows = append(rows, &models.GlobalDomain{
			ProjectID:            run.project.ID,
			KeywordID:            kw.ID,
			Keyword:              kw.Text,
			AnalysisDate:         run.date,
			DetectedDomain:       domain,
			DomainPosition:       i + 1,
			SourceURL:            src.URL,
			IsProjectDomain:      extraction.HostMatches(src.URL, run.project.BrandDomain),
			IsSelectedCompetitor: competitor,
		})
	}
	return rows
}

func failedKeyword(kw *models.Keyword, err error) SerpKeywordResult {
	return SerpKeywordResult{
		KeywordID: kw.ID,
		Keyword:   kw.Text,
		Status:    KeywordFailed,
		Error:     err.Error(),
	}
}
