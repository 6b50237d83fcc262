// services/orchestrator_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility/internal/config"
	"github.com/AI-Template-SDK/senso-visibility/internal/metrics"
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
)

// Analysis outcomes reported to metrics.
const (
	analysisCompleted = "completed"
	analysisStopped   = "stopped"
	analysisFailed    = "failed"
)

type orchestrator struct {
	cfg     *config.Config
	repos   *RepositoryManager
	probes  ProbeRunner
	serps   SerpRunner
	metrics *metrics.Metrics
}

func NewOrchestrator(cfg *config.Config, repos *RepositoryManager, probes ProbeRunner, serps SerpRunner, m *metrics.Metrics) Orchestrator {
	return &orchestrator{
		cfg:     cfg,
		repos:   repos,
		probes:  probes,
		serps:   serps,
		metrics: m,
	}
}

// AnalyzeProject runs every enabled surface for today. The report is returned
// even when some surfaces are incomplete; an error is returned only when
// nothing could run or every surface failed.
func (o *orchestrator) AnalyzeProject(ctx context.Context, projectID uuid.UUID, opts AnalyzeOptions) (*AnalysisReport, error) {
	project, err := loadActiveProject(ctx, o.repos, projectID)
	if err != nil {
		return nil, err
	}
	if err := ValidateProject(project); err != nil {
		return nil, err
	}

	surfaces := []string(project.EnabledSurfaces)
	if len(opts.SurfaceFilter) > 0 {
		surfaces = intersect(surfaces, opts.SurfaceFilter)
	}
	var llm []string
	runSerp := false
	for _, s := range surfaces {
		if strings.EqualFold(s, config.SurfaceSERP) {
			runSerp = true
			continue
		}
		llm = append(llm, strings.ToLower(s))
	}
	if len(llm) == 0 && !runSerp {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNoProviders)
	}

	date := o.cfg.Today()
	userID := opts.UserID
	if userID == uuid.Nil {
		userID = project.UserID
	}

	report := &AnalysisReport{
		ProjectID:          projectID,
		AnalysisDate:       date,
		SurfaceResults:     make(map[string]interface{}),
		IncompleteSurfaces: []string{},
	}
	recordEvent(ctx, o.repos, date, projectID, models.EventAnalysisStarted,
		fmt.Sprintf("Analysis started for %s", project.BrandName), nil, surfaces)

	log.Info().
		Str("project_id", projectID.String()).
		Strs("surfaces", surfaces).
		Bool("force_overwrite", opts.ForceOverwrite).
		Msg("[AnalyzeProject] analysis started")

	var (
		attempted int
		failures  []string
	)

	if len(llm) > 0 {
		attempted++
		if err := o.runProbes(ctx, report, projectID, date, llm); err != nil {
			failures = append(failures, fmt.Sprintf("llm: %v", err))
		}
	}
	if runSerp {
		attempted++
		if err := o.runSerp(ctx, report, projectID, opts.ForceOverwrite, userID); err != nil {
			failures = append(failures, fmt.Sprintf("serp: %v", err))
		}
	}

	report.OK = len(failures) < attempted
	switch {
	case !report.OK:
		o.metrics.Analysis(analysisFailed)
		description := strings.Join(failures, "; ")
		recordEvent(context.WithoutCancel(ctx), o.repos, date, projectID, models.EventAnalysisFailed,
			"Analysis failed on every surface", &description, nil)
		return report, fmt.Errorf("project %s: every surface failed: %s", projectID, description)
	case report.Stopped:
		o.metrics.Analysis(analysisStopped)
	default:
		o.metrics.Analysis(analysisCompleted)
	}

	log.Info().
		Str("project_id", projectID.String()).
		Strs("incomplete_surfaces", report.IncompleteSurfaces).
		Bool("stopped", report.Stopped).
		Msg("[AnalyzeProject] analysis finished")
	return report, nil
}

func (o *orchestrator) runProbes(ctx context.Context, report *AnalysisReport, projectID uuid.UUID, date time.Time, llm []string) error {
	summary, err := o.probes.Run(ctx, projectID, ProbeOptions{Date: date, Providers: llm})
	if err != nil {
		log.Error().Err(err).Str("project_id", projectID.String()).Msg("[AnalyzeProject] probe run failed")
		for _, p := range llm {
			report.SurfaceResults[p] = map[string]string{"error": err.Error()}
			report.IncompleteSurfaces = append(report.IncompleteSurfaces, p)
		}
		return err
	}

	finishCtx := context.WithoutCancel(ctx)
	for _, p := range llm {
		c, ok := summary.Providers[p]
		if !ok {
			reason := "not configured"
			for _, u := range summary.UnhealthyProviders {
				if u == p {
					reason = "unhealthy"
				}
			}
			report.SurfaceResults[p] = map[string]string{"error": reason}
			report.IncompleteSurfaces = append(report.IncompleteSurfaces, p)
			continue
		}
		report.SurfaceResults[p] = c
		if c.CompletenessPct < 100 {
			report.IncompleteSurfaces = append(report.IncompleteSurfaces, p)
		}
		description := fmt.Sprintf("%d of %d queries analyzed", c.QueriesAnalyzed, c.QueriesExpected)
		recordEvent(finishCtx, o.repos, date, projectID, models.EventAnalysisCompleted,
			fmt.Sprintf("%s analysis completed", p), &description, nil)
	}
	return nil
}

func (o *orchestrator) runSerp(ctx context.Context, report *AnalysisReport, projectID uuid.UUID, force bool, userID uuid.UUID) error {
	date := report.AnalysisDate
	summary, err := o.serps.Run(ctx, projectID, SerpOptions{ForceOverwrite: force, Date: date}, userID)
	if err != nil {
		log.Error().Err(err).Str("project_id", projectID.String()).Msg("[AnalyzeProject] SERP run failed")
		report.SurfaceResults[config.SurfaceSERP] = map[string]string{"error": err.Error()}
		report.IncompleteSurfaces = append(report.IncompleteSurfaces, config.SurfaceSERP)
		return err
	}
	report.SurfaceResults[config.SurfaceSERP] = summary

	finishCtx := context.WithoutCancel(ctx)
	if summary.QuotaExceeded {
		report.Stopped = true
		report.IncompleteSurfaces = append(report.IncompleteSurfaces, config.SurfaceSERP)
		description := fmt.Sprintf("%d keywords analyzed, %d remaining", summary.KeywordsAnalyzed, summary.KeywordsRemaining)
		if summary.Error != nil {
			description = fmt.Sprintf("%s (%s)", description, summary.Error.Message)
		}
		recordEvent(finishCtx, o.repos, date, projectID, models.EventAnalysisStopped,
			"SERP analysis stopped: quota exhausted", &description, nil)
		return nil
	}
	if summary.KeywordsFailed > 0 {
		report.IncompleteSurfaces = append(report.IncompleteSurfaces, config.SurfaceSERP)
	}
	description := fmt.Sprintf("%d analyzed, %d unchanged, %d failed",
		summary.KeywordsAnalyzed, summary.KeywordsUnchanged, summary.KeywordsFailed)
	recordEvent(finishCtx, o.repos, date, projectID, models.EventAnalysisCompleted,
		"serp analysis completed", &description, analyzedKeywords(summary))
	return nil
}

// RunDailyForAllActive analyses every project not yet processed today, one at
// a time. It never fails: per-project problems land in the report and as
// analysis_failed events.
func (o *orchestrator) RunDailyForAllActive(ctx context.Context) *DailyRunReport {
	date := o.cfg.Today()
	report := &DailyRunReport{Date: date, Failures: make(map[string]string)}

	projects, err := o.repos.Projects.ListDue(ctx, date)
	if err != nil {
		log.Error().Err(err).Msg("[RunDailyForAllActive] failed to list due projects")
		return report
	}
	log.Info().Int("projects", len(projects)).Time("date", date).Msg("[RunDailyForAllActive] daily sweep started")

	for _, project := range projects {
		if ctx.Err() != nil {
			log.Warn().Int("skipped", len(projects)-report.Processed).Msg("[RunDailyForAllActive] sweep cancelled")
			break
		}
		report.Processed++

		started, err := o.analyzeSafely(ctx, project.ID, project.UserID)
		if err == nil {
			report.Succeeded++
			continue
		}
		report.Failed++
		report.Failures[project.ID.String()] = err.Error()
		log.Error().Err(err).Str("project_id", project.ID.String()).Msg("[RunDailyForAllActive] project failed")

		// Runs that got past validation already recorded their own failure.
		if !started {
			description := err.Error()
			recordEvent(context.WithoutCancel(ctx), o.repos, date, project.ID, models.EventAnalysisFailed,
				"Daily analysis failed", &description, nil)
		}
	}

	log.Info().
		Int("processed", report.Processed).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Msg("[RunDailyForAllActive] daily sweep finished")
	return report
}

// analyzeSafely converts panics into errors. started reports whether the
// analysis produced a report, i.e. whether it recorded its own events.
func (o *orchestrator) analyzeSafely(ctx context.Context, projectID, userID uuid.UUID) (started bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			started = false
			err = fmt.Errorf("panic during analysis: %v", r)
		}
	}()
	report, err := o.AnalyzeProject(ctx, projectID, AnalyzeOptions{UserID: userID})
	return report != nil, err
}

func analyzedKeywords(summary *SerpSummary) []string {
	var out []string
	for _, r := range summary.Results {
		if r.Status == KeywordAnalyzed {
			out = append(out, r.Keyword)
		}
	}
	return out
}
