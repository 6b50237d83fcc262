// services/probe_runner_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/AI-Template-SDK/senso-visibility/internal/config"
	"github.com/AI-Template-SDK/senso-visibility/internal/extraction"
	"github.com/AI-Template-SDK/senso-visibility/internal/metrics"
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/providers"
	"github.com/AI-Template-SDK/senso-visibility/internal/providers/common"
	"github.com/AI-Template-SDK/senso-visibility/internal/sentiment"
	"github.com/AI-Template-SDK/senso-visibility/internal/textnorm"
)

// RetryDelays are the sleeps before each retry pass; later passes reuse the last.
var RetryDelays = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 30 * time.Second}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type probeRunner struct {
	cfg         *config.Config
	repos       *RepositoryManager
	adapters    *providers.Adapters
	classifier  *sentiment.Classifier
	snapshots   SnapshotAggregator
	provisioner QueryProvisioner
	metrics     *metrics.Metrics
	sleep       SleepFunc
}

// ProbeRunnerOption customises a probe runner.
type ProbeRunnerOption func(*probeRunner)

// WithSleep replaces the wait between retry passes.
func WithSleep(sleep SleepFunc) ProbeRunnerOption {
	return func(r *probeRunner) { r.sleep = sleep }
}

func NewProbeRunner(cfg *config.Config, repos *RepositoryManager, adapters *providers.Adapters, classifier *sentiment.Classifier,
	snapshots SnapshotAggregator, provisioner QueryProvisioner, m *metrics.Metrics, opts ...ProbeRunnerOption) ProbeRunner {
	r := &probeRunner{
		cfg:         cfg,
		repos:       repos,
		adapters:    adapters,
		classifier:  classifier,
		snapshots:   snapshots,
		provisioner: provisioner,
		metrics:     m,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type probeTask struct {
	provider string
	adapter  providers.Adapter
	query    *models.Query
}

type taskOutcome int

const (
	taskSucceeded taskOutcome = iota
	taskTransient
	taskPermanent
)

// probeRun is the shared state of one Run call.
type probeRun struct {
	project     *models.Project
	date        time.Time
	brand       extraction.Brand
	competitors []models.Competitor
	semaphores  map[string]*semaphore.Weighted

	mu       sync.Mutex
	analyzed map[string]int
	costUSD  float64
}

func (p *probeRun) succeeded(provider string, cost float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.analyzed[provider]++
	p.costUSD += cost
}

func (r *probeRunner) Run(ctx context.Context, projectID uuid.UUID, opts ProbeOptions) (*ProbeSummary, error) {
	project, err := loadActiveProject(ctx, r.repos, projectID)
	if err != nil {
		return nil, err
	}
	date := opts.Date
	if date.IsZero() {
		date = r.cfg.Today()
	}

	wanted := []string(project.EnabledSurfaces)
	if len(opts.Providers) > 0 {
		wanted = intersect(wanted, opts.Providers)
	}
	enabled := r.adapters.Enabled(wanted)
	if len(enabled) == 0 {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNoProviders)
	}

	queries, err := r.provisioner.EnsureQueries(ctx, project)
	if err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNoQueries)
	}

	healthy, unhealthy := r.healthGate(ctx, enabled)
	if len(healthy) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoHealthyProviders, strings.Join(unhealthy, ", "))
	}

	run := &probeRun{
		project: project,
		date:    date,
		brand: extraction.Brand{
			Name:     project.BrandName,
			Domain:   project.BrandDomain,
			Keywords: project.BrandKeywords,
		},
		competitors: project.UnifiedCompetitors(),
		semaphores:  make(map[string]*semaphore.Weighted, len(healthy)),
		analyzed:    make(map[string]int, len(healthy)),
	}

	var tasks []probeTask
	for _, provider := range healthy {
		adapter, _ := r.adapters.Get(provider)
		run.semaphores[provider] = semaphore.NewWeighted(int64(r.cfg.ConcurrencyCap(provider)))
		for _, q := range queries {
			tasks = append(tasks, probeTask{provider: provider, adapter: adapter, query: q})
		}
	}

	log.Info().
		Str("project_id", projectID.String()).
		Strs("providers", healthy).
		Strs("unhealthy", unhealthy).
		Int("queries", len(queries)).
		Int("tasks", len(tasks)).
		Msg("[RunProbes] starting probe run")

	failed := r.runPass(ctx, run, tasks)
	passes := 0
	for pass := 1; pass <= r.cfg.Probe.MaxRetries && len(failed) > 0; pass++ {
		if ctx.Err() != nil {
			break
		}
		delay := retryDelay(pass)
		log.Warn().
			Str("project_id", projectID.String()).
			Int("pass", pass).
			Int("failed", len(failed)).
			Dur("delay", delay).
			Msg("[RunProbes] retrying failed tasks")
		if err := r.sleep(ctx, delay); err != nil {
			break
		}
		r.metrics.ProbeRetry()
		passes = pass
		failed = r.runPass(ctx, run, failed)
	}

	// Snapshots and bookkeeping survive a stop request so partial days are visible.
	finishCtx := context.WithoutCancel(ctx)
	summary := &ProbeSummary{
		ProjectID:          projectID,
		AnalysisDate:       date,
		Providers:          make(map[string]ProviderCompleteness, len(healthy)),
		UnhealthyProviders: append([]string{}, unhealthy...),
		RetryPasses:        passes,
		AllQueriesAnalyzed: true,
		TotalCostUSD:       round6(run.costUSD),
	}
	var expectedTotal, analyzedTotal int
	for _, provider := range healthy {
		analyzed := run.analyzed[provider]
		c := ProviderCompleteness{
			QueriesExpected: len(queries),
			QueriesAnalyzed: analyzed,
			FailedQueries:   len(queries) - analyzed,
			CompletenessPct: round2(100 * float64(analyzed) / float64(len(queries))),
		}
		summary.Providers[provider] = c
		summary.FailedQueries += c.FailedQueries
		expectedTotal += c.QueriesExpected
		analyzedTotal += analyzed
		if analyzed < len(queries) {
			summary.AllQueriesAnalyzed = false
			log.Warn().
				Str("project_id", projectID.String()).
				Str("provider", provider).
				Int("analyzed", analyzed).
				Int("expected", len(queries)).
				Msg("[RunProbes] provider incomplete")
		}

		if analyzed == 0 {
			continue
		}
		snapshot, err := r.snapshots.Aggregate(finishCtx, projectID, provider, date, len(queries))
		if err != nil {
			log.Error().Err(err).Str("provider", provider).Msg("[RunProbes] snapshot failed")
			continue
		}
		summary.Snapshots = append(summary.Snapshots, snapshot)
	}
	summary.CompletenessPct = round2(100 * float64(analyzedTotal) / float64(expectedTotal))

	if analyzedTotal > 0 {
		if err := r.repos.Projects.UpdateLastAnalysisDate(finishCtx, projectID, date); err != nil {
			log.Error().Err(err).Str("project_id", projectID.String()).Msg("[RunProbes] failed to update last analysis date")
		}
	}

	log.Info().
		Str("project_id", projectID.String()).
		Float64("completeness_pct", summary.CompletenessPct).
		Int("failed_queries", summary.FailedQueries).
		Int("retry_passes", passes).
		Msg("[RunProbes] probe run finished")
	return summary, nil
}

// healthGate pings every provider concurrently and splits them by outcome,
// preserving canonical order.
func (r *probeRunner) healthGate(ctx context.Context, enabled []string) (healthy, unhealthy []string) {
	ok := make([]bool, len(enabled))
	var g errgroup.Group
	for i, provider := range enabled {
		adapter, _ := r.adapters.Get(provider)
		g.Go(func() error {
			res := adapter.Health(ctx)
			ok[i] = res.Success
			if !res.Success {
				log.Warn().
					Str("provider", provider).
					Str("error", res.Error).
					Msg("[RunProbes] provider unhealthy, excluding from run")
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, provider := range enabled {
		if ok[i] {
			healthy = append(healthy, provider)
		} else {
			unhealthy = append(unhealthy, provider)
		}
	}
	return healthy, unhealthy
}

// runPass executes tasks on the shared pool and returns the ones worth
// retrying. Once ctx is done no new task starts; in-flight tasks finish.
func (r *probeRunner) runPass(ctx context.Context, run *probeRun, tasks []probeTask) []probeTask {
	workCtx := context.WithoutCancel(ctx)

	var (
		mu    sync.Mutex
		retry []probeTask
	)
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Probe.MaxWorkers)

	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			sem := run.semaphores[task.provider]
			if err := sem.Acquire(workCtx, 1); err != nil {
				return nil
			}
			outcome := r.execute(workCtx, run, task)
			sem.Release(1)

			if outcome == taskTransient {
				mu.Lock()
				retry = append(retry, task)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return retry
}

// execute is one task: adapter call, extraction, sentiment, upsert. The
// upsert is the commit point.
func (r *probeRunner) execute(ctx context.Context, run *probeRun, task probeTask) taskOutcome {
	result := task.adapter.ExecuteQuery(ctx, task.query.QueryText)

	row := &models.ProbeResult{
		ProjectID:    run.project.ID,
		SubjectID:    task.query.ID,
		SubjectText:  task.query.QueryText,
		Surface:      task.provider,
		AnalysisDate: run.date,
		ModelID:      result.ModelUsed,
		LatencyMS:    result.ResponseTimeMS,
		Sources:      models.SourceList{},
	}

	if !result.Success {
		row.HasError = true
		row.ErrorMessage = models.StrPtr(result.Error)
		r.metrics.ProbeResult(task.provider, true)
		if err := r.repos.ProbeResults.Upsert(ctx, row); err != nil {
			log.Error().Err(err).Str("provider", task.provider).Msg("[executeProbe] failed to store error row")
		}
		if result.ErrorKind == common.ErrorPermanent {
			return taskPermanent
		}
		return taskTransient
	}

	mention := extraction.Extract(result.Content, run.brand, result.Sources, run.competitors)
	applyMention(row, mention)
	if mention.BrandMentioned {
		s := r.classifier.Classify(ctx, mention.Contexts, run.project.BrandName)
		row.Sentiment = models.StrPtr(s.Sentiment)
		row.SentimentScore = models.FloatPtr(s.Score)
		row.SentimentMethod = models.StrPtr(s.Method)
	}

	row.TokensIn = result.InputTokens
	row.TokensOut = result.OutputTokens
	row.CostUSD = result.CostUSD
	row.Sources = models.SourceList(result.Sources)
	if row.Sources == nil {
		row.Sources = models.SourceList{}
	}
	if run.project.TopicClusters.Enabled {
		row.MatchedClusters = textnorm.MatchClusters(task.query.QueryText, run.project.TopicClusters)
	}

	if err := r.repos.ProbeResults.Upsert(ctx, row); err != nil {
		log.Error().
			Err(err).
			Str("provider", task.provider).
			Str("query_id", task.query.ID.String()).
			Msg("[executeProbe] failed to store probe result")
		return taskTransient
	}
	r.metrics.ProbeResult(task.provider, false)
	run.succeeded(task.provider, result.CostUSD)
	return taskSucceeded
}

// applyMention copies the extractor's verdict onto a row.
func applyMention(row *models.ProbeResult, m extraction.MentionResult) {
	row.BrandMentioned = m.BrandMentioned
	row.MentionCount = m.MentionCount
	row.MentionContexts = models.StringList(m.Contexts)
	row.AppearsInList = m.AppearsInList
	row.Position = m.Position
	row.TotalItems = m.TotalItems
	row.LinkOnly = m.LinkOnly
	if m.PositionSource != "" {
		row.PositionSource = models.StrPtr(m.PositionSource)
	}
	if m.PositionMethod != "" {
		row.PositionMethod = models.StrPtr(m.PositionMethod)
	}
	row.CompetitorsMentioned = models.CountMap(m.CompetitorsMentioned)
}

func retryDelay(pass int) time.Duration {
	if pass < 1 {
		pass = 1
	}
	if pass > len(RetryDelays) {
		return RetryDelays[len(RetryDelays)-1]
	}
	return RetryDelays[pass-1]
}

func intersect(a, b []string) []string {
	want := make(map[string]bool, len(b))
	for _, s := range b {
		want[strings.ToLower(s)] = true
	}
	var out []string
	for _, s := range a {
		if want[strings.ToLower(s)] {
			out = append(out, s)
		}
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
