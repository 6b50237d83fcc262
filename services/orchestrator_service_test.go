package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/senso-visibility/internal/config"
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/providers"
	"github.com/AI-Template-SDK/senso-visibility/internal/sentiment"
	"github.com/AI-Template-SDK/senso-visibility/internal/serp"
	"github.com/AI-Template-SDK/senso-visibility/internal/testutil"
)

type stubProbeRunner struct {
	mu    sync.Mutex
	calls []ProbeOptions
	run   func(projectID uuid.UUID, opts ProbeOptions) (*ProbeSummary, error)
}

func (s *stubProbeRunner) Run(_ context.Context, projectID uuid.UUID, opts ProbeOptions) (*ProbeSummary, error) {
	s.mu.Lock()
	s.calls = append(s.calls, opts)
	s.mu.Unlock()
	return s.run(projectID, opts)
}

type stubSerpRunner struct {
	users []uuid.UUID
	run   func(projectID uuid.UUID, opts SerpOptions) (*SerpSummary, error)
}

func (s *stubSerpRunner) Run(_ context.Context, projectID uuid.UUID, opts SerpOptions, userID uuid.UUID) (*SerpSummary, error) {
	s.users = append(s.users, userID)
	return s.run(projectID, opts)
}

func completeProbes(projectID uuid.UUID, opts ProbeOptions) (*ProbeSummary, error) {
	summary := &ProbeSummary{ProjectID: projectID, Providers: map[string]ProviderCompleteness{}, CompletenessPct: 100}
	for _, p := range opts.Providers {
		summary.Providers[p] = ProviderCompleteness{QueriesExpected: 5, QueriesAnalyzed: 5, CompletenessPct: 100}
	}
	return summary, nil
}

func completeSerp(projectID uuid.UUID, _ SerpOptions) (*SerpSummary, error) {
	return &SerpSummary{ProjectID: projectID, KeywordsAnalyzed: 2}, nil
}

type orchestratorFixture struct {
	store   *testutil.Store
	project *models.Project
	probes  *stubProbeRunner
	serps   *stubSerpRunner
	orch    Orchestrator
}

func newOrchestratorFixture() *orchestratorFixture {
	f := &orchestratorFixture{
		store:   testutil.NewStore(),
		project: testutil.SampleProject(),
		probes:  &stubProbeRunner{run: completeProbes},
		serps:   &stubSerpRunner{run: completeSerp},
	}
	f.store.AddProject(f.project)
	f.orch = NewOrchestrator(testutil.SampleConfig(), reposFor(f.store), f.probes, f.serps, nil)
	return f
}

func TestAnalyzeProjectEmitsEventsPerSurface(t *testing.T) {
	f := newOrchestratorFixture()

	report, err := f.orch.AnalyzeProject(context.Background(), f.project.ID, AnalyzeOptions{})
	require.NoError(t, err)

	assert.True(t, report.OK)
	assert.False(t, report.Stopped)
	assert.Empty(t, report.IncompleteSurfaces)
	assert.Contains(t, report.SurfaceResults, config.ProviderOpenAI)
	assert.Contains(t, report.SurfaceResults, config.ProviderAnthropic)
	assert.Contains(t, report.SurfaceResults, config.SurfaceSERP)

	require.Len(t, f.probes.calls, 1)
	assert.Equal(t, []string{config.ProviderOpenAI, config.ProviderAnthropic}, f.probes.calls[0].Providers)
	assert.Equal(t, []uuid.UUID{f.project.UserID}, f.serps.users)

	assert.Equal(t, []string{
		models.EventAnalysisStarted,
		models.EventAnalysisCompleted,
		models.EventAnalysisCompleted,
		models.EventAnalysisCompleted,
	}, f.store.EventTypes(f.project.ID))
}

func TestAnalyzeProjectSurfaceFilter(t *testing.T) {
	f := newOrchestratorFixture()
	userID := uuid.New()

	report, err := f.orch.AnalyzeProject(context.Background(), f.project.ID, AnalyzeOptions{
		SurfaceFilter: []string{config.SurfaceSERP},
		UserID:        userID,
	})
	require.NoError(t, err)

	assert.Empty(t, f.probes.calls)
	assert.Equal(t, []uuid.UUID{userID}, f.serps.users)
	assert.Len(t, report.SurfaceResults, 1)
}

func TestAnalyzeProjectReportsIncompleteSurfaces(t *testing.T) {
	f := newOrchestratorFixture()
	f.probes.run = func(projectID uuid.UUID, opts ProbeOptions) (*ProbeSummary, error) {
		return &ProbeSummary{
			ProjectID: projectID,
			Providers: map[string]ProviderCompleteness{
				config.ProviderOpenAI: {QueriesExpected: 5, QueriesAnalyzed: 4, FailedQueries: 1, CompletenessPct: 80},
			},
			UnhealthyProviders: []string{config.ProviderAnthropic},
		}, nil
	}

	report, err := f.orch.AnalyzeProject(context.Background(), f.project.ID, AnalyzeOptions{})
	require.NoError(t, err)

	assert.True(t, report.OK)
	assert.ElementsMatch(t, []string{config.ProviderOpenAI, config.ProviderAnthropic}, report.IncompleteSurfaces)
	assert.Equal(t, map[string]string{"error": "unhealthy"}, report.SurfaceResults[config.ProviderAnthropic])
}

func TestAnalyzeProjectQuotaStopsSerp(t *testing.T) {
	f := newOrchestratorFixture()
	f.serps.run = func(projectID uuid.UUID, _ SerpOptions) (*SerpSummary, error) {
		return &SerpSummary{
			ProjectID:         projectID,
			KeywordsAnalyzed:  1,
			KeywordsRemaining: 3,
			QuotaExceeded:     true,
			Error:             &QuotaExceededError{Plan: "free", ActionRequired: ActionUpgrade, Message: "quota exhausted"},
		}, nil
	}

	report, err := f.orch.AnalyzeProject(context.Background(), f.project.ID, AnalyzeOptions{})
	require.NoError(t, err)

	assert.True(t, report.OK)
	assert.True(t, report.Stopped)
	assert.Contains(t, report.IncompleteSurfaces, config.SurfaceSERP)
	assert.Contains(t, f.store.EventTypes(f.project.ID), models.EventAnalysisStopped)
}

func TestAnalyzeProjectFailsWhenEverySurfaceFails(t *testing.T) {
	f := newOrchestratorFixture()
	f.probes.run = func(uuid.UUID, ProbeOptions) (*ProbeSummary, error) {
		return nil, ErrNoHealthyProviders
	}
	f.serps.run = func(uuid.UUID, SerpOptions) (*SerpSummary, error) {
		return nil, errors.New("database unavailable")
	}

	report, err := f.orch.AnalyzeProject(context.Background(), f.project.ID, AnalyzeOptions{})
	require.Error(t, err)
	require.NotNil(t, report)
	assert.False(t, report.OK)
	assert.Contains(t, f.store.EventTypes(f.project.ID), models.EventAnalysisFailed)
}

func TestAnalyzeProjectRejectsInvalidProject(t *testing.T) {
	f := newOrchestratorFixture()
	bad := testutil.SampleProject()
	bad.Competitors = models.Competitors{{Key: "quipu", Domain: "www.getquipu.com"}}
	f.store.AddProject(bad)

	report, err := f.orch.AnalyzeProject(context.Background(), bad.ID, AnalyzeOptions{})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Nil(t, report)
	assert.Empty(t, f.probes.calls)
	assert.Empty(t, f.store.EventTypes(bad.ID))
}

func TestRunDailyForAllActiveToleratesFailures(t *testing.T) {
	f := newOrchestratorFixture()

	broken := testutil.SampleProject()
	broken.ID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	broken.BrandName = "Q"
	f.store.AddProject(broken)

	panicking := testutil.SampleProject()
	panicking.ID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	panicking.EnabledSurfaces = models.StringList{config.ProviderOpenAI}
	f.store.AddProject(panicking)

	done := testutil.SampleProject()
	done.ID = uuid.MustParse("00000000-0000-0000-0000-000000000003")
	today := testutil.SampleConfig().Today()
	done.LastAnalysisDate = &today
	f.store.AddProject(done)

	inactive := testutil.SampleProject()
	inactive.ID = uuid.MustParse("00000000-0000-0000-0000-000000000004")
	inactive.IsActive = false
	f.store.AddProject(inactive)

	f.probes.run = func(projectID uuid.UUID, opts ProbeOptions) (*ProbeSummary, error) {
		if projectID == panicking.ID {
			panic("adapter exploded")
		}
		return completeProbes(projectID, opts)
	}

	report := f.orch.RunDailyForAllActive(context.Background())

	require.NotNil(t, report)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.Contains(t, report.Failures[broken.ID.String()], "brand_name")
	assert.Contains(t, report.Failures[panicking.ID.String()], "adapter exploded")

	assert.Equal(t, []string{models.EventAnalysisFailed}, f.store.EventTypes(broken.ID))
	assert.Equal(t, []string{models.EventAnalysisStarted, models.EventAnalysisFailed}, f.store.EventTypes(panicking.ID))
	assert.Empty(t, f.store.EventTypes(done.ID))
	assert.Empty(t, f.store.EventTypes(inactive.ID))
}

// The full pipeline on fakes: probes, SERP and snapshots for every surface.
func TestAnalyzeProjectEndToEnd(t *testing.T) {
	store := testutil.NewStore()
	repos := reposFor(store)
	cfg := testutil.SampleConfig()
	cfg.EnforceQuotas = false
	project := testutil.SampleProject()
	store.AddProject(project)
	store.AddKeywords(project.ID, "qipu")

	adapters := &providers.Adapters{
		OpenAI:    testutil.NewFakeAdapter(config.ProviderOpenAI, "1. Holded\n2. Quipu\n3. Sage"),
		Anthropic: testutil.NewFakeAdapter(config.ProviderAnthropic, "Quipu is a great choice."),
	}
	snapshots := NewSnapshotAggregator(repos)
	probes := NewProbeRunner(cfg, repos, adapters, sentiment.NewClassifier(nil), snapshots,
		NewQueryProvisioner(repos), nil, WithSleep((&sleepRecorder{}).sleep))
	client := &fakeSerp{responses: map[string]string{"qipu": citedOverview}}
	serps := NewSerpRunner(cfg, repos, client, serp.NewMemoryCache(), NewQuotaGate(repos, cfg.EnforceQuotas, nil), snapshots, nil)
	orch := NewOrchestrator(cfg, repos, probes, serps, nil)

	report, err := orch.AnalyzeProject(context.Background(), project.ID, AnalyzeOptions{})
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Empty(t, report.IncompleteSurfaces)

	today := cfg.Today()
	for _, surface := range []string{config.ProviderOpenAI, config.ProviderAnthropic, config.SurfaceSERP} {
		snap := store.Snapshot(project.ID, surface, today)
		require.NotNil(t, snap, surface)
		assert.Equal(t, 100.0, snap.MentionRate, fmt.Sprintf("surface %s", surface))
	}
	openai := store.Snapshot(project.ID, config.ProviderOpenAI, today)
	require.NotNil(t, openai.AvgPosition)
	assert.Equal(t, 2.0, *openai.AvgPosition)
	assert.Empty(t, store.Usage(), "quota is not tracked without a quota row")
}
