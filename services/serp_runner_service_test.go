package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/senso-visibility/internal/config"
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/serp"
	"github.com/AI-Template-SDK/senso-visibility/internal/testutil"
)

const citedOverview = `{
	"ai_overview": {
		"text_blocks": [{"type": "paragraph", "snippet": "Quipu and Holded are invoicing tools."}],
		"references": [
			{"link": "https://getquipu.com/facturas", "title": "Quipu"},
			{"link": "https://other.com/a"},
			{"link": "https://www.holded.com/es"},
			{"link": "https://other.com/b"}
		]
	},
	"organic_results": [
		{"position": 1, "link": "https://wikipedia.org/wiki/Quipu"},
		{"position": 2, "link": "https://getquipu.com/"}
	]
}`

const referenceOnlyOverview = `{
	"ai_overview": {
		"text_blocks": [{"type": "paragraph", "snippet": "Several invoicing tools cover VAT returns."}],
		"references": [
			{"link": "https://other.com/a"},
			{"link": "https://getquipu.com/x"}
		]
	}
}`

const noOverview = `{"organic_results": [{"position": 1, "link": "https://getquipu.com/"}]}`

const placeholderOverview = `{"ai_overview": {"page_token": "abc123"}}`

// fakeSerp answers from canned documents and records every keyword fetched.
type fakeSerp struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []string
	locales   []serp.Locale
}

func (f *fakeSerp) Fetch(_ context.Context, keyword string, locale serp.Locale) (serp.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, keyword)
	f.locales = append(f.locales, locale)
	f.mu.Unlock()

	if err, ok := f.errs[keyword]; ok {
		return nil, err
	}
	raw, ok := f.responses[keyword]
	if !ok {
		raw = `{"organic_results": []}`
	}
	var resp serp.Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (f *fakeSerp) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type serpFixture struct {
	cfg      *config.Config
	store    *testutil.Store
	project  *models.Project
	keywords []*models.Keyword
	client   *fakeSerp
	cache    *serp.MemoryCache
	runner   SerpRunner
}

func newSerpFixture(t *testing.T, keywords ...string) *serpFixture {
	t.Helper()
	f := &serpFixture{
		cfg:     testutil.SampleConfig(),
		store:   testutil.NewStore(),
		project: testutil.SampleProject(),
		client:  &fakeSerp{responses: map[string]string{}, errs: map[string]error{}},
		cache:   serp.NewMemoryCache(),
	}
	f.store.AddProject(f.project)
	f.keywords = f.store.AddKeywords(f.project.ID, keywords...)
	f.store.SetQuota(models.UserQuota{UserID: f.project.UserID, Plan: "pro", QuotaLimit: 100})

	repos := reposFor(f.store)
	f.runner = NewSerpRunner(f.cfg, repos, f.client, f.cache,
		NewQuotaGate(repos, true, nil), NewSnapshotAggregator(repos), nil)
	return f
}

func (f *serpFixture) run(t *testing.T, opts SerpOptions) *SerpSummary {
	t.Helper()
	if opts.Date.IsZero() {
		opts.Date = testutil.SampleDate()
	}
	summary, err := f.runner.Run(context.Background(), f.project.ID, opts, f.project.UserID)
	require.NoError(t, err)
	return summary
}

func TestSerpRunnerCitedDomain(t *testing.T) {
	f := newSerpFixture(t, "reserva ovárica", "qipu")
	f.client.responses["qipu"] = citedOverview
	date := testutil.SampleDate()

	summary := f.run(t, SerpOptions{})

	assert.Equal(t, 2, summary.KeywordsAnalyzed)
	assert.False(t, summary.QuotaExceeded)
	require.Len(t, summary.Results, 2)

	rows := f.store.Results(config.SurfaceSERP)
	require.Len(t, rows, 2)
	var cited *models.ProbeResult
	for _, r := range rows {
		if r.SubjectText == "qipu" {
			cited = r
		}
	}
	require.NotNil(t, cited)
	assert.True(t, cited.HasAIOverview)
	assert.True(t, cited.DomainIsAISource)
	require.NotNil(t, cited.DomainAISourcePosition)
	assert.Equal(t, 1, *cited.DomainAISourcePosition)
	require.NotNil(t, cited.DomainAISourceLink)
	assert.Equal(t, "https://getquipu.com/facturas", *cited.DomainAISourceLink)
	require.NotNil(t, cited.OrganicPosition)
	assert.Equal(t, 2, *cited.OrganicPosition)
	assert.True(t, cited.BrandMentioned)
	assert.Equal(t, 2, cited.CompetitorsMentioned["holded"], "text mention plus cited link")
	assert.NotNil(t, cited.Sources)
	assert.Empty(t, cited.Sources)

	domains := f.store.GlobalDomainRows(f.keywords[1].ID, date)
	require.Len(t, domains, 3)
	assert.Equal(t, "getquipu.com", domains[0].DetectedDomain)
	assert.Equal(t, 1, domains[0].DomainPosition)
	assert.True(t, domains[0].IsProjectDomain)
	assert.Equal(t, "other.com", domains[1].DetectedDomain)
	assert.Equal(t, 2, domains[1].DomainPosition)
	assert.False(t, domains[1].IsProjectDomain)
	assert.Equal(t, "holded.com", domains[2].DetectedDomain)
	assert.True(t, domains[2].IsSelectedCompetitor)

	snap := f.store.Snapshot(f.project.ID, config.SurfaceSERP, date)
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.TotalQueries)
	assert.Equal(t, 50.0, snap.MentionRate)
	assert.NotNil(t, f.store.Project(f.project.ID).LastAnalysisDate)

	usage := f.store.Usage()
	require.Len(t, usage, 2)
	assert.Equal(t, models.QuotaSourceManualAI, usage[1].Source)
	assert.Equal(t, 1, usage[1].Units)
	assert.Equal(t, models.Metadata{
		"project_id": f.project.ID.String(),
		"keyword":    "qipu",
		"country":    "ES",
	}, usage[1].Metadata)
	require.NotNil(t, usage[1].ProjectID)
	assert.Equal(t, f.project.ID, *usage[1].ProjectID)
	assert.Equal(t, 2, f.store.Quota(f.project.UserID).QuotaUsed)
}

func TestSerpRunnerPlaceholderOverview(t *testing.T) {
	f := newSerpFixture(t, "qipu")
	f.client.responses["qipu"] = placeholderOverview

	summary := f.run(t, SerpOptions{})

	require.Len(t, summary.Results, 1)
	assert.False(t, summary.Results[0].HasAIOverview)
	rows := f.store.Results(config.SurfaceSERP)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].HasAIOverview)
	assert.False(t, rows[0].BrandMentioned)
	assert.Empty(t, f.store.GlobalDomainRows(f.keywords[0].ID, testutil.SampleDate()))
}

func TestSerpRunnerUsesLocale(t *testing.T) {
	f := newSerpFixture(t, "qipu")

	f.run(t, SerpOptions{})

	require.Len(t, f.client.locales, 1)
	assert.Equal(t, "google.es", f.client.locales[0].GoogleDomain)
	assert.Equal(t, "es", f.client.locales[0].HL)
}

func TestSerpRunnerSkipsExistingRows(t *testing.T) {
	f := newSerpFixture(t, "qipu", "facturas")

	f.run(t, SerpOptions{})
	require.Len(t, f.client.Calls(), 2)

	second := f.run(t, SerpOptions{})

	assert.Equal(t, 0, second.KeywordsAnalyzed)
	assert.Equal(t, 2, second.KeywordsUnchanged)
	assert.Len(t, f.client.Calls(), 2, "existing rows must not be fetched again")
	assert.Len(t, f.store.Usage(), 2, "unchanged keywords are not charged")
}

func TestSerpRunnerForceOverwriteUsesCache(t *testing.T) {
	f := newSerpFixture(t, "qipu")
	f.client.responses["qipu"] = citedOverview

	f.run(t, SerpOptions{})
	summary := f.run(t, SerpOptions{ForceOverwrite: true})

	assert.Equal(t, 1, summary.KeywordsAnalyzed)
	require.Len(t, summary.Results, 1)
	assert.True(t, summary.Results[0].FromCache)
	assert.Len(t, f.client.Calls(), 1)
	assert.Len(t, f.store.Results(config.SurfaceSERP), 1)
	assert.Len(t, f.store.Usage(), 2)
}

func TestSerpRunnerCacheKeyIncludesCountry(t *testing.T) {
	f := newSerpFixture(t, "qipu")
	f.run(t, SerpOptions{})

	other := testutil.SampleProject()
	other.ID = f.project.ID
	other.CountryCode = "MX"
	f.store.AddProject(other)
	f.run(t, SerpOptions{ForceOverwrite: true, Date: testutil.SampleDate().Add(24 * time.Hour)})

	assert.Len(t, f.client.Calls(), 2)
}

func TestSerpRunnerQuotaBlockedIsTerminal(t *testing.T) {
	f := newSerpFixture(t, "one", "two", "three", "four")
	f.client.errs["three"] = &serp.QuotaBlockedError{Message: "Your account has run out of searches."}

	summary := f.run(t, SerpOptions{})

	assert.True(t, summary.QuotaExceeded)
	assert.Equal(t, 2, summary.KeywordsAnalyzed)
	assert.Equal(t, 2, summary.KeywordsRemaining)
	assert.Equal(t, []string{"one", "two", "three"}, f.client.Calls())
	require.NotNil(t, summary.Error)
	assert.Equal(t, ActionContactSupport, summary.Error.ActionRequired)
	assert.Contains(t, summary.Error.Message, "run out of searches")
	assert.Len(t, f.store.Results(config.SurfaceSERP), 2)
	assert.NotNil(t, f.store.Snapshot(f.project.ID, config.SurfaceSERP, testutil.SampleDate()))
}

func TestSerpRunnerStopsWhenLocalQuotaRunsOut(t *testing.T) {
	f := newSerpFixture(t, "one", "two", "three")
	f.store.SetQuota(models.UserQuota{UserID: f.project.UserID, Plan: "starter", QuotaLimit: 2})

	summary := f.run(t, SerpOptions{})

	assert.True(t, summary.QuotaExceeded)
	assert.Equal(t, 2, summary.KeywordsAnalyzed)
	assert.Equal(t, 1, summary.KeywordsRemaining)
	assert.Len(t, f.client.Calls(), 2)
	require.NotNil(t, summary.Error)
	assert.Equal(t, ActionUpgrade, summary.Error.ActionRequired)
	assert.Equal(t, "starter", summary.Error.Plan)
	assert.Equal(t, 2, summary.Error.QuotaUsed)
}

func TestSerpRunnerRefusesExhaustedQuota(t *testing.T) {
	f := newSerpFixture(t, "one")
	f.store.SetQuota(models.UserQuota{UserID: f.project.UserID, Plan: "free", QuotaLimit: 5, QuotaUsed: 5})

	summary := f.run(t, SerpOptions{})

	require.NotNil(t, summary.Error)
	require.NotNil(t, summary.QuotaInfo)
	assert.False(t, summary.QuotaInfo.CanConsume)
	assert.Empty(t, f.client.Calls())
	assert.Equal(t, 0, f.store.ResultCount())
	assert.Nil(t, f.store.Snapshot(f.project.ID, config.SurfaceSERP, testutil.SampleDate()))
}

func TestSerpRunnerKeywordFailureDoesNotAbort(t *testing.T) {
	f := newSerpFixture(t, "one", "two", "three")
	f.client.errs["two"] = errors.New("serpapi: status 500")

	summary := f.run(t, SerpOptions{})

	assert.False(t, summary.QuotaExceeded)
	assert.Equal(t, 2, summary.KeywordsAnalyzed)
	assert.Equal(t, 1, summary.KeywordsFailed)
	assert.Len(t, f.client.Calls(), 3)
	require.Len(t, summary.Results, 3)
	assert.Equal(t, KeywordFailed, summary.Results[1].Status)
	assert.Contains(t, summary.Results[1].Error, "status 500")
	assert.Len(t, f.store.Usage(), 2)
}

func TestSerpRunnerWithoutKeywords(t *testing.T) {
	f := newSerpFixture(t)

	summary := f.run(t, SerpOptions{})

	assert.Empty(t, summary.Results)
	assert.False(t, summary.QuotaExceeded)
	assert.Empty(t, f.client.Calls())
}

func TestSerpRunnerReferenceOnlyCitationUsesReferencePosition(t *testing.T) {
	f := newSerpFixture(t, "qipu")
	f.client.responses["qipu"] = referenceOnlyOverview

	f.run(t, SerpOptions{})

	rows := f.store.Results(config.SurfaceSERP)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.True(t, row.BrandMentioned)
	assert.True(t, row.LinkOnly)
	require.NotNil(t, row.DomainAISourcePosition)
	assert.Equal(t, 2, *row.DomainAISourcePosition)
	require.NotNil(t, row.Position)
	assert.Equal(t, 2, *row.Position)
	require.NotNil(t, row.PositionSource)
	assert.Equal(t, models.PositionSourceLink, *row.PositionSource)
}

func TestSerpRunnerForceOverwriteClearsCitedDomains(t *testing.T) {
	f := newSerpFixture(t, "qipu")
	f.client.responses["qipu"] = citedOverview
	date := testutil.SampleDate()

	f.run(t, SerpOptions{})
	require.Len(t, f.store.GlobalDomainRows(f.keywords[0].ID, date), 3)

	f.cache = serp.NewMemoryCache()
	repos := reposFor(f.store)
	f.runner = NewSerpRunner(f.cfg, repos, f.client, f.cache,
		NewQuotaGate(repos, true, nil), NewSnapshotAggregator(repos), nil)
	f.client.responses["qipu"] = noOverview

	summary := f.run(t, SerpOptions{ForceOverwrite: true})

	assert.Equal(t, 1, summary.KeywordsAnalyzed)
	rows := f.store.Results(config.SurfaceSERP)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].HasAIOverview)
	assert.Empty(t, f.store.GlobalDomainRows(f.keywords[0].ID, date))
}
