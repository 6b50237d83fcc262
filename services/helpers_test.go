package services

import (
	"context"
	"sync"
	"time"

	"github.com/AI-Template-SDK/senso-visibility/internal/config"
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/providers"
	"github.com/AI-Template-SDK/senso-visibility/internal/sentiment"
	"github.com/AI-Template-SDK/senso-visibility/internal/testutil"
)

func reposFor(store *testutil.Store) *RepositoryManager {
	return &RepositoryManager{
		Projects:      store.Projects,
		Queries:       store.Queries,
		Keywords:      store.Keywords,
		ProbeResults:  store.ProbeResults,
		Snapshots:     store.Snapshots,
		Models:        store.Models,
		Events:        store.Events,
		GlobalDomains: store.GlobalDomains,
		Quotas:        store.Quotas,
	}
}

// sleepRecorder captures retry delays without waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// probeFixture wires a probe runner over an in-memory store.
type probeFixture struct {
	cfg      *config.Config
	store    *testutil.Store
	repos    *RepositoryManager
	project  *models.Project
	adapters *providers.Adapters
	sleeper  *sleepRecorder
	runner   ProbeRunner
}

func newProbeFixture(project *models.Project, adapters *providers.Adapters) *probeFixture {
	f := &probeFixture{
		cfg:      testutil.SampleConfig(),
		store:    testutil.NewStore(),
		project:  project,
		adapters: adapters,
		sleeper:  &sleepRecorder{},
	}
	f.store.AddProject(project)
	f.repos = reposFor(f.store)
	f.runner = NewProbeRunner(
		f.cfg,
		f.repos,
		adapters,
		sentiment.NewClassifier(nil),
		NewSnapshotAggregator(f.repos),
		NewQueryProvisioner(f.repos),
		nil,
		WithSleep(f.sleeper.sleep),
	)
	return f
}

func llmProject(surfaces ...string) *models.Project {
	p := testutil.SampleProject()
	p.EnabledSurfaces = models.StringList(surfaces)
	return p
}
