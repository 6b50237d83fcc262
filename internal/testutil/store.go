package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/repositories/interfaces"
)

// UsageRecord is one Consume call seen by the in-memory quota repository.
type UsageRecord struct {
	UserID    uuid.UUID
	ProjectID *uuid.UUID
	Units     int
	Source    string
	Metadata  models.Metadata
}

type resultKey struct {
	project uuid.UUID
	subject uuid.UUID
	surface string
	date    string
}

type snapshotKey struct {
	project uuid.UUID
	surface string
	date    string
}

// Store is an in-memory database behind the repository interfaces. Writes on
// unique keys overwrite like the SQL UPSERTs do.
type Store struct {
	mu sync.Mutex

	projects  map[uuid.UUID]*models.Project
	queries   []*models.Query
	keywords  []*models.Keyword
	results   map[resultKey]*models.ProbeResult
	snapshots map[snapshotKey]*models.Snapshot
	registry  []models.ModelRegistryEntry
	events    []*models.Event
	domains   map[string][]*models.GlobalDomain
	quotas    map[uuid.UUID]*models.UserQuota
	usage     []UsageRecord

	// UpsertErr, when set, decides whether a probe result write fails.
	UpsertErr func(row *models.ProbeResult) error

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

func NewStore() *Store {
	s := &Store{
		projects:  make(map[uuid.UUID]*models.Project),
		results:   make(map[resultKey]*models.ProbeResult),
		snapshots: make(map[snapshotKey]*models.Snapshot),
		domains:   make(map[string][]*models.GlobalDomain),
		quotas:    make(map[uuid.UUID]*models.UserQuota),
	}
	s.Projects = &projectStore{s}
	s.Queries = &queryStore{s}
	s.Keywords = &keywordStore{s}
	s.ProbeResults = &resultStore{s}
	s.Snapshots = &snapshotStore{s}
	s.Models = &registryStore{s}
	s.Events = &eventStore{s}
	s.GlobalDomains = &domainStore{s}
	s.Quotas = &quotaStore{s}
	return s
}

func day(t time.Time) string { return t.Format("2006-01-02") }

// Seeding helpers.

func (s *Store) AddProject(p *models.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.projects[p.ID] = &cp
}

func (s *Store) AddKeywords(projectID uuid.UUID, texts ...string) []*models.Keyword {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Keyword
	for i, text := range texts {
		kw := &models.Keyword{
			ID:        uuid.New(),
			ProjectID: projectID,
			Text:      text,
			IsActive:  true,
			CreatedAt: time.Unix(int64(len(s.keywords)+i), 0).UTC(),
		}
		out = append(out, kw)
	}
	s.keywords = append(s.keywords, out...)
	return out
}

func (s *Store) SetQuota(q models.UserQuota) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotas[q.UserID] = &q
}

// Inspection helpers.

func (s *Store) Project(id uuid.UUID) *models.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// Results returns every stored probe result for a surface, sorted by subject text.
func (s *Store) Results(surface string) []*models.ProbeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ProbeResult
	for k, r := range s.results {
		if k.surface == surface {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectText < out[j].SubjectText })
	return out
}

func (s *Store) ResultCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

func (s *Store) Snapshot(projectID uuid.UUID, surface string, date time.Time) *models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[snapshotKey{projectID, surface, day(date)}]
	if !ok {
		return nil
	}
	cp := *snap
	return &cp
}

// EventTypes lists recorded event types in insertion order.
func (s *Store) EventTypes(projectID uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		if e.ProjectID == projectID {
			out = append(out, e.EventType)
		}
	}
	return out
}

func (s *Store) GlobalDomainRows(keywordID uuid.UUID, date time.Time) []*models.GlobalDomain {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.GlobalDomain(nil), s.domains[keywordID.String()+"/"+day(date)]...)
}

func (s *Store) Usage() []UsageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UsageRecord(nil), s.usage...)
}

func (s *Store) Quota(userID uuid.UUID) models.UserQuota {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.quotas[userID]; ok {
		return *q
	}
	return models.UserQuota{}
}

type projectStore struct{ s *Store }

func (r *projectStore) Create(_ context.Context, p *models.Project) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.s.AddProject(p)
	return nil
}

func (r *projectStore) GetByID(_ context.Context, id uuid.UUID) (*models.Project, error) {
	if p := r.s.Project(id); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("project %s: %w", id, interfaces.ErrNotFound)
}

func (r *projectStore) ListActive(ctx context.Context) ([]*models.Project, error) {
	return r.list(func(p *models.Project) bool { return p.IsActive })
}

func (r *projectStore) ListDue(_ context.Context, date time.Time) ([]*models.Project, error) {
	return r.list(func(p *models.Project) bool {
		return p.IsActive && (p.LastAnalysisDate == nil || p.LastAnalysisDate.Before(date))
	})
}

func (r *projectStore) list(keep func(*models.Project) bool) ([]*models.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Project
	for _, p := range r.s.projects {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (r *projectStore) Update(_ context.Context, p *models.Project) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.projects[p.ID]; !ok {
		return interfaces.ErrNotFound
	}
	cp := *p
	r.s.projects[p.ID] = &cp
	return nil
}

func (r *projectStore) UpdateLastAnalysisDate(_ context.Context, id uuid.UUID, date time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.projects[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	p.LastAnalysisDate = &date
	return nil
}

func (r *projectStore) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.projects[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	p.IsActive = active
	return nil
}

func (r *projectStore) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.projects[id]; !ok {
		return interfaces.ErrNotFound
	}
	delete(r.s.projects, id)
	for k := range r.s.results {
		if k.project == id {
			delete(r.s.results, k)
		}
	}
	for k := range r.s.snapshots {
		if k.project == id {
			delete(r.s.snapshots, k)
		}
	}
	var events []*models.Event
	for _, e := range r.s.events {
		if e.ProjectID != id {
			events = append(events, e)
		}
	}
	r.s.events = events
	return nil
}

type queryStore struct{ s *Store }

func (r *queryStore) ListActive(_ context.Context, projectID uuid.UUID) ([]*models.Query, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Query
	for _, q := range r.s.queries {
		if q.ProjectID == projectID && q.IsActive {
			cp := *q
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *queryStore) CreateBatch(_ context.Context, queries []*models.Query) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, q := range queries {
		cp := *q
		r.s.queries = append(r.s.queries, &cp)
	}
	return nil
}

type keywordStore struct{ s *Store }

func (r *keywordStore) ListActive(_ context.Context, projectID uuid.UUID) ([]*models.Keyword, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Keyword
	for _, k := range r.s.keywords {
		if k.ProjectID == projectID && k.IsActive {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *keywordStore) Create(_ context.Context, k *models.Keyword) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *k
	r.s.keywords = append(r.s.keywords, &cp)
	return nil
}

type resultStore struct{ s *Store }

func (r *resultStore) Upsert(_ context.Context, row *models.ProbeResult) error {
	if r.s.UpsertErr != nil {
		if err := r.s.UpsertErr(row); err != nil {
			return err
		}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := resultKey{row.ProjectID, row.SubjectID, row.Surface, day(row.AnalysisDate)}
	if prev, ok := r.s.results[key]; ok {
		row.ID = prev.ID
	} else if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	cp := *row
	r.s.results[key] = &cp
	return nil
}

func (r *resultStore) Exists(_ context.Context, projectID, subjectID uuid.UUID, surface string, date time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.results[resultKey{projectID, subjectID, surface, day(date)}]
	return ok, nil
}

func (r *resultStore) Delete(_ context.Context, projectID, subjectID uuid.UUID, surface string, date time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.results, resultKey{projectID, subjectID, surface, day(date)})
	return nil
}

func (r *resultStore) ListByDay(_ context.Context, projectID uuid.UUID, surface string, date time.Time) ([]*models.ProbeResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.ProbeResult
	for k, row := range r.s.results {
		if k.project == projectID && k.surface == surface && k.date == day(date) {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectText < out[j].SubjectText })
	return out, nil
}

func (r *resultStore) ListErrors(_ context.Context, projectID uuid.UUID, date time.Time, surfaces []string) ([]*models.ProbeResult, error) {
	want := make(map[string]bool, len(surfaces))
	for _, s := range surfaces {
		want[s] = true
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.ProbeResult
	for k, row := range r.s.results {
		if k.project == projectID && k.date == day(date) && row.HasError && want[k.surface] {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Surface != out[j].Surface {
			return out[i].Surface < out[j].Surface
		}
		return out[i].SubjectText < out[j].SubjectText
	})
	return out, nil
}

type snapshotStore struct{ s *Store }

func (r *snapshotStore) Upsert(_ context.Context, snap *models.Snapshot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := snapshotKey{snap.ProjectID, snap.Surface, day(snap.SnapshotDate)}
	if prev, ok := r.s.snapshots[key]; ok {
		snap.ID = prev.ID
	} else if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	cp := *snap
	r.s.snapshots[key] = &cp
	return nil
}

func (r *snapshotStore) Get(_ context.Context, projectID uuid.UUID, surface string, date time.Time) (*models.Snapshot, error) {
	if snap := r.s.Snapshot(projectID, surface, date); snap != nil {
		return snap, nil
	}
	return nil, interfaces.ErrNotFound
}

type registryStore struct{ s *Store }

func (r *registryStore) ListAll(_ context.Context) ([]models.ModelRegistryEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]models.ModelRegistryEntry(nil), r.s.registry...), nil
}

func (r *registryStore) Upsert(_ context.Context, e *models.ModelRegistryEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, existing := range r.s.registry {
		if existing.Provider == e.Provider && existing.ModelID == e.ModelID {
			r.s.registry[i] = *e
			return nil
		}
	}
	r.s.registry = append(r.s.registry, *e)
	return nil
}

func (r *registryStore) SetCurrent(_ context.Context, provider, modelID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	found := false
	for _, e := range r.s.registry {
		if e.Provider == provider && e.ModelID == modelID && e.IsAvailable {
			found = true
		}
	}
	if !found {
		return interfaces.ErrNotFound
	}
	for i := range r.s.registry {
		if r.s.registry[i].Provider == provider {
			r.s.registry[i].IsCurrent = r.s.registry[i].ModelID == modelID
		}
	}
	return nil
}

type eventStore struct{ s *Store }

func (r *eventStore) Create(_ context.Context, e *models.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	cp := *e
	r.s.events = append(r.s.events, &cp)
	return nil
}

func (r *eventStore) ListByProject(_ context.Context, projectID uuid.UUID) ([]*models.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Event
	for _, e := range r.s.events {
		if e.ProjectID == projectID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

type domainStore struct{ s *Store }

func (r *domainStore) ReplaceForKeyword(_ context.Context, _, keywordID uuid.UUID, date time.Time, rows []*models.GlobalDomain) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.domains[keywordID.String()+"/"+day(date)] = rows
	return nil
}

type quotaStore struct{ s *Store }

func (r *quotaStore) Get(_ context.Context, userID uuid.UUID) (*models.UserQuota, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	q, ok := r.s.quotas[userID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (r *quotaStore) Consume(_ context.Context, userID uuid.UUID, projectID *uuid.UUID, units int, source string, metadata models.Metadata) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	q, ok := r.s.quotas[userID]
	if !ok {
		return interfaces.ErrNotFound
	}
	q.QuotaUsed += units
	r.s.usage = append(r.s.usage, UsageRecord{UserID: userID, ProjectID: projectID, Units: units, Source: source, Metadata: metadata})
	return nil
}
