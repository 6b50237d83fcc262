// Package interfaces declares the persistence contracts the services depend on.
package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/senso-visibility/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListActive(ctx context.Context) ([]*models.Project, error)
	// ListDue returns active projects not yet analysed on date.
	ListDue(ctx context.Context, date time.Time) ([]*models.Project, error)
	Update(ctx context.Context, project *models.Project) error
	UpdateLastAnalysisDate(ctx context.Context, id uuid.UUID, date time.Time) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	// Delete removes the project together with its keywords, queries,
	// results, snapshots and events in one transaction.
	Delete(ctx context.Context, id uuid.UUID) error
}

type QueryRepository interface {
	ListActive(ctx context.Context, projectID uuid.UUID) ([]*models.Query, error)
	CreateBatch(ctx context.Context, queries []*models.Query) error
}

type KeywordRepository interface {
	ListActive(ctx context.Context, projectID uuid.UUID) ([]*models.Keyword, error)
	Create(ctx context.Context, keyword *models.Keyword) error
}

// ProbeResultRepository stores one row per (project, subject, surface, date).
// Upsert overwrites an existing row for the same key.
type ProbeResultRepository interface {
	Upsert(ctx context.Context, result *models.ProbeResult) error
	Exists(ctx context.Context, projectID, subjectID uuid.UUID, surface string, date time.Time) (bool, error)
	Delete(ctx context.Context, projectID, subjectID uuid.UUID, surface string, date time.Time) error
	ListByDay(ctx context.Context, projectID uuid.UUID, surface string, date time.Time) ([]*models.ProbeResult, error)
	ListErrors(ctx context.Context, projectID uuid.UUID, date time.Time, surfaces []string) ([]*models.ProbeResult, error)
}

type SnapshotRepository interface {
	Upsert(ctx context.Context, snapshot *models.Snapshot) error
	Get(ctx context.Context, projectID uuid.UUID, surface string, date time.Time) (*models.Snapshot, error)
}

type ModelRegistryRepository interface {
	ListAll(ctx context.Context) ([]models.ModelRegistryEntry, error)
	Upsert(ctx context.Context, entry *models.ModelRegistryEntry) error
	// SetCurrent atomically makes modelID the only current model of provider.
	SetCurrent(ctx context.Context, provider, modelID string) error
}

type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Event, error)
}

type GlobalDomainRepository interface {
	ReplaceForKeyword(ctx context.Context, projectID, keywordID uuid.UUID, date time.Time, rows []*models.GlobalDomain) error
}

type QuotaRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.UserQuota, error)
	// Consume adds units to quota_used and appends a usage ledger row.
	Consume(ctx context.Context, userID uuid.UUID, projectID *uuid.UUID, units int, source string, metadata models.Metadata) error
}
