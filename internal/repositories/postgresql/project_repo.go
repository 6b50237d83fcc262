// Package postgresql implements the repository interfaces on sqlx and lib/pq.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/AI-Template-SDK/senso-visibility/internal/database"
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/repositories/interfaces"
)

const projectColumns = `id, user_id, brand_name, brand_domain, brand_keywords, competitors,
	competitor_domains, competitor_keywords, enabled_surfaces, country_code, language,
	queries_per_surface, topic_clusters, is_active, last_analysis_date, created_at, updated_at`

type ProjectRepo struct {
	db *database.Client
}

func NewProjectRepo(db *database.Client) *ProjectRepo {
	return &ProjectRepo{db: db}
}

func (r *ProjectRepo) Create(ctx context.Context, p *models.Project) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	query := `
		INSERT INTO projects (` + projectColumns + `)
		VALUES (:id, :user_id, :brand_name, :brand_domain, :brand_keywords, :competitors,
			:competitor_domains, :competitor_keywords, :enabled_surfaces, :country_code, :language,
			:queries_per_surface, :topic_clusters, :is_active, :last_analysis_date, :created_at, :updated_at)`
	if _, err := r.db.DB.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (r *ProjectRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var p models.Project
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	if err := r.db.DB.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("project %s: %w", id, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

func (r *ProjectRepo) ListActive(ctx context.Context) ([]*models.Project, error) {
	var projects []*models.Project
	query := `SELECT ` + projectColumns + ` FROM projects WHERE is_active ORDER BY created_at`
	if err := r.db.DB.SelectContext(ctx, &projects, query); err != nil {
		return nil, fmt.Errorf("failed to list active projects: %w", err)
	}
	return projects, nil
}

func (r *ProjectRepo) ListDue(ctx context.Context, date time.Time) ([]*models.Project, error) {
	var projects []*models.Project
	query := `SELECT ` + projectColumns + ` FROM projects
		WHERE is_active AND (last_analysis_date IS NULL OR last_analysis_date < $1)
		ORDER BY created_at`
	if err := r.db.DB.SelectContext(ctx, &projects, query, date); err != nil {
		return nil, fmt.Errorf("failed to list due projects: %w", err)
	}
	return projects, nil
}

func (r *ProjectRepo) Update(ctx context.Context, p *models.Project) error {
	p.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE projects SET
			brand_name = :brand_name,
			brand_domain = :brand_domain,
			brand_keywords = :brand_keywords,
			competitors = :competitors,
			competitor_domains = :competitor_domains,
			competitor_keywords = :competitor_keywords,
			enabled_surfaces = :enabled_surfaces,
			country_code = :country_code,
			language = :language,
			queries_per_surface = :queries_per_surface,
			topic_clusters = :topic_clusters,
			is_active = :is_active,
			updated_at = :updated_at
		WHERE id = :id`
	res, err := r.db.DB.NamedExecContext(ctx, query, p)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return requireAffected(res, "project", p.ID)
}

func (r *ProjectRepo) UpdateLastAnalysisDate(ctx context.Context, id uuid.UUID, date time.Time) error {
	res, err := r.db.DB.ExecContext(ctx,
		`UPDATE projects SET last_analysis_date = $2, updated_at = NOW() WHERE id = $1`, id, date)
	if err != nil {
		return fmt.Errorf("failed to update last analysis date: %w", err)
	}
	return requireAffected(res, "project", id)
}

func (r *ProjectRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := r.db.DB.ExecContext(ctx,
		`UPDATE projects SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to set project active flag: %w", err)
	}
	return requireAffected(res, "project", id)
}

// projectChildTables are cleared before the project row, children first.
var projectChildTables = []string{"global_domains", "probe_results", "snapshots", "events", "keywords", "queries"}

func (r *ProjectRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, table := range projectChildTables {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE project_id = $1`, id); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		return requireAffected(res, "project", id)
	})
}

func requireAffected(res sql.Result, entity string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, interfaces.ErrNotFound)
	}
	return nil
}
