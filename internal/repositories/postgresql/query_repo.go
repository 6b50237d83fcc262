package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/senso-visibility/internal/database"
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
)

type QueryRepo struct {
	db *database.Client
}

func NewQueryRepo(db *database.Client) *QueryRepo {
	return &QueryRepo{db: db}
}

func (r *QueryRepo) ListActive(ctx context.Context, projectID uuid.UUID) ([]*models.Query, error) {
	var queries []*models.Query
	err := r.db.DB.SelectContext(ctx, &queries, `
		SELECT id, project_id, query_text, language, query_type, is_active, created_at
		FROM queries
		WHERE project_id = $1 AND is_active
		ORDER BY created_at, query_text`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}
	return queries, nil
}

// CreateBatch inserts queries, ignoring texts the project already has.
func (r *QueryRepo) CreateBatch(ctx context.Context, queries []*models.Query) error {
	if len(queries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, q := range queries {
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
		if q.CreatedAt.IsZero() {
			q.CreatedAt = now
		}
	}
	_, err := r.db.DB.NamedExecContext(ctx, `
		INSERT INTO queries (id, project_id, query_text, language, query_type, is_active, created_at)
		VALUES (:id, :project_id, :query_text, :language, :query_type, :is_active, :created_at)
		ON CONFLICT (project_id, query_text) DO NOTHING`, queries)
	if err != nil {
		return fmt.Errorf("failed to insert queries: %w", err)
	}
	return nil
}

type KeywordRepo struct {
	db *database.Client
}

func NewKeywordRepo(db *database.Client) *KeywordRepo {
	return &KeywordRepo{db: db}
}

func (r *KeywordRepo) ListActive(ctx context.Context, projectID uuid.UUID) ([]*models.Keyword, error) {
	var keywords []*models.Keyword
	err := r.db.DB.SelectContext(ctx, &keywords, `
		SELECT id, project_id, text, is_active, created_at
		FROM keywords
		WHERE project_id = $1 AND is_active
		ORDER BY created_at, text`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keywords: %w", err)
	}
	return keywords, nil
}

func (r *KeywordRepo) Create(ctx context.Context, k *models.Keyword) error {
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.DB.NamedExecContext(ctx, `
		INSERT INTO keywords (id, project_id, text, is_active, created_at)
		VALUES (:id, :project_id, :text, :is_active, :created_at)
		ON CONFLICT (project_id, text) DO UPDATE SET is_active = EXCLUDED.is_active`, k)
	if err != nil {
		return fmt.Errorf("failed to create keyword: %w", err)
	}
	return nil
}
