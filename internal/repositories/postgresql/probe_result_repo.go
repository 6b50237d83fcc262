package postgresql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/AI-Template-SDK/senso-visibility/internal/database"
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
)

// probeResultFields excludes id and the timestamps, which the upsert manages.
var probeResultFields = []string{
	"project_id", "subject_id", "subject_text", "surface", "analysis_date",
	"brand_mentioned", "mention_count", "mention_contexts",
	"appears_in_list", "position", "total_items", "position_source", "position_method", "link_only",
	"has_ai_overview", "domain_is_ai_source", "domain_ai_source_position", "domain_ai_source_link", "organic_position",
	"competitors_mentioned", "sentiment", "sentiment_score", "sentiment_method",
	"model_id", "tokens_in", "tokens_out", "cost_usd", "latency_ms", "sources", "matched_clusters",
	"has_error", "error_message",
}

var (
	probeResultColumns = "id, " + strings.Join(probeResultFields, ", ") + ", created_at, updated_at"
	probeResultUpsert  = buildProbeResultUpsert()
)

func buildProbeResultUpsert() string {
	named := make([]string, len(probeResultFields))
	updates := make([]string, 0, len(probeResultFields))
	for i, f := range probeResultFields {
		named[i] = ":" + f
		switch f {
		case "project_id", "subject_id", "surface", "analysis_date":
			continue
		}
		updates = append(updates, f+" = EXCLUDED."+f)
	}
	updates = append(updates, "updated_at = NOW()")

	return `INSERT INTO probe_results (id, ` + strings.Join(probeResultFields, ", ") + `, created_at, updated_at)
		VALUES (:id, ` + strings.Join(named, ", ") + `, NOW(), NOW())
		ON CONFLICT (project_id, subject_id, surface, analysis_date) DO UPDATE SET
		` + strings.Join(updates, ",\n\t\t") + `
		RETURNING id`
}

type ProbeResultRepo struct {
	db *database.Client
}

func NewProbeResultRepo(db *database.Client) *ProbeResultRepo {
	return &ProbeResultRepo{db: db}
}

// Upsert writes the row for its natural key; on conflict the stored row keeps
// its id and takes every other value from r.
func (r *ProbeResultRepo) Upsert(ctx context.Context, result *models.ProbeResult) error {
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	rows, err := r.db.DB.NamedQueryContext(ctx, probeResultUpsert, result)
	if err != nil {
		return fmt.Errorf("failed to upsert probe result: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&result.ID); err != nil {
			return fmt.Errorf("failed to read probe result id: %w", err)
		}
	}
	return rows.Err()
}

func (r *ProbeResultRepo) Exists(ctx context.Context, projectID, subjectID uuid.UUID, surface string, date time.Time) (bool, error) {
	var exists bool
	err := r.db.DB.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM probe_results
			WHERE project_id = $1 AND subject_id = $2 AND surface = $3 AND analysis_date = $4
		)`, projectID, subjectID, surface, date)
	if err != nil {
		return false, fmt.Errorf("failed to check probe result: %w", err)
	}
	return exists, nil
}

func (r *ProbeResultRepo) Delete(ctx context.Context, projectID, subjectID uuid.UUID, surface string, date time.Time) error {
	_, err := r.db.DB.ExecContext(ctx, `
		DELETE FROM probe_results
		WHERE project_id = $1 AND subject_id = $2 AND surface = $3 AND analysis_date = $4`,
		projectID, subjectID, surface, date)
	if err != nil {
		return fmt.Errorf("failed to delete probe result: %w", err)
	}
	return nil
}

func (r *ProbeResultRepo) ListByDay(ctx context.Context, projectID uuid.UUID, surface string, date time.Time) ([]*models.ProbeResult, error) {
	var results []*models.ProbeResult
	err := r.db.DB.SelectContext(ctx, &results, `
		SELECT `+probeResultColumns+`
		FROM probe_results
		WHERE project_id = $1 AND surface = $2 AND analysis_date = $3
		ORDER BY subject_text`, projectID, surface, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list probe results: %w", err)
	}
	return results, nil
}

func (r *ProbeResultRepo) ListErrors(ctx context.Context, projectID uuid.UUID, date time.Time, surfaces []string) ([]*models.ProbeResult, error) {
	var results []*models.ProbeResult
	err := r.db.DB.SelectContext(ctx, &results, `
		SELECT `+probeResultColumns+`
		FROM probe_results
		WHERE project_id = $1 AND analysis_date = $2 AND has_error AND surface = ANY($3)
		ORDER BY surface, subject_text`, projectID, date, pq.Array(surfaces))
	if err != nil {
		return nil, fmt.Errorf("failed to list errored probe results: %w", err)
	}
	return results, nil
}
