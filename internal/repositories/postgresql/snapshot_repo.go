package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/senso-visibility/internal/database"
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/repositories/interfaces"
)

const snapshotColumns = `id, project_id, surface, snapshot_date, total_queries, total_mentions, mention_rate,
	avg_position, appeared_in_top3, appeared_in_top5, appeared_in_top10,
	total_competitor_mentions, share_of_voice, competitor_breakdown,
	weighted_share_of_voice, weighted_competitor_breakdown,
	positive_mentions, neutral_mentions, negative_mentions, avg_sentiment_score,
	avg_response_time_ms, total_cost_usd, total_tokens, created_at, updated_at`

const snapshotUpsert = `
	INSERT INTO snapshots (` + snapshotColumns + `)
	VALUES (:id, :project_id, :surface, :snapshot_date, :total_queries, :total_mentions, :mention_rate,
		:avg_position, :appeared_in_top3, :appeared_in_top5, :appeared_in_top10,
		:total_competitor_mentions, :share_of_voice, :competitor_breakdown,
		:weighted_share_of_voice, :weighted_competitor_breakdown,
		:positive_mentions, :neutral_mentions, :negative_mentions, :avg_sentiment_score,
		:avg_response_time_ms, :total_cost_usd, :total_tokens, NOW(), NOW())
	ON CONFLICT (project_id, surface, snapshot_date) DO UPDATE SET
		total_queries = EXCLUDED.total_queries,
		total_mentions = EXCLUDED.total_mentions,
		mention_rate = EXCLUDED.mention_rate,
		avg_position = EXCLUDED.avg_position,
		appeared_in_top3 = EXCLUDED.appeared_in_top3,
		appeared_in_top5 = EXCLUDED.appeared_in_top5,
		appeared_in_top10 = EXCLUDED.appeared_in_top10,
		total_competitor_mentions = EXCLUDED.total_competitor_mentions,
		share_of_voice = EXCLUDED.share_of_voice,
		competitor_breakdown = EXCLUDED.competitor_breakdown,
		weighted_share_of_voice = EXCLUDED.weighted_share_of_voice,
		weighted_competitor_breakdown = EXCLUDED.weighted_competitor_breakdown,
		positive_mentions = EXCLUDED.positive_mentions,
		neutral_mentions = EXCLUDED.neutral_mentions,
		negative_mentions = EXCLUDED.negative_mentions,
		avg_sentiment_score = EXCLUDED.avg_sentiment_score,
		avg_response_time_ms = EXCLUDED.avg_response_time_ms,
		total_cost_usd = EXCLUDED.total_cost_usd,
		total_tokens = EXCLUDED.total_tokens,
		updated_at = NOW()`

type SnapshotRepo struct {
	db *database.Client
}

func NewSnapshotRepo(db *database.Client) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

func (r *SnapshotRepo) Upsert(ctx context.Context, s *models.Snapshot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if _, err := r.db.DB.NamedExecContext(ctx, snapshotUpsert, s); err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

func (r *SnapshotRepo) Get(ctx context.Context, projectID uuid.UUID, surface string, date time.Time) (*models.Snapshot, error) {
	var s models.Snapshot
	err := r.db.DB.GetContext(ctx, &s, `SELECT `+snapshotColumns+`
		FROM snapshots WHERE project_id = $1 AND surface = $2 AND snapshot_date = $3`,
		projectID, surface, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("snapshot %s/%s: %w", projectID, surface, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return &s, nil
}
