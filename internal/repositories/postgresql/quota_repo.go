package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/AI-Template-SDK/senso-visibility/internal/database"
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/repositories/interfaces"
)

type QuotaRepo struct {
	db *database.Client
}

func NewQuotaRepo(db *database.Client) *QuotaRepo {
	return &QuotaRepo{db: db}
}

func (r *QuotaRepo) Get(ctx context.Context, userID uuid.UUID) (*models.UserQuota, error) {
	var q models.UserQuota
	err := r.db.DB.GetContext(ctx, &q, `
		SELECT user_id, plan, quota_limit, quota_used, period_start
		FROM user_quotas WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("quota for user %s: %w", userID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get quota: %w", err)
	}
	return &q, nil
}

func (r *QuotaRepo) Consume(ctx context.Context, userID uuid.UUID, projectID *uuid.UUID, units int, source string, metadata models.Metadata) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE user_quotas SET quota_used = quota_used + $2 WHERE user_id = $1`, userID, units)
		if err != nil {
			return fmt.Errorf("failed to update quota: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("quota for user %s: %w", userID, interfaces.ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quota_usage (id, user_id, project_id, units, source, metadata)
			VALUES ($1, $2, $3, $4, $5, $6)`, uuid.New(), userID, projectID, units, source, metadata); err != nil {
			return fmt.Errorf("failed to record quota usage: %w", err)
		}
		return nil
	})
}
