package postgresql

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/AI-Template-SDK/senso-visibility/internal/database"
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/repositories/interfaces"
)

type ModelRegistryRepo struct {
	db *database.Client
}

func NewModelRegistryRepo(db *database.Client) *ModelRegistryRepo {
	return &ModelRegistryRepo{db: db}
}

func (r *ModelRegistryRepo) ListAll(ctx context.Context) ([]models.ModelRegistryEntry, error) {
	var entries []models.ModelRegistryEntry
	err := r.db.DB.SelectContext(ctx, &entries, `
		SELECT id, provider, model_id, display_name, input_price_per_1m, output_price_per_1m,
			context_window, is_current, is_available
		FROM model_registry
		ORDER BY provider, model_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list model registry: %w", err)
	}
	return entries, nil
}

func (r *ModelRegistryRepo) Upsert(ctx context.Context, e *models.ModelRegistryEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.db.DB.NamedExecContext(ctx, `
		INSERT INTO model_registry (id, provider, model_id, display_name, input_price_per_1m,
			output_price_per_1m, context_window, is_current, is_available)
		VALUES (:id, :provider, :model_id, :display_name, :input_price_per_1m,
			:output_price_per_1m, :context_window, :is_current, :is_available)
		ON CONFLICT (provider, model_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			input_price_per_1m = EXCLUDED.input_price_per_1m,
			output_price_per_1m = EXCLUDED.output_price_per_1m,
			context_window = EXCLUDED.context_window,
			is_available = EXCLUDED.is_available`, e)
	if err != nil {
		return fmt.Errorf("failed to upsert model %s/%s: %w", e.Provider, e.ModelID, err)
	}
	return nil
}

func (r *ModelRegistryRepo) SetCurrent(ctx context.Context, provider, modelID string) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE model_registry SET is_current = FALSE WHERE provider = $1 AND is_current`, provider); err != nil {
			return fmt.Errorf("failed to clear current model: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE model_registry SET is_current = TRUE WHERE provider = $1 AND model_id = $2 AND is_available`,
			provider, modelID)
		if err != nil {
			return fmt.Errorf("failed to set current model: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("model %s/%s: %w", provider, modelID, interfaces.ErrNotFound)
		}
		return nil
	})
}
