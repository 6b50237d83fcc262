package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/AI-Template-SDK/senso-visibility/internal/database"
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
)

type GlobalDomainRepo struct {
	db *database.Client
}

func NewGlobalDomainRepo(db *database.Client) *GlobalDomainRepo {
	return &GlobalDomainRepo{db: db}
}

// ReplaceForKeyword swaps the day's cited domains for a keyword in one transaction.
func (r *GlobalDomainRepo) ReplaceForKeyword(ctx context.Context, projectID, keywordID uuid.UUID, date time.Time, rows []*models.GlobalDomain) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM global_domains
			WHERE project_id = $1 AND keyword_id = $2 AND analysis_date = $3`,
			projectID, keywordID, date); err != nil {
			return fmt.Errorf("failed to clear global domains: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO global_domains (project_id, keyword_id, keyword, analysis_date, detected_domain,
				domain_position, source_url, is_project_domain, is_selected_competitor)
			VALUES (:project_id, :keyword_id, :keyword, :analysis_date, :detected_domain,
				:domain_position, :source_url, :is_project_domain, :is_selected_competitor)
			ON CONFLICT (project_id, keyword_id, analysis_date, detected_domain) DO NOTHING`, rows); err != nil {
			return fmt.Errorf("failed to insert global domains: %w", err)
		}
		return nil
	})
}
