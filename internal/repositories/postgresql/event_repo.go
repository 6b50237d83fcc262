package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/senso-visibility/internal/database"
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
)

type EventRepo struct {
	db *database.Client
}

func NewEventRepo(db *database.Client) *EventRepo {
	return &EventRepo{db: db}
}

func (r *EventRepo) Create(ctx context.Context, e *models.Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.DB.NamedExecContext(ctx, `
		INSERT INTO events (id, project_id, event_date, event_type, title, description, keywords_affected, created_at)
		VALUES (:id, :project_id, :event_date, :event_type, :title, :description, :keywords_affected, :created_at)`, e)
	if err != nil {
		return fmt.Errorf("failed to create %s event: %w", e.EventType, err)
	}
	return nil
}

func (r *EventRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Event, error) {
	var events []*models.Event
	err := r.db.DB.SelectContext(ctx, &events, `
		SELECT id, project_id, event_date, event_type, title, description, keywords_affected, created_at
		FROM events
		WHERE project_id = $1
		ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}
