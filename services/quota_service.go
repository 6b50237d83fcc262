// services/quota_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility/internal/metrics"
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/repositories/interfaces"
)

const planUnlimited = "unlimited"

type quotaGate struct {
	repos   *RepositoryManager
	enforce bool
	metrics *metrics.Metrics
}

// NewQuotaGate returns the resource-unit gate. With enforce=false every
// status check allows consumption.
func NewQuotaGate(repos *RepositoryManager, enforce bool, m *metrics.Metrics) QuotaGate {
	return &quotaGate{repos: repos, enforce: enforce, metrics: m}
}

func (q *quotaGate) Status(ctx context.Context, userID uuid.UUID) (*models.QuotaStatus, error) {
	if !q.enforce {
		return &models.QuotaStatus{
			CanConsume: true,
			Plan:       planUnlimited,
			QuotaLimit: math.MaxInt32,
			Remaining:  math.MaxInt32,
			Message:    "quota enforcement disabled",
		}, nil
	}

	quota, err := q.repos.Quotas.Get(ctx, userID)
	if errors.Is(err, interfaces.ErrNotFound) {
		q.metrics.QuotaRefused()
		return &models.QuotaStatus{Plan: "none", Message: "no quota allocated for this user"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read quota: %w", err)
	}

	remaining := quota.QuotaLimit - quota.QuotaUsed
	if remaining < 0 {
		remaining = 0
	}
	status := &models.QuotaStatus{
		CanConsume: remaining > 0,
		Plan:       quota.Plan,
		QuotaUsed:  quota.QuotaUsed,
		QuotaLimit: quota.QuotaLimit,
		Remaining:  remaining,
		Message:    fmt.Sprintf("%d of %d resource units remaining", remaining, quota.QuotaLimit),
	}
	if !status.CanConsume {
		q.metrics.QuotaRefused()
		status.Message = fmt.Sprintf("quota of %d resource units exhausted on plan %s", quota.QuotaLimit, quota.Plan)
	}
	return status, nil
}

func (q *quotaGate) Track(ctx context.Context, userID uuid.UUID, units int, source string, metadata models.Metadata) {
	var projectID *uuid.UUID
	if raw, ok := metadata["project_id"]; ok {
		if id, err := uuid.Parse(raw); err == nil {
			projectID = &id
		}
	}
	if err := q.repos.Quotas.Consume(ctx, userID, projectID, units, source, metadata); err != nil {
		log.Warn().
			Err(err).
			Str("user_id", userID.String()).
			Int("units", units).
			Str("source", source).
			Msg("[Track] failed to record quota consumption")
	}
}

// quotaExceeded converts a refused status into the terminal run error.
func quotaExceeded(status *models.QuotaStatus) *QuotaExceededError {
	action := ActionUpgrade
	if status.Plan == "none" {
		action = ActionContactSupport
	}
	return &QuotaExceededError{
		Plan:           status.Plan,
		QuotaUsed:      status.QuotaUsed,
		QuotaLimit:     status.QuotaLimit,
		ActionRequired: action,
		Message:        status.Message,
	}
}
