package services

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/testutil"
)

func TestQuotaGateStatus(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name          string
		quota         *models.UserQuota
		wantConsume   bool
		wantRemaining int
		wantPlan      string
	}{
		{
			name:          "room left",
			quota:         &models.UserQuota{UserID: userID, Plan: "pro", QuotaLimit: 100, QuotaUsed: 40},
			wantConsume:   true,
			wantRemaining: 60,
			wantPlan:      "pro",
		},
		{
			name:          "exhausted",
			quota:         &models.UserQuota{UserID: userID, Plan: "free", QuotaLimit: 10, QuotaUsed: 10},
			wantConsume:   false,
			wantRemaining: 0,
			wantPlan:      "free",
		},
		{
			name:          "overdrawn floors at zero",
			quota:         &models.UserQuota{UserID: userID, Plan: "free", QuotaLimit: 10, QuotaUsed: 12},
			wantConsume:   false,
			wantRemaining: 0,
			wantPlan:      "free",
		},
		{
			name:          "no quota row",
			wantConsume:   false,
			wantRemaining: 0,
			wantPlan:      "none",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewStore()
			if tt.quota != nil {
				store.SetQuota(*tt.quota)
			}
			gate := NewQuotaGate(reposFor(store), true, nil)

			status, err := gate.Status(context.Background(), userID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantConsume, status.CanConsume)
			assert.Equal(t, tt.wantRemaining, status.Remaining)
			assert.Equal(t, tt.wantPlan, status.Plan)
			assert.NotEmpty(t, status.Message)
		})
	}
}

func TestQuotaGateDisabledAlwaysAllows(t *testing.T) {
	store := testutil.NewStore()
	userID := uuid.New()
	store.SetQuota(models.UserQuota{UserID: userID, Plan: "free", QuotaLimit: 1, QuotaUsed: 1})
	gate := NewQuotaGate(reposFor(store), false, nil)

	status, err := gate.Status(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, status.CanConsume)
	assert.Equal(t, math.MaxInt32, status.Remaining)
}

func TestQuotaGateTrack(t *testing.T) {
	store := testutil.NewStore()
	userID, projectID := uuid.New(), uuid.New()
	store.SetQuota(models.UserQuota{UserID: userID, Plan: "pro", QuotaLimit: 10})
	gate := NewQuotaGate(reposFor(store), true, nil)

	gate.Track(context.Background(), userID, 1, models.QuotaSourceManualAI, models.Metadata{
		"project_id": projectID.String(),
		"keyword":    "qipu",
	})

	assert.Equal(t, 1, store.Quota(userID).QuotaUsed)
	usage := store.Usage()
	require.Len(t, usage, 1)
	require.NotNil(t, usage[0].ProjectID)
	assert.Equal(t, projectID, *usage[0].ProjectID)
	assert.Equal(t, "qipu", usage[0].Metadata["keyword"])
}

func TestQuotaGateTrackIsBestEffort(t *testing.T) {
	gate := NewQuotaGate(reposFor(testutil.NewStore()), true, nil)

	assert.NotPanics(t, func() {
		gate.Track(context.Background(), uuid.New(), 1, models.QuotaSourceManualAI, nil)
	})
}

func TestQuotaExceededAction(t *testing.T) {
	assert.Equal(t, ActionContactSupport, quotaExceeded(&models.QuotaStatus{Plan: "none"}).ActionRequired)

	err := quotaExceeded(&models.QuotaStatus{Plan: "free", QuotaUsed: 10, QuotaLimit: 10, Message: "exhausted"})
	assert.Equal(t, ActionUpgrade, err.ActionRequired)
	assert.True(t, IsQuotaExceeded(err))
	assert.Contains(t, err.Error(), "10/10")
}
