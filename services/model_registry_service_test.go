package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/senso-visibility/internal/config"
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/testutil"
)

func TestModelRegistrySeedsDefaults(t *testing.T) {
	store := testutil.NewStore()
	svc := NewModelRegistryService(reposFor(store))
	ctx := context.Background()

	entries, err := svc.Load(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	stored, err := store.Models.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, len(entries))

	again, err := svc.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, stored, again)
}

func TestLoadRegistryResolvesCurrentModels(t *testing.T) {
	registry, err := LoadRegistry(context.Background(), NewModelRegistryService(reposFor(testutil.NewStore())))
	require.NoError(t, err)

	for _, provider := range []string{config.ProviderOpenAI, config.ProviderAnthropic} {
		current, ok := registry.Current(provider)
		require.True(t, ok, provider)
		assert.NotEmpty(t, current.ModelID)
	}
}

func TestModelRegistrySetCurrent(t *testing.T) {
	store := testutil.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Models.Upsert(ctx, &models.ModelRegistryEntry{
		Provider: config.ProviderOpenAI, ModelID: "gpt-4.1", IsCurrent: true, IsAvailable: true,
	}))
	require.NoError(t, store.Models.Upsert(ctx, &models.ModelRegistryEntry{
		Provider: config.ProviderOpenAI, ModelID: "gpt-4.1-mini", IsAvailable: true,
	}))
	require.NoError(t, store.Models.Upsert(ctx, &models.ModelRegistryEntry{
		Provider: config.ProviderOpenAI, ModelID: "gpt-3.5-turbo", IsAvailable: false,
	}))
	svc := NewModelRegistryService(reposFor(store))

	require.NoError(t, svc.SetCurrent(ctx, config.ProviderOpenAI, "gpt-4.1-mini"))

	entries, err := store.Models.ListAll(ctx)
	require.NoError(t, err)
	current := 0
	for _, e := range entries {
		if e.IsCurrent {
			current++
			assert.Equal(t, "gpt-4.1-mini", e.ModelID)
		}
	}
	assert.Equal(t, 1, current)

	var verr *ValidationError
	require.ErrorAs(t, svc.SetCurrent(ctx, config.ProviderOpenAI, "gpt-3.5-turbo"), &verr)
	require.ErrorAs(t, svc.SetCurrent(ctx, config.ProviderOpenAI, "unknown"), &verr)
	assert.Equal(t, "model_id", verr.Field)
}
