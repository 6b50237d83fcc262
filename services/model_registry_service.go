// services/model_registry_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/providers"
	"github.com/AI-Template-SDK/senso-visibility/internal/repositories/interfaces"
)

type modelRegistryService struct {
	repos *RepositoryManager
}

func NewModelRegistryService(repos *RepositoryManager) ModelRegistryService {
	return &modelRegistryService{repos: repos}
}

func (s *modelRegistryService) Load(ctx context.Context) ([]models.ModelRegistryEntry, error) {
	entries, err := s.repos.Models.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load model registry: %w", err)
	}
	if len(entries) > 0 {
		return entries, nil
	}

	defaults, err := providers.DefaultRegistry()
	if err != nil {
		return nil, err
	}
	seed := defaults.Entries()
	for i := range seed {
		if err := s.repos.Models.Upsert(ctx, &seed[i]); err != nil {
			return nil, fmt.Errorf("failed to seed model registry: %w", err)
		}
	}
	log.Info().Int("models", len(seed)).Msg("[LoadModelRegistry] seeded registry from defaults")
	return seed, nil
}

// SetCurrent makes modelID the single current model of provider.
func (s *modelRegistryService) SetCurrent(ctx context.Context, provider, modelID string) error {
	if err := s.repos.Models.SetCurrent(ctx, provider, modelID); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return &ValidationError{Field: "model_id", Reason: fmt.Sprintf("%s/%s is not an available model", provider, modelID)}
		}
		return fmt.Errorf("failed to set current model: %w", err)
	}
	log.Info().Str("provider", provider).Str("model", modelID).Msg("[SetCurrentModel] current model changed")
	return nil
}

// LoadRegistry builds the immutable pricing registry used to construct adapters.
func LoadRegistry(ctx context.Context, svc ModelRegistryService) (*providers.Registry, error) {
	entries, err := svc.Load(ctx)
	if err != nil {
		return nil, err
	}
	return providers.NewRegistry(entries), nil
}
