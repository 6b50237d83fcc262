package providers

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/providers/common"
)

//go:embed default_models.yaml
var defaultModelsYAML []byte

// Registry is an immutable snapshot of the model registry, loaded once per
// adapter construction.
type Registry struct {
	entries []models.ModelRegistryEntry
}

// NewRegistry copies entries into a Registry.
func NewRegistry(entries []models.ModelRegistryEntry) *Registry {
	cp := make([]models.ModelRegistryEntry, len(entries))
	copy(cp, entries)
	return &Registry{entries: cp}
}

// DefaultRegistry returns the embedded seed registry.
func DefaultRegistry() (*Registry, error) {
	entries, err := ParseRegistryYAML(defaultModelsYAML)
	if err != nil {
		return nil, err
	}
	return NewRegistry(entries), nil
}

// ParseRegistryYAML decodes a models document.
func ParseRegistryYAML(data []byte) ([]models.ModelRegistryEntry, error) {
	var doc struct {
		Models []models.ModelRegistryEntry `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse model registry: %w", err)
	}
	return doc.Models, nil
}

// Entries returns a copy of all entries.
func (r *Registry) Entries() []models.ModelRegistryEntry {
	cp := make([]models.ModelRegistryEntry, len(r.entries))
	copy(cp, r.entries)
	return cp
}

// Current returns the current, available model for a provider. If none is
// flagged current the first available model is used.
func (r *Registry) Current(provider string) (models.ModelRegistryEntry, bool) {
	var fallback *models.ModelRegistryEntry
	for i := range r.entries {
		e := r.entries[i]
		if !strings.EqualFold(e.Provider, provider) || !e.IsAvailable {
			continue
		}
		if e.IsCurrent {
			return e, true
		}
		if fallback == nil {
			fallback = &r.entries[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return models.ModelRegistryEntry{}, false
}

// Pricing returns the price of a model, falling back to the provider's current
// model and then to zero.
func (r *Registry) Pricing(provider, modelID string) common.Pricing {
	for _, e := range r.entries {
		if strings.EqualFold(e.Provider, provider) && e.ModelID == modelID {
			return common.Pricing{InputPer1M: e.InputPricePer1M, OutputPer1M: e.OutputPricePer1M}
		}
	}
	// Dated snapshots ("gpt-4o-mini-2024-07-18") price like their base model.
	for _, e := range r.entries {
		if strings.EqualFold(e.Provider, provider) && strings.HasPrefix(modelID, e.ModelID) {
			return common.Pricing{InputPer1M: e.InputPricePer1M, OutputPer1M: e.OutputPricePer1M}
		}
	}
	if e, ok := r.Current(provider); ok {
		return common.Pricing{InputPer1M: e.InputPricePer1M, OutputPer1M: e.OutputPricePer1M}
	}
	return common.Pricing{}
}
