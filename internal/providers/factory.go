package providers

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility/internal/config"
	"github.com/AI-Template-SDK/senso-visibility/internal/metrics"
	"github.com/AI-Template-SDK/senso-visibility/internal/providers/claude"
	"github.com/AI-Template-SDK/senso-visibility/internal/providers/common"
	"github.com/AI-Template-SDK/senso-visibility/internal/providers/openaicompat"
	"github.com/AI-Template-SDK/senso-visibility/internal/providers/perplexity"
)

// NewAdapter builds the bare adapter for one provider using the registry's
// current model and pricing.
func NewAdapter(provider string, cfg *config.Config, registry *Registry) (common.Adapter, error) {
	apiKey := cfg.APIKey(provider)
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %s", provider)
	}
	entry, ok := registry.Current(provider)
	if !ok {
		return nil, fmt.Errorf("no available model registered for provider %s", provider)
	}
	pricing := registry.Pricing(provider, entry.ModelID)

	switch provider {
	case config.ProviderOpenAI:
		return openaicompat.New(openaicompat.Options{
			Provider: provider,
			APIKey:   apiKey,
			Model:    entry.ModelID,
			Pricing:  pricing,
		}), nil
	case config.ProviderGoogle:
		return openaicompat.New(openaicompat.Options{
			Provider: provider,
			APIKey:   apiKey,
			Model:    entry.ModelID,
			BaseURL:  openaicompat.GeminiBaseURL,
			Pricing:  pricing,
		}), nil
	case config.ProviderAnthropic:
		return claude.New(claude.Options{
			APIKey:  apiKey,
			Model:   entry.ModelID,
			Pricing: pricing,
		}), nil
	case config.ProviderPerplexity:
		return perplexity.New(perplexity.Options{
			APIKey:  apiKey,
			Model:   entry.ModelID,
			Pricing: pricing,
			Timeout: cfg.Probe.ProviderTimeout,
		}), nil
	}
	return nil, fmt.Errorf("unsupported provider: %s", provider)
}

// NewAdapters builds every configured provider, each wrapped in a Guard.
// Providers without an API key are left nil and logged.
func NewAdapters(cfg *config.Config, registry *Registry, m *metrics.Metrics) *Adapters {
	set := &Adapters{}
	for _, provider := range config.LLMProviders {
		adapter, err := NewAdapter(provider, cfg, registry)
		if err != nil {
			log.Warn().Err(err).Str("provider", provider).Msg("[NewAdapters] provider disabled")
			continue
		}
		guarded := NewGuard(adapter, GuardOptions{
			Timeout: cfg.Probe.ProviderTimeout,
			RPS:     cfg.Probe.ProviderRPS,
			Metrics: m,
		})
		if provider == config.ProviderGoogle && guarded.Structured() {
			set.Sentiment = guarded
		}
		switch provider {
		case config.ProviderOpenAI:
			set.OpenAI = guarded
		case config.ProviderAnthropic:
			set.Anthropic = guarded
		case config.ProviderGoogle:
			set.Google = guarded
		case config.ProviderPerplexity:
			set.Perplexity = guarded
		}
		log.Info().
			Str("provider", provider).
			Str("model", adapter.Model()).
			Msg("[NewAdapters] provider enabled")
	}

	// Sentiment runs on Gemini; OpenAI stands in when Google is not keyed.
	if set.Sentiment == nil && set.OpenAI != nil {
		if guarded := set.OpenAI.(*Guard); guarded.Structured() {
			set.Sentiment = guarded
		}
	}
	return set
}
