package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/senso-visibility/internal/config"
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
)

// SampleConfig returns a configuration with every provider keyed and fast retries.
func SampleConfig() *config.Config {
	return &config.Config{
		Environment:      "test",
		AppTZ:            "UTC",
		OpenAIAPIKey:     "test-openai-key",
		AnthropicAPIKey:  "test-anthropic-key",
		GoogleAPIKey:     "test-google-key",
		PerplexityAPIKey: "test-perplexity-key",
		SerpAPIKey:       "test-serp-key",
		EnforceQuotas:    true,
		Probe: config.ProbeConfig{
			MaxWorkers:      8,
			MaxRetries:      4,
			ProviderTimeout: 5 * time.Second,
			Concurrency: map[string]int{
				config.ProviderOpenAI:     2,
				config.ProviderAnthropic:  3,
				config.ProviderGoogle:     5,
				config.ProviderPerplexity: 4,
			},
		},
		Serp: config.SerpConfig{CacheTTL: time.Hour},
	}
}

// SampleProject returns an active project tracking Quipu against two competitors.
func SampleProject() *models.Project {
	return &models.Project{
		ID:            uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		UserID:        uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		BrandName:     "Quipu",
		BrandDomain:   "getquipu.com",
		BrandKeywords: models.StringList{"Quipu"},
		Competitors: models.Competitors{
			{Key: "holded", DisplayName: "Holded", Domain: "holded.com", Keywords: []string{"Holded"}},
			{Key: "sage", DisplayName: "Sage", Domain: "sage.com", Keywords: []string{"Sage"}},
		},
		EnabledSurfaces:   models.StringList{config.ProviderOpenAI, config.ProviderAnthropic, config.SurfaceSERP},
		CountryCode:       "ES",
		Language:          "es",
		QueriesPerSurface: 5,
		IsActive:          true,
	}
}

// SampleDate is a fixed analysis date.
func SampleDate() time.Time {
	return time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
}
