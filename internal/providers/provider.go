package providers

import (
	"github.com/AI-Template-SDK/senso-visibility/internal/config"
	"github.com/AI-Template-SDK/senso-visibility/internal/providers/common"
)

type (
	Adapter           = common.Adapter
	StructuredAdapter = common.StructuredAdapter
	Result            = common.Result
)

// Adapters is the set of chat surfaces available to a run. A nil field means
// the provider has no API key configured.
type Adapters struct {
	OpenAI     Adapter
	Anthropic  Adapter
	Google     Adapter
	Perplexity Adapter

	// Sentiment is the structured-output model used by the sentiment
	// classifier; nil selects the keyword heuristic.
	Sentiment StructuredAdapter
}

// Get returns the adapter for a provider name.
func (a *Adapters) Get(provider string) (Adapter, bool) {
	var adapter Adapter
	switch provider {
	case config.ProviderOpenAI:
		adapter = a.OpenAI
	case config.ProviderAnthropic:
		adapter = a.Anthropic
	case config.ProviderGoogle:
		adapter = a.Google
	case config.ProviderPerplexity:
		adapter = a.Perplexity
	}
	return adapter, adapter != nil
}

// Enabled lists configured providers among wanted, in canonical order.
func (a *Adapters) Enabled(wanted []string) []string {
	want := make(map[string]bool, len(wanted))
	for _, w := range wanted {
		want[w] = true
	}
	var out []string
	for _, p := range config.LLMProviders {
		if !want[p] {
			continue
		}
		if _, ok := a.Get(p); ok {
			out = append(out, p)
		}
	}
	return out
}
