// Package perplexity adapts the Perplexity chat completions API, which returns
// its web citations alongside the answer.
package perplexity

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/AI-Template-SDK/senso-visibility/internal/config"
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/providers/common"
)

const DefaultBaseURL = "https://api.perplexity.ai"

type Options struct {
	APIKey    string
	Model     string
	BaseURL   string
	Pricing   common.Pricing
	MaxTokens int
	Timeout   time.Duration
}

type Adapter struct {
	client    *resty.Client
	model     string
	pricing   common.Pricing
	maxTokens int
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type searchResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Citations     []string       `json:"citations"`
	SearchResults []searchResult `json:"search_results"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func New(opts Options) *Adapter {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	return &Adapter{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetAuthToken(opts.APIKey).
			SetHeader("Accept", "application/json"),
		model:     opts.Model,
		pricing:   opts.Pricing,
		maxTokens: maxTokens,
	}
}

func (a *Adapter) Name() string  { return config.ProviderPerplexity }
func (a *Adapter) Model() string { return a.model }

func (a *Adapter) ExecuteQuery(ctx context.Context, prompt string) common.Result {
	var body chatResponse
	var apiErr errorResponse

	start := time.Now()
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model:     a.model,
			Messages:  []chatMessage{{Role: "user", Content: prompt}},
			MaxTokens: a.maxTokens,
		}).
		SetResult(&body).
		SetError(&apiErr).
		Post("/chat/completions")
	elapsed := int(time.Since(start).Milliseconds())

	if err != nil {
		return common.Failure(a.model, common.ErrorTransient, elapsed, "perplexity request failed: %v", err)
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		return common.Failure(a.model, common.KindForStatus(resp.StatusCode()), elapsed,
			"perplexity returned status %d: %s", resp.StatusCode(), msg)
	}
	if len(body.Choices) == 0 {
		return common.Failure(a.model, common.ErrorTransient, elapsed, "perplexity returned no choices")
	}

	content := body.Choices[0].Message.Content
	in, out := common.Usage(prompt, content, body.Usage.PromptTokens, body.Usage.CompletionTokens)
	model := a.model
	if body.Model != "" {
		model = body.Model
	}

	return common.Result{
		Success:        true,
		Content:        content,
		Sources:        common.MergeSources(citedSources(body), common.ExtractSources(content)),
		ModelUsed:      model,
		Tokens:         in + out,
		InputTokens:    in,
		OutputTokens:   out,
		CostUSD:        a.pricing.Cost(in, out),
		ResponseTimeMS: elapsed,
	}
}

func (a *Adapter) Health(ctx context.Context) common.Result {
	return a.ExecuteQuery(ctx, common.HealthPrompt)
}

// citedSources prefers search_results (which carry titles) over the bare citation list.
func citedSources(body chatResponse) []models.Source {
	if len(body.SearchResults) > 0 {
		out := make([]models.Source, 0, len(body.SearchResults))
		for _, r := range body.SearchResults {
			if r.URL == "" {
				continue
			}
			out = append(out, models.Source{URL: r.URL, Title: r.Title})
		}
		return out
	}
	out := make([]models.Source, 0, len(body.Citations))
	for _, c := range body.Citations {
		if c == "" {
			continue
		}
		out = append(out, models.Source{URL: c})
	}
	return out
}
