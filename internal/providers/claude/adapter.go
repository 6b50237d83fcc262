// Package claude adapts the Anthropic Messages API.
package claude

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/AI-Template-SDK/senso-visibility/internal/config"
	"github.com/AI-Template-SDK/senso-visibility/internal/providers/common"
)

type Options struct {
	APIKey     string
	Model      string
	BaseURL    string
	Pricing    common.Pricing
	MaxTokens  int
	HTTPClient *http.Client
}

type Adapter struct {
	client    anthropic.Client
	model     string
	pricing   common.Pricing
	maxTokens int64
}

func New(opts Options) *Adapter {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	return &Adapter{
		client:    anthropic.NewClient(reqOpts...),
		model:     opts.Model,
		pricing:   opts.Pricing,
		maxTokens: maxTokens,
	}
}

func (a *Adapter) Name() string  { return config.ProviderAnthropic }
func (a *Adapter) Model() string { return a.model }

func (a *Adapter) ExecuteQuery(ctx context.Context, prompt string) common.Result {
	messages := []anthropic.MessageParam{{
		Content: []anthropic.ContentBlockParamUnion{{
			OfText: &anthropic.TextBlockParam{Text: prompt},
		}},
		Role: anthropic.MessageParamRoleUser,
	}}

	start := time.Now()
	response, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		Messages:    messages,
		Temperature: anthropic.Float(0.7),
	})
	elapsed := int(time.Since(start).Milliseconds())
	if err != nil {
		return common.Failure(a.model, classify(err), elapsed, "anthropic request failed: %v", err)
	}

	content := extractResponseText(*response)
	in, out := common.Usage(prompt, content, int(response.Usage.InputTokens), int(response.Usage.OutputTokens))
	model := a.model
	if string(response.Model) != "" {
		model = string(response.Model)
	}

	return common.Result{
		Success:        true,
		Content:        content,
		Sources:        common.ExtractSources(content),
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

func extractResponseText(response anthropic.Message) string {
	var parts []string
	for _, block := range response.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			parts = append(parts, variant.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func classify(err error) common.ErrorKind {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return common.KindForStatus(apiErr.StatusCode)
	}
	return common.ErrorTransient
}
