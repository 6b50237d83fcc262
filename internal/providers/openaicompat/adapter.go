// Package openaicompat adapts any OpenAI-compatible chat completions endpoint.
// It backs both the openai surface and the google surface (Gemini exposes an
// OpenAI-compatible endpoint).
package openaicompat

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility/internal/config"
	"github.com/AI-Template-SDK/senso-visibility/internal/providers/common"
)

// GeminiBaseURL is Google's OpenAI-compatible endpoint.
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

type Options struct {
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	Pricing    common.Pricing
	MaxTokens  int
	HTTPClient *http.Client
}

type Adapter struct {
	client    openai.Client
	provider  string
	model     string
	pricing   common.Pricing
	maxTokens int
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
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	log.Debug().
		Str("provider", opts.Provider).
		Str("model", opts.Model).
		Str("api_key", config.MaskAPIKey(opts.APIKey)).
		Msg("[openaicompat.New] adapter configured")

	return &Adapter{
		client:    openai.NewClient(reqOpts...),
		provider:  opts.Provider,
		model:     opts.Model,
		pricing:   opts.Pricing,
		maxTokens: maxTokens,
	}
}

func (a *Adapter) Name() string  { return a.provider }
func (a *Adapter) Model() string { return a.model }

func (a *Adapter) ExecuteQuery(ctx context.Context, prompt string) common.Result {
	return a.complete(ctx, prompt, openai.ChatCompletionNewParams{
		Messages:  []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Model:     openai.ChatModel(a.model),
		MaxTokens: openai.Int(int64(a.maxTokens)),
	})
}

// ExecuteStructured constrains the reply to schema via a JSON-schema response format.
func (a *Adapter) ExecuteStructured(ctx context.Context, prompt, schemaName string, schema interface{}) common.Result {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:   schemaName,
		Schema: schema,
		Strict: openai.Bool(true),
	}
	return a.complete(ctx, prompt, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Model:    openai.ChatModel(a.model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
		},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(200),
	})
}

func (a *Adapter) Health(ctx context.Context) common.Result {
	return a.ExecuteQuery(ctx, common.HealthPrompt)
}

func (a *Adapter) complete(ctx context.Context, prompt string, params openai.ChatCompletionNewParams) common.Result {
	start := time.Now()
	resp, err := a.client.Chat.Completions.New(ctx, params)
	elapsed := int(time.Since(start).Milliseconds())
	if err != nil {
		return common.Failure(a.model, classify(err), elapsed, "%s request failed: %v", a.provider, err)
	}
	if len(resp.Choices) == 0 {
		return common.Failure(a.model, common.ErrorTransient, elapsed, "%s returned no choices", a.provider)
	}

	content := resp.Choices[0].Message.Content
	in, out := common.Usage(prompt, content, int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens))
	model := a.model
	if resp.Model != "" {
		model = resp.Model
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

func classify(err error) common.ErrorKind {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return common.KindForStatus(apiErr.StatusCode)
	}
	return common.ErrorTransient
}
