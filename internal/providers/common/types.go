package common

import (
	"context"

	"github.com/AI-Template-SDK/senso-visibility/internal/models"
)

// ErrorKind tags a failed provider call.
type ErrorKind string

const (
	ErrorTransient ErrorKind = "transient"
	ErrorPermanent ErrorKind = "permanent"
)

// Result is the uniform outcome of a chat provider call. Failures are encoded
// in the value (Success=false, Error set), never as a Go error.
type Result struct {
	Success        bool
	Content        string
	Sources        []models.Source
	ModelUsed      string
	Tokens         int
	InputTokens    int
	OutputTokens   int
	CostUSD        float64
	ResponseTimeMS int
	Error          string
	ErrorKind      ErrorKind
}

// Adapter is one chat LLM surface. Implementations never retry.
type Adapter interface {
	Name() string
	Model() string
	ExecuteQuery(ctx context.Context, prompt string) Result
	Health(ctx context.Context) Result
}

// StructuredAdapter is implemented by adapters that can constrain the reply to
// a JSON schema.
type StructuredAdapter interface {
	Adapter
	ExecuteStructured(ctx context.Context, prompt, schemaName string, schema interface{}) Result
}

// HealthPrompt is the trivial prompt used by health checks.
const HealthPrompt = "Hi"

// Pricing is the per-million-token price of a model.
type Pricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Cost prices a call.
func (p Pricing) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1_000_000.0*p.InputPer1M + float64(outputTokens)/1_000_000.0*p.OutputPer1M
}

// Failure builds a failed Result.
func Failure(model string, kind ErrorKind, elapsedMS int, format string, args ...interface{}) Result {
	return Result{
		Success:        false,
		ModelUsed:      model,
		ResponseTimeMS: elapsedMS,
		Error:          sprintf(format, args...),
		ErrorKind:      kind,
	}
}
