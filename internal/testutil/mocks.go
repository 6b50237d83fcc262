package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/AI-Template-SDK/senso-visibility/internal/providers/common"
)

// FakeAdapter is a scriptable common.Adapter. Respond decides the reply to each
// query; a nil Respond answers with DefaultContent.
type FakeAdapter struct {
	ProviderName   string
	ModelID        string
	DefaultContent string
	Respond        func(ctx context.Context, call int, prompt string) common.Result
	Unhealthy      bool

	mu       sync.Mutex
	prompts  []string
	calls    int
	inFlight int32
	maxSeen  int32
}

// NewFakeAdapter returns a healthy adapter that always answers content.
func NewFakeAdapter(provider, content string) *FakeAdapter {
	return &FakeAdapter{ProviderName: provider, ModelID: provider + "-test", DefaultContent: content}
}

func (f *FakeAdapter) Name() string  { return f.ProviderName }
func (f *FakeAdapter) Model() string { return f.ModelID }

func (f *FakeAdapter) ExecuteQuery(ctx context.Context, prompt string) common.Result {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&f.maxSeen)
		if n <= peak || atomic.CompareAndSwapInt32(&f.maxSeen, peak, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls++
	call := f.calls
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.Respond != nil {
		return f.Respond(ctx, call, prompt)
	}
	return Success(f.ModelID, f.DefaultContent)
}

func (f *FakeAdapter) Health(ctx context.Context) common.Result {
	if f.Unhealthy {
		return common.Failure(f.ModelID, common.ErrorPermanent, 0, "%s unhealthy", f.ProviderName)
	}
	return Success(f.ModelID, "Hello")
}

// Calls returns the number of ExecuteQuery invocations.
func (f *FakeAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Prompts returns every prompt received, in call order.
func (f *FakeAdapter) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.prompts))
	copy(out, f.prompts)
	return out
}

// MaxConcurrent is the highest number of overlapping ExecuteQuery calls seen.
func (f *FakeAdapter) MaxConcurrent() int {
	return int(atomic.LoadInt32(&f.maxSeen))
}

// FakeStructuredAdapter answers ExecuteStructured with a fixed reply.
type FakeStructuredAdapter struct {
	*FakeAdapter
	Reply      common.Result
	LastPrompt string
}

func (f *FakeStructuredAdapter) ExecuteStructured(ctx context.Context, prompt, schemaName string, schema interface{}) common.Result {
	f.LastPrompt = prompt
	return f.Reply
}

// Success builds a successful result with token and cost figures filled in.
func Success(model, content string) common.Result {
	return common.Result{
		Success:        true,
		Content:        content,
		Sources:        common.ExtractSources(content),
		ModelUsed:      model,
		Tokens:         30,
		InputTokens:    10,
		OutputTokens:   20,
		CostUSD:        0.001,
		ResponseTimeMS: 100,
	}
}

// Transient builds a retryable failure.
func Transient(model, msg string) common.Result {
	return common.Failure(model, common.ErrorTransient, 50, "%s", msg)
}
