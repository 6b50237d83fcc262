package sentiment_test

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/AI-Template-SDK/senso-visibility/internal/providers/common"
	"github.com/AI-Template-SDK/senso-visibility/internal/testutil"
	"github.com/AI-Template-SDK/senso-visibility/internal/sentiment"
)

func structured(reply common.Result) *testutil.FakeStructuredAdapter {
	return &testutil.FakeStructuredAdapter{
		FakeAdapter: testutil.NewFakeAdapter("google", ""),
		Reply:       reply,
	}
}

func TestClassifyEmptyContexts(t *testing.T) {
	got := sentiment.NewClassifier(nil).Classify(context.Background(), nil, "Quipu")
	assert.Equal(t, sentiment.Neutral(), got)
	assert.Equal(t, "none", got.Method)
}

func TestClassifyUsesLLM(t *testing.T) {
	fake := structured(testutil.Success("gemini", "Sure! {\"sentiment\": \"Positive\", \"score\": 0.82} hope that helps"))
	c := sentiment.NewClassifier(fake)

	got := c.Classify(context.Background(), []string{"Quipu is great", "Quipu rocks"}, "Quipu")

	assert.Equal(t, "positive", got.Sentiment)
	assert.InDelta(t, 0.82, got.Score, 1e-9)
	assert.Equal(t, sentiment.MethodLLM, got.Method)
	assert.Contains(t, fake.LastPrompt, "Quipu is great ... Quipu rocks")
	assert.Contains(t, fake.LastPrompt, `"Quipu"`)
}

func TestClassifyClipsPromptContext(t *testing.T) {
	fake := structured(testutil.Success("gemini", `{"sentiment":"neutral","score":0.5}`))
	long := strings.Repeat("é", 800)

	sentiment.NewClassifier(fake).Classify(context.Background(), []string{long}, "Quipu")

	assert.True(t, utf8.ValidString(fake.LastPrompt))
	assert.NotContains(t, fake.LastPrompt, strings.Repeat("é", 501))
	assert.Contains(t, fake.LastPrompt, strings.Repeat("é", 500))
}

func TestClassifyFallsBack(t *testing.T) {
	tests := []struct {
		name  string
		reply common.Result
	}{
		{"provider failure", testutil.Transient("gemini", "503")},
		{"no json", testutil.Success("gemini", "I think it is positive")},
		{"bad label", testutil.Success("gemini", `{"sentiment":"ecstatic","score":0.9}`)},
		{"malformed", testutil.Success("gemini", `{"sentiment": 1}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sentiment.NewClassifier(structured(tt.reply)).
				Classify(context.Background(), []string{"Quipu is the best and most reliable tool"}, "Quipu")
			assert.Equal(t, sentiment.MethodKeywords, got.Method)
			assert.Equal(t, "positive", got.Sentiment)
			assert.InDelta(t, 0.6, got.Score, 1e-9)
		})
	}
}

func TestClassifyLLMScoreClamped(t *testing.T) {
	got := sentiment.NewClassifier(structured(testutil.Success("gemini", `{"sentiment":"negative","score":-3}`))).
		Classify(context.Background(), []string{"x"}, "Quipu")
	assert.Equal(t, "negative", got.Sentiment)
	assert.Equal(t, 0.0, got.Score)
}

func TestClassifyKeywords(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		label string
		score float64
	}{
		{"neutral", "Quipu is an invoicing tool", "neutral", 0.5},
		{"positive", "the best and most reliable", "positive", 0.6},
		{"negative spanish accents", "Es caro, lento y difícil", "negative", 0.35},
		{"balanced", "great but expensive", "neutral", 0.5},
		{"clamped high", strings.Repeat("best ", 20), "positive", 0.95},
		{"clamped low", strings.Repeat("worst ", 20), "negative", 0.05},
		{"no substring hits", "bestseller toppings", "neutral", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sentiment.ClassifyKeywords(tt.text)
			assert.Equal(t, tt.label, got.Sentiment)
			assert.InDelta(t, tt.score, got.Score, 1e-9)
			assert.Equal(t, sentiment.MethodKeywords, got.Method)
		})
	}
}
