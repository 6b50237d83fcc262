package openaicompat_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/senso-visibility/internal/providers/common"
	"github.com/AI-Template-SDK/senso-visibility/internal/providers/openaicompat"
)

func completionServer(t *testing.T, status int, body string, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		raw, _ := io.ReadAll(r.Body)
		var req map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &req))
		assert.Equal(t, "gpt-4o-mini", req["model"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func newAdapter(url string) *openaicompat.Adapter {
	return openaicompat.New(openaicompat.Options{
		Provider: "openai",
		APIKey:   "test-key",
		Model:    "gpt-4o-mini",
		BaseURL:  url + "/",
		Pricing:  common.Pricing{InputPer1M: 1, OutputPer1M: 2},
	})
}

func TestExecuteQuerySuccess(t *testing.T) {
	calls := 0
	srv := completionServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1700000000,
		"model": "gpt-4o-mini-2024-07-18",
		"choices": [{"index": 0, "finish_reason": "stop",
			"message": {"role": "assistant", "content": "1. Quipu (https://getquipu.com)\n2. Holded"}}],
		"usage": {"prompt_tokens": 1000, "completion_tokens": 500, "total_tokens": 1500}
	}`, &calls)
	defer srv.Close()

	res := newAdapter(srv.URL).ExecuteQuery(context.Background(), "best invoicing tools?")

	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, calls)
	assert.Contains(t, res.Content, "Quipu")
	assert.Equal(t, "gpt-4o-mini-2024-07-18", res.ModelUsed)
	assert.Equal(t, 1000, res.InputTokens)
	assert.Equal(t, 500, res.OutputTokens)
	assert.Equal(t, 1500, res.Tokens)
	assert.InDelta(t, 0.001+0.001, res.CostUSD, 1e-12)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "https://getquipu.com", res.Sources[0].URL)
}

func TestExecuteQueryEstimatesMissingUsage(t *testing.T) {
	calls := 0
	srv := completionServer(t, http.StatusOK, `{
		"id": "chatcmpl-2", "object": "chat.completion", "created": 1700000000, "model": "gpt-4o-mini",
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "abcdefghijklmnop"}}]
	}`, &calls)
	defer srv.Close()

	res := newAdapter(srv.URL).ExecuteQuery(context.Background(), "12345678")

	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2, res.InputTokens)
	assert.Equal(t, 4, res.OutputTokens)
}

func TestExecuteQueryFailureIsNotRetried(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   common.ErrorKind
	}{
		{"server error", http.StatusInternalServerError, common.ErrorTransient},
		{"rate limited", http.StatusTooManyRequests, common.ErrorTransient},
		{"bad request", http.StatusBadRequest, common.ErrorPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			srv := completionServer(t, tt.status, `{"error": {"message": "boom", "type": "server_error"}}`, &calls)
			defer srv.Close()

			res := newAdapter(srv.URL).ExecuteQuery(context.Background(), "q")

			assert.False(t, res.Success)
			assert.Empty(t, res.Content)
			assert.NotEmpty(t, res.Error)
			assert.Equal(t, tt.kind, res.ErrorKind)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestHealthUsesTrivialPrompt(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) > 0 {
			prompt = req.Messages[0].Content
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Hello"}}],
			"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer srv.Close()

	res := newAdapter(srv.URL).Health(context.Background())
	assert.True(t, res.Success)
	assert.Equal(t, common.HealthPrompt, prompt)
}
