package perplexity_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/senso-visibility/internal/providers/common"
	"github.com/AI-Template-SDK/senso-visibility/internal/providers/perplexity"
)

func TestExecuteQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer pplx-key", r.Header.Get("Authorization"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sonar", req["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "sonar",
			"choices": [{"message": {"role": "assistant", "content": "Quipu [1] and Holded [2]. More at https://example.org/guide"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 20},
			"citations": ["https://getquipu.com", "https://holded.com"],
			"search_results": [
				{"title": "Quipu", "url": "https://getquipu.com"},
				{"title": "Holded", "url": "https://holded.com"}
			]
		}`))
	}))
	defer srv.Close()

	a := perplexity.New(perplexity.Options{
		APIKey:  "pplx-key",
		Model:   "sonar",
		BaseURL: srv.URL,
		Pricing: common.Pricing{InputPer1M: 1, OutputPer1M: 1},
	})
	res := a.ExecuteQuery(context.Background(), "best invoicing app")

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "perplexity", a.Name())
	assert.Equal(t, 30, res.Tokens)
	assert.InDelta(t, 30.0/1_000_000, res.CostUSD, 1e-12)
	require.Len(t, res.Sources, 3)
	assert.Equal(t, "https://getquipu.com", res.Sources[0].URL)
	assert.Equal(t, "Quipu", res.Sources[0].Title)
	assert.Equal(t, "https://example.org/guide", res.Sources[2].URL)
}

func TestExecuteQueryCitationsOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "answer"}}],
			"citations": ["https://a.example", ""]}`))
	}))
	defer srv.Close()

	res := perplexity.New(perplexity.Options{APIKey: "k", Model: "sonar", BaseURL: srv.URL}).
		ExecuteQuery(context.Background(), "12345678")

	require.True(t, res.Success, res.Error)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "https://a.example", res.Sources[0].URL)
	assert.Equal(t, 2, res.InputTokens)
	assert.Equal(t, "sonar", res.ModelUsed)
}

func TestExecuteQueryErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   common.ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"auth"}}`, common.ErrorPermanent},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, common.ErrorTransient},
		{"no choices", http.StatusOK, `{"choices": []}`, common.ErrorTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			res := perplexity.New(perplexity.Options{APIKey: "k", Model: "sonar", BaseURL: srv.URL}).
				ExecuteQuery(context.Background(), "q")

			assert.False(t, res.Success)
			assert.Equal(t, tt.kind, res.ErrorKind)
			assert.NotEmpty(t, res.Error)
			assert.Equal(t, 1, calls)
		})
	}
}
