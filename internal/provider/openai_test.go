package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoresumefiller/autofill/internal/config"
	"github.com/autoresumefiller/autofill/internal/model"
	"github.com/autoresumefiller/autofill/pkg/openai"
)

func newOpenAITestAdapter(t *testing.T, handler http.HandlerFunc) *OpenAICompatible {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	pc := config.ProviderConfig{Key: "sk-test", Model: "gpt-4o-mini", DefaultModel: "gpt-4o", BaseURL: srv.URL}
	a, err := newOpenAIFactory("openai", pc, Options{})
	require.NoError(t, err)
	return a.(*OpenAICompatible)
}

func TestOpenAI_Generate(t *testing.T) {
	var got openai.ChatCompletionRequest
	a := newOpenAITestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "I love your product."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 1000, "completion_tokens": 500, "total_tokens": 1500}
		}`))
	})

	ans, err := a.Generate(context.Background(), GenerateRequest{
		System:      "Be concise.",
		Context:     "Job: backend engineer.",
		Prompt:      "Why us?",
		Temperature: 0.7,
	})
	require.NoError(t, err)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "Be concise.\n\nJob: backend engineer.", got.Messages[0].Content)
	assert.Equal(t, "Why us?", got.Messages[1].Content)
	require.NotNil(t, got.MaxTokens)
	assert.Equal(t, 500, *got.MaxTokens)
	assert.Nil(t, got.ResponseFormat)

	assert.Equal(t, "I love your product.", ans.Text)
	assert.Equal(t, "openai", ans.ProviderName)
	assert.Equal(t, 1500, ans.TokensUsed)
	assert.InDelta(t, 0.00045, ans.CostUSD, 1e-9)
}

func TestOpenAI_ExtractUsesJSONMode(t *testing.T) {
	var format *openai.ResponseFormat
	a := newOpenAITestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		format = req.ResponseFormat
		_, _ = w.Write([]byte(`{"model": "gpt-4o-mini", "choices": [{"message": {"content": "{\"title\": \"SRE\"}"}}]}`))
	})

	ext, err := a.Extract(context.Background(), "We need an SRE", postingSchema)
	require.NoError(t, err)
	require.NotNil(t, format)
	assert.Equal(t, "json_object", format.Type)
	assert.Equal(t, "SRE", ext.Data["title"])
}

func TestOpenAI_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   model.ErrorKind
	}{
		{"rate limited", 429, `{"error": {"message": "Rate limit reached", "type": "requests"}}`, model.ErrRateLimited},
		{"bad key", 401, `{"error": {"message": "Incorrect API key", "type": "invalid_request_error", "code": "invalid_api_key"}}`, model.ErrAuthentication},
		{"unknown model", 404, `{"error": {"message": "The model does not exist", "code": "model_not_found"}}`, model.ErrModelUnavailable},
		{"model not found on 400", 400, `{"error": {"message": "The model does not exist", "code": "model_not_found"}}`, model.ErrModelUnavailable},
		{"bad gateway", 502, `upstream error`, model.ErrTimeout},
		{"bad request", 400, `{"error": "malformed"}`, model.ErrProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newOpenAITestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := a.Generate(context.Background(), GenerateRequest{Prompt: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err))
		})
	}
}

func TestOpenAI_RateLimitSlowsLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "slow down"}}`))
	}))
	defer srv.Close()

	pc := config.ProviderConfig{Key: "k", Model: "gpt-4o-mini", BaseURL: srv.URL, RequestsPerSecond: 100}
	a, err := newOpenAIFactory("openai", pc, Options{})
	require.NoError(t, err)
	o := a.(*OpenAICompatible)

	_, err = o.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.InDelta(t, 50, float64(o.limiter.Limit()), 1e-9)
}

func TestOpenAI_ValidateCredentials(t *testing.T) {
	a := newOpenAITestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"data": [{"id": "gpt-4o-mini"}, {"id": "gpt-4o"}]}`))
	})

	ok, err := a.ValidateCredentials(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	models, err := a.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o-mini", "gpt-4o"}, models)
}

func TestPerplexity_StaticModelsAndPingValidation(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.MaxTokens)
		assert.Equal(t, 1, *req.MaxTokens)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "invalid key"}}`))
	}))
	defer srv.Close()

	pc := config.ProviderConfig{Key: "bad", Model: "sonar-pro", BaseURL: srv.URL}
	a, err := newPerplexityFactory("perplexity", pc, Options{})
	require.NoError(t, err)

	models, err := a.ListModels(context.Background())
	require.NoError(t, err)
	assert.Contains(t, models, "sonar-pro")
	assert.Equal(t, int32(0), calls.Load())

	ok, err := a.ValidateCredentials(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(1), calls.Load())
}
