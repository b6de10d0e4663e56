package llm

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanankenbruck/transactions-ai/internal/observability"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "SELECT 1", "SELECT 1"},
		{"sql fence", "```sql\nSELECT * FROM t LIMIT 5;\n```", "SELECT * FROM t LIMIT 5;"},
		{"bare fence", "```\nSELECT 1\n```", "SELECT 1"},
		{"prose around fence", "Here you go:\n```sql\nSELECT 2\n```\nEnjoy", "SELECT 2"},
		{"unterminated fence", "```sql\nSELECT 3", "SELECT 3"},
		{"json fence", "```json\n{\"a\":1}\n```", "{\"a\":1}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.input))
		})
	}
}

func TestClipPrompt(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{"short", "abc", 5, "abc"},
		{"exact", "abc", 3, "abc"},
		{"ascii cut", "abcdef", 4, "abcd"},
		{"cyrillic cut", "Алматы", 3, "Алм"},
		{"mixed", `{"city":"Астана"}`, 11, `{"city":"Ас`},
		{"zero", "abc", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClipPrompt(tt.input, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestOpenAIClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body.Model)
		assert.Equal(t, 0.3, body.Temperature)
		assert.Equal(t, 200, body.MaxTokens)
		assert.Equal(t, "json_object", body.ResponseFormat["type"])
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"message":{"role":"assistant","content":"{\"primary_chart_type\":\"bar\"}"}}],"usage":{"prompt_tokens":12,"completion_tokens":5}}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient("sk-test", "", server.URL)
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), Request{
		System:      "expert",
		Prompt:      "pick a chart",
		Temperature: 0.3,
		MaxTokens:   200,
		JSON:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"primary_chart_type":"bar"}`, resp.Text)
	assert.Equal(t, 12, resp.Usage.InputTokens)
}

func TestOpenAIClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient("sk-test", "gpt-4o-mini", server.URL)
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit exceeded: slow down")
	assert.True(t, isRetryableError(err))
}

func TestOpenAIClient_GetEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		var body embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, EmbeddingDimensions, body.Dimensions)
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2]}]}`))
	}))
	defer server.Close()

	client, _ := NewOpenAIClient("sk-test", "", server.URL)
	vec, err := client.GetEmbedding(context.Background(), "total by bank")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(" ", "", "")
	assert.Error(t, err)
}

func TestClaudeClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("x-api-key"))
		assert.Equal(t, ClaudeVersion, r.Header.Get("anthropic-version"))

		var body ClaudeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body.System, "single JSON object")
		assert.Equal(t, 300, body.MaxTokens)

		_, _ = w.Write([]byte(`{"id":"msg_1","content":[{"type":"text","text":"{\"summary\":"},{"type":"text","text":"\"ok\"}"}],"model":"claude-3-haiku-20240307","usage":{"input_tokens":3,"output_tokens":4}}`))
	}))
	defer server.Close()

	client, err := NewClaudeClient("sk-ant", "")
	require.NoError(t, err)
	client.baseURL = server.URL

	resp, err := client.Complete(context.Background(), Request{Prompt: "narrate", JSON: true, MaxTokens: 300})
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok"}`, resp.Text)
	assert.Equal(t, 4, resp.Usage.OutputTokens)
}

func TestClaudeClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"type":"authentication_error","message":"bad key"}}`))
	}))
	defer server.Close()

	client, _ := NewClaudeClient("sk-ant", "")
	client.baseURL = server.URL

	_, err := client.Complete(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid API key: bad key")
	assert.False(t, isRetryableError(err))
}

func TestKeywordEmbedding(t *testing.T) {
	a := keywordEmbedding("total amount by bank last month")
	b := keywordEmbedding("total amount by bank last month")
	c := keywordEmbedding("")

	assert.Len(t, a, EmbeddingDimensions)
	assert.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v * v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-3)
	assert.Len(t, c, EmbeddingDimensions)
}

func TestNew(t *testing.T) {
	client, err := New(Config{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, client)

	client, err = New(Config{Provider: "claude", APIKey: "k", BaseURL: "http://gateway/"})
	require.NoError(t, err)
	assert.Equal(t, "http://gateway", client.(*ClaudeClient).baseURL)

	_, err = New(Config{Provider: "palm", APIKey: "k"})
	assert.Error(t, err)
}

func TestInstrumentedClient(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("Complete", testContext, testRequest).Return(&Response{Text: "ok"}, nil)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	client := NewInstrumentedClient(mockClient, metrics, nil)

	resp, err := client.Complete(testContext, testRequest)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	mockClient.AssertExpectations(t)
}

var testContext = context.Background()
