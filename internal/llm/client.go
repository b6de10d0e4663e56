// Package llm wraps text-completion providers behind a single contract:
// a rendered prompt goes in, free text comes out.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// EmbeddingDimensions is the vector size stored in query_history.embedding.
const EmbeddingDimensions = 384

// Client is the completion service used by the translator, chart selector
// and insights narrator.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Request is a single completion call
type Request struct {
	// Operation names the caller for metrics and logs (translate, chart_select, insights)
	Operation   string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	// JSON asks the provider for a single JSON object answer
	JSON bool
	// Model overrides the client's default model when set
	Model string
}

// Response is the provider's answer
type Response struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// Usage reports token accounting when the provider returns it
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Config holds configuration for LLM clients
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

// APIError is a non-2xx answer from a provider
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Sprintf("%s: invalid API key: %s", e.Provider, e.Message)
	case http.StatusTooManyRequests:
		return fmt.Sprintf("%s: rate limit exceeded: %s", e.Provider, e.Message)
	case http.StatusBadRequest:
		return fmt.Sprintf("%s: bad request: %s", e.Provider, e.Message)
	default:
		return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Message)
	}
}

// Retryable reports whether the status is worth another attempt
func (e *APIError) Retryable() bool {
	return isHTTPStatusRetryable(e.StatusCode)
}

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)\\n?```")

// StripCodeFences returns the body of the first fenced block in text, or the
// trimmed text when there is none. An unterminated opening fence is dropped.
func StripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(trimmed); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
			trimmed = trimmed[nl+1:]
		}
	}
	return strings.TrimSpace(trimmed)
}

// ClipPrompt shortens s to at most n characters without splitting a rune
func ClipPrompt(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// New builds the provider client named in cfg
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case "claude":
		client, err := NewClaudeClient(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		if cfg.BaseURL != "" {
			client.baseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
