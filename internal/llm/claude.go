package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	ClaudeAPIBaseURL = "https://api.anthropic.com/v1"
	ClaudeVersion    = "2023-06-01"
	defaultMaxTokens = 1000
)

// ClaudeClient implements the Client interface using Anthropic's Messages API
type ClaudeClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// ClaudeRequest is the Messages API request body
type ClaudeRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ClaudeResponse is the Messages API response body
type ClaudeResponse struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
	Model   string         `json:"model"`
	Usage   Usage          `json:"usage"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ClaudeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ClaudeErrorResponse struct {
	Error ClaudeError `json:"error"`
}

// NewClaudeClient creates a new Claude client
func NewClaudeClient(apiKey, model string) (*ClaudeClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		model = "claude-3-haiku-20240307"
	}

	return &ClaudeClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: ClaudeAPIBaseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Complete sends one prompt to Claude and returns the concatenated text blocks
func (c *ClaudeClient) Complete(ctx context.Context, req Request) (*Response, error) {
	model := c.model
	if req.Model != "" && strings.HasPrefix(req.Model, "claude") {
		model = req.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	system := req.System
	if req.JSON {
		// Messages API has no JSON mode; ask for it in the system prompt.
		system = strings.TrimSpace(system + "\nRespond with a single JSON object and nothing else.")
	}

	response, err := c.sendClaudeRequest(ctx, ClaudeRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		System:      system,
		Messages:    []Message{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send request to Claude: %w", err)
	}

	var sb strings.Builder
	for _, block := range response.Content {
		if block.Type == "" || block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return &Response{
		Text:  sb.String(),
		Model: response.Model,
		Usage: response.Usage,
	}, nil
}

// GetEmbedding returns a keyword feature vector. Anthropic has no embedding
// endpoint, so similarity over these vectors is coarse.
func (c *ClaudeClient) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	return keywordEmbedding(text), nil
}

func (c *ClaudeClient) sendClaudeRequest(ctx context.Context, request ClaudeRequest) (*ClaudeResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", ClaudeVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleAPIError(resp.StatusCode, body)
	}

	var claudeResponse ClaudeResponse
	if err := json.Unmarshal(body, &claudeResponse); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &claudeResponse, nil
}

func (c *ClaudeClient) handleAPIError(statusCode int, body []byte) error {
	message := string(body)
	var errorResponse ClaudeErrorResponse
	if err := json.Unmarshal(body, &errorResponse); err == nil && errorResponse.Error.Message != "" {
		message = errorResponse.Error.Message
	}
	return &APIError{Provider: "claude", StatusCode: statusCode, Message: message}
}

// embeddingVocabulary holds domain words that get their own dimension
var embeddingVocabulary = []string{
	"transaction", "amount", "total", "sum", "average", "avg", "count", "max", "min",
	"bank", "issuer", "merchant", "mcc", "category", "city", "country", "currency",
	"card", "wallet", "pos", "type", "purchase", "refund", "withdrawal", "transfer",
	"day", "week", "month", "year", "today", "yesterday", "last", "trend", "over time",
	"top", "largest", "smallest", "most", "least", "by", "per", "group", "share",
	"percentage", "distribution", "compare", "kzt", "usd", "eur",
	"банк", "сумма", "месяц", "неделя", "день", "город", "мерчант", "транзакции",
	"средн", "количеств", "топ", "категори", "валют", "последн",
}

// keywordEmbedding builds a normalized vector from character frequencies,
// vocabulary hits and a few shape features.
func keywordEmbedding(text string) []float32 {
	embedding := make([]float32, EmbeddingDimensions)
	text = strings.ToLower(text)
	runes := []rune(text)
	if len(runes) == 0 {
		return embedding
	}

	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789 "
	counts := make(map[rune]int)
	for _, r := range runes {
		counts[r]++
	}
	for i, r := range alphabet {
		embedding[i] = float32(counts[r]) / float32(len(runes))
	}

	offset := len(alphabet)
	for i, word := range embeddingVocabulary {
		if strings.Contains(text, word) {
			embedding[offset+i] = 1
		}
	}

	shape := offset + len(embeddingVocabulary)
	embedding[shape] = float32(len(runes)) / 1000
	embedding[shape+1] = float32(strings.Count(text, " ")) / float32(len(runes))
	embedding[shape+2] = float32(strings.Count(text, "?"))

	var sumSquares float64
	for _, v := range embedding {
		sumSquares += float64(v * v)
	}
	if sumSquares > 0 {
		norm := float32(1 / math.Sqrt(sumSquares))
		for i := range embedding {
			embedding[i] *= norm
		}
	}
	return embedding
}
