// Package llmtest provides a testify mock of llm.Client for other packages' tests.
package llmtest

import (
	"context"

	"github.com/seanankenbruck/transactions-ai/internal/llm"
	"github.com/stretchr/testify/mock"
)

// MockClient is a mock implementation of llm.Client
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Response), args.Error(1)
}

func (m *MockClient) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// Text is a shorthand for a successful completion answer
func Text(s string) *llm.Response {
	return &llm.Response{Text: s, Model: "mock"}
}

// ForOperation matches requests issued by the named pipeline step
func ForOperation(op string) interface{} {
	return mock.MatchedBy(func(req llm.Request) bool { return req.Operation == op })
}
