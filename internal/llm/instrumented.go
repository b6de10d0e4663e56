package llm

import (
	"context"
	"time"

	"github.com/seanankenbruck/transactions-ai/internal/observability"
)

// InstrumentedClient records latency and outcome of every call
type InstrumentedClient struct {
	client  Client
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewInstrumentedClient wraps client with metrics and debug logging
func NewInstrumentedClient(client Client, metrics *observability.Metrics, logger *observability.Logger) *InstrumentedClient {
	return &InstrumentedClient{client: client, metrics: metrics, logger: logger}
}

// Complete forwards to the wrapped client
func (i *InstrumentedClient) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := i.client.Complete(ctx, req)
	duration := time.Since(start)

	operation := req.Operation
	if operation == "" {
		operation = "complete"
	}
	i.metrics.RecordLLM(operation, duration, err)

	if i.logger != nil {
		fields := map[string]interface{}{
			"operation":   operation,
			"duration_ms": duration.Milliseconds(),
		}
		if resp != nil {
			fields["model"] = resp.Model
			fields["input_tokens"] = resp.Usage.InputTokens
			fields["output_tokens"] = resp.Usage.OutputTokens
		}
		if err != nil {
			i.logger.Warn(ctx, "Completion call failed", mergeErr(fields, err))
		} else {
			i.logger.Debug(ctx, "Completion call finished", fields)
		}
	}
	return resp, err
}

// GetEmbedding forwards to the wrapped client
func (i *InstrumentedClient) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vec, err := i.client.GetEmbedding(ctx, text)
	i.metrics.RecordLLM("embedding", time.Since(start), err)
	return vec, err
}

func mergeErr(fields map[string]interface{}, err error) map[string]interface{} {
	fields["error"] = err.Error()
	return fields
}
