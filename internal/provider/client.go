// Package provider implements the provider clients: thin, transport-only
// invokers of the OpenAI HTTPS API and AWS Bedrock Runtime. All request and
// response shaping is delegated to a strategy.Strategy; these clients only
// know how to move bytes.
package provider

import (
	"context"

	"gateway/internal/domain"
	"gateway/internal/strategy"
)

// StreamItem is one element of a Client.Stream sequence: either a chunk or
// a terminal error, never both.
type StreamItem struct {
	Chunk domain.Chunk
	Err   error
}

// Client is the uniform interface the orchestrator invokes regardless of
// backend: a one-shot Invoke and a lazily-consumed Stream, both taking the
// canonical request plus the strategy that shapes and parses it.
type Client interface {
	Provider() domain.Provider
	Invoke(ctx context.Context, req domain.ChatRequest, strat strategy.Strategy) (domain.ChatResponse, error)
	Stream(ctx context.Context, req domain.ChatRequest, strat strategy.Strategy) (<-chan StreamItem, error)
}
