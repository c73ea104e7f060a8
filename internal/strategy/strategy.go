// Package strategy implements the provider strategies: per-model-family
// request shaping, response parsing, and streaming-event parsing, selected
// by the model router and invoked by the provider clients.
package strategy

import (
	"gateway/internal/domain"
)

// Family identifies one provider-strategy variant, keyed by model-id prefix
// grouped by provider family.
type Family string

const (
	FamilyOpenAIChat Family = "openai-chat"
	FamilyAnthropic  Family = "anthropic"
	FamilyTitan      Family = "titan"
)

// StreamState is the small state machine behind streaming translation: it
// tracks, per choice index, whether the role-carrying first chunk has been
// emitted and whether the terminal finish-reason chunk has been emitted.
// toolArgsBuf is a string scratch map the Anthropic strategy uses to carry
// tool_use block ids, the stop reason and the output token count between
// events. Tool-call argument fragments are not accumulated: each one is
// emitted in its own chunk as it arrives.
type StreamState struct {
	ID           string
	Model        string
	started      map[int]bool
	finished     map[int]bool
	toolArgsBuf  map[string]string
	promptTokens int
}

// NewStreamState creates a state for a new streaming response. id is the
// canonical response id shared by every chunk of the stream.
func NewStreamState(id, model string) *StreamState {
	return &StreamState{
		ID:          id,
		Model:       model,
		started:     map[int]bool{},
		finished:    map[int]bool{},
		toolArgsBuf: map[string]string{},
	}
}

func (s *StreamState) roleChunkIfNeeded(index int) *domain.Chunk {
	if s.started[index] {
		return nil
	}
	s.started[index] = true
	return &domain.Chunk{
		ID:          s.ID,
		CreatedUnix: domain.Now(),
		Model:       s.Model,
		Choices:     []domain.ChunkChoice{{Index: index, Delta: domain.Delta{Role: domain.RoleAssistant}}},
	}
}

// Strategy is the per-model-family capability set: shape a request, parse a
// response, parse a stream event.
type Strategy interface {
	Family() Family

	// ShapeRequest renders a canonical ChatRequest as the provider-native
	// wire request body.
	ShapeRequest(req domain.ChatRequest) ([]byte, error)

	// ParseResponse decodes a provider-native non-streaming response body
	// into the canonical ChatResponse.
	ParseResponse(raw []byte, req domain.ChatRequest) (domain.ChatResponse, error)

	// ParseStreamEvent decodes one provider-native stream event into zero
	// or more canonical chunks, advancing state.
	ParseStreamEvent(raw []byte, state *StreamState) ([]domain.Chunk, error)
}

// For resolves the Strategy registered for a Family. Adding a family means
// adding a case here plus a routing-prefix rule.
func For(f Family) (Strategy, bool) {
	switch f {
	case FamilyOpenAIChat:
		return openAIStrategy{}, true
	case FamilyAnthropic:
		return anthropicStrategy{}, true
	case FamilyTitan:
		return titanStrategy{}, true
	default:
		return nil, false
	}
}
