package strategy

import (
	"encoding/json"

	"gateway/internal/dialect"
	"gateway/internal/domain"
	"gateway/internal/gatewayerr"
)

type openAIStrategy struct{}

func (openAIStrategy) Family() Family { return FamilyOpenAIChat }

func (openAIStrategy) ShapeRequest(req domain.ChatRequest) ([]byte, error) {
	return dialect.EncodeOpenAIRequest(req), nil
}

func (openAIStrategy) ParseResponse(raw []byte, req domain.ChatRequest) (domain.ChatResponse, error) {
	return dialect.DecodeOpenAIResponse(raw)
}

// openAIStreamChunk is the provider-native SSE chunk JSON shape (mirrors
// the OpenAI chat.completion.chunk body).
type openAIStreamChunk struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role      string `json:"role,omitempty"`
			Content   string `json:"content,omitempty"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id,omitempty"`
				Function struct {
					Name      string `json:"name,omitempty"`
					Arguments string `json:"arguments,omitempty"`
				} `json:"function"`
			} `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

func (openAIStrategy) ParseStreamEvent(raw []byte, state *StreamState) ([]domain.Chunk, error) {
	var ev openAIStreamChunk
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindUpstream, "malformed openai stream event", err)
	}
	var out []domain.Chunk
	for _, c := range ev.Choices {
		if role := state.roleChunkIfNeeded(c.Index); role != nil {
			out = append(out, *role)
		}
		delta := domain.Delta{Content: c.Delta.Content}
		for _, tc := range c.Delta.ToolCalls {
			delta.ToolCalls = append(delta.ToolCalls, domain.ToolCall{ID: tc.ID, Name: tc.Function.Name, ArgumentsJSON: tc.Function.Arguments})
		}
		chunk := domain.Chunk{ID: state.ID, CreatedUnix: domain.Now(), Model: state.Model}
		cc := domain.ChunkChoice{Index: c.Index, Delta: delta}
		if c.FinishReason != nil && !state.finished[c.Index] {
			state.finished[c.Index] = true
			fr := dialect.MapOpenAIFinishReason(*c.FinishReason)
			cc.FinishReason = &fr
		}
		chunk.Choices = []domain.ChunkChoice{cc}
		if ev.Usage != nil {
			chunk.Usage = &domain.Usage{PromptTokens: ev.Usage.PromptTokens, CompletionTokens: ev.Usage.CompletionTokens, TotalTokens: ev.Usage.TotalTokens}
		}
		out = append(out, chunk)
	}
	return out, nil
}
