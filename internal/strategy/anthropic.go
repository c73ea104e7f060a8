package strategy

import (
	"encoding/json"

	"gateway/internal/dialect"
	"gateway/internal/domain"
	"gateway/internal/gatewayerr"
)

type anthropicStrategy struct{}

func (anthropicStrategy) Family() Family { return FamilyAnthropic }

func (anthropicStrategy) ShapeRequest(req domain.ChatRequest) ([]byte, error) {
	return dialect.EncodeAnthropicRequest(req), nil
}

func (anthropicStrategy) ParseResponse(raw []byte, req domain.ChatRequest) (domain.ChatResponse, error) {
	return dialect.DecodeAnthropicResponse(raw, req.Model)
}

// anthropicStreamEvent mirrors the subset of Bedrock's Anthropic streaming
// event shapes this strategy needs to track.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta struct {
		Type        string `json:"type,omitempty"`
		Text        string `json:"text,omitempty"`
		PartialJSON string `json:"partial_json,omitempty"`
		StopReason  string `json:"stop_reason,omitempty"`
	} `json:"delta,omitempty"`
	ContentBlock struct {
		Type string `json:"type,omitempty"`
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"content_block,omitempty"`
	Message struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message,omitempty"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage,omitempty"`
}

func (anthropicStrategy) ParseStreamEvent(raw []byte, state *StreamState) ([]domain.Chunk, error) {
	var ev anthropicStreamEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindUpstream, "malformed anthropic stream event", err)
	}
	const choiceIndex = 0
	var out []domain.Chunk
	switch ev.Type {
	case "message_start":
		state.promptTokens = ev.Message.Usage.InputTokens
		if role := state.roleChunkIfNeeded(choiceIndex); role != nil {
			out = append(out, *role)
		}
	case "content_block_start":
		if ev.ContentBlock.Type == "tool_use" {
			state.toolArgsBuf[ev.ContentBlock.ID] = ""
		}
	case "content_block_delta":
		if role := state.roleChunkIfNeeded(choiceIndex); role != nil {
			out = append(out, *role)
		}
		switch ev.Delta.Type {
		case "text_delta":
			out = append(out, domain.Chunk{
				ID: state.ID, CreatedUnix: domain.Now(), Model: state.Model,
				Choices: []domain.ChunkChoice{{Index: choiceIndex, Delta: domain.Delta{Content: ev.Delta.Text}}},
			})
		case "input_json_delta":
			out = append(out, domain.Chunk{
				ID: state.ID, CreatedUnix: domain.Now(), Model: state.Model,
				Choices: []domain.ChunkChoice{{Index: choiceIndex, Delta: domain.Delta{
					ToolCalls: []domain.ToolCall{{ArgumentsJSON: ev.Delta.PartialJSON}},
				}}},
			})
		}
	case "message_delta":
		// carries stop_reason and cumulative output token usage; final
		// chunk is emitted on the subsequent message_stop event.
		state.toolArgsBuf["__stop_reason__"] = ev.Delta.StopReason
		state.toolArgsBuf["__output_tokens__"] = itoa(ev.Usage.OutputTokens)
	case "message_stop":
		if state.finished[choiceIndex] {
			break
		}
		state.finished[choiceIndex] = true
		fr := dialect.MapAnthropicStopReason(state.toolArgsBuf["__stop_reason__"])
		outputTokens := atoi(state.toolArgsBuf["__output_tokens__"])
		out = append(out, domain.Chunk{
			ID: state.ID, CreatedUnix: domain.Now(), Model: state.Model,
			Choices: []domain.ChunkChoice{{Index: choiceIndex, FinishReason: &fr}},
			Usage: &domain.Usage{
				PromptTokens:     state.promptTokens,
				CompletionTokens: outputTokens,
				TotalTokens:      state.promptTokens + outputTokens,
			},
		})
	}
	return out, nil
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func atoi(s string) int {
	var n int
	_ = json.Unmarshal([]byte(s), &n)
	return n
}
