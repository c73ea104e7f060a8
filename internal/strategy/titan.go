package strategy

import (
	"encoding/json"

	"gateway/internal/dialect"
	"gateway/internal/domain"
	"gateway/internal/gatewayerr"
)

type titanStrategy struct{}

func (titanStrategy) Family() Family { return FamilyTitan }

func (titanStrategy) ShapeRequest(req domain.ChatRequest) ([]byte, error) {
	return dialect.EncodeTitanRequest(req), nil
}

func (titanStrategy) ParseResponse(raw []byte, req domain.ChatRequest) (domain.ChatResponse, error) {
	return dialect.DecodeTitanResponse(raw, req.Model, req.RequestID)
}

// titanStreamEvent mirrors one frame of Bedrock's Titan
// InvokeModelWithResponseStream output: a partial outputText fragment, with
// completionReason populated only on the terminal frame.
type titanStreamEvent struct {
	OutputText                string `json:"outputText"`
	CompletionReason          string `json:"completionReason,omitempty"`
	TotalOutputTextTokenCount int    `json:"totalOutputTextTokenCount,omitempty"`
	InputTextTokenCount       int    `json:"inputTextTokenCount,omitempty"`
}

func (titanStrategy) ParseStreamEvent(raw []byte, state *StreamState) ([]domain.Chunk, error) {
	var ev titanStreamEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindUpstream, "malformed titan stream event", err)
	}
	const choiceIndex = 0
	var out []domain.Chunk
	if role := state.roleChunkIfNeeded(choiceIndex); role != nil {
		out = append(out, *role)
	}
	if ev.InputTextTokenCount > 0 {
		state.promptTokens = ev.InputTextTokenCount
	}
	if ev.CompletionReason == "" {
		out = append(out, domain.Chunk{
			ID: state.ID, CreatedUnix: domain.Now(), Model: state.Model,
			Choices: []domain.ChunkChoice{{Index: choiceIndex, Delta: domain.Delta{Content: ev.OutputText}}},
		})
		return out, nil
	}
	if state.finished[choiceIndex] {
		return out, nil
	}
	state.finished[choiceIndex] = true
	// Trailing text on the terminal frame is emitted as its own content
	// chunk so the finish-reason chunk carries no delta content.
	if ev.OutputText != "" {
		out = append(out, domain.Chunk{
			ID: state.ID, CreatedUnix: domain.Now(), Model: state.Model,
			Choices: []domain.ChunkChoice{{Index: choiceIndex, Delta: domain.Delta{Content: ev.OutputText}}},
		})
	}
	fr := dialect.MapTitanCompletionReason(ev.CompletionReason)
	out = append(out, domain.Chunk{
		ID: state.ID, CreatedUnix: domain.Now(), Model: state.Model,
		Choices: []domain.ChunkChoice{{Index: choiceIndex, FinishReason: &fr}},
		Usage: &domain.Usage{
			PromptTokens:     state.promptTokens,
			CompletionTokens: ev.TotalOutputTextTokenCount,
			TotalTokens:      state.promptTokens + ev.TotalOutputTextTokenCount,
		},
	})
	return out, nil
}
