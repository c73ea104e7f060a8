package dialect

import (
	"encoding/json"
	"strings"

	"gateway/internal/domain"
	"gateway/internal/gatewayerr"
)

// Titan has no message/role concept at all: every request is a single
// `inputText` prompt string, and every response is a single `outputText`.

type titanTextGenConfig struct {
	MaxTokenCount *int32   `json:"maxTokenCount,omitempty"`
	Temperature   *float32 `json:"temperature,omitempty"`
	TopP          *float32 `json:"topP,omitempty"`
	StopSequences []string `json:"stopSequences,omitempty"`
}

type titanRequest struct {
	InputText            string             `json:"inputText"`
	Model                string             `json:"model,omitempty"`
	TextGenerationConfig titanTextGenConfig `json:"textGenerationConfig,omitzero"`
}

type titanResult struct {
	TokenCount       int    `json:"tokenCount"`
	OutputText       string `json:"outputText"`
	CompletionReason string `json:"completionReason"`
}

type titanResponse struct {
	InputTextTokenCount int           `json:"inputTextTokenCount"`
	Results             []titanResult `json:"results"`
}

// MapTitanCompletionReason translates Titan's completionReason into the
// canonical FinishReason. Titan never distinguishes tool calls.
func MapTitanCompletionReason(reason string) domain.FinishReason {
	switch reason {
	case "FINISH":
		return domain.FinishStop
	case "LENGTH":
		return domain.FinishLength
	case "CONTENT_FILTERED":
		return domain.FinishContentFilter
	default:
		return domain.FinishError
	}
}

func finishReasonToCompletionReason(fr domain.FinishReason) string {
	switch fr {
	case domain.FinishStop:
		return "FINISH"
	case domain.FinishLength:
		return "LENGTH"
	case domain.FinishContentFilter:
		return "CONTENT_FILTERED"
	default:
		return "ERROR"
	}
}

// DecodeTitanRequest parses a raw Bedrock-Titan-shaped JSON body into the
// canonical ChatRequest. Since Titan has no message structure, the whole
// inputText becomes a single user message.
func DecodeTitanRequest(raw []byte) (domain.ChatRequest, error) {
	var req titanRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return domain.ChatRequest{}, gatewayerr.Validation("malformed titan request body: %v", err)
	}
	if strings.TrimSpace(req.InputText) == "" {
		return domain.ChatRequest{}, gatewayerr.Validation("inputText must not be empty")
	}
	out := domain.ChatRequest{
		Model:         req.Model,
		Temperature:   req.TextGenerationConfig.Temperature,
		TopP:          req.TextGenerationConfig.TopP,
		MaxTokens:     req.TextGenerationConfig.MaxTokenCount,
		StopSequences: req.TextGenerationConfig.StopSequences,
		Messages:      []domain.Message{{Role: domain.RoleUser, Text: req.InputText}},
	}
	return out, nil
}

// EncodeTitanRequest flattens a canonical ChatRequest into the Titan wire
// shape: messages serialized with `User: `/`Bot:` prefixes,
// a trailing `Bot:` cue, and any system content prepended as a preamble.
func EncodeTitanRequest(req domain.ChatRequest) []byte {
	var b strings.Builder
	messages := req.Messages
	if len(messages) > 0 && messages[0].Role == domain.RoleSystem {
		b.WriteString(messages[0].PlainText())
		b.WriteString("\n\n")
		messages = messages[1:]
	}
	for _, m := range messages {
		switch m.Role {
		case domain.RoleUser:
			b.WriteString("User: ")
			b.WriteString(m.PlainText())
			b.WriteString("\n")
		case domain.RoleAssistant:
			b.WriteString("Bot: ")
			b.WriteString(m.PlainText())
			b.WriteString("\n")
		default:
			b.WriteString(m.PlainText())
			b.WriteString("\n")
		}
	}
	b.WriteString("Bot:")

	out := titanRequest{InputText: b.String(), Model: req.Model}
	if req.MaxTokens != nil || req.Temperature != nil || req.TopP != nil || len(req.StopSequences) > 0 {
		out.TextGenerationConfig = titanTextGenConfig{
			MaxTokenCount: req.MaxTokens,
			Temperature:   req.Temperature,
			TopP:          req.TopP,
			StopSequences: req.StopSequences,
		}
	}
	wire, _ := json.Marshal(out)
	return wire
}

// DecodeTitanResponse parses a Bedrock Titan invoke-model response body into
// the canonical ChatResponse.
func DecodeTitanResponse(raw []byte, model string, requestID string) (domain.ChatResponse, error) {
	var resp titanResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.ChatResponse{}, gatewayerr.Wrap(gatewayerr.KindUpstream, "malformed titan response", err)
	}
	if len(resp.Results) == 0 {
		return domain.ChatResponse{}, gatewayerr.New(gatewayerr.KindUpstream, "titan response had no results")
	}
	r := resp.Results[0]
	return domain.ChatResponse{
		ID:          requestID,
		CreatedUnix: domain.Now(),
		Model:       model,
		Choices: []domain.Choice{{
			Index:        0,
			Message:      domain.Message{Role: domain.RoleAssistant, Text: r.OutputText},
			FinishReason: MapTitanCompletionReason(r.CompletionReason),
		}},
		Usage: &domain.Usage{
			PromptTokens:     resp.InputTextTokenCount,
			CompletionTokens: r.TokenCount,
			TotalTokens:      resp.InputTextTokenCount + r.TokenCount,
		},
	}, nil
}

// EncodeTitanResponse renders a canonical ChatResponse in the Titan
// response shape (used when target_format=bedrock_titan regardless of which
// provider actually served the request).
func EncodeTitanResponse(resp domain.ChatResponse) []byte {
	out := titanResponse{}
	if resp.Usage != nil {
		out.InputTextTokenCount = resp.Usage.PromptTokens
	}
	for _, c := range resp.Choices {
		out.Results = append(out.Results, titanResult{
			TokenCount:       completionTokensOf(resp),
			OutputText:       c.Message.PlainText(),
			CompletionReason: finishReasonToCompletionReason(c.FinishReason),
		})
	}
	b, _ := json.Marshal(out)
	return b
}

func completionTokensOf(resp domain.ChatResponse) int {
	if resp.Usage == nil {
		return 0
	}
	return resp.Usage.CompletionTokens
}

type titanChunkWire struct {
	OutputText       string `json:"outputText"`
	CompletionReason string `json:"completionReason,omitempty"`
}

// EncodeTitanChunk renders a canonical Chunk as a Titan-shaped streaming
// frame.
func EncodeTitanChunk(c domain.Chunk) []byte {
	if len(c.Choices) == 0 {
		b, _ := json.Marshal(titanChunkWire{})
		return b
	}
	cc := c.Choices[0]
	wire := titanChunkWire{OutputText: cc.Delta.Content}
	if cc.FinishReason != nil {
		wire.CompletionReason = finishReasonToCompletionReason(*cc.FinishReason)
	}
	b, _ := json.Marshal(wire)
	return b
}
