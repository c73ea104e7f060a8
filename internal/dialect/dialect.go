package dialect

import (
	"encoding/json"

	"gateway/internal/domain"
	"gateway/internal/gatewayerr"
)

// DecodeRequest detects the dialect of raw and decodes it into the
// canonical ChatRequest. Every inbound request
// produces exactly one canonical request or a typed error.
func DecodeRequest(raw []byte) (domain.ChatRequest, Dialect, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.ChatRequest{}, Unknown, gatewayerr.Validation("malformed JSON body: %v", err)
	}
	d := Detect(payload)
	switch d {
	case OpenAI:
		req, err := DecodeOpenAIRequest(raw)
		return req, d, err
	case BedrockAnthropic:
		req, err := DecodeAnthropicRequest(raw)
		return req, d, err
	case BedrockTitan:
		req, err := DecodeTitanRequest(raw)
		return req, d, err
	default:
		return domain.ChatRequest{}, Unknown, gatewayerr.Validation("unrecognized request dialect")
	}
}

// EncodeResponse renders a canonical ChatResponse in the wire shape for
// target.
func EncodeResponse(target domain.TargetFormat, resp domain.ChatResponse) []byte {
	switch target {
	case domain.TargetBedrockClaude:
		return EncodeAnthropicResponse(resp)
	case domain.TargetBedrockTitan:
		return EncodeTitanResponse(resp)
	default:
		return EncodeOpenAIResponse(resp)
	}
}

// EncodeChunk renders a canonical Chunk in the wire shape for target, i.e.
// the payload of one `data: ` SSE frame.
func EncodeChunk(target domain.TargetFormat, c domain.Chunk) []byte {
	switch target {
	case domain.TargetBedrockClaude:
		return EncodeAnthropicChunk(c)
	case domain.TargetBedrockTitan:
		return EncodeTitanChunk(c)
	default:
		return EncodeOpenAIChunk(c)
	}
}
