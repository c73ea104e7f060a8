package dialect

import (
	"encoding/json"
	"testing"

	"gateway/internal/domain"
)

func TestEncodeAnthropicRequestDefaultsMaxTokens(t *testing.T) {
	req := domain.ChatRequest{
		Model:    "anthropic.claude-3-haiku-20240307-v1:0",
		Messages: []domain.Message{{Role: domain.RoleUser, Text: "hi"}},
	}
	wire := EncodeAnthropicRequest(req)

	var decoded map[string]any
	if err := json.Unmarshal(wire, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["max_tokens"].(float64) != defaultAnthropicMaxTokens {
		t.Errorf("max_tokens = %v, want %d (boundary behavior: absent max_tokens gets the family default)", decoded["max_tokens"], defaultAnthropicMaxTokens)
	}
}

func TestEncodeAnthropicRequestHoistsSystemMessage(t *testing.T) {
	req := domain.ChatRequest{
		Model: "anthropic.claude-3-haiku-20240307-v1:0",
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Text: "Be concise."},
			{Role: domain.RoleUser, Text: "hi"},
		},
	}
	wire := EncodeAnthropicRequest(req)

	var decoded anthRequest
	if err := json.Unmarshal(wire, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.System != "Be concise." {
		t.Errorf("system = %q, want %q", decoded.System, "Be concise.")
	}
	if len(decoded.Messages) != 1 {
		t.Fatalf("messages = %d, want 1 (system message must not remain inline)", len(decoded.Messages))
	}
	if decoded.Messages[0].Role != "user" {
		t.Errorf("remaining message role = %q, want user", decoded.Messages[0].Role)
	}
}

func TestMapAnthropicStopReason(t *testing.T) {
	tests := []struct {
		stopReason string
		want       domain.FinishReason
	}{
		{"end_turn", domain.FinishStop},
		{"max_tokens", domain.FinishLength},
		{"tool_use", domain.FinishToolCalls},
		{"stop_sequence", domain.FinishStop},
		{"content_filtered", domain.FinishContentFilter},
		{"something_unrecognized", domain.FinishError},
	}
	for _, tt := range tests {
		t.Run(tt.stopReason, func(t *testing.T) {
			if got := MapAnthropicStopReason(tt.stopReason); got != tt.want {
				t.Errorf("MapAnthropicStopReason(%q) = %v, want %v", tt.stopReason, got, tt.want)
			}
		})
	}
}

func TestDecodeAnthropicResponseToolUse(t *testing.T) {
	raw := []byte(`{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "anthropic.claude-3-haiku-20240307-v1:0",
		"stop_reason": "tool_use",
		"content": [
			{"type": "tool_use", "id": "toolu_1", "name": "get_weather", "input": {"city": "Paris"}}
		],
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`)

	resp, err := DecodeAnthropicResponse(raw, "anthropic.claude-3-haiku-20240307-v1:0")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("choices = %d, want 1", len(resp.Choices))
	}
	c := resp.Choices[0]
	if c.FinishReason != domain.FinishToolCalls {
		t.Errorf("finish_reason = %v, want tool_calls", c.FinishReason)
	}
	if len(c.Message.ToolCalls) != 1 || c.Message.ToolCalls[0].Name != "get_weather" {
		t.Fatalf("tool calls not decoded: %+v", c.Message.ToolCalls)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("total_tokens = %d, want 15", resp.Usage.TotalTokens)
	}
}

func TestEncodeAnthropicRequestToolRoleBecomesToolResult(t *testing.T) {
	req := domain.ChatRequest{
		Model: "anthropic.claude-3-haiku-20240307-v1:0",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Text: "What's the weather?"},
			{Role: domain.RoleTool, ToolCallID: "toolu_1", Text: "72F and sunny"},
		},
	}
	wire := EncodeAnthropicRequest(req)

	var decoded anthRequest
	if err := json.Unmarshal(wire, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(decoded.Messages))
	}
	toolMsg := decoded.Messages[1]
	if toolMsg.Role != "user" {
		t.Errorf("tool_result message role = %q, want user (Anthropic has no tool role)", toolMsg.Role)
	}
	if len(toolMsg.Content) != 1 || toolMsg.Content[0].Type != "tool_result" {
		t.Fatalf("expected a single tool_result content block, got %+v", toolMsg.Content)
	}
	if toolMsg.Content[0].ToolUseID != "toolu_1" {
		t.Errorf("tool_use_id = %q, want toolu_1", toolMsg.Content[0].ToolUseID)
	}
}
