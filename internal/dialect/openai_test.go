package dialect

import (
	"encoding/json"
	"testing"

	"gateway/internal/domain"
)

func TestDecodeOpenAIRequestRejectsEmptyMessages(t *testing.T) {
	_, err := DecodeOpenAIRequest([]byte(`{"model":"gpt-4o-mini","messages":[]}`))
	if err == nil {
		t.Fatal("expected an error for an empty messages list")
	}
}

func TestDecodeOpenAIRequestMultimodalContent(t *testing.T) {
	raw := []byte(`{
		"model": "gpt-4o-mini",
		"messages": [{"role": "user", "content": [
			{"type": "text", "text": "what's in this image?"},
			{"type": "image_url", "image_url": {"url": "https://example.com/cat.png"}}
		]}]
	}`)
	req, err := DecodeOpenAIRequest(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg := req.Messages[0]
	if msg.IsTextOnly() {
		t.Fatal("a content-block message should not be reported as text-only")
	}
	if len(msg.Blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(msg.Blocks))
	}
	if msg.Blocks[0].Type != domain.ContentText || msg.Blocks[0].Text != "what's in this image?" {
		t.Errorf("block[0] = %+v", msg.Blocks[0])
	}
	if msg.Blocks[1].Type != domain.ContentImage || msg.Blocks[1].ImageURL != "https://example.com/cat.png" {
		t.Errorf("block[1] = %+v", msg.Blocks[1])
	}
}

func TestDecodeOpenAIRequestToolChoiceVariants(t *testing.T) {
	tests := []struct {
		name       string
		toolChoice string
		wantMode   domain.ToolChoiceMode
	}{
		{"auto", `"auto"`, domain.ToolChoiceAuto},
		{"none", `"none"`, domain.ToolChoiceNone},
		{"required", `"required"`, domain.ToolChoiceRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte(`{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hi"}],"tool_choice":` + tt.toolChoice + `}`)
			req, err := DecodeOpenAIRequest(raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.ToolChoice == nil || req.ToolChoice.Mode != tt.wantMode {
				t.Errorf("ToolChoice = %+v, want mode %v", req.ToolChoice, tt.wantMode)
			}
		})
	}
}

func TestDecodeOpenAIRequestNamedToolChoice(t *testing.T) {
	raw := []byte(`{
		"model": "gpt-4o-mini",
		"messages": [{"role": "user", "content": "hi"}],
		"tool_choice": {"type": "function", "function": {"name": "get_weather"}}
	}`)
	req, err := DecodeOpenAIRequest(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.ToolChoice == nil || req.ToolChoice.Mode != domain.ToolChoiceNamed || req.ToolChoice.Name != "get_weather" {
		t.Errorf("ToolChoice = %+v", req.ToolChoice)
	}
}

func TestEncodeOpenAIRequestNamedToolChoiceRoundTrips(t *testing.T) {
	req := domain.ChatRequest{
		Model:      "gpt-4o-mini",
		Messages:   []domain.Message{{Role: domain.RoleUser, Text: "hi"}},
		ToolChoice: &domain.ToolChoice{Mode: domain.ToolChoiceNamed, Name: "get_weather"},
	}
	wire := EncodeOpenAIRequest(req)
	back, err := DecodeOpenAIRequest(wire)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back.ToolChoice == nil || back.ToolChoice.Mode != domain.ToolChoiceNamed || back.ToolChoice.Name != "get_weather" {
		t.Errorf("ToolChoice round-trip = %+v", back.ToolChoice)
	}
}

func TestMapOpenAIFinishReason(t *testing.T) {
	tests := []struct {
		in   string
		want domain.FinishReason
	}{
		{"stop", domain.FinishStop},
		{"length", domain.FinishLength},
		{"tool_calls", domain.FinishToolCalls},
		{"content_filter", domain.FinishContentFilter},
		{"unrecognized_value", domain.FinishError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := MapOpenAIFinishReason(tt.in); got != tt.want {
				t.Errorf("MapOpenAIFinishReason(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeOpenAIResponseWithToolCalls(t *testing.T) {
	raw := []byte(`{
		"id": "chatcmpl-1", "object": "chat.completion", "created": 1700000000, "model": "gpt-4o-mini",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "get_weather", "arguments": "{\"city\":\"Paris\"}"}}]},
			"finish_reason": "tool_calls"
		}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 6, "total_tokens": 18}
	}`)
	resp, err := DecodeOpenAIResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Choices[0].FinishReason != domain.FinishToolCalls {
		t.Errorf("finish_reason = %v, want tool_calls", resp.Choices[0].FinishReason)
	}
	if len(resp.Choices[0].Message.ToolCalls) != 1 || resp.Choices[0].Message.ToolCalls[0].Name != "get_weather" {
		t.Fatalf("tool calls not decoded: %+v", resp.Choices[0].Message.ToolCalls)
	}
	if resp.Usage.TotalTokens != 18 {
		t.Errorf("total_tokens = %d, want 18", resp.Usage.TotalTokens)
	}
}

func TestDecodeOpenAIResponseMalformed(t *testing.T) {
	if _, err := DecodeOpenAIResponse([]byte("not json")); err == nil {
		t.Fatal("expected an error for a malformed response body")
	}
}

func TestEncodeOpenAIChunkTerminalChunkHasNoContent(t *testing.T) {
	fr := domain.FinishStop
	chunk := domain.Chunk{
		ID: "chatcmpl-1", Model: "gpt-4o-mini",
		Choices: []domain.ChunkChoice{{Index: 0, FinishReason: &fr}},
		Usage:   &domain.Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7},
	}
	out := EncodeOpenAIChunk(chunk)
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	choices := decoded["choices"].([]any)
	choice := choices[0].(map[string]any)
	if choice["finish_reason"] != "stop" {
		t.Errorf("finish_reason = %v, want stop", choice["finish_reason"])
	}
	if delta, _ := choice["delta"].(map[string]any); delta["content"] != nil {
		t.Errorf("terminal chunk delta content = %v, want none", delta["content"])
	}
}
