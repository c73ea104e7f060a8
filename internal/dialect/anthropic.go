package dialect

import (
	"encoding/json"

	"gateway/internal/domain"
	"gateway/internal/gatewayerr"
)

const defaultAnthropicMaxTokens = 1024

// Anthropic (Bedrock Claude) wire types, named after the real Messages API
// shape so encoding/json needs no translation layer.

type anthMessage struct {
	Role    string             `json:"role"`
	Content []anthContentBlock `json:"content"`
}

type anthContentBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

type anthTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

type anthRequest struct {
	AnthropicVersion string        `json:"anthropic_version"`
	Model            string        `json:"model,omitempty"`
	MaxTokens        int32         `json:"max_tokens"`
	Messages         []anthMessage `json:"messages"`
	System           string        `json:"system,omitempty"`
	Temperature      *float32      `json:"temperature,omitempty"`
	TopP             *float32      `json:"top_p,omitempty"`
	StopSequences    []string      `json:"stop_sequences,omitempty"`
	Tools            []anthTool    `json:"tools,omitempty"`
	Stream           bool          `json:"stream,omitempty"`
}

type anthUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []anthContentBlock `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      anthUsage          `json:"usage"`
}

// MapAnthropicStopReason translates Anthropic's stop_reason into the
// canonical FinishReason. Handles all five documented stop reasons,
// including stop_sequence and content_filtered.
func MapAnthropicStopReason(stopReason string) domain.FinishReason {
	switch stopReason {
	case "end_turn":
		return domain.FinishStop
	case "max_tokens":
		return domain.FinishLength
	case "tool_use":
		return domain.FinishToolCalls
	case "stop_sequence":
		return domain.FinishStop
	case "content_filtered":
		return domain.FinishContentFilter
	default:
		return domain.FinishError
	}
}

// finishReasonToStopReason is the inverse mapping, used when egress target
// format is bedrock_claude regardless of which provider actually served the
// request.
func finishReasonToStopReason(fr domain.FinishReason) string {
	switch fr {
	case domain.FinishStop:
		return "end_turn"
	case domain.FinishLength:
		return "max_tokens"
	case domain.FinishToolCalls:
		return "tool_use"
	case domain.FinishContentFilter:
		return "content_filtered"
	default:
		return "error"
	}
}

// DecodeAnthropicRequest parses a raw Bedrock-Anthropic-shaped JSON body into
// the canonical ChatRequest.
func DecodeAnthropicRequest(raw []byte) (domain.ChatRequest, error) {
	var req anthRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return domain.ChatRequest{}, gatewayerr.Validation("malformed anthropic request body: %v", err)
	}
	if len(req.Messages) == 0 {
		return domain.ChatRequest{}, gatewayerr.Validation("messages must not be empty")
	}
	out := domain.ChatRequest{
		Model:         req.Model,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.StopSequences,
		Stream:        req.Stream,
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	out.MaxTokens = &maxTokens
	if req.System != "" {
		out.Messages = append(out.Messages, domain.Message{Role: domain.RoleSystem, Text: req.System})
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, decodeAnthMessage(m))
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, domain.ToolDef{Name: t.Name, Description: t.Description, JSONSchemaForArguments: t.InputSchema})
	}
	return out, nil
}

func decodeAnthMessage(m anthMessage) domain.Message {
	msg := domain.Message{Role: domain.Role(m.Role)}
	allText := true
	for _, b := range m.Content {
		if b.Type != "text" {
			allText = false
			break
		}
	}
	if allText && len(m.Content) <= 1 {
		if len(m.Content) == 1 {
			msg.Text = m.Content[0].Text
		}
		return msg
	}
	for _, b := range m.Content {
		switch b.Type {
		case "text":
			msg.Blocks = append(msg.Blocks, domain.ContentBlock{Type: domain.ContentText, Text: b.Text})
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{ID: b.ID, Name: b.Name, ArgumentsJSON: marshalArgs(b.Input)})
		case "tool_result":
			msg.ToolCallID = b.ToolUseID
			msg.Text = b.Content
		}
	}
	return msg
}

func marshalArgs(args map[string]any) string {
	if args == nil {
		args = map[string]any{}
	}
	b, _ := json.Marshal(args)
	return string(b)
}

// EncodeAnthropicRequest renders a canonical ChatRequest as the
// Bedrock-Anthropic wire request shape, applying these rules:
// leading system message hoisted to the top-level `system` field, missing
// max_tokens defaulted to 1024, assistant tool calls become tool_use
// blocks, tool-role messages become tool_result blocks.
func EncodeAnthropicRequest(req domain.ChatRequest) []byte {
	out := anthRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		Model:            req.Model,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		StopSequences:    req.StopSequences,
		Stream:           req.Stream,
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	} else {
		out.MaxTokens = defaultAnthropicMaxTokens
	}
	messages := req.Messages
	if len(messages) > 0 && messages[0].Role == domain.RoleSystem {
		out.System = messages[0].PlainText()
		messages = messages[1:]
	}
	for _, m := range messages {
		out.Messages = append(out.Messages, encodeAnthMessage(m))
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, anthTool{Name: t.Name, Description: t.Description, InputSchema: t.JSONSchemaForArguments})
	}
	b, _ := json.Marshal(out)
	return b
}

func encodeAnthMessage(m domain.Message) anthMessage {
	if m.Role == domain.RoleTool {
		return anthMessage{
			Role: "user",
			Content: []anthContentBlock{{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   m.PlainText(),
			}},
		}
	}
	out := anthMessage{Role: string(m.Role)}
	if text := m.PlainText(); text != "" {
		out.Content = append(out.Content, anthContentBlock{Type: "text", Text: text})
	}
	for _, tc := range m.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.ArgumentsJSON), &args)
		if args == nil {
			args = map[string]any{}
		}
		out.Content = append(out.Content, anthContentBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: args})
	}
	return out
}

// EncodeAnthropicResponse renders a canonical ChatResponse as the
// Bedrock-Anthropic Messages response shape.
func EncodeAnthropicResponse(resp domain.ChatResponse) []byte {
	out := anthResponse{
		ID:    resp.ID,
		Type:  "message",
		Role:  "assistant",
		Model: resp.Model,
	}
	if len(resp.Choices) > 0 {
		c := resp.Choices[0]
		out.StopReason = finishReasonToStopReason(c.FinishReason)
		if text := c.Message.PlainText(); text != "" {
			out.Content = append(out.Content, anthContentBlock{Type: "text", Text: text})
		}
		for _, tc := range c.Message.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.ArgumentsJSON), &args)
			out.Content = append(out.Content, anthContentBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: args})
		}
	}
	if resp.Usage != nil {
		out.Usage = anthUsage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
	}
	b, _ := json.Marshal(out)
	return b
}

// DecodeAnthropicResponse parses a Bedrock-Anthropic Messages response body
// (as returned by the provider) into the canonical ChatResponse.
func DecodeAnthropicResponse(raw []byte, model string) (domain.ChatResponse, error) {
	var resp anthResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.ChatResponse{}, gatewayerr.Wrap(gatewayerr.KindUpstream, "malformed anthropic response", err)
	}
	msg := domain.Message{Role: domain.RoleAssistant}
	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			msg.Blocks = append(msg.Blocks, domain.ContentBlock{Type: domain.ContentText, Text: b.Text})
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{ID: b.ID, Name: b.Name, ArgumentsJSON: marshalArgs(b.Input)})
		}
	}
	if len(msg.Blocks) == 1 {
		msg.Text = msg.Blocks[0].Text
		msg.Blocks = nil
	}
	return domain.ChatResponse{
		ID:          resp.ID,
		CreatedUnix: domain.Now(),
		Model:       model,
		Choices: []domain.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: MapAnthropicStopReason(resp.StopReason),
		}},
		Usage: &domain.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

// anthChunkWire mirrors the subset of Anthropic's streaming event shapes the
// gateway needs to emit when target_format=bedrock_claude: a text delta
// frame and a terminal stop frame.
type anthChunkWire struct {
	Type       string     `json:"type"`
	ID         string     `json:"id,omitempty"`
	Delta      *anthDelta `json:"delta,omitempty"`
	StopReason string     `json:"stop_reason,omitempty"`
	Usage      *anthUsage `json:"usage,omitempty"`
}

type anthDelta struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// EncodeAnthropicChunk renders a canonical Chunk as an Anthropic-shaped SSE
// event payload.
func EncodeAnthropicChunk(c domain.Chunk) []byte {
	if len(c.Choices) == 0 {
		b, _ := json.Marshal(anthChunkWire{Type: "ping", ID: c.ID})
		return b
	}
	cc := c.Choices[0]
	if cc.FinishReason != nil {
		wire := anthChunkWire{Type: "message_stop", ID: c.ID, StopReason: finishReasonToStopReason(*cc.FinishReason)}
		if c.Usage != nil {
			wire.Usage = &anthUsage{InputTokens: c.Usage.PromptTokens, OutputTokens: c.Usage.CompletionTokens}
		}
		b, _ := json.Marshal(wire)
		return b
	}
	wire := anthChunkWire{Type: "content_block_delta", ID: c.ID, Delta: &anthDelta{Type: "text_delta", Text: cc.Delta.Content}}
	b, _ := json.Marshal(wire)
	return b
}
