package dialect

import (
	"encoding/json"
	"strings"

	"gateway/internal/domain"
	"gateway/internal/gatewayerr"
)

// OpenAI wire types. Field names follow the OpenAI chat-completions shape
// verbatim so json.Marshal/Unmarshal need no translation layer beyond what
// is written here.

type oaMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []oaToolCall    `json:"tool_calls,omitempty"`
}

type oaToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type oaContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type oaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

type oaRequest struct {
	Model       string      `json:"model"`
	Messages    []oaMessage `json:"messages"`
	Temperature *float32    `json:"temperature,omitempty"`
	TopP        *float32    `json:"top_p,omitempty"`
	MaxTokens   *int32      `json:"max_tokens,omitempty"`
	Stop        []string    `json:"stop,omitempty"`
	Stream      bool        `json:"stream,omitempty"`
	Tools       []oaTool    `json:"tools,omitempty"`
	ToolChoice  any         `json:"tool_choice,omitempty"`
}

type oaChoice struct {
	Index        int       `json:"index"`
	Message      oaMessage `json:"message,omitempty"`
	Delta        *oaDelta  `json:"delta,omitempty"`
	FinishReason *string   `json:"finish_reason"`
}

type oaDelta struct {
	Role      string       `json:"role,omitempty"`
	Content   string       `json:"content,omitempty"`
	ToolCalls []oaToolCall `json:"tool_calls,omitempty"`
}

type oaUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type oaResponse struct {
	ID      string     `json:"id"`
	Object  string     `json:"object"`
	Created int64      `json:"created"`
	Model   string     `json:"model"`
	Choices []oaChoice `json:"choices"`
	Usage   *oaUsage   `json:"usage,omitempty"`
}

// DecodeOpenAIRequest parses a raw OpenAI-shaped JSON body into the canonical
// ChatRequest. It is the canonical_from(openai, ·) half of the Testable
// Property 2 round trip.
func DecodeOpenAIRequest(raw []byte) (domain.ChatRequest, error) {
	var req oaRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return domain.ChatRequest{}, gatewayerr.Validation("malformed openai request body: %v", err)
	}
	if len(req.Messages) == 0 {
		return domain.ChatRequest{}, gatewayerr.Validation("messages must not be empty")
	}
	out := domain.ChatRequest{
		Model:         req.Model,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		MaxTokens:     req.MaxTokens,
		StopSequences: req.Stop,
		Stream:        req.Stream,
	}
	for _, m := range req.Messages {
		msg, err := decodeOAMessage(m)
		if err != nil {
			return domain.ChatRequest{}, err
		}
		out.Messages = append(out.Messages, msg)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, domain.ToolDef{
			Name:                   t.Function.Name,
			Description:            t.Function.Description,
			JSONSchemaForArguments: t.Function.Parameters,
		})
	}
	if tc, ok := req.ToolChoice.(string); ok {
		switch tc {
		case "auto":
			out.ToolChoice = &domain.ToolChoice{Mode: domain.ToolChoiceAuto}
		case "none":
			out.ToolChoice = &domain.ToolChoice{Mode: domain.ToolChoiceNone}
		case "required":
			out.ToolChoice = &domain.ToolChoice{Mode: domain.ToolChoiceRequired}
		}
	} else if m, ok := req.ToolChoice.(map[string]any); ok {
		if fn, ok := m["function"].(map[string]any); ok {
			if name, ok := fn["name"].(string); ok {
				out.ToolChoice = &domain.ToolChoice{Mode: domain.ToolChoiceNamed, Name: name}
			}
		}
	}
	return out, nil
}

func decodeOAMessage(m oaMessage) (domain.Message, error) {
	msg := domain.Message{
		Role:       domain.Role(m.Role),
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
			ID:            tc.ID,
			Name:          tc.Function.Name,
			ArgumentsJSON: tc.Function.Arguments,
		})
	}
	if len(m.Content) == 0 {
		return msg, nil
	}
	var asString string
	if err := json.Unmarshal(m.Content, &asString); err == nil {
		msg.Text = asString
		return msg, nil
	}
	var blocks []oaContentBlock
	if err := json.Unmarshal(m.Content, &blocks); err != nil {
		return domain.Message{}, gatewayerr.Validation("malformed message content: %v", err)
	}
	for _, b := range blocks {
		switch b.Type {
		case "text":
			msg.Blocks = append(msg.Blocks, domain.ContentBlock{Type: domain.ContentText, Text: b.Text})
		case "image_url":
			url := ""
			if b.ImageURL != nil {
				url = b.ImageURL.URL
			}
			msg.Blocks = append(msg.Blocks, domain.ContentBlock{Type: domain.ContentImage, ImageURL: url})
		}
	}
	return msg, nil
}

// EncodeOpenAIResponse renders a canonical ChatResponse as the OpenAI
// chat.completion JSON shape.
func EncodeOpenAIResponse(resp domain.ChatResponse) []byte {
	out := oaResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: resp.CreatedUnix,
		Model:   resp.Model,
	}
	if resp.Usage != nil {
		out.Usage = &oaUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	for _, c := range resp.Choices {
		fr := string(c.FinishReason)
		oc := oaChoice{Index: c.Index, FinishReason: &fr}
		oc.Message = encodeOAMessage(c.Message)
		out.Choices = append(out.Choices, oc)
	}
	b, _ := json.Marshal(out)
	return b
}

func encodeOAMessage(m domain.Message) oaMessage {
	out := oaMessage{Role: string(m.Role), Name: m.Name, ToolCallID: m.ToolCallID}
	for _, tc := range m.ToolCalls {
		var call oaToolCall
		call.ID = tc.ID
		call.Type = "function"
		call.Function.Name = tc.Name
		call.Function.Arguments = tc.ArgumentsJSON
		out.ToolCalls = append(out.ToolCalls, call)
	}
	if m.IsTextOnly() {
		b, _ := json.Marshal(m.Text)
		out.Content = b
		return out
	}
	var blocks []oaContentBlock
	for _, blk := range m.Blocks {
		if blk.Type == domain.ContentText {
			blocks = append(blocks, oaContentBlock{Type: "text", Text: blk.Text})
		}
	}
	b, _ := json.Marshal(blocks)
	out.Content = b
	return out
}

// DecodeOpenAIResponse parses an OpenAI chat.completion response body into
// the canonical ChatResponse.
func DecodeOpenAIResponse(raw []byte) (domain.ChatResponse, error) {
	var resp oaResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.ChatResponse{}, gatewayerr.Wrap(gatewayerr.KindUpstream, "malformed openai response", err)
	}
	out := domain.ChatResponse{ID: resp.ID, CreatedUnix: resp.Created, Model: resp.Model}
	if resp.Usage != nil {
		out.Usage = &domain.Usage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens, TotalTokens: resp.Usage.TotalTokens}
	}
	for _, c := range resp.Choices {
		msg, err := decodeOAMessage(c.Message)
		if err != nil {
			return domain.ChatResponse{}, err
		}
		fr := domain.FinishStop
		if c.FinishReason != nil {
			fr = MapOpenAIFinishReason(*c.FinishReason)
		}
		out.Choices = append(out.Choices, domain.Choice{Index: c.Index, Message: msg, FinishReason: fr})
	}
	return out, nil
}

// MapOpenAIFinishReason translates an OpenAI finish_reason string into the
// canonical FinishReason.
func MapOpenAIFinishReason(s string) domain.FinishReason {
	switch s {
	case "stop":
		return domain.FinishStop
	case "length":
		return domain.FinishLength
	case "tool_calls":
		return domain.FinishToolCalls
	case "content_filter":
		return domain.FinishContentFilter
	default:
		return domain.FinishError
	}
}

// EncodeOpenAIChunk renders a canonical Chunk as an OpenAI
// chat.completion.chunk JSON frame (the payload of one `data: ` SSE line).
func EncodeOpenAIChunk(c domain.Chunk) []byte {
	out := struct {
		ID      string     `json:"id"`
		Object  string     `json:"object"`
		Created int64      `json:"created"`
		Model   string     `json:"model"`
		Choices []oaChoice `json:"choices"`
		Usage   *oaUsage   `json:"usage,omitempty"`
	}{
		ID:      c.ID,
		Object:  "chat.completion.chunk",
		Created: c.CreatedUnix,
		Model:   c.Model,
	}
	if c.Usage != nil {
		out.Usage = &oaUsage{PromptTokens: c.Usage.PromptTokens, CompletionTokens: c.Usage.CompletionTokens, TotalTokens: c.Usage.TotalTokens}
	}
	for _, cc := range c.Choices {
		delta := &oaDelta{Role: string(cc.Delta.Role), Content: cc.Delta.Content}
		for _, tc := range cc.Delta.ToolCalls {
			var call oaToolCall
			call.ID = tc.ID
			call.Type = "function"
			call.Function.Name = tc.Name
			call.Function.Arguments = tc.ArgumentsJSON
			delta.ToolCalls = append(delta.ToolCalls, call)
		}
		var fr *string
		if cc.FinishReason != nil {
			s := string(*cc.FinishReason)
			fr = &s
		}
		out.Choices = append(out.Choices, oaChoice{Index: cc.Index, Delta: delta, FinishReason: fr})
	}
	b, _ := json.Marshal(out)
	return b
}

// EncodeOpenAIRequest renders a canonical ChatRequest as the OpenAI wire
// request shape. Used when the target_format forces conversion back to
// OpenAI (it is also the identity path when the backend is OpenAI itself,
// consumed directly by internal/strategy's OpenAI strategy instead).
func EncodeOpenAIRequest(req domain.ChatRequest) []byte {
	out := oaRequest{
		Model:         req.Model,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		MaxTokens:     req.MaxTokens,
		Stop:          req.StopSequences,
		Stream:        req.Stream,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, encodeOAMessage(m))
	}
	for _, t := range req.Tools {
		var tool oaTool
		tool.Type = "function"
		tool.Function.Name = t.Name
		tool.Function.Description = t.Description
		tool.Function.Parameters = t.JSONSchemaForArguments
		out.Tools = append(out.Tools, tool)
	}
	if req.ToolChoice != nil {
		switch req.ToolChoice.Mode {
		case domain.ToolChoiceNamed:
			out.ToolChoice = map[string]any{"type": "function", "function": map[string]any{"name": req.ToolChoice.Name}}
		default:
			out.ToolChoice = strings.ToLower(string(req.ToolChoice.Mode))
		}
	}
	b, _ := json.Marshal(out)
	return b
}
