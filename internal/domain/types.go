// Package domain defines the dialect-neutral canonical chat model shared by
// every other package. Types here carry no behavior beyond small helpers;
// conversion, routing, and invocation all live elsewhere.
package domain

import "time"

// Role is the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentBlockType discriminates the ContentBlock tagged union.
type ContentBlockType string

const (
	ContentText       ContentBlockType = "text"
	ContentImage      ContentBlockType = "image"
	ContentToolUse    ContentBlockType = "tool_use"
	ContentToolResult ContentBlockType = "tool_result"
)

// ContentBlock is one element of a Message's content. Exactly one of the
// type-specific fields is populated, selected by Type.
type ContentBlock struct {
	Type ContentBlockType `json:"type"`

	// Text carries ContentText.
	Text string `json:"text,omitempty"`

	// Image carries ContentImage.
	MediaType string `json:"media_type,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	ImageData string `json:"image_data,omitempty"` // base64, mutually exclusive with ImageURL

	// ToolUse carries ContentToolUse.
	ToolUseID string         `json:"tool_use_id,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	ToolInput map[string]any `json:"tool_input,omitempty"`

	// ToolResult carries ContentToolResult.
	ToolResultForID string `json:"tool_result_for_id,omitempty"`
	ToolResultText  string `json:"tool_result_text,omitempty"`
	ToolResultError bool   `json:"tool_result_error,omitempty"`
}

// Message is one turn in a ChatRequest. Content is either a plain string
// (Text populated, Blocks nil) or an ordered list of ContentBlocks.
type Message struct {
	Role       Role           `json:"role"`
	Text       string         `json:"-"`
	Blocks     []ContentBlock `json:"-"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
}

// IsTextOnly reports whether the message content is a scalar string rather
// than a content-block list.
func (m Message) IsTextOnly() bool {
	return m.Blocks == nil
}

// PlainText concatenates the message's text, whether stored as a scalar or
// spread across Text-typed content blocks. Used by extractors and the Titan
// flattening adapter which have no concept of non-text blocks.
func (m Message) PlainText() string {
	if m.IsTextOnly() {
		return m.Text
	}
	out := ""
	for _, b := range m.Blocks {
		if b.Type == ContentText {
			out += b.Text
		}
	}
	return out
}

// ToolDef describes a callable tool offered to the model.
type ToolDef struct {
	Name                   string         `json:"name"`
	Description            string         `json:"description"`
	JSONSchemaForArguments map[string]any `json:"json_schema_for_arguments"`
}

// ToolChoiceMode selects how the model should use tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceNamed    ToolChoiceMode = "named"
)

// ToolChoice controls tool-use behavior for a request.
type ToolChoice struct {
	Mode ToolChoiceMode `json:"mode"`
	Name string         `json:"name,omitempty"` // populated when Mode == ToolChoiceNamed
}

// ToolCall is a model-emitted invocation of a ToolDef.
type ToolCall struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ArgumentsJSON string `json:"arguments_json"`
}

// RetrievalConfig tunes the optional KB subsystem.
type RetrievalConfig struct {
	TopK          int     `json:"top_k,omitempty"`
	MinConfidence float64 `json:"min_confidence,omitempty"`
}

// ChatRequest is the canonical, dialect-neutral request form. It is produced
// once by the orchestrator on ingress and never mutated after routing.
type ChatRequest struct {
	Model         string      `json:"model"`
	Messages      []Message   `json:"messages"`
	Temperature   *float32    `json:"temperature,omitempty"`
	TopP          *float32    `json:"top_p,omitempty"`
	MaxTokens     *int32      `json:"max_tokens,omitempty"`
	StopSequences []string    `json:"stop_sequences,omitempty"`
	Stream        bool        `json:"stream,omitempty"`
	Tools         []ToolDef   `json:"tools,omitempty"`
	ToolChoice    *ToolChoice `json:"tool_choice,omitempty"`

	// FileIDs references uploaded artifacts to be injected as context.
	FileIDs []string `json:"file_ids,omitempty"`

	// Knowledge-base hints, all optional.
	KnowledgeBaseID string           `json:"knowledge_base_id,omitempty"`
	AutoKB          bool             `json:"auto_kb,omitempty"`
	RetrievalConfig *RetrievalConfig `json:"retrieval_config,omitempty"`
	CitationFormat  string           `json:"citation_format,omitempty"`

	// RequestID is assigned by the orchestrator for logging/telemetry and
	// used as the canonical response/chunk id.
	RequestID string `json:"-"`
}

// FinishReason is why a Choice stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishContentFilter FinishReason = "content_filter"
	FinishError         FinishReason = "error"
)

// Usage reports token accounting for a completed (or streamed-to-completion)
// response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is one generated completion within a ChatResponse.
type Choice struct {
	Index        int          `json:"index"`
	Message      Message      `json:"message"`
	FinishReason FinishReason `json:"finish_reason"`
}

// ChatResponse is the canonical, dialect-neutral non-streaming response form.
type ChatResponse struct {
	ID          string   `json:"id"`
	CreatedUnix int64    `json:"created_unix"`
	Model       string   `json:"model"`
	Choices     []Choice `json:"choices"`
	Usage       *Usage   `json:"usage,omitempty"`

	// Citations is populated by the KB retriever's direct_rag path.
	Citations []Citation `json:"citations,omitempty"`
}

// Citation is a KB source reference attached to a direct_rag response.
type Citation struct {
	SourceURI string `json:"source_uri"`
	Snippet   string `json:"snippet,omitempty"`
}

// Delta carries the incremental fields of one streaming ChunkChoice.
type Delta struct {
	Role      Role       `json:"role,omitempty"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"` // ArgumentsJSON carries a fragment, not a complete document
}

// ChunkChoice is one choice's worth of incremental data in a Chunk.
type ChunkChoice struct {
	Index        int           `json:"index"`
	Delta        Delta         `json:"delta"`
	FinishReason *FinishReason `json:"finish_reason,omitempty"`
}

// Chunk is one canonical streaming event. A response is a finite sequence of
// Chunks sharing the same ID, terminated by a chunk whose sole populated
// choice field is FinishReason.
type Chunk struct {
	ID          string        `json:"id"`
	CreatedUnix int64         `json:"created_unix"`
	Model       string        `json:"model"`
	Choices     []ChunkChoice `json:"choices"`
	Usage       *Usage        `json:"usage,omitempty"`
}

// Now is overridable in tests; production code calls time.Now().Unix().
var Now = func() int64 { return time.Now().Unix() }

// Provider identifies the backend that ultimately serves a request.
type Provider string

const (
	ProviderOpenAI  Provider = "openai"
	ProviderBedrock Provider = "bedrock"
)

// TargetFormat is the caller-selected egress dialect.
type TargetFormat string

const (
	TargetOpenAI        TargetFormat = "openai"
	TargetBedrockClaude TargetFormat = "bedrock_claude"
	TargetBedrockTitan  TargetFormat = "bedrock_titan"
)

// ParseTargetFormat validates a caller-supplied target_format value.
func ParseTargetFormat(s string) (TargetFormat, bool) {
	switch TargetFormat(s) {
	case TargetOpenAI, TargetBedrockClaude, TargetBedrockTitan:
		return TargetFormat(s), true
	case "":
		return TargetOpenAI, true
	default:
		return "", false
	}
}
