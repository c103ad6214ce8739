package requesty

import "encoding/json"

// Role is the message role in a chat.
type Role string

// Chat message roles.
const (
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// MediaKind is the kind of inline media carried by MediaPart.
type MediaKind string

// Media kinds. Only images can be sent to the router; audio and video are rejected by adapters.
const (
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// ContentPart is a sealed interface for message parts. Only package types implement it via isContentPart().
type ContentPart interface {
	isContentPart()
}

// TextPart holds plain text content.
type TextPart struct {
	Text string
}

func (TextPart) isContentPart() {}

// ImageURLPart references an image by URL (http(s) or data URI). Passed to the provider as is.
type ImageURLPart struct {
	URL    string
	Detail string // "auto", "low", "high"; empty means provider default
}

func (ImageURLPart) isContentPart() {}

// MediaPart holds inline media (image, audio, video) with raw bytes and MIME type.
// URL may be set instead of Data; adapters download https URLs before building the request
// and send data URIs as they are.
type MediaPart struct {
	Kind     MediaKind
	MIMEType string
	Data     []byte
	URL      string
}

func (MediaPart) isContentPart() {}

// FilePart holds a document attachment. Only application/pdf is accepted by the router.
type FilePart struct {
	MIMEType string
	Data     []byte
	URL      string
	Filename string // optional; adapters synthesize one when empty
}

func (FilePart) isContentPart() {}

// ToolCall is a completed tool invocation requested by the model.
// Input holds parsed JSON for streamed calls and the raw argument string for non-streaming responses.
type ToolCall struct {
	ID    string
	Name  string
	Input any
}

// PartialToolCall is a tool call whose argument text is still being accumulated.
// Input is raw text and may not be valid JSON yet.
type PartialToolCall struct {
	ID    string
	Name  string
	Input string
}

// ToolResult references the tool call a message answers.
type ToolResult struct {
	ID      string
	IsError bool
}

// ChatMessage is a single message with role and content parts (supports multimodal).
// ToolCalls is set on assistant messages that requested tools; ToolResult marks a tool output message.
type ChatMessage struct {
	Role       Role
	Content    []ContentPart
	ToolCalls  []ToolCall
	ToolResult *ToolResult
}

// NewMessage returns a message with a single text part.
func NewMessage(role Role, text string) ChatMessage {
	return ChatMessage{Role: role, Content: []ContentPart{TextPart{Text: text}}}
}

// NewToolResultMessage returns a tool output message answering the call with the given id.
func NewToolResultMessage(callID, output string) ChatMessage {
	return ChatMessage{
		Role:       RoleTool,
		Content:    []ContentPart{TextPart{Text: output}},
		ToolResult: &ToolResult{ID: callID},
	}
}

// ArgumentsJSON returns the call input as JSON text. Strings are returned verbatim.
func (c ToolCall) ArgumentsJSON() (string, error) {
	if s, ok := c.Input.(string); ok {
		return s, nil
	}
	if c.Input == nil {
		return "{}", nil
	}
	b, err := json.Marshal(c.Input)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToolDefinition is the universal tool schema.
type ToolDefinition struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"` // JSON Schema for parameters
}

// Usage reports token counts for one call.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// DropReason tells why a streamed tool call was discarded without being emitted.
type DropReason string

// Drop reasons reported to ToolCallDropHook.
const (
	DropSuperseded DropReason = "superseded" // a call with a different id started first
	DropStreamEnd  DropReason = "stream_end" // the stream finished first
)

// ToolCallDropHook observes streamed tool calls whose arguments never became valid JSON.
// Streams never fail because of such calls; the hook is the only signal.
type ToolCallDropHook func(call PartialToolCall, reason DropReason)
