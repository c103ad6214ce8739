package requesty

import (
	"context"
	"iter"
	"reflect"
)

// ResponseFormat is a sealed interface for structured-output constraints.
// JSONObjectFormat and JSONSchemaFormat are native provider shapes; TypeSchemaFormat is a
// validator-style descriptor that adapters convert to a JSON schema.
type ResponseFormat interface {
	isResponseFormat()
}

// JSONObjectFormat asks for any valid JSON object.
type JSONObjectFormat struct{}

func (JSONObjectFormat) isResponseFormat() {}

// JSONSchemaFormat is a native JSON-schema response format. Adapters pass it through unchanged.
type JSONSchemaFormat struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Schema      map[string]any `json:"schema" yaml:"schema"`
	Strict      bool           `json:"strict,omitempty" yaml:"strict,omitempty"`
}

func (JSONSchemaFormat) isResponseFormat() {}

// TypeSchemaFormat describes the reply shape with a Go type. Field tags (json, jsonschema) drive the schema.
type TypeSchemaFormat struct {
	Name string
	Type reflect.Type
}

func (TypeSchemaFormat) isResponseFormat() {}

// SchemaOf returns a TypeSchemaFormat for T. An empty name lets adapters pick a default.
func SchemaOf[T any](name string) TypeSchemaFormat {
	return TypeSchemaFormat{Name: name, Type: reflect.TypeFor[T]()}
}

// ChatParams is one chat invocation.
// AdditionalOptions are provider-specific request fields forwarded verbatim (passthrough options).
type ChatParams struct {
	Messages          []ChatMessage
	Tools             []ToolDefinition
	ResponseFormat    ResponseFormat
	AdditionalOptions map[string]any
}

// ChatResponse is a normalized non-streaming reply. Raw is the provider payload.
type ChatResponse struct {
	Raw     any
	Message ChatMessage
	Usage   *Usage
}

// ChatResponseChunk is one normalized streaming unit.
// At most one of ToolCall (completed) and PartialToolCall (in progress) is set.
type ChatResponseChunk struct {
	Raw             any
	Delta           string
	ToolCall        *ToolCall
	PartialToolCall *PartialToolCall
	Usage           *Usage
}

// HasToolCall reports whether the chunk carries a completed tool call.
func (c ChatResponseChunk) HasToolCall() bool { return c.ToolCall != nil }

// Metadata describes the model behind an LLM.
type Metadata struct {
	Model            string
	Temperature      float64
	TopP             float64
	MaxTokens        *int64
	ContextWindow    int
	Tokenizer        TokenCounter
	StructuredOutput bool
}

// LLM is the generic chat abstraction.
//
// Stream validates and builds the request synchronously; the returned sequence performs the
// network call on first pull and yields chunks as the consumer asks for them. Breaking out of
// the loop closes the underlying stream. A transport failure is yielded once as the final error.
type LLM interface {
	Metadata() Metadata
	Chat(ctx context.Context, params ChatParams) (*ChatResponse, error)
	Stream(ctx context.Context, params ChatParams) (iter.Seq2[ChatResponseChunk, error], error)
}

// ToolCallLLM is an LLM that can request tool calls.
type ToolCallLLM interface {
	LLM
	SupportToolCall() bool
}
