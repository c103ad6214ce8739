package openai

import (
	"encoding/base64"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/skosovsky/requesty"
	"github.com/skosovsky/requesty/adapter"
	"github.com/skosovsky/requesty/schema"
)

// DefaultResponseFormatName names schemas derived from requesty.TypeSchemaFormat without a name.
const DefaultResponseFormatName = "response_format"

const pdfMIME = "application/pdf"

// reservedChatOptions are request fields owned by the adapter; passthrough values for them are ignored.
var reservedChatOptions = map[string]bool{
	"model":       true,
	"messages":    true,
	"stream":      true,
	"tools":       true,
	"tool_choice": true,
	"temperature": true,
	"top_p":       true,
	"max_tokens":  true,
}

// ToProviderRole maps a role to the Chat Completions role. Unknown roles (and tool messages
// without a ToolResult) map to "user".
func ToProviderRole(r requesty.Role) string {
	switch r {
	case requesty.RoleUser:
		return "user"
	case requesty.RoleAssistant:
		return "assistant"
	case requesty.RoleSystem:
		return "system"
	case requesty.RoleDeveloper:
		return "developer"
	default:
		return "user"
	}
}

// FromProviderRole maps a Chat Completions role back to requesty.Role. Unknown roles map to user.
func FromProviderRole(role string) requesty.Role {
	switch role {
	case "assistant":
		return requesty.RoleAssistant
	case "system":
		return requesty.RoleSystem
	case "developer":
		return requesty.RoleDeveloper
	case "tool":
		return requesty.RoleTool
	default:
		return requesty.RoleUser
	}
}

// messageRole returns the role of a built message param ("" for an empty union).
func messageRole(m openai.ChatCompletionMessageParamUnion) string {
	switch {
	case m.OfSystem != nil:
		return "system"
	case m.OfDeveloper != nil:
		return "developer"
	case m.OfUser != nil:
		return "user"
	case m.OfAssistant != nil:
		return "assistant"
	case m.OfTool != nil:
		return "tool"
	case m.OfFunction != nil:
		return "function"
	default:
		return ""
	}
}

// ValidateMessages rejects content the router cannot accept: inline audio/video, non-PDF files
// and media parts without data or URL. It performs no I/O.
func ValidateMessages(msgs []requesty.ChatMessage) error {
	for i, m := range msgs {
		if !carriesParts(m) {
			continue
		}
		for j, p := range m.Content {
			switch x := p.(type) {
			case requesty.TextPart, requesty.ImageURLPart:
			case requesty.MediaPart:
				if x.Kind != requesty.MediaImage {
					return &requesty.ContentError{Message: i, Part: j, Kind: string(x.Kind), Err: requesty.ErrUnsupportedMedia}
				}
				if len(x.Data) == 0 && x.URL == "" {
					return &requesty.ContentError{Message: i, Part: j, Kind: string(x.Kind), Err: requesty.ErrEmptyMedia}
				}
			case requesty.FilePart:
				if x.MIMEType != pdfMIME {
					return &requesty.ContentError{Message: i, Part: j, Kind: x.MIMEType, Err: requesty.ErrUnsupportedFile}
				}
				if len(x.Data) == 0 && x.URL == "" {
					return &requesty.ContentError{Message: i, Part: j, Kind: x.MIMEType, Err: requesty.ErrEmptyMedia}
				}
			default:
				return &requesty.ContentError{Message: i, Part: j, Kind: fmt.Sprintf("%T", p), Err: adapter.ErrUnsupportedContentType}
			}
		}
	}
	return nil
}

// carriesParts reports whether the message content is sent as typed parts rather than flattened text.
func carriesParts(m requesty.ChatMessage) bool {
	return m.ToolResult == nil && len(m.ToolCalls) == 0 && m.Role == requesty.RoleUser
}

// ToMessages converts messages to Chat Completions params. Call ValidateMessages first;
// URL-only FilePart values must already be downloaded; a URL-only image is sent as image_url.
func ToMessages(msgs []requesty.ChatMessage) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for i, m := range msgs {
		union, err := toMessage(i, m)
		if err != nil {
			return nil, err
		}
		out = append(out, union)
	}
	return out, nil
}

func toMessage(i int, m requesty.ChatMessage) (openai.ChatCompletionMessageParamUnion, error) {
	text := adapter.TextFromParts(m.Content)
	switch {
	case m.ToolResult != nil:
		return openai.ToolMessage(text, m.ToolResult.ID), nil
	case len(m.ToolCalls) > 0:
		return assistantToolCallMessage(text, m.ToolCalls)
	case m.Role == requesty.RoleUser:
		return userMessage(i, m.Content)
	}
	switch ToProviderRole(m.Role) {
	case "system":
		return openai.SystemMessage(text), nil
	case "developer":
		return openai.DeveloperMessage(text), nil
	case "assistant":
		return openai.AssistantMessage(text), nil
	default:
		return openai.UserMessage(text), nil
	}
}

func assistantToolCallMessage(text string, calls []requesty.ToolCall) (openai.ChatCompletionMessageParamUnion, error) {
	toolCalls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(calls))
	for _, c := range calls {
		args, err := c.ArgumentsJSON()
		if err != nil {
			return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("%w: tool call %q: %w", adapter.ErrMalformedArgs, c.ID, err)
		}
		toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: c.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      c.Name,
					Arguments: args,
				},
				Type: "function",
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{
		OfAssistant: &openai.ChatCompletionAssistantMessageParam{
			Content:   openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(text)},
			ToolCalls: toolCalls,
			Role:      "assistant",
		},
	}, nil
}

func userMessage(i int, parts []requesty.ContentPart) (openai.ChatCompletionMessageParamUnion, error) {
	textOnly := true
	for _, p := range parts {
		if _, ok := p.(requesty.TextPart); !ok {
			textOnly = false
			break
		}
	}
	if textOnly {
		return openai.UserMessage(adapter.TextFromParts(parts)), nil
	}
	contentParts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(parts))
	for j, p := range parts {
		part, err := contentPart(i, j, p)
		if err != nil {
			return openai.ChatCompletionMessageParamUnion{}, err
		}
		contentParts = append(contentParts, part)
	}
	return openai.UserMessage(contentParts), nil
}

func contentPart(i, j int, p requesty.ContentPart) (openai.ChatCompletionContentPartUnionParam, error) {
	switch x := p.(type) {
	case requesty.TextPart:
		return openai.TextContentPart(x.Text), nil
	case requesty.ImageURLPart:
		return openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL:    x.URL,
			Detail: x.Detail,
		}), nil
	case requesty.MediaPart:
		if x.Kind != requesty.MediaImage {
			return openai.ChatCompletionContentPartUnionParam{}, &requesty.ContentError{Message: i, Part: j, Kind: string(x.Kind), Err: requesty.ErrUnsupportedMedia}
		}
		if len(x.Data) == 0 {
			return openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: x.URL}), nil
		}
		return openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
			FileData: openai.String(dataURI(x.MIMEType, x.Data)),
			Filename: openai.String(fmt.Sprintf("image-%d.%s", j, imageExt(x.MIMEType))),
		}), nil
	case requesty.FilePart:
		if x.MIMEType != pdfMIME {
			return openai.ChatCompletionContentPartUnionParam{}, &requesty.ContentError{Message: i, Part: j, Kind: x.MIMEType, Err: requesty.ErrUnsupportedFile}
		}
		if len(x.Data) == 0 {
			return openai.ChatCompletionContentPartUnionParam{}, &requesty.ContentError{Message: i, Part: j, Kind: x.MIMEType, Err: requesty.ErrEmptyMedia}
		}
		name := x.Filename
		if name == "" {
			name = fmt.Sprintf("part-%d.pdf", j)
		}
		return openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
			FileData: openai.String(dataURI(x.MIMEType, x.Data)),
			Filename: openai.String(name),
		}), nil
	default:
		return openai.ChatCompletionContentPartUnionParam{}, &requesty.ContentError{Message: i, Part: j, Kind: fmt.Sprintf("%T", p), Err: adapter.ErrUnsupportedContentType}
	}
}

func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// imageExt returns the MIME subtype ("image/jpeg" → "jpeg"), "png" when absent.
func imageExt(mime string) string {
	_, sub, ok := strings.Cut(mime, "/")
	if !ok || sub == "" {
		return "png"
	}
	return sub
}

// ToTool converts a tool definition to a function tool. Parameters are omitted when nil.
func ToTool(t requesty.ToolDefinition) openai.ChatCompletionToolUnionParam {
	def := shared.FunctionDefinitionParam{
		Name:        t.Name,
		Description: openai.String(t.Description),
	}
	if t.Parameters != nil {
		def.Parameters = shared.FunctionParameters(t.Parameters)
	}
	return openai.ChatCompletionFunctionTool(def)
}

// BuildParams converts ChatParams into Chat Completions params without sending anything.
// An empty tool list leaves Tools nil so the field is not serialized.
func (l *LLM) BuildParams(params requesty.ChatParams) (*openai.ChatCompletionNewParams, error) {
	msgs, err := ToMessages(params.Messages)
	if err != nil {
		return nil, err
	}
	p := &openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(l.model), //nolint:unconvert // ChatModel is a distinct type
		Messages:    msgs,
		Temperature: openai.Float(l.temperature),
		TopP:        openai.Float(l.topP),
	}
	if l.maxTokens != nil {
		p.MaxTokens = openai.Int(*l.maxTokens)
	}
	if len(params.Tools) > 0 {
		p.Tools = make([]openai.ChatCompletionToolUnionParam, 0, len(params.Tools))
		for _, t := range params.Tools {
			p.Tools = append(p.Tools, ToTool(t))
		}
	}
	if params.ResponseFormat != nil && l.structuredOutput {
		rf, err := responseFormat(params.ResponseFormat)
		if err != nil {
			return nil, err
		}
		p.ResponseFormat = rf
	}
	if l.streamUsage {
		p.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
	}
	return p, nil
}

func responseFormat(f requesty.ResponseFormat) (openai.ChatCompletionNewParamsResponseFormatUnion, error) {
	switch x := f.(type) {
	case requesty.JSONObjectFormat:
		return openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}, nil
	case requesty.JSONSchemaFormat:
		return jsonSchemaFormat(x), nil
	case requesty.TypeSchemaFormat:
		s, err := schema.Reflect(x.Type)
		if err != nil {
			return openai.ChatCompletionNewParamsResponseFormatUnion{}, fmt.Errorf("%w: %w", adapter.ErrUnsupportedFormat, err)
		}
		name := x.Name
		if name == "" {
			name = DefaultResponseFormatName
		}
		return jsonSchemaFormat(requesty.JSONSchemaFormat{Name: name, Schema: s, Strict: true}), nil
	default:
		return openai.ChatCompletionNewParamsResponseFormatUnion{}, fmt.Errorf("%w: %T", adapter.ErrUnsupportedFormat, f)
	}
}

func jsonSchemaFormat(f requesty.JSONSchemaFormat) openai.ChatCompletionNewParamsResponseFormatUnion {
	js := shared.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:   f.Name,
		Schema: f.Schema,
	}
	if f.Description != "" {
		js.Description = openai.String(f.Description)
	}
	if f.Strict {
		js.Strict = openai.Bool(true)
	}
	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{JSONSchema: js},
	}
}

// requestOptions turns merged passthrough options into JSON body overrides, in key order.
func (l *LLM) requestOptions(perCall map[string]any) []option.RequestOption {
	merged := adapter.MergeOptions(l.additionalChatOptions, perCall)
	if len(merged) == 0 {
		return nil
	}
	keys := slices.Sorted(maps.Keys(merged))
	opts := make([]option.RequestOption, 0, len(keys))
	for _, k := range keys {
		if reservedChatOptions[k] {
			l.logger.Debug("requesty: ignoring reserved passthrough option", "key", k)
			continue
		}
		opts = append(opts, option.WithJSONSet(k, merged[k]))
	}
	return opts
}
