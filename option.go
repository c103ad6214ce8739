package requesty

// ChatOption configures ChatParams (functional options pattern).
type ChatOption func(*ChatParams)

// NewChatParams returns ChatParams for messages with options applied.
func NewChatParams(messages []ChatMessage, opts ...ChatOption) ChatParams {
	p := ChatParams{Messages: messages}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// WithTools sets tool definitions the model may call.
func WithTools(tools ...ToolDefinition) ChatOption {
	return func(p *ChatParams) {
		p.Tools = append(p.Tools, tools...)
	}
}

// WithResponseFormat sets the structured-output constraint.
func WithResponseFormat(format ResponseFormat) ChatOption {
	return func(p *ChatParams) {
		p.ResponseFormat = format
	}
}

// WithAdditionalOptions merges provider passthrough fields; later calls override earlier keys.
func WithAdditionalOptions(opts map[string]any) ChatOption {
	return func(p *ChatParams) {
		if len(opts) == 0 {
			return
		}
		if p.AdditionalOptions == nil {
			p.AdditionalOptions = make(map[string]any, len(opts))
		}
		for k, v := range opts {
			p.AdditionalOptions[k] = v
		}
	}
}
