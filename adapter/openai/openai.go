package openai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/skosovsky/requesty"
	"github.com/skosovsky/requesty/adapter"
	"github.com/skosovsky/requesty/mediafetch"
)

// Defaults applied by New.
const (
	DefaultModel         = "openai/gpt-4o-mini"
	DefaultTemperature   = 0.1
	DefaultTopP          = 1.0
	DefaultMaxRetries    = 10
	DefaultTimeout       = 60 * time.Second
	DefaultContextWindow = 128000
)

// ErrStreamConsumed is yielded when a stream sequence is iterated a second time.
var ErrStreamConsumed = errors.New("openai: stream already consumed")

// LLM implements requesty.ToolCallLLM for the Requesty router.
// Safe for concurrent use; concurrent calls share one lazily created session.
type LLM struct {
	model       string
	temperature float64
	topP        float64
	maxTokens   *int64

	apiKey         string
	baseURL        string
	maxRetries     int
	timeout        time.Duration
	sessionOptions []option.RequestOption
	injected       Session

	additionalChatOptions map[string]any
	structuredOutput      bool
	streamUsage           bool
	contextWindow         int
	tokenizer             requesty.TokenCounter

	logger   *slog.Logger
	dropHook requesty.ToolCallDropHook
	media    *mediafetch.Fetcher
	images   *mediafetch.Fetcher

	session func() (Session, error)
}

// Compile-time check that LLM implements requesty.ToolCallLLM.
var _ requesty.ToolCallLLM = (*LLM)(nil)

// New returns an LLM with Requesty defaults. Credentials are not read until the first call.
func New(opts ...Option) *LLM {
	l := &LLM{
		model:            DefaultModel,
		temperature:      DefaultTemperature,
		topP:             DefaultTopP,
		maxRetries:       DefaultMaxRetries,
		timeout:          DefaultTimeout,
		structuredOutput: true,
		contextWindow:    DefaultContextWindow,
		tokenizer:        &requesty.CharFallbackCounter{},
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.media == nil {
		l.media = mediafetch.NewFetcher(mediafetch.AllowedDocumentPrefixes...)
	}
	if l.images == nil {
		l.images = mediafetch.NewFetcher(mediafetch.AllowedImagePrefixes...)
	}
	l.session = sync.OnceValues(l.newSession)
	return l
}

// Metadata describes the configured model.
func (l *LLM) Metadata() requesty.Metadata {
	return requesty.Metadata{
		Model:            l.model,
		Temperature:      l.temperature,
		TopP:             l.topP,
		MaxTokens:        l.maxTokens,
		ContextWindow:    l.contextWindow,
		Tokenizer:        l.tokenizer,
		StructuredOutput: l.structuredOutput,
	}
}

// SupportToolCall reports true: the router forwards tools to every model that accepts them.
func (l *LLM) SupportToolCall() bool { return true }

// Session returns the shared session, creating it on first use.
func (l *LLM) Session() (Session, error) { return l.session() }

// Chat sends a non-streaming request. Tool call arguments are returned as raw JSON text.
func (l *LLM) Chat(ctx context.Context, params requesty.ChatParams) (*requesty.ChatResponse, error) {
	p, reqOpts, err := l.prepare(ctx, params)
	if err != nil {
		return nil, err
	}
	sess, err := l.session()
	if err != nil {
		return nil, err
	}
	l.logger.DebugContext(ctx, "requesty: chat",
		"model", l.model,
		"messages", len(p.Messages),
		"tools", len(p.Tools),
	)
	resp, err := sess.New(ctx, *p, reqOpts...)
	if err != nil {
		return nil, err
	}
	return toChatResponse(resp)
}

// Stream builds the request synchronously and returns a sequence that sends it on first pull.
func (l *LLM) Stream(ctx context.Context, params requesty.ChatParams) (iter.Seq2[requesty.ChatResponseChunk, error], error) {
	p, reqOpts, err := l.prepare(ctx, params)
	if err != nil {
		return nil, err
	}
	var consumed atomic.Bool
	return func(yield func(requesty.ChatResponseChunk, error) bool) {
		if consumed.Swap(true) {
			yield(requesty.ChatResponseChunk{}, ErrStreamConsumed)
			return
		}
		sess, err := l.session()
		if err != nil {
			yield(requesty.ChatResponseChunk{}, err)
			return
		}
		l.logger.DebugContext(ctx, "requesty: stream",
			"model", l.model,
			"messages", len(p.Messages),
			"tools", len(p.Tools),
		)
		stream := sess.NewStreaming(ctx, *p, reqOpts...)
		asm := NewToolCallAssembler(l.onDrop)
		for chunk, err := range Assemble(stream, asm) {
			if !yield(chunk, err) {
				return
			}
		}
	}, nil
}

// prepare validates messages, downloads URL-only media and builds the provider request.
func (l *LLM) prepare(ctx context.Context, params requesty.ChatParams) (*openai.ChatCompletionNewParams, []option.RequestOption, error) {
	if len(params.Messages) == 0 {
		return nil, nil, requesty.ErrNoMessages
	}
	if err := ValidateMessages(params.Messages); err != nil {
		return nil, nil, err
	}
	msgs, err := l.resolveMedia(ctx, params.Messages)
	if err != nil {
		return nil, nil, err
	}
	params.Messages = msgs
	p, err := l.BuildParams(params)
	if err != nil {
		return nil, nil, err
	}
	return p, l.requestOptions(params.AdditionalOptions), nil
}

func (l *LLM) onDrop(call requesty.PartialToolCall, reason requesty.DropReason) {
	l.logger.Warn("requesty: dropping tool call with incomplete arguments",
		"id", call.ID,
		"name", call.Name,
		"bytes", len(call.Input),
		"reason", string(reason),
	)
	if l.dropHook != nil {
		l.dropHook(call, reason)
	}
}

func toChatResponse(resp *openai.ChatCompletion) (*requesty.ChatResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: completion %q", adapter.ErrEmptyResponse, resp.ID)
	}
	msg := resp.Choices[0].Message
	out := &requesty.ChatResponse{
		Raw: resp,
		Message: requesty.ChatMessage{
			Role:    FromProviderRole(string(msg.Role)),
			Content: []requesty.ContentPart{requesty.TextPart{Text: msg.Content}},
		},
	}
	for _, tc := range msg.ToolCalls {
		if tc.Type != "function" {
			continue
		}
		out.Message.ToolCalls = append(out.Message.ToolCalls, requesty.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: tc.Function.Arguments,
		})
	}
	if resp.JSON.Usage.Valid() {
		out.Usage = toUsage(resp.Usage)
	}
	return out, nil
}

func toUsage(u openai.CompletionUsage) *requesty.Usage {
	return &requesty.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
