// Package otelrequesty traces calls made through any requesty.LLM with OpenTelemetry.
//
// Spans follow the GenAI semantic conventions where they exist: one client span per Chat call
// and one per iteration of a streamed response, ended when the sequence is drained or the consumer stops.
package otelrequesty

import (
	"context"
	"iter"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skosovsky/requesty"
)

// InstrumentationName identifies this package's tracer.
const InstrumentationName = "github.com/skosovsky/requesty/ext/otelrequesty"

// Span names.
const (
	SpanChat   = "requesty.chat"
	SpanStream = "requesty.stream"
)

// Attribute keys.
const (
	AttrSystem        = attribute.Key("gen_ai.system")
	AttrRequestModel  = attribute.Key("gen_ai.request.model")
	AttrInputTokens   = attribute.Key("gen_ai.usage.input_tokens")
	AttrOutputTokens  = attribute.Key("gen_ai.usage.output_tokens")
	AttrMessages      = attribute.Key("requesty.messages")
	AttrTools         = attribute.Key("requesty.tools")
	AttrToolCalls     = attribute.Key("requesty.tool_calls")
	AttrChunks        = attribute.Key("requesty.chunks")
	AttrResponseBytes = attribute.Key("requesty.response_bytes")
)

// Option configures the tracing decorator.
type Option func(*LLM)

// WithTracerProvider sets the provider; default is otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *LLM) { l.tracer = tp.Tracer(InstrumentationName) }
}

// LLM wraps another requesty.LLM and records a span per call.
type LLM struct {
	next   requesty.LLM
	tracer trace.Tracer
}

var _ requesty.ToolCallLLM = (*LLM)(nil)

// Wrap returns a tracing decorator around next.
func Wrap(next requesty.LLM, opts ...Option) *LLM {
	l := &LLM{next: next}
	for _, opt := range opts {
		opt(l)
	}
	if l.tracer == nil {
		l.tracer = otel.GetTracerProvider().Tracer(InstrumentationName)
	}
	return l
}

// Metadata returns the wrapped model's metadata.
func (l *LLM) Metadata() requesty.Metadata { return l.next.Metadata() }

// SupportToolCall reports whether the wrapped LLM accepts tools.
func (l *LLM) SupportToolCall() bool {
	tc, ok := l.next.(requesty.ToolCallLLM)
	return ok && tc.SupportToolCall()
}

// Chat traces a non-streaming call.
func (l *LLM) Chat(ctx context.Context, params requesty.ChatParams) (*requesty.ChatResponse, error) {
	ctx, span := l.start(ctx, SpanChat, params)
	defer span.End()
	resp, err := l.next.Chat(ctx, params)
	if err != nil {
		fail(span, err)
		return nil, err
	}
	span.SetAttributes(AttrToolCalls.Int(len(resp.Message.ToolCalls)))
	setUsage(span, resp.Usage)
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// Stream traces a streamed call. A synchronous failure gets its own span. Otherwise each
// iteration of the returned sequence opens a span on its first pull and ends it when the
// iteration ends, so a sequence that is never ranged over records nothing.
func (l *LLM) Stream(ctx context.Context, params requesty.ChatParams) (iter.Seq2[requesty.ChatResponseChunk, error], error) {
	seq, err := l.next.Stream(ctx, params)
	if err != nil {
		_, span := l.start(ctx, SpanStream, params)
		fail(span, err)
		span.End()
		return nil, err
	}
	return func(yield func(requesty.ChatResponseChunk, error) bool) {
		_, span := l.start(ctx, SpanStream, params)
		defer span.End()
		var chunks, calls, bytes int
		failed := false
		defer func() {
			span.SetAttributes(
				AttrChunks.Int(chunks),
				AttrToolCalls.Int(calls),
				AttrResponseBytes.Int(bytes),
			)
			if !failed {
				span.SetStatus(codes.Ok, "")
			}
		}()
		for chunk, err := range seq {
			if err != nil {
				failed = true
				fail(span, err)
			} else {
				chunks++
				bytes += len(chunk.Delta)
				if chunk.HasToolCall() {
					calls++
				}
				setUsage(span, chunk.Usage)
			}
			if !yield(chunk, err) {
				return
			}
		}
	}, nil
}

func (l *LLM) start(ctx context.Context, name string, params requesty.ChatParams) (context.Context, trace.Span) {
	return l.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrSystem.String("requesty"),
			AttrRequestModel.String(l.next.Metadata().Model),
			AttrMessages.Int(len(params.Messages)),
			AttrTools.Int(len(params.Tools)),
		),
	)
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func setUsage(span trace.Span, u *requesty.Usage) {
	if u == nil {
		return
	}
	span.SetAttributes(
		AttrInputTokens.Int64(u.PromptTokens),
		AttrOutputTokens.Int64(u.CompletionTokens),
	)
}
