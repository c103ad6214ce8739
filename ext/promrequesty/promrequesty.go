// Package promrequesty exports Prometheus metrics for calls made through any requesty.LLM,
// including tool calls the stream assembler had to drop.
package promrequesty

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skosovsky/requesty"
)

// LLMBuckets covers latencies from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Request modes.
const (
	ModeChat   = "chat"
	ModeStream = "stream"
)

// Metrics holds the collectors. Create one per registry and wrap any number of LLMs with it.
type Metrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	tokens    *prometheus.CounterVec
	toolCalls *prometheus.CounterVec
	inflight  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "requesty_requests_total",
				Help: "Requests sent to the router",
			},
			[]string{"model", "mode", "status"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "requesty_request_duration_seconds",
				Help:    "Request duration, for streams until the sequence ends",
				Buckets: LLMBuckets,
			},
			[]string{"model", "mode"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "requesty_tokens_total",
				Help: "Token count reported by the router",
			},
			[]string{"model", "direction"},
		),
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "requesty_tool_calls_total",
				Help: "Tool calls by outcome: completed, superseded or stream_end (dropped)",
			},
			[]string{"model", "outcome"},
		),
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "requesty_streams_active",
				Help: "Streams being consumed",
			},
		),
	}
	for _, c := range []prometheus.Collector{m.requests, m.latency, m.tokens, m.toolCalls, m.inflight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// DropHook returns a hook counting dropped tool calls for model. Pass it to the adapter's
// WithToolCallDropHook option.
func (m *Metrics) DropHook(model string) requesty.ToolCallDropHook {
	return func(_ requesty.PartialToolCall, reason requesty.DropReason) {
		m.toolCalls.WithLabelValues(model, string(reason)).Inc()
	}
}

// Wrap returns a decorator around next recording into m.
func (m *Metrics) Wrap(next requesty.LLM) *LLM {
	return &LLM{next: next, m: m}
}

// LLM is a metrics decorator.
type LLM struct {
	next requesty.LLM
	m    *Metrics
}

var _ requesty.ToolCallLLM = (*LLM)(nil)

// Metadata returns the wrapped model's metadata.
func (l *LLM) Metadata() requesty.Metadata { return l.next.Metadata() }

// SupportToolCall reports whether the wrapped LLM accepts tools.
func (l *LLM) SupportToolCall() bool {
	tc, ok := l.next.(requesty.ToolCallLLM)
	return ok && tc.SupportToolCall()
}

// Chat records a non-streaming call.
func (l *LLM) Chat(ctx context.Context, params requesty.ChatParams) (*requesty.ChatResponse, error) {
	model := l.next.Metadata().Model
	start := time.Now()
	resp, err := l.next.Chat(ctx, params)
	l.m.latency.WithLabelValues(model, ModeChat).Observe(time.Since(start).Seconds())
	l.m.requests.WithLabelValues(model, ModeChat, status(err)).Inc()
	if err != nil {
		return nil, err
	}
	l.m.addUsage(model, resp.Usage)
	if n := len(resp.Message.ToolCalls); n > 0 {
		l.m.toolCalls.WithLabelValues(model, "completed").Add(float64(n))
	}
	return resp, nil
}

// Stream records a streamed call once the sequence ends.
func (l *LLM) Stream(ctx context.Context, params requesty.ChatParams) (iter.Seq2[requesty.ChatResponseChunk, error], error) {
	model := l.next.Metadata().Model
	start := time.Now()
	seq, err := l.next.Stream(ctx, params)
	if err != nil {
		l.m.requests.WithLabelValues(model, ModeStream, status(err)).Inc()
		return nil, err
	}
	return func(yield func(requesty.ChatResponseChunk, error) bool) {
		l.m.inflight.Inc()
		var streamErr error
		defer func() {
			l.m.inflight.Dec()
			l.m.latency.WithLabelValues(model, ModeStream).Observe(time.Since(start).Seconds())
			l.m.requests.WithLabelValues(model, ModeStream, status(streamErr)).Inc()
		}()
		for chunk, err := range seq {
			if err != nil {
				streamErr = err
			} else {
				l.m.addUsage(model, chunk.Usage)
				if chunk.HasToolCall() {
					l.m.toolCalls.WithLabelValues(model, "completed").Inc()
				}
			}
			if !yield(chunk, err) {
				return
			}
		}
	}, nil
}

func (m *Metrics) addUsage(model string, u *requesty.Usage) {
	if u == nil {
		return
	}
	m.tokens.WithLabelValues(model, "input").Add(float64(u.PromptTokens))
	m.tokens.WithLabelValues(model, "output").Add(float64(u.CompletionTokens))
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
