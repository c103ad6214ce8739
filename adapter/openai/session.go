package openai

import (
	"context"
	"errors"
	"os"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Environment variables read when the session is created.
const (
	EnvAPIKey  = "REQUESTY_API_KEY"
	EnvBaseURL = "REQUESTY_BASE_URL"
)

// DefaultBaseURL is used when neither WithBaseURL nor REQUESTY_BASE_URL is set.
const DefaultBaseURL = "https://router.requesty.ai/v1"

// ErrMissingAPIKey is returned by the first Chat or Stream call when no API key is configured.
var ErrMissingAPIKey = errors.New("openai: API key not set (use WithAPIKey or " + EnvAPIKey + ")")

// ChunkStream is a pull-based sequence of chat completion chunks.
// *ssestream.Stream[openai.ChatCompletionChunk] implements it.
type ChunkStream interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
	Close() error
}

// Session issues chat completion requests. The openai-go client implements it via NewSession;
// tests and callers sharing a client can pass their own with WithSession.
type Session interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
	NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) ChunkStream
}

type clientSession struct {
	client openai.Client
}

// NewSession returns a Session backed by an openai-go client built with opts.
func NewSession(opts ...option.RequestOption) Session {
	return &clientSession{client: openai.NewClient(opts...)}
}

func (s *clientSession) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	return s.client.Chat.Completions.New(ctx, params, opts...)
}

func (s *clientSession) NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) ChunkStream {
	return s.client.Chat.Completions.NewStreaming(ctx, params, opts...)
}

// newSession resolves credentials and endpoint at call time so that New never requires them.
func (l *LLM) newSession() (Session, error) {
	if l.injected != nil {
		return l.injected, nil
	}
	apiKey := l.apiKey
	if apiKey == "" {
		apiKey = os.Getenv(EnvAPIKey)
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := l.baseURL
	if baseURL == "" {
		baseURL = os.Getenv(EnvBaseURL)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(l.maxRetries),
		option.WithRequestTimeout(l.timeout),
	}
	opts = append(opts, l.sessionOptions...)
	l.logger.Debug("requesty: creating session",
		"base_url", baseURL,
		"max_retries", l.maxRetries,
		"timeout", l.timeout,
	)
	return NewSession(opts...), nil
}
