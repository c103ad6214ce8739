package openai

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3/option"

	"github.com/skosovsky/requesty"
	"github.com/skosovsky/requesty/mediafetch"
)

// Option configures an LLM (functional options pattern).
type Option func(*LLM)

// WithModel sets the model identifier, e.g. "anthropic/claude-sonnet-4-0". Default is DefaultModel.
func WithModel(model string) Option {
	return func(l *LLM) { l.model = model }
}

// WithTemperature sets the sampling temperature. Default is 0.1.
func WithTemperature(t float64) Option {
	return func(l *LLM) { l.temperature = t }
}

// WithTopP sets nucleus sampling. Default is 1.
func WithTopP(p float64) Option {
	return func(l *LLM) { l.topP = p }
}

// WithMaxTokens caps the reply length. Unset means provider default.
func WithMaxTokens(n int64) Option {
	return func(l *LLM) { l.maxTokens = &n }
}

// WithAPIKey overrides REQUESTY_API_KEY.
func WithAPIKey(key string) Option {
	return func(l *LLM) { l.apiKey = key }
}

// WithBaseURL overrides REQUESTY_BASE_URL.
func WithBaseURL(url string) Option {
	return func(l *LLM) { l.baseURL = url }
}

// WithMaxRetries sets the transport retry count. Default is 10.
func WithMaxRetries(n int) Option {
	return func(l *LLM) { l.maxRetries = n }
}

// WithTimeout sets the per-request transport timeout. Default is 60 seconds.
func WithTimeout(d time.Duration) Option {
	return func(l *LLM) { l.timeout = d }
}

// WithHTTPClient sets the HTTP client used by the lazily created session.
func WithHTTPClient(c *http.Client) Option {
	return func(l *LLM) { l.sessionOptions = append(l.sessionOptions, option.WithHTTPClient(c)) }
}

// WithSessionOptions appends raw client options applied after the defaults.
func WithSessionOptions(opts ...option.RequestOption) Option {
	return func(l *LLM) { l.sessionOptions = append(l.sessionOptions, opts...) }
}

// WithSession uses s instead of creating a client. Credentials and base URL are then ignored.
func WithSession(s Session) Option {
	return func(l *LLM) { l.injected = s }
}

// WithAdditionalChatOptions sets passthrough request fields sent on every call.
// Per-call ChatParams.AdditionalOptions override keys set here.
func WithAdditionalChatOptions(opts map[string]any) Option {
	return func(l *LLM) { l.additionalChatOptions = opts }
}

// WithStructuredOutput declares whether the routed model honours response_format. Default is true.
func WithStructuredOutput(enabled bool) Option {
	return func(l *LLM) { l.structuredOutput = enabled }
}

// WithContextWindow sets the context window reported by Metadata. Default is 128000.
func WithContextWindow(n int) Option {
	return func(l *LLM) { l.contextWindow = n }
}

// WithTokenizer sets the token counter reported by Metadata.
func WithTokenizer(tc requesty.TokenCounter) Option {
	return func(l *LLM) { l.tokenizer = tc }
}

// WithStreamUsage asks the router to append a usage-only chunk to every stream.
func WithStreamUsage(enabled bool) Option {
	return func(l *LLM) { l.streamUsage = enabled }
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *LLM) { l.logger = logger }
}

// WithToolCallDropHook registers a callback for streamed tool calls dropped with unparseable arguments.
func WithToolCallDropHook(hook requesty.ToolCallDropHook) Option {
	return func(l *LLM) { l.dropHook = hook }
}

// WithMediaFetcher sets the downloader used for FilePart values that only carry a URL.
func WithMediaFetcher(f *mediafetch.Fetcher) Option {
	return func(l *LLM) { l.media = f }
}

// WithImageFetcher sets the downloader used for image MediaPart values that only carry an https URL.
func WithImageFetcher(f *mediafetch.Fetcher) Option {
	return func(l *LLM) { l.images = f }
}
