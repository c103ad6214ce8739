package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/requesty"
	"github.com/skosovsky/requesty/adapter"
	"github.com/skosovsky/requesty/mediafetch"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

func ExampleToolCallAssembler() {
	asm := NewToolCallAssembler(nil)
	for _, raw := range []string{
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"a","function":{"name":"calc","arguments":"{\"x\":1"}}]},"finish_reason":null}]}`,
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"a","function":{"arguments":"}"}}]},"finish_reason":"stop"}]}`,
	} {
		var chunk openai.ChatCompletionChunk
		_ = json.Unmarshal([]byte(raw), &chunk)
		for _, out := range asm.Push(chunk) {
			if out.ToolCall != nil {
				fmt.Println(out.ToolCall.Name, out.ToolCall.Input)
			} else {
				fmt.Println("partial:", out.PartialToolCall.Input)
			}
		}
	}
	// Output:
	// partial: {"x":1
	// calc map[x:1]
}

func hello() []requesty.ChatMessage {
	return []requesty.ChatMessage{requesty.NewMessage(requesty.RoleUser, "hello")}
}

func TestNew_Metadata(t *testing.T) {
	t.Parallel()
	md := New().Metadata()
	assert.Equal(t, DefaultModel, md.Model)
	assert.InDelta(t, DefaultTemperature, md.Temperature, 1e-9)
	assert.InDelta(t, DefaultTopP, md.TopP, 1e-9)
	assert.Nil(t, md.MaxTokens)
	assert.Equal(t, DefaultContextWindow, md.ContextWindow)
	assert.True(t, md.StructuredOutput)
	assert.IsType(t, &requesty.CharFallbackCounter{}, md.Tokenizer)

	md = New(WithModel("m"), WithMaxTokens(10), WithContextWindow(8000), WithStructuredOutput(false)).Metadata()
	assert.Equal(t, "m", md.Model)
	require.NotNil(t, md.MaxTokens)
	assert.EqualValues(t, 10, *md.MaxTokens)
	assert.Equal(t, 8000, md.ContextWindow)
	assert.False(t, md.StructuredOutput)
	assert.True(t, New().SupportToolCall())
}

func TestSession_MissingAPIKey(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	l := New()
	_, err := l.Chat(context.Background(), requesty.NewChatParams(hello()))
	require.ErrorIs(t, err, ErrMissingAPIKey)

	seq, err := l.Stream(context.Background(), requesty.NewChatParams(hello()))
	require.NoError(t, err, "credentials are resolved on first pull")
	for _, err := range seq {
		require.ErrorIs(t, err, ErrMissingAPIKey)
	}
}

func TestSession_FromEnvironment(t *testing.T) {
	t.Setenv(EnvAPIKey, "env-key")
	t.Setenv(EnvBaseURL, "")
	sess, err := New().Session()
	require.NoError(t, err)
	assert.NotNil(t, sess)
}

func TestSession_CreatedOnce(t *testing.T) {
	t.Parallel()
	l := New(WithAPIKey("k"))
	const n = 16
	got := make([]Session, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := l.Session()
			assert.NoError(t, err)
			got[i] = s
		}()
	}
	wg.Wait()
	for _, s := range got[1:] {
		assert.Same(t, got[0], s)
	}
}

func TestSession_Injected(t *testing.T) {
	t.Parallel()
	fake := &fakeSession{}
	s, err := New(WithSession(fake)).Session()
	require.NoError(t, err)
	assert.Same(t, fake, s)
}

func TestChat_Normalizes(t *testing.T) {
	t.Parallel()
	fake := &fakeSession{completion: completionOf(t, `{
		"id":"cmpl-1","object":"chat.completion","created":1,"model":"openai/gpt-4o-mini",
		"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":"let me add",
			"tool_calls":[{"id":"t1","type":"function","function":{"name":"calc","arguments":"{\"x\":1"}}]}}],
		"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`)}
	l := New(WithSession(fake))

	resp, err := l.Chat(context.Background(), requesty.NewChatParams(hello()))
	require.NoError(t, err)
	assert.Equal(t, requesty.RoleAssistant, resp.Message.Role)
	assert.Equal(t, "let me add", adapter.TextFromParts(resp.Message.Content))
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, requesty.ToolCall{ID: "t1", Name: "calc", Input: `{"x":1`}, resp.Message.ToolCalls[0],
		"arguments are passed through undecoded")
	require.NotNil(t, resp.Usage)
	assert.Equal(t, requesty.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}, *resp.Usage)
	assert.Same(t, fake.completion, resp.Raw)
	assert.Equal(t, int32(1), fake.newCalls.Load())
}

func TestChat_EmptyContent(t *testing.T) {
	t.Parallel()
	fake := &fakeSession{completion: completionOf(t, `{"id":"c","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":null}}]}`)}
	resp, err := New(WithSession(fake)).Chat(context.Background(), requesty.NewChatParams(hello()))
	require.NoError(t, err)
	assert.Empty(t, adapter.TextFromParts(resp.Message.Content))
	assert.Nil(t, resp.Usage)
}

func TestChat_NoChoices(t *testing.T) {
	t.Parallel()
	fake := &fakeSession{completion: completionOf(t, `{"id":"c","choices":[]}`)}
	_, err := New(WithSession(fake)).Chat(context.Background(), requesty.NewChatParams(hello()))
	require.ErrorIs(t, err, adapter.ErrEmptyResponse)
}

func TestChat_TransportErrorUnchanged(t *testing.T) {
	t.Parallel()
	boom := errors.New("dial tcp: refused")
	_, err := New(WithSession(&fakeSession{err: boom})).Chat(context.Background(), requesty.NewChatParams(hello()))
	assert.Same(t, boom, err)
}

func TestChat_ValidationBeforeNetwork(t *testing.T) {
	t.Parallel()
	fake := &fakeSession{}
	l := New(WithSession(fake))
	msgs := []requesty.ChatMessage{{Role: requesty.RoleUser, Content: []requesty.ContentPart{
		requesty.MediaPart{Kind: requesty.MediaAudio, MIMEType: "audio/wav", Data: []byte{1}},
	}}}

	_, err := l.Chat(context.Background(), requesty.NewChatParams(msgs))
	require.ErrorIs(t, err, requesty.ErrUnsupportedMedia)

	seq, err := l.Stream(context.Background(), requesty.NewChatParams(msgs))
	require.ErrorIs(t, err, requesty.ErrUnsupportedMedia)
	assert.Nil(t, seq)

	_, err = l.Chat(context.Background(), requesty.NewChatParams(nil))
	require.ErrorIs(t, err, requesty.ErrNoMessages)

	assert.Zero(t, fake.newCalls.Load())
	assert.Zero(t, fake.streamingCalls.Load())
}

func TestChat_PassthroughOptions(t *testing.T) {
	t.Parallel()
	fake := &fakeSession{completion: completionOf(t, `{"id":"c","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`)}
	l := New(WithSession(fake), WithAdditionalChatOptions(map[string]any{"seed": 1}))
	_, err := l.Chat(context.Background(), requesty.NewChatParams(hello(),
		requesty.WithAdditionalOptions(map[string]any{"user": "u1", "model": "nope"})))
	require.NoError(t, err)
	assert.Equal(t, 2, fake.lastOpts)
}

func TestStream_Lazy(t *testing.T) {
	t.Parallel()
	fake := &fakeSession{stream: &sliceStream{chunks: chunksOf(t,
		`{"choices":[{"index":0,"delta":{"content":"hi"},"finish_reason":"stop"}]}`,
	)}}
	l := New(WithSession(fake))
	seq, err := l.Stream(context.Background(), requesty.NewChatParams(hello()))
	require.NoError(t, err)
	assert.Zero(t, fake.streamingCalls.Load(), "nothing is sent before the first pull")

	var text strings.Builder
	for chunk, err := range seq {
		require.NoError(t, err)
		text.WriteString(chunk.Delta)
	}
	assert.Equal(t, "hi", text.String())
	assert.Equal(t, int32(1), fake.streamingCalls.Load())

	for _, err := range seq {
		require.ErrorIs(t, err, ErrStreamConsumed)
	}
	assert.Equal(t, int32(1), fake.streamingCalls.Load())
}

func TestStream_DropHook(t *testing.T) {
	t.Parallel()
	fake := &fakeSession{stream: &sliceStream{chunks: chunksOf(t,
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"a","function":{"name":"f","arguments":"{\"x"}}]},"finish_reason":null}]}`,
		`{"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	)}}
	var mu sync.Mutex
	var dropped []string
	l := New(WithSession(fake), WithToolCallDropHook(func(c requesty.PartialToolCall, r requesty.DropReason) {
		mu.Lock()
		defer mu.Unlock()
		dropped = append(dropped, c.ID+":"+string(r))
	}))
	seq, err := l.Stream(context.Background(), requesty.NewChatParams(hello()))
	require.NoError(t, err)
	for chunk, err := range seq {
		require.NoError(t, err)
		assert.Nil(t, chunk.ToolCall)
	}
	assert.Equal(t, []string{"a:stream_end"}, dropped)
}

func TestStream_BreakClosesStream(t *testing.T) {
	t.Parallel()
	stream := &sliceStream{chunks: chunksOf(t,
		`{"choices":[{"index":0,"delta":{"content":"a"},"finish_reason":null}]}`,
		`{"choices":[{"index":0,"delta":{"content":"b"},"finish_reason":null}]}`,
	)}
	seq, err := New(WithSession(&fakeSession{stream: stream})).Stream(context.Background(), requesty.NewChatParams(hello()))
	require.NoError(t, err)
	for range seq {
		break
	}
	assert.True(t, stream.closed.Load())
	assert.Equal(t, int32(1), stream.pulled.Load())
}

// routerServer fakes the Chat Completions endpoint and records request bodies.
func routerServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var mu sync.Mutex
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &bodies
}

func routerLLM(srv *httptest.Server, opts ...Option) *LLM {
	base := []Option{
		WithAPIKey("test-key"),
		WithBaseURL(srv.URL),
		WithMaxRetries(0),
		WithHTTPClient(srv.Client()),
	}
	return New(append(base, opts...)...)
}

func TestRouter_Stream(t *testing.T) {
	t.Parallel()
	events := []string{
		`{"id":"s","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"role":"assistant","content":"Sum: "},"finish_reason":null}]}`,
		`{"id":"s","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"add","arguments":"{\"a\":2,"}}]},"finish_reason":null}]}`,
		`{"id":"s","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"b\":3}"}}]},"finish_reason":null}]}`,
		`{"id":"s","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`{"id":"s","object":"chat.completion.chunk","created":1,"model":"m","choices":[],"usage":{"prompt_tokens":9,"completion_tokens":4,"total_tokens":13}}`,
	}
	srv, bodies := routerServer(t, func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", e)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})
	l := routerLLM(srv, WithStreamUsage(true))

	seq, err := l.Stream(context.Background(), requesty.NewChatParams(hello(),
		requesty.WithTools(requesty.ToolDefinition{Name: "add", Parameters: map[string]any{"type": "object"}})))
	require.NoError(t, err)

	var text strings.Builder
	var calls []requesty.ToolCall
	var usage *requesty.Usage
	for chunk, err := range seq {
		require.NoError(t, err)
		text.WriteString(chunk.Delta)
		if chunk.ToolCall != nil {
			calls = append(calls, *chunk.ToolCall)
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}
	assert.Equal(t, "Sum: ", text.String())
	require.Len(t, calls, 1)
	assert.Equal(t, requesty.ToolCall{ID: "call_1", Name: "add", Input: map[string]any{"a": float64(2), "b": float64(3)}}, calls[0])
	require.NotNil(t, usage)
	assert.EqualValues(t, 13, usage.TotalTokens)

	require.Len(t, *bodies, 1)
	body := (*bodies)[0]
	assert.Equal(t, true, body["stream"])
	assert.Equal(t, DefaultModel, body["model"])
	assert.Len(t, body["tools"], 1)
}

func TestRouter_Chat(t *testing.T) {
	t.Parallel()
	srv, bodies := routerServer(t, func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hi there"}}]}`)
	})
	l := routerLLM(srv, WithAdditionalChatOptions(map[string]any{"seed": 1, "user": "instance"}))

	resp, err := l.Chat(context.Background(), requesty.NewChatParams(hello(),
		requesty.WithAdditionalOptions(map[string]any{"user": "call", "temperature": 2})))
	require.NoError(t, err)
	assert.Equal(t, "hi there", adapter.TextFromParts(resp.Message.Content))

	require.Len(t, *bodies, 1)
	body := (*bodies)[0]
	assert.NotContains(t, body, "stream", "non-streaming requests do not set stream")
	assert.EqualValues(t, 1, body["seed"])
	assert.Equal(t, "call", body["user"], "per-call options override instance options")
	assert.InDelta(t, DefaultTemperature, body["temperature"], 1e-9, "reserved keys are not overridden")
	assert.NotContains(t, body, "tools")
}

func TestRouter_ErrorPropagates(t *testing.T) {
	t.Parallel()
	srv, _ := routerServer(t, func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
	})
	_, err := routerLLM(srv).Chat(context.Background(), requesty.NewChatParams(hello()))
	var apiErr *openai.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func TestChat_DownloadsDocuments(t *testing.T) {
	t.Parallel()
	docs := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF-1.7")
	}))
	t.Cleanup(docs.Close)
	fetcher := mediafetch.NewFetcher(mediafetch.AllowedDocumentPrefixes...)
	fetcher.Client = docs.Client()

	fake := &fakeSession{completion: completionOf(t, `{"id":"c","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`)}
	l := New(WithSession(fake), WithMediaFetcher(fetcher))
	msgs := []requesty.ChatMessage{{Role: requesty.RoleUser, Content: []requesty.ContentPart{
		requesty.TextPart{Text: "summarize"},
		requesty.FilePart{MIMEType: "application/pdf", URL: docs.URL + "/report.pdf"},
	}}}

	_, err := l.Chat(context.Background(), requesty.NewChatParams(msgs))
	require.NoError(t, err)
	part := fake.lastParams.Messages[0].OfUser.Content.OfArrayOfContentParts[1]
	require.NotNil(t, part.OfFile)
	assert.Equal(t, "data:application/pdf;base64,JVBERi0xLjc=", part.OfFile.File.FileData.Value)
	assert.Empty(t, msgs[0].Content[1].(requesty.FilePart).Data, "caller messages are not modified")
}

func TestChat_DownloadsImages(t *testing.T) {
	t.Parallel()
	images := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/page.html" {
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, "<html>")
			return
		}
		w.Header().Set("Content-Type", "image/webp")
		_, _ = io.WriteString(w, "img")
	}))
	t.Cleanup(images.Close)
	fetcher := mediafetch.NewFetcher(mediafetch.AllowedImagePrefixes...)
	fetcher.Client = images.Client()

	fake := &fakeSession{completion: completionOf(t, `{"id":"c","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`)}
	l := New(WithSession(fake), WithImageFetcher(fetcher))

	t.Run("https url is inlined", func(t *testing.T) {
		msgs := []requesty.ChatMessage{{Role: requesty.RoleUser, Content: []requesty.ContentPart{
			requesty.MediaPart{Kind: requesty.MediaImage, URL: images.URL + "/cat.webp"},
		}}}
		_, err := l.Chat(context.Background(), requesty.NewChatParams(msgs))
		require.NoError(t, err)
		part := fake.lastParams.Messages[0].OfUser.Content.OfArrayOfContentParts[0]
		require.NotNil(t, part.OfFile)
		assert.Equal(t, "data:image/webp;base64,aW1n", part.OfFile.File.FileData.Value)
		assert.Equal(t, "image-0.webp", part.OfFile.File.Filename.Value)
		assert.Empty(t, msgs[0].Content[0].(requesty.MediaPart).Data)
	})

	t.Run("data uri is sent as image_url", func(t *testing.T) {
		const uri = "data:image/png;base64,AQ=="
		msgs := []requesty.ChatMessage{{Role: requesty.RoleUser, Content: []requesty.ContentPart{
			requesty.MediaPart{Kind: requesty.MediaImage, URL: uri},
		}}}
		_, err := l.Chat(context.Background(), requesty.NewChatParams(msgs))
		require.NoError(t, err)
		part := fake.lastParams.Messages[0].OfUser.Content.OfArrayOfContentParts[0]
		require.NotNil(t, part.OfImageURL)
		assert.Equal(t, uri, part.OfImageURL.ImageURL.URL)
	})

	t.Run("non-image content is rejected", func(t *testing.T) {
		calls := fake.newCalls.Load()
		msgs := []requesty.ChatMessage{{Role: requesty.RoleUser, Content: []requesty.ContentPart{
			requesty.TextPart{Text: "look"},
			requesty.MediaPart{Kind: requesty.MediaImage, URL: images.URL + "/page.html"},
		}}}
		_, err := l.Chat(context.Background(), requesty.NewChatParams(msgs))
		require.ErrorIs(t, err, mediafetch.ErrUnsupportedType)
		var ce *requesty.ContentError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, 1, ce.Part)
		assert.Equal(t, string(requesty.MediaImage), ce.Kind)
		assert.Equal(t, calls, fake.newCalls.Load())
	})
}

func TestChat_DocumentDownloadFails(t *testing.T) {
	t.Parallel()
	fake := &fakeSession{}
	l := New(WithSession(fake))
	msgs := []requesty.ChatMessage{{Role: requesty.RoleUser, Content: []requesty.ContentPart{
		requesty.FilePart{MIMEType: "application/pdf", URL: "http://insecure.example/doc.pdf"},
	}}}
	_, err := l.Chat(context.Background(), requesty.NewChatParams(msgs))
	require.ErrorIs(t, err, mediafetch.ErrUnsafeScheme)
	var ce *requesty.ContentError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 0, ce.Part)
	assert.Zero(t, fake.newCalls.Load())
}
