package openai

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/require"
)

func chunkOf(t *testing.T, raw string) openai.ChatCompletionChunk {
	t.Helper()
	var c openai.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	return c
}

func chunksOf(t *testing.T, raws ...string) []openai.ChatCompletionChunk {
	t.Helper()
	out := make([]openai.ChatCompletionChunk, 0, len(raws))
	for _, r := range raws {
		out = append(out, chunkOf(t, r))
	}
	return out
}

// sliceStream is a ChunkStream over a fixed slice that records how far it was read.
type sliceStream struct {
	chunks []openai.ChatCompletionChunk
	err    error
	pos    int
	pulled atomic.Int32
	closed atomic.Bool
}

func (s *sliceStream) Next() bool {
	if s.closed.Load() || s.pos >= len(s.chunks) {
		return false
	}
	s.pos++
	s.pulled.Add(1)
	return true
}

func (s *sliceStream) Current() openai.ChatCompletionChunk { return s.chunks[s.pos-1] }
func (s *sliceStream) Err() error                          { return s.err }
func (s *sliceStream) Close() error                        { s.closed.Store(true); return nil }

// fakeSession returns canned responses and records what it was asked.
type fakeSession struct {
	completion *openai.ChatCompletion
	err        error
	stream     *sliceStream

	newCalls       atomic.Int32
	streamingCalls atomic.Int32
	lastParams     openai.ChatCompletionNewParams
	lastOpts       int
}

func (f *fakeSession) New(_ context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	f.newCalls.Add(1)
	f.lastParams = params
	f.lastOpts = len(opts)
	if f.err != nil {
		return nil, f.err
	}
	return f.completion, nil
}

func (f *fakeSession) NewStreaming(_ context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) ChunkStream {
	f.streamingCalls.Add(1)
	f.lastParams = params
	f.lastOpts = len(opts)
	if f.stream == nil {
		return &sliceStream{err: errors.New("no stream configured")}
	}
	return f.stream
}

func completionOf(t *testing.T, raw string) *openai.ChatCompletion {
	t.Helper()
	var c openai.ChatCompletion
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	return &c
}
