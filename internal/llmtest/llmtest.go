// Package llmtest provides a scripted requesty.LLM for tests of decorators and commands.
package llmtest

import (
	"context"
	"iter"
	"sync"

	"github.com/skosovsky/requesty"
)

// Scripted replays canned replies. Replies are consumed in order by Chat and Stream;
// the last one repeats once the script runs out. Safe for concurrent use.
type Scripted struct {
	Model string
	// Err is returned synchronously by Chat and Stream when set.
	Err error

	mu      sync.Mutex
	replies []Reply
	calls   []requesty.ChatParams
}

// Reply is one scripted turn.
type Reply struct {
	Response *requesty.ChatResponse
	Chunks   []requesty.ChatResponseChunk
	// StreamErr is yielded after Chunks.
	StreamErr error
}

var _ requesty.ToolCallLLM = (*Scripted)(nil)

// New returns a Scripted LLM replaying replies.
func New(model string, replies ...Reply) *Scripted {
	return &Scripted{Model: model, replies: replies}
}

// Text returns a reply whose response and stream both carry text.
func Text(text string) Reply {
	return Reply{
		Response: &requesty.ChatResponse{Message: requesty.NewMessage(requesty.RoleAssistant, text)},
		Chunks:   []requesty.ChatResponseChunk{{Delta: text}},
	}
}

// Calls returns the params of every call so far.
func (s *Scripted) Calls() []requesty.ChatParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]requesty.ChatParams, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Scripted) next(params requesty.ChatParams) Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, params)
	if len(s.replies) == 0 {
		return Reply{}
	}
	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return r
}

func (s *Scripted) Metadata() requesty.Metadata { return requesty.Metadata{Model: s.Model} }

func (s *Scripted) SupportToolCall() bool { return true }

func (s *Scripted) Chat(_ context.Context, params requesty.ChatParams) (*requesty.ChatResponse, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	r := s.next(params)
	if r.Response == nil {
		return &requesty.ChatResponse{Message: requesty.ChatMessage{Role: requesty.RoleAssistant}}, nil
	}
	return r.Response, nil
}

func (s *Scripted) Stream(_ context.Context, params requesty.ChatParams) (iter.Seq2[requesty.ChatResponseChunk, error], error) {
	if s.Err != nil {
		return nil, s.Err
	}
	r := s.next(params)
	return func(yield func(requesty.ChatResponseChunk, error) bool) {
		for _, c := range r.Chunks {
			if !yield(c, nil) {
				return
			}
		}
		if r.StreamErr != nil {
			yield(requesty.ChatResponseChunk{}, r.StreamErr)
		}
	}, nil
}
