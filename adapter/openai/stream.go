package openai

import (
	"encoding/json"
	"iter"

	"github.com/openai/openai-go/v3"

	"github.com/skosovsky/requesty"
)

// ToolCallAssembler turns raw stream chunks into normalized chunks, merging tool-call argument
// fragments until they parse as JSON. At most one call is in flight; a call is finalized when a
// call with a different id starts or when the chunk carries a finish reason.
// Not safe for concurrent use: one assembler serves one stream.
type ToolCallAssembler struct {
	current  *requesty.PartialToolCall
	registry map[string]*requesty.PartialToolCall
	onDrop   requesty.ToolCallDropHook
}

// NewToolCallAssembler returns an assembler. onDrop may be nil.
func NewToolCallAssembler(onDrop requesty.ToolCallDropHook) *ToolCallAssembler {
	return &ToolCallAssembler{
		registry: make(map[string]*requesty.PartialToolCall),
		onDrop:   onDrop,
	}
}

// Push processes one chunk and returns the normalized chunks to emit, usually zero or one.
// More than one is returned only when a single chunk finalizes several calls; the extra
// chunks carry the same Raw payload and an empty Delta.
func (a *ToolCallAssembler) Push(chunk openai.ChatCompletionChunk) []requesty.ChatResponseChunk {
	var usage *requesty.Usage
	if chunk.JSON.Usage.Valid() {
		usage = toUsage(chunk.Usage)
	}
	if len(chunk.Choices) == 0 {
		if usage == nil {
			return nil
		}
		return []requesty.ChatResponseChunk{{Raw: chunk, Usage: usage}}
	}
	choice := chunk.Choices[0]
	delta := choice.Delta
	if delta.Content == "" && len(delta.ToolCalls) == 0 && choice.FinishReason == "" {
		return nil
	}

	var completed []requesty.ToolCall
	for _, tc := range delta.ToolCalls {
		switch {
		case tc.ID != "" && (a.current == nil || tc.ID != a.current.ID):
			if done, ok := a.finalize(requesty.DropSuperseded); ok {
				completed = append(completed, done)
			}
			a.current = &requesty.PartialToolCall{
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: tc.Function.Arguments,
			}
			a.registry[tc.ID] = a.current
		case a.current != nil:
			if a.current.Name == "" {
				a.current.Name = tc.Function.Name
			}
			a.current.Input += tc.Function.Arguments
		}
	}

	if choice.FinishReason != "" && a.current != nil {
		if done, ok := a.finalize(requesty.DropStreamEnd); ok {
			completed = append(completed, done)
		}
	}

	out := requesty.ChatResponseChunk{
		Raw:   chunk,
		Delta: delta.Content,
		Usage: usage,
	}
	switch {
	case len(completed) > 0:
		out.ToolCall = &completed[0]
	case a.current != nil:
		partial := *a.current
		out.PartialToolCall = &partial
	}
	outs := []requesty.ChatResponseChunk{out}
	for i := 1; i < len(completed); i++ {
		outs = append(outs, requesty.ChatResponseChunk{Raw: chunk, ToolCall: &completed[i]})
	}
	return outs
}

// finalize parses the current call's arguments and clears it. On failure the call is dropped
// and reported to onDrop; ok is false.
func (a *ToolCallAssembler) finalize(reason requesty.DropReason) (requesty.ToolCall, bool) {
	cur := a.current
	if cur == nil {
		return requesty.ToolCall{}, false
	}
	a.current = nil
	delete(a.registry, cur.ID)
	var input any
	if err := json.Unmarshal([]byte(cur.Input), &input); err != nil {
		if a.onDrop != nil {
			a.onDrop(*cur, reason)
		}
		return requesty.ToolCall{}, false
	}
	return requesty.ToolCall{ID: cur.ID, Name: cur.Name, Input: input}, true
}

// InFlight returns the number of registered calls not yet finalized.
func (a *ToolCallAssembler) InFlight() int { return len(a.registry) }

// Close forgets all in-flight state. Calls still in progress are not emitted.
func (a *ToolCallAssembler) Close() {
	a.current = nil
	clear(a.registry)
}

// Assemble pulls chunks from stream only as the consumer asks for them and feeds them through asm.
// The stream is closed when the sequence ends or the consumer stops. A stream error is yielded last.
func Assemble(stream ChunkStream, asm *ToolCallAssembler) iter.Seq2[requesty.ChatResponseChunk, error] {
	return func(yield func(requesty.ChatResponseChunk, error) bool) {
		defer func() { _ = stream.Close() }()
		defer asm.Close()
		for stream.Next() {
			for _, out := range asm.Push(stream.Current()) {
				if !yield(out, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(requesty.ChatResponseChunk{}, err)
		}
	}
}
