// Package openai adapts the Requesty router (an OpenAI-compatible Chat Completions API) to
// requesty.LLM using the openai-go client.
//
// New never needs credentials: the client session is created on the first Chat or Stream call
// from WithAPIKey/WithBaseURL or the REQUESTY_API_KEY/REQUESTY_BASE_URL environment variables,
// and reused afterwards.
//
// Stream reassembles tool calls whose JSON arguments arrive split across chunks. A call is
// emitted once, in the chunk where a call with another id starts or where the stream finishes.
// Calls whose arguments never parse are dropped without an error (see WithToolCallDropHook).
package openai
