// Package requesty defines the provider-agnostic chat abstraction used by agent frameworks:
// roles, multimodal content parts, tool calls, tool definitions, response formats and the
// LLM interface with non-streaming and pull-based streaming chat.
//
// Provider implementations live under adapter/ (see adapter/openai for the Requesty router).
package requesty
