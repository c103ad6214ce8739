// Package schema turns Go types into JSON Schema documents for structured output and tool
// parameters, and validates JSON replies against such schemas.
//
// Reflect follows OpenAI strict-mode conventions: every field without omitempty is required,
// additional properties are forbidden and definitions are inlined. Use `jsonschema:"..."` tags
// (see github.com/invopop/jsonschema) for descriptions and enums.
package schema
