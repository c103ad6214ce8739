package adapter

import (
	"errors"
	"maps"
	"strings"

	"github.com/skosovsky/requesty"
	"github.com/skosovsky/requesty/internal/cast"
)

// Sentinel errors for adapter implementations. Callers should use errors.Is.
var (
	ErrUnsupportedContentType = errors.New("adapter: unsupported ContentPart type for this provider")
	ErrEmptyResponse          = errors.New("adapter: response contains no choices")
	ErrMalformedArgs          = errors.New("adapter: tool call args or tool parameters JSON is malformed")
	ErrUnsupportedFormat      = errors.New("adapter: unsupported response format")
)

// Well-known model config keys. KeyStop is validated by config and forwarded through Extra.
const (
	KeyTemperature = "temperature"
	KeyMaxTokens   = "max_tokens"
	KeyTopP        = "top_p"
	KeyStop        = "stop"
)

// ModelParams holds well-known model config keys extracted from a config map.
// Use ExtractModelConfig to populate from map[string]any.
type ModelParams struct {
	Temperature *float64
	MaxTokens   *int64
	TopP        *float64
	// Extra holds every key that is not temperature, max_tokens or top_p (stop included),
	// ready to be forwarded as passthrough options.
	Extra map[string]any
}

// TextFromParts extracts concatenated text from []ContentPart, ignoring non-text parts.
func TextFromParts(parts []requesty.ContentPart) string {
	var b strings.Builder
	for _, p := range parts {
		if t, ok := p.(requesty.TextPart); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// ExtractModelConfig reads well-known keys from cfg and returns typed ModelParams.
// Well-known keys: "temperature" (float64), "max_tokens" (int64), "top_p" (float64).
// Values of the wrong type are left in Extra untouched.
func ExtractModelConfig(cfg map[string]any) ModelParams {
	var out ModelParams
	if cfg == nil {
		return out
	}
	extra := maps.Clone(cfg)
	if v, ok := cfg[KeyTemperature]; ok {
		if f, ok := cast.ToFloat64(v); ok {
			out.Temperature = &f
			delete(extra, KeyTemperature)
		}
	}
	if v, ok := cfg[KeyMaxTokens]; ok {
		if i, ok := cast.ToInt64(v); ok {
			out.MaxTokens = &i
			delete(extra, KeyMaxTokens)
		}
	}
	if v, ok := cfg[KeyTopP]; ok {
		if f, ok := cast.ToFloat64(v); ok {
			out.TopP = &f
			delete(extra, KeyTopP)
		}
	}
	if len(extra) > 0 {
		out.Extra = extra
	}
	return out
}

// MergeOptions returns a new map with base overlaid by override. Nil when both are empty.
func MergeOptions(base, override map[string]any) map[string]any {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]any, len(base)+len(override))
	maps.Copy(out, base)
	maps.Copy(out, override)
	return out
}
