// Package config loads adapter settings from YAML (or JSON) files.
//
//	model: openai/gpt-4o-mini
//	model_config: {temperature: 0.2, max_tokens: 512, stop: ["END"], seed: 7}
//	session: {base_url: https://router.requesty.ai/v1, api_key_env: REQUESTY_API_KEY, max_retries: 3, timeout: 30s}
//	structured_output: true
//	context_window: 128000
//
// Well-known model_config keys become typed adapter options; every other key, stop included,
// is forwarded with each request as a passthrough option.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/skosovsky/requesty"
	"github.com/skosovsky/requesty/adapter"
	"github.com/skosovsky/requesty/adapter/openai"
	"github.com/skosovsky/requesty/internal/cast"
)

// ErrInvalidConfig is returned when a config file cannot be decoded or holds invalid values.
var ErrInvalidConfig = errors.New("config: invalid config")

// Config is the file shape.
type Config struct {
	Model            string                    `yaml:"model"`
	ModelConfig      map[string]any            `yaml:"model_config"`
	Session          Session                   `yaml:"session"`
	StructuredOutput *bool                     `yaml:"structured_output"`
	StreamUsage      bool                      `yaml:"stream_usage"`
	ContextWindow    int                       `yaml:"context_window"`
	Tools            []requesty.ToolDefinition `yaml:"tools"`
}

// Session configures how the adapter reaches the router.
type Session struct {
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	MaxRetries *int   `yaml:"max_retries"`
	// Timeout accepts "30s" style strings or a number of seconds.
	Timeout any `yaml:"timeout"`
}

// ParseBytes decodes and validates a config document.
func ParseBytes(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ParseFile reads and parses a config file.
func ParseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return ParseBytes(data)
}

// ParseFS reads and parses a config file from fsys (e.g. embed.FS).
func ParseFS(fsys fs.FS, name string) (*Config, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("config: read fs: %w", err)
	}
	return ParseBytes(data)
}

// Validate checks value types that YAML decoding cannot.
func (c *Config) Validate() error {
	for _, key := range []string{adapter.KeyTemperature, adapter.KeyTopP} {
		if v, ok := c.ModelConfig[key]; ok {
			if _, ok := cast.ToFloat64(v); !ok {
				return fmt.Errorf("%w: model_config.%s: want a number, got %T", ErrInvalidConfig, key, v)
			}
		}
	}
	if v, ok := c.ModelConfig[adapter.KeyMaxTokens]; ok {
		if n, ok := cast.ToInt64(v); !ok || n <= 0 {
			return fmt.Errorf("%w: model_config.%s: want a positive integer, got %v", ErrInvalidConfig, adapter.KeyMaxTokens, v)
		}
	}
	if v, ok := c.ModelConfig[adapter.KeyStop]; ok {
		if _, ok := cast.ToStringSlice(v); !ok {
			return fmt.Errorf("%w: model_config.%s: want a list of strings", ErrInvalidConfig, adapter.KeyStop)
		}
	}
	if c.Session.Timeout != nil {
		if _, ok := cast.ToDuration(c.Session.Timeout); !ok {
			return fmt.Errorf("%w: session.timeout: %v", ErrInvalidConfig, c.Session.Timeout)
		}
	}
	if c.Session.MaxRetries != nil && *c.Session.MaxRetries < 0 {
		return fmt.Errorf("%w: session.max_retries must not be negative", ErrInvalidConfig)
	}
	if c.ContextWindow < 0 {
		return fmt.Errorf("%w: context_window must not be negative", ErrInvalidConfig)
	}
	for i, t := range c.Tools {
		if t.Name == "" {
			return fmt.Errorf("%w: tools[%d]: missing name", ErrInvalidConfig, i)
		}
	}
	return nil
}

// Options converts the config into adapter options. Unset fields keep adapter defaults.
// The API key is read from session.api_key_env now; an empty value leaves the adapter's
// own environment lookup in place.
func (c *Config) Options() []openai.Option {
	var opts []openai.Option
	if c.Model != "" {
		opts = append(opts, openai.WithModel(c.Model))
	}
	mp := adapter.ExtractModelConfig(c.ModelConfig)
	if mp.Temperature != nil {
		opts = append(opts, openai.WithTemperature(*mp.Temperature))
	}
	if mp.TopP != nil {
		opts = append(opts, openai.WithTopP(*mp.TopP))
	}
	if mp.MaxTokens != nil {
		opts = append(opts, openai.WithMaxTokens(*mp.MaxTokens))
	}
	if len(mp.Extra) > 0 {
		opts = append(opts, openai.WithAdditionalChatOptions(mp.Extra))
	}

	if c.Session.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(c.Session.BaseURL))
	}
	if c.Session.APIKeyEnv != "" {
		if key := os.Getenv(c.Session.APIKeyEnv); key != "" {
			opts = append(opts, openai.WithAPIKey(key))
		}
	}
	if c.Session.MaxRetries != nil {
		opts = append(opts, openai.WithMaxRetries(*c.Session.MaxRetries))
	}
	if d, ok := cast.ToDuration(c.Session.Timeout); ok && d > 0 {
		opts = append(opts, openai.WithTimeout(d))
	}

	if c.StructuredOutput != nil {
		opts = append(opts, openai.WithStructuredOutput(*c.StructuredOutput))
	}
	if c.StreamUsage {
		opts = append(opts, openai.WithStreamUsage(true))
	}
	if c.ContextWindow > 0 {
		opts = append(opts, openai.WithContextWindow(c.ContextWindow))
	}
	return opts
}
