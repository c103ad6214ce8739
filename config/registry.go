package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"sync"
)

var (
	// ErrProfileNotFound is returned when no file matches a profile name.
	ErrProfileNotFound = errors.New("config: profile not found")
	// ErrInvalidName is returned for profile names or environments that are not plain identifiers.
	ErrInvalidName = errors.New("config: invalid profile name")
)

// Registry resolves named profiles from fsys (os.DirFS or embed.FS), lazily and cached.
// A profile name+env resolves to {name}.{env}.yaml (or .yml), falling back to {name}.yaml.
// Safe for concurrent use.
type Registry struct {
	fsys fs.FS
	root string

	mu    sync.RWMutex
	cache map[string]*Config
}

// NewRegistry returns a Registry reading profiles under root in fsys ("." for the top level).
func NewRegistry(fsys fs.FS, root string) *Registry {
	return &Registry{fsys: fsys, root: root, cache: make(map[string]*Config)}
}

// Get returns a copy of the profile, so callers may modify it.
func (r *Registry) Get(ctx context.Context, name, env string) (*Config, error) {
	if err := validateName(name, env); err != nil {
		return nil, err
	}
	key := name + ":" + env
	r.mu.RLock()
	c, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return c.clone(), nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.cache[key]; ok {
		return c.clone(), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var candidates []string
	if env != "" {
		candidates = append(candidates, name+"."+env+".yaml", name+"."+env+".yml")
	}
	candidates = append(candidates, name+".yaml", name+".yml")
	for _, file := range candidates {
		c, err := ParseFS(r.fsys, path.Join(r.root, file))
		if err == nil {
			r.cache[key] = c
			return c.clone(), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
}

// Reload clears the cache.
func (r *Registry) Reload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.cache)
}

func validateName(name, env string) error {
	for _, s := range []string{name, env} {
		if strings.ContainsAny(s, `/\.:`) || strings.TrimSpace(s) != s {
			return fmt.Errorf("%w: %q", ErrInvalidName, s)
		}
	}
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	return nil
}

func (c *Config) clone() *Config {
	out := *c
	out.ModelConfig = cloneMap(c.ModelConfig)
	out.Tools = slices.Clone(c.Tools)
	for i := range out.Tools {
		out.Tools[i].Parameters = cloneMap(c.Tools[i].Parameters)
	}
	out.Session.Timeout = cloneValue(c.Session.Timeout)
	if c.StructuredOutput != nil {
		v := *c.StructuredOutput
		out.StructuredOutput = &v
	}
	if c.Session.MaxRetries != nil {
		v := *c.Session.MaxRetries
		out.Session.MaxRetries = &v
	}
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the containers yaml.v3 decodes into. Scalars are returned as is.
func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(x)
	default:
		return v
	}
}
