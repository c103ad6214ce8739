// Package mediafetch provides safe URL download for content the router only accepts inline
// (base64 data URIs), such as PDF documents referenced by URL.
package mediafetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultMaxBodySize is the default limit for media download (20 MiB).
	DefaultMaxBodySize = 20 << 20
)

var (
	// ErrUnsafeScheme is returned when the URL scheme is not https.
	ErrUnsafeScheme = errors.New("mediafetch: only https scheme is allowed")
	// ErrBodyTooLarge is returned when the response exceeds the size limit.
	ErrBodyTooLarge = errors.New("mediafetch: response body exceeds size limit")
	// ErrUnsupportedType is returned when Content-Type is not allowed.
	ErrUnsupportedType = errors.New("mediafetch: unsupported content type")
)

// AllowedDocumentPrefixes are Content-Type prefixes accepted for documents. Do not modify.
var AllowedDocumentPrefixes = []string{"application/pdf", "application/octet-stream"}

// AllowedImagePrefixes are Content-Type prefixes accepted for image media (e.g. "image/png"). Do not modify.
var AllowedImagePrefixes = []string{"image/"}

// DefaultClient is the HTTP client used when a Fetcher has none. Override in tests (e.g. httptest TLS client).
var DefaultClient = http.DefaultClient

// Result is a downloaded body with its media type (parameters stripped).
type Result struct {
	Data        []byte
	ContentType string
}

// Fetcher downloads media with a size limit and a Content-Type allow-list.
// Concurrent fetches of the same URL share one download. Safe for concurrent use.
type Fetcher struct {
	Client   *http.Client
	MaxBytes int64
	allowed  []string
	sf       singleflight.Group
}

// NewFetcher returns a Fetcher accepting the given Content-Type prefixes (none means any).
func NewFetcher(allowedPrefixes ...string) *Fetcher {
	return &Fetcher{MaxBytes: DefaultMaxBodySize, allowed: allowedPrefixes}
}

// Fetch downloads rawURL. Only https is allowed. An empty Content-Type is accepted.
// A shared download is not canceled by any single caller; each caller stops waiting when its own ctx is done.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	shared := context.WithoutCancel(ctx)
	ch := f.sf.DoChan(rawURL, func() (any, error) {
		return f.fetch(shared, rawURL)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	}
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (Result, error) {
	maxBytes := f.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	client := f.Client
	if client == nil {
		client = DefaultClient
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, fmt.Errorf("mediafetch: parse URL: %w", err)
	}
	if u.Scheme != "https" {
		return Result{}, ErrUnsafeScheme
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("mediafetch: new request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("mediafetch: do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("mediafetch: status %s", resp.Status)
	}
	contentType, _, _ := strings.Cut(resp.Header.Get("Content-Type"), ";")
	contentType = strings.TrimSpace(contentType)
	if contentType != "" && !f.accepts(contentType) {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return Result{}, fmt.Errorf("mediafetch: read body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return Result{}, ErrBodyTooLarge
	}
	return Result{Data: data, ContentType: contentType}, nil
}

func (f *Fetcher) accepts(contentType string) bool {
	if len(f.allowed) == 0 {
		return true
	}
	for _, prefix := range f.allowed {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}
