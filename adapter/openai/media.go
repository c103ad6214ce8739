package openai

import (
	"context"
	"slices"
	"strings"

	"github.com/skosovsky/requesty"
	"github.com/skosovsky/requesty/mediafetch"
)

// resolveMedia downloads URL-only PDF files and images of user messages so they can be sent inline.
// Image URLs that are already data URIs are left as they are.
// msgs is not modified; a copy is returned when anything was downloaded.
func (l *LLM) resolveMedia(ctx context.Context, msgs []requesty.ChatMessage) ([]requesty.ChatMessage, error) {
	var out []requesty.ChatMessage
	cloned := make(map[int]bool)
	for i, m := range msgs {
		if !carriesParts(m) {
			continue
		}
		for j, p := range m.Content {
			resolved, ok, err := l.download(ctx, p)
			if err != nil {
				return nil, &requesty.ContentError{Message: i, Part: j, Kind: partKind(p), Err: err}
			}
			if !ok {
				continue
			}
			if out == nil {
				out = slices.Clone(msgs)
			}
			if !cloned[i] {
				out[i].Content = slices.Clone(m.Content)
				cloned[i] = true
			}
			out[i].Content[j] = resolved
		}
	}
	if out == nil {
		return msgs, nil
	}
	return out, nil
}

// download fetches the data of a URL-only part. ok is false when p needs no download.
func (l *LLM) download(ctx context.Context, p requesty.ContentPart) (requesty.ContentPart, bool, error) {
	var (
		fetcher *mediafetch.Fetcher
		rawURL  string
	)
	switch x := p.(type) {
	case requesty.FilePart:
		if len(x.Data) > 0 || x.URL == "" {
			return nil, false, nil
		}
		fetcher, rawURL = l.media, x.URL
	case requesty.MediaPart:
		if len(x.Data) > 0 || x.URL == "" || strings.HasPrefix(x.URL, "data:") {
			return nil, false, nil
		}
		fetcher, rawURL = l.images, x.URL
	default:
		return nil, false, nil
	}

	res, err := fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, false, err
	}
	l.logger.DebugContext(ctx, "requesty: downloaded media", "url", rawURL, "bytes", len(res.Data))

	switch x := p.(type) {
	case requesty.FilePart:
		x.Data = res.Data
		return x, true, nil
	case requesty.MediaPart:
		x.Data = res.Data
		if x.MIMEType == "" {
			x.MIMEType = res.ContentType
		}
		return x, true, nil
	}
	return nil, false, nil
}

func partKind(p requesty.ContentPart) string {
	switch x := p.(type) {
	case requesty.FilePart:
		return x.MIMEType
	case requesty.MediaPart:
		return string(x.Kind)
	}
	return ""
}
