package requesty

import (
	"errors"
	"fmt"
)

// Sentinel errors for message validation and chat dispatch.
// All use prefix "requesty:" for identification. Callers should use errors.Is/errors.As.
var (
	ErrUnsupportedMedia = errors.New("requesty: audio and video are not supported")
	ErrUnsupportedFile  = errors.New("requesty: only PDF files are supported")
	ErrEmptyMedia       = errors.New("requesty: media part has neither data nor URL")
	ErrNoMessages       = errors.New("requesty: chat requires at least one message")
)

// ContentError wraps a sentinel error with the position of the offending content part.
// Use errors.Is(err, ErrUnsupportedMedia) and errors.As(err, &contentErr) to inspect.
type ContentError struct {
	Message int    // index in ChatParams.Messages
	Part    int    // index in ChatMessage.Content
	Kind    string // media kind or MIME type that was rejected
	Err     error
}

// Error implements error.
func (e *ContentError) Error() string {
	return fmt.Sprintf("requesty: message %d part %d (%s): %v", e.Message, e.Part, e.Kind, e.Err)
}

// Unwrap returns the wrapped error for errors.Is/errors.As.
func (e *ContentError) Unwrap() error { return e.Err }

// Compile-time check that ContentError implements error.
var _ error = (*ContentError)(nil)
