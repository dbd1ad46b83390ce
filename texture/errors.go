package texture

import (
	"errors"
	"fmt"
)

var (
	ErrTranscode       = errors.New("texture transcode failed")
	ErrToolUnavailable = errors.New("transcoder tool not configured")
	ErrUnsupportedKTX2 = errors.New("unsupported KTX2 payload")
)

// TranscodeError wraps the failure of one image. It matches both ErrTranscode
// and the underlying cause.
type TranscodeError struct {
	Image    int
	Name     string
	MimeType string
	Err      error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("image %d %q (%s): %v", e.Image, e.Name, e.MimeType, e.Err)
}

func (e *TranscodeError) Unwrap() []error {
	return []error{ErrTranscode, e.Err}
}
