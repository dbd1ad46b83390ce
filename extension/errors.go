package extension

import (
	"errors"
	"fmt"
)

var (
	ErrNotWritable        = errors.New("extension must be removed prior to writing")
	ErrDanglingTextureRef = errors.New("dangling texture reference")
	ErrInvalidState       = errors.New("extension is not in a writable state")
	ErrUnknownExtension   = errors.New("unknown extension")
)

// WriteError reports a write dispatched to an upstream-only extension.
type WriteError struct {
	Name string
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, ErrNotWritable)
}

func (e *WriteError) Unwrap() error { return ErrNotWritable }

type RefError struct {
	Extension string
	Owner     int
	Path      string
	Index     int
	Source    int
}

func (e *RefError) Error() string {
	if e.Source >= 0 {
		return fmt.Sprintf("%s[%d] %s: texture source %d no longer present", e.Extension, e.Owner, e.Path, e.Source)
	}
	return fmt.Sprintf("%s[%d] %s: texture index %d does not resolve to a source", e.Extension, e.Owner, e.Path, e.Index)
}

func (e *RefError) Unwrap() error { return ErrDanglingTextureRef }
