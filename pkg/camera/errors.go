package camera

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady means the device is open but has no frame yet.
	ErrNotReady = errors.New("camera: not ready")

	// ErrCaptureUnavailable means the device could not produce a frame.
	ErrCaptureUnavailable = errors.New("camera: capture unavailable")

	// ErrPermissionDenied means the user or the OS refused camera access.
	ErrPermissionDenied = errors.New("camera: permission denied")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("camera: closed")
)

// CaptureError records which step of a capture failed.
type CaptureError struct {
	Source string // capturer name, e.g. "webcam" or "dir"
	Op     string // "open", "read", "encode"
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("camera %s: %s: %v", e.Source, e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// WrapError builds a CaptureError, or returns nil when err is nil.
func WrapError(source, op string, err error) error {
	if err == nil {
		return nil
	}
	return &CaptureError{Source: source, Op: op, Err: err}
}

// IsSkippable reports whether the scheduler should simply drop this tick.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrNotReady) || errors.Is(err, ErrCaptureUnavailable)
}
