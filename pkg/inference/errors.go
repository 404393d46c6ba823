package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrNoBaseURL is returned when the service URL is missing.
var ErrNoBaseURL = errors.New("inference: base URL required")

// ErrorKind classifies transport failures.
type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindNetwork   ErrorKind = "network"
	KindStatus    ErrorKind = "status"
	KindMalformed ErrorKind = "malformed"
)

// TransportError is returned by every failed call. The tick that produced it
// is dropped; the caller keeps going.
type TransportError struct {
	Kind ErrorKind
	Op   string // "stream_infer", "infer", "health"

	// StatusCode and Message are set for KindStatus.
	StatusCode int
	Message    string

	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	switch {
	case e.Kind == KindStatus && e.Message != "":
		return fmt.Sprintf("inference %s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	case e.Kind == KindStatus:
		return fmt.Sprintf("inference %s: HTTP %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("inference %s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("inference %s: %s", e.Op, e.Kind)
	}
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsServerError returns true for HTTP 5xx.
func (e *TransportError) IsServerError() bool {
	return e.Kind == KindStatus && e.StatusCode >= 500 && e.StatusCode < 600
}

func kindOf(err error) (ErrorKind, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return "", false
}

// IsTimeout reports whether err is a request timeout.
func IsTimeout(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTimeout
}

// IsNetwork reports whether err is a connection-level failure.
func IsNetwork(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNetwork
}

// IsStatus reports whether err is a non-2xx HTTP response.
func IsStatus(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindStatus
}

// IsMalformed reports whether the response body could not be understood.
func IsMalformed(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindMalformed
}

// classify wraps an error from http.Client.Do.
func classify(op string, err error) *TransportError {
	kind := KindNetwork
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		kind = KindTimeout
	}
	return &TransportError{Kind: kind, Op: op, Err: err}
}

func malformed(op string, err error) *TransportError {
	return &TransportError{Kind: KindMalformed, Op: op, Err: err}
}
