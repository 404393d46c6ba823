package session

import "errors"

var (
	// ErrInvalidTransition is returned when an action is not allowed in the
	// current state, such as stopping while idle.
	ErrInvalidTransition = errors.New("session: invalid transition")

	// ErrPermissionDenied is returned when the camera permission was refused.
	// The machine stays Idle and RetryPermission may be called.
	ErrPermissionDenied = errors.New("session: camera permission denied")
)
