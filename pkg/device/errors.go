package device

import "errors"

var (
	// ErrNotConnected is returned when no handset is attached.
	ErrNotConnected = errors.New("device: no handset connected")

	// ErrHandsetNotFound is returned when addressing an unknown handset.
	ErrHandsetNotFound = errors.New("device: handset not found")

	// ErrNoURL is returned by NewLink without a handset URL.
	ErrNoURL = errors.New("device: handset URL required")
)
