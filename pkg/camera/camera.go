// Package camera captures still frames and prepares them for upload.
//
// A Capturer yields one compressed JPEG per call. Sources decode into an
// image.Image and hand it to an Encoder, which downsizes and re-encodes the
// frame so every upload stays small regardless of the sensor resolution.
package camera

import (
	"context"
	"time"

	"github.com/teslashibe/go-lazarillo/pkg/settings"
)

// Frame is a single compressed still image.
type Frame struct {
	Data       []byte    // JPEG bytes
	CapturedAt time.Time // when the sensor produced the image
	Width      int
	Height     int
}

// Empty reports whether the frame carries no image data.
func (f Frame) Empty() bool {
	return len(f.Data) == 0
}

// Capturer produces frames on demand.
type Capturer interface {
	// Capture grabs and encodes one frame. Errors wrap ErrNotReady,
	// ErrCaptureUnavailable or ErrPermissionDenied.
	Capture(ctx context.Context) (Frame, error)

	// Close releases the underlying device.
	Close() error
}

// FacingSwitcher is implemented by capturers that can switch between the
// front and back camera.
type FacingSwitcher interface {
	SetFacing(f settings.Facing) error
}

// PermissionRequester is implemented by capturers that need the user's
// consent before the first capture.
type PermissionRequester interface {
	RequestPermission(ctx context.Context) error
}
