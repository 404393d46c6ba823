// Package webcam captures frames from a local video device through OpenCV.
package webcam

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-lazarillo/internal/log"
	"github.com/teslashibe/go-lazarillo/pkg/camera"
	"github.com/teslashibe/go-lazarillo/pkg/settings"
)

// Config selects the devices used for each facing.
type Config struct {
	BackDevice  int
	FrontDevice int
	Logger      *slog.Logger
}

// Webcam is a camera.Capturer backed by gocv.VideoCapture.
// The device is opened lazily on the first capture or permission request.
type Webcam struct {
	cfg     Config
	encoder *camera.Encoder
	logger  *slog.Logger

	mu     sync.Mutex
	cap    *gocv.VideoCapture
	img    gocv.Mat
	facing settings.Facing
	closed bool
}

// New creates a webcam capturer. Encoder options control the upload size.
func New(cfg Config, opts ...camera.Option) (*Webcam, error) {
	enc, err := camera.NewEncoder(opts...)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Component("webcam")
	}
	return &Webcam{
		cfg:     cfg,
		encoder: enc,
		logger:  logger,
		img:     gocv.NewMat(),
		facing:  settings.FacingBack,
	}, nil
}

// RequestPermission opens the device. Failing to open is reported as a
// denied permission since the OS gives no finer signal through OpenCV.
func (w *Webcam) RequestPermission(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return camera.ErrClosed
	}
	return w.openLocked()
}

// SetFacing switches devices. The new device is opened on the next capture.
func (w *Webcam) SetFacing(f settings.Facing) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if f == w.facing {
		return nil
	}
	w.facing = f
	w.releaseLocked()
	w.logger.Info("camera facing changed", "facing", f, "device", w.deviceLocked())
	return nil
}

// Capture reads one frame from the device.
func (w *Webcam) Capture(ctx context.Context) (camera.Frame, error) {
	if err := ctx.Err(); err != nil {
		return camera.Frame{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return camera.Frame{}, camera.ErrClosed
	}
	if err := w.openLocked(); err != nil {
		return camera.Frame{}, err
	}

	if ok := w.cap.Read(&w.img); !ok {
		return camera.Frame{}, camera.WrapError("webcam", "read", camera.ErrCaptureUnavailable)
	}
	if w.img.Empty() {
		return camera.Frame{}, camera.WrapError("webcam", "read", camera.ErrNotReady)
	}
	capturedAt := time.Now()

	img, err := w.img.ToImage()
	if err != nil {
		return camera.Frame{}, camera.WrapError("webcam", "encode", fmt.Errorf("%w: %v", camera.ErrCaptureUnavailable, err))
	}
	frame, err := w.encoder.Encode(img, capturedAt)
	if err != nil {
		return camera.Frame{}, camera.WrapError("webcam", "encode", fmt.Errorf("%w: %v", camera.ErrCaptureUnavailable, err))
	}
	return frame, nil
}

// Close releases the device and the frame buffer.
func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.releaseLocked()
	return w.img.Close()
}

func (w *Webcam) deviceLocked() int {
	if w.facing == settings.FacingFront {
		return w.cfg.FrontDevice
	}
	return w.cfg.BackDevice
}

func (w *Webcam) openLocked() error {
	if w.cap != nil {
		return nil
	}
	dev := w.deviceLocked()
	vc, err := gocv.OpenVideoCapture(dev)
	if err != nil {
		return camera.WrapError("webcam", "open", fmt.Errorf("%w: device %d: %v", camera.ErrPermissionDenied, dev, err))
	}
	if !vc.IsOpened() {
		vc.Close()
		return camera.WrapError("webcam", "open", fmt.Errorf("%w: device %d", camera.ErrPermissionDenied, dev))
	}
	w.cap = vc
	w.logger.Info("camera opened", "device", dev, "facing", w.facing)
	return nil
}

func (w *Webcam) releaseLocked() {
	if w.cap == nil {
		return
	}
	if err := w.cap.Close(); err != nil {
		w.logger.Warn("camera close failed", "error", err)
	}
	w.cap = nil
}

var (
	_ camera.Capturer            = (*Webcam)(nil)
	_ camera.FacingSwitcher      = (*Webcam)(nil)
	_ camera.PermissionRequester = (*Webcam)(nil)
)
