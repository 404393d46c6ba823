package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // FileSource accepts PNG stills too
	"time"

	"golang.org/x/image/draw"
)

// Encoder downsizes images and compresses them to JPEG.
type Encoder struct {
	config Config
}

// NewEncoder creates an encoder with the given options.
func NewEncoder(opts ...Option) (*Encoder, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera: invalid encoder config: %v", errs)
	}
	return &Encoder{config: cfg}, nil
}

// Config returns the encoder settings.
func (e *Encoder) Config() Config {
	return e.config
}

// Encode scales img to the configured width and returns a JPEG frame.
func (e *Encoder) Encode(img image.Image, capturedAt time.Time) (Frame, error) {
	scaled := e.scale(img)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: e.config.Quality}); err != nil {
		return Frame{}, fmt.Errorf("jpeg encode: %w", err)
	}

	b := scaled.Bounds()
	return Frame{
		Data:       buf.Bytes(),
		CapturedAt: capturedAt,
		Width:      b.Dx(),
		Height:     b.Dy(),
	}, nil
}

// Reencode decodes any registered image format and runs it through Encode.
func (e *Encoder) Reencode(data []byte, capturedAt time.Time) (Frame, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("decode image: %w", err)
	}
	return e.Encode(img, capturedAt)
}

func (e *Encoder) scale(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if e.config.Width == 0 || w <= e.config.Width || w == 0 {
		return img
	}

	nh := h * e.config.Width / w
	if nh < 1 {
		nh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, e.config.Width, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
