// Package inference talks to the remote object-detection service.
//
// The streaming path posts one base64 JPEG per call to /stream_infer and
// returns the detected objects with their distance and direction. A
// secondary multipart endpoint, /infer, analyses a single uploaded image.
// Neither call retries: the next scheduler tick is the retry.
package inference

import (
	"context"
	"strings"
	"time"

	"github.com/teslashibe/go-lazarillo/pkg/camera"
)

// Transport sends frames to the detection service.
type Transport interface {
	Send(ctx context.Context, frame camera.Frame) (*Result, error)
}

// Direction is the horizontal position of an object relative to the user.
type Direction string

const (
	DirectionLeft    Direction = "left"
	DirectionCenter  Direction = "center"
	DirectionRight   Direction = "right"
	DirectionUnknown Direction = "unknown"
)

// ParseDirection normalizes the server's direction word. The detection
// service answers in Spanish ("izquierda", "frente", "derecha"); English
// words are accepted as well.
func ParseDirection(s string) Direction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "izquierda":
		return DirectionLeft
	case "center", "centre", "front", "ahead", "frente", "centro":
		return DirectionCenter
	case "right", "derecha":
		return DirectionRight
	default:
		return DirectionUnknown
	}
}

// DetectedObject is one object reported by the service.
type DetectedObject struct {
	Label          string    `json:"label"`
	DistanceMeters float64   `json:"distance_m"`
	Direction      Direction `json:"direction"`
	Confidence     float64   `json:"confidence,omitempty"`
	Class          int       `json:"cls,omitempty"`
	Bounds         *Rect     `json:"bounds,omitempty"`
}

// Rect is a pixel bounding box in the uploaded frame.
type Rect struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Width returns the box width.
func (r Rect) Width() int { return r.X2 - r.X1 }

// Height returns the box height.
func (r Rect) Height() int { return r.Y2 - r.Y1 }

// Box is a region reported by the single-shot endpoint.
type Box struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	Label      string  `json:"label"`
	Area       float64 `json:"area,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Result is the outcome of one completed request.
type Result struct {
	// OK is false when the service answered but declined to run inference.
	// Such a result carries no objects and is not an error.
	OK bool `json:"ok"`

	// Reason holds the service's explanation when OK is false.
	Reason string `json:"reason,omitempty"`

	// Overlay is the annotated JPEG, nil when the service sent none.
	Overlay []byte `json:"-"`

	Objects []DetectedObject `json:"objects"`
	Boxes   []Box            `json:"boxes,omitempty"`

	// Alert and Near are optional hints some server builds include.
	Alert string `json:"alert,omitempty"`
	Near  bool   `json:"near,omitempty"`

	RequestID string        `json:"request_id,omitempty"`
	Latency   time.Duration `json:"latency"`
}

// HasOverlay reports whether the result carries an annotated image.
func (r *Result) HasOverlay() bool {
	return r != nil && len(r.Overlay) > 0
}
