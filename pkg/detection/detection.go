// Package detection narrows the service's object list down to the few
// obstacles worth announcing.
package detection

import (
	"fmt"
	"sort"

	"github.com/teslashibe/go-lazarillo/pkg/inference"
)

// Policy holds the filtering thresholds.
type Policy struct {
	MaxDistanceMeters float64 // objects farther than this are ignored
	MaxCount          int     // at most this many objects are kept
	MinConfidence     float64 // 0 disables the confidence gate
}

// DefaultPolicy returns the reference thresholds: 10m, two objects.
func DefaultPolicy() Policy {
	return Policy{
		MaxDistanceMeters: 10,
		MaxCount:          2,
	}
}

// Validate checks that the thresholds are usable.
func (p Policy) Validate() []string {
	var errs []string
	if p.MaxDistanceMeters <= 0 {
		errs = append(errs, fmt.Sprintf("max distance must be > 0, got %g", p.MaxDistanceMeters))
	}
	if p.MaxCount < 1 {
		errs = append(errs, fmt.Sprintf("max count must be >= 1, got %d", p.MaxCount))
	}
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		errs = append(errs, fmt.Sprintf("min confidence must be 0-1, got %g", p.MinConfidence))
	}
	return errs
}

// Apply filters objects with this policy.
func (p Policy) Apply(objects []inference.DetectedObject) []inference.DetectedObject {
	if p.MinConfidence <= 0 {
		return Filter(objects, p.MaxDistanceMeters, p.MaxCount)
	}
	confident := make([]inference.DetectedObject, 0, len(objects))
	for _, o := range objects {
		// Objects without a reported confidence are kept.
		if o.Confidence == 0 || o.Confidence >= p.MinConfidence {
			confident = append(confident, o)
		}
	}
	return Filter(confident, p.MaxDistanceMeters, p.MaxCount)
}

// Filter keeps objects no farther than maxDistance, nearest first, and at
// most maxCount of them. Equal distances keep their input order. The input
// slice is never modified and the result is never nil.
func Filter(objects []inference.DetectedObject, maxDistance float64, maxCount int) []inference.DetectedObject {
	out := make([]inference.DetectedObject, 0, len(objects))
	for _, o := range objects {
		if o.DistanceMeters <= maxDistance {
			out = append(out, o)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceMeters < out[j].DistanceMeters
	})

	if maxCount < 0 {
		maxCount = 0
	}
	if len(out) > maxCount {
		out = out[:maxCount]
	}
	return out
}

// Nearest returns the closest object, or nil when there is none.
func Nearest(objects []inference.DetectedObject) *inference.DetectedObject {
	if len(objects) == 0 {
		return nil
	}
	best := &objects[0]
	for i := range objects[1:] {
		if objects[i+1].DistanceMeters < best.DistanceMeters {
			best = &objects[i+1]
		}
	}
	return best
}
