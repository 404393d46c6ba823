// Command lazarillo streams camera frames to an object-detection service and
// turns the nearest detections into spoken and haptic alerts.
//
// Usage:
//
//	lazarillo run --config lazarillo.yaml
//	lazarillo infer photo.jpg
//	lazarillo check
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
