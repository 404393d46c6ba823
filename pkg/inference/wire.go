package inference

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
)

type streamRequest struct {
	FrameB64 string `json:"frame_b64"`
}

type wireObject struct {
	Label      string   `json:"label"`
	DistanceM  *float64 `json:"distance_m"`
	Direction  string   `json:"direction"`
	Conf       *float64 `json:"conf"`
	Confidence *float64 `json:"confidence"`
	Cls        *float64 `json:"cls"`
	X1         *float64 `json:"x1"`
	Y1         *float64 `json:"y1"`
	X2         *float64 `json:"x2"`
	Y2         *float64 `json:"y2"`
}

// wireResponse keeps the optional hint fields raw. Server builds disagree
// on their types, and a hint that does not parse must not drop the tick.
type wireResponse struct {
	OK         bool            `json:"ok"`
	Error      string          `json:"error"`
	OverlayB64 string          `json:"overlay_jpg_b64"`
	Objects    []wireObject    `json:"objects"`
	Boxes      json.RawMessage `json:"boxes"`
	Alerta     json.RawMessage `json:"alerta"`
	Alert      json.RawMessage `json:"alert"`
	Near       json.RawMessage `json:"near"`
}

// toResult converts the decoded body. Objects without a distance cannot be
// ranked and are given an infinite distance so every filter drops them.
func (w *wireResponse) toResult() (*Result, error) {
	res := &Result{
		OK:      w.OK,
		Reason:  w.Error,
		Objects: []DetectedObject{},
	}
	res.Alert, _ = hint(w.Alerta)
	if res.Alert == "" {
		res.Alert, _ = hint(w.Alert)
	}
	_, res.Near = hint(w.Near)
	if !w.OK {
		return res, nil
	}

	if w.OverlayB64 != "" {
		overlay, err := base64.StdEncoding.DecodeString(w.OverlayB64)
		if err != nil {
			return nil, fmt.Errorf("decode overlay: %w", err)
		}
		res.Overlay = overlay
	}

	for _, o := range w.Objects {
		res.Objects = append(res.Objects, o.toObject())
	}
	res.Boxes = decodeBoxes(w.Boxes)
	return res, nil
}

// hint reads a loosely typed flag. Strings keep their text; any non-empty,
// non-zero or true value sets the flag.
func hint(raw json.RawMessage) (string, bool) {
	var v any
	if len(bytes.TrimSpace(raw)) == 0 || json.Unmarshal(raw, &v) != nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, t != ""
	case bool:
		return "", t
	case float64:
		return "", t != 0
	case []any:
		return "", len(t) > 0
	case map[string]any:
		return "", len(t) > 0
	default:
		return "", false
	}
}

// decodeBoxes accepts a list of box objects or of [x, y, w, h] arrays.
// Entries in any other shape are skipped.
func decodeBoxes(raw json.RawMessage) []Box {
	var items []json.RawMessage
	if len(bytes.TrimSpace(raw)) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil
	}
	var boxes []Box
	for _, item := range items {
		var b Box
		if json.Unmarshal(item, &b) == nil {
			boxes = append(boxes, b)
			continue
		}
		var xywh []float64
		if json.Unmarshal(item, &xywh) == nil && len(xywh) >= 4 {
			boxes = append(boxes, Box{X: xywh[0], Y: xywh[1], W: xywh[2], H: xywh[3]})
		}
	}
	return boxes
}

func pixel(v *float64) int {
	return int(math.Round(*v))
}

func (o wireObject) toObject() DetectedObject {
	obj := DetectedObject{
		Label:          o.Label,
		DistanceMeters: math.Inf(1),
		Direction:      ParseDirection(o.Direction),
	}
	if o.DistanceM != nil {
		obj.DistanceMeters = *o.DistanceM
	}
	switch {
	case o.Conf != nil:
		obj.Confidence = *o.Conf
	case o.Confidence != nil:
		obj.Confidence = *o.Confidence
	}
	if o.Cls != nil {
		obj.Class = pixel(o.Cls)
	}
	if o.X1 != nil && o.Y1 != nil && o.X2 != nil && o.Y2 != nil {
		obj.Bounds = &Rect{X1: pixel(o.X1), Y1: pixel(o.Y1), X2: pixel(o.X2), Y2: pixel(o.Y2)}
	}
	return obj
}
