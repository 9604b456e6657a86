package detect

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"
)

type wireDetection struct {
	Label string    `json:"label"`
	Class string    `json:"class"`
	Score float64   `json:"score"`
	Box   []float64 `json:"box"`
}

// Parse decodes detector output. It accepts a bare JSON array or an object
// with a "detections" array. Each entry names its class as "label" or "class".
func Parse(output []byte, boxFormat string) ([]Detection, error) {
	output = bytes.TrimSpace(output)
	if len(output) == 0 {
		return nil, errors.New("detector produced no output")
	}

	var wire []wireDetection
	if output[0] == '{' {
		var envelope struct {
			Detections []wireDetection `json:"detections"`
		}
		if err := json.Unmarshal(output, &envelope); err != nil {
			return nil, fmt.Errorf("decode detector output: %w", err)
		}
		wire = envelope.Detections
	} else if err := json.Unmarshal(output, &wire); err != nil {
		return nil, fmt.Errorf("decode detector output: %w", err)
	}

	detections := make([]Detection, 0, len(wire))
	for i, w := range wire {
		if len(w.Box) != 4 {
			return nil, fmt.Errorf("detection %d: box has %d values, want 4", i, len(w.Box))
		}
		label := strings.TrimSpace(w.Label)
		if label == "" {
			label = strings.TrimSpace(w.Class)
		}
		box, err := toRect(w.Box, boxFormat)
		if err != nil {
			return nil, fmt.Errorf("detection %d: %w", i, err)
		}
		detections = append(detections, Detection{Label: label, Score: w.Score, Box: box})
	}
	return detections, nil
}

func toRect(v []float64, boxFormat string) (image.Rectangle, error) {
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return image.Rectangle{}, errors.New("box contains non-finite value")
		}
	}
	x0, y0 := int(math.Floor(v[0])), int(math.Floor(v[1]))
	switch boxFormat {
	case BoxXYWH:
		return image.Rect(x0, y0, int(math.Ceil(v[0]+v[2])), int(math.Ceil(v[1]+v[3]))), nil
	case BoxXYXY, "":
		return image.Rect(x0, y0, int(math.Ceil(v[2])), int(math.Ceil(v[3]))), nil
	default:
		return image.Rectangle{}, fmt.Errorf("unsupported box format %q", boxFormat)
	}
}
