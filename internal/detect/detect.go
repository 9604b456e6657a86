package detect

import (
	"image"
	"slices"

	"betamode/internal/config"
)

// Box formats understood by Parse.
const (
	BoxXYXY = "xyxy"
	BoxXYWH = "xywh"
)

// Detection is one labeled region.
type Detection struct {
	Label string
	Score float64
	Box   image.Rectangle
}

// Filter keeps detections whose label is in labels and whose score is at
// least minScore. Labels are compared in canonical form.
func Filter(detections []Detection, labels []string, minScore float64) []Detection {
	wanted := config.NormalizeLabels(labels)
	out := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if d.Score < minScore {
			continue
		}
		if !slices.Contains(wanted, config.NormalizeLabel(d.Label)) {
			continue
		}
		if d.Box.Empty() {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Boxes returns the rectangles of detections.
func Boxes(detections []Detection) []image.Rectangle {
	boxes := make([]image.Rectangle, 0, len(detections))
	for _, d := range detections {
		boxes = append(boxes, d.Box)
	}
	return boxes
}
