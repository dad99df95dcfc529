package detection

import (
	"image"
	"math"
	"strconv"
)

// Candidate is a raw model box before non-maximum suppression.
type Candidate struct {
	ClassID int
	Score   float32
	Box     image.Rectangle
}

// DecodeYOLO reads a YOLOv8-style output tensor laid out as
// [1, 4+classes, boxes]: rows 0..3 hold cx, cy, w, h in model input pixels,
// the remaining rows hold per-class scores. Boxes are scaled by scaleX and
// scaleY and clipped to a frameW x frameH frame.
func DecodeYOLO(out []float32, attrs, boxes int, confidence float32, scaleX, scaleY float64, frameW, frameH int) []Candidate {
	if attrs < 5 || boxes <= 0 || len(out) < attrs*boxes {
		return nil
	}
	bounds := image.Rect(0, 0, frameW, frameH)

	var cands []Candidate
	for i := 0; i < boxes; i++ {
		best, bestScore := -1, float32(0)
		for c := 4; c < attrs; c++ {
			if s := out[c*boxes+i]; s > bestScore {
				best, bestScore = c-4, s
			}
		}
		if best < 0 || bestScore < confidence {
			continue
		}

		cx := float64(out[i]) * scaleX
		cy := float64(out[boxes+i]) * scaleY
		w := float64(out[2*boxes+i]) * scaleX
		h := float64(out[3*boxes+i]) * scaleY

		box := image.Rect(
			int(math.Round(cx-w/2)), int(math.Round(cy-h/2)),
			int(math.Round(cx+w/2)), int(math.Round(cy+h/2)),
		).Intersect(bounds)
		if box.Empty() {
			continue
		}
		cands = append(cands, Candidate{ClassID: best, Score: bestScore, Box: box})
	}
	return cands
}

// ClassLabel names a class id, falling back to "class_<id>".
func ClassLabel(classes []string, id int) string {
	if id >= 0 && id < len(classes) {
		return classes[id]
	}
	return "class_" + strconv.Itoa(id)
}
