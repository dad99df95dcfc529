package models

import (
	"image"
	"time"
)

// Detection is a single object reported by a detector, in the pixel
// coordinates of the frame that was submitted for inference.
type Detection struct {
	ClassID int     `json:"class_id"`
	Label   string  `json:"label"`
	Score   float32 `json:"score"`
	BBox    [4]int  `json:"bbox"` // x1, y1, x2, y2
}

// Rect returns the bounding box as an image.Rectangle.
func (d Detection) Rect() image.Rectangle {
	return image.Rect(d.BBox[0], d.BBox[1], d.BBox[2], d.BBox[3])
}

// DetectParams carries the per-call knobs handed to a detector.
type DetectParams struct {
	Confidence    float32
	NMSThreshold  float32
	MaxDetections int
	Device        string
}

// DetectionResult is what a detector returns for one frame. Overlay is
// optional: detectors that render their own annotations set it, otherwise
// the pipeline draws Detections itself.
type DetectionResult struct {
	Detections []Detection
	Overlay    *Frame
	Device     string
}

// DetectionEvent is published to the message bus when a label is seen.
type DetectionEvent struct {
	WorkerID     string    `json:"worker_id"`
	Label        string    `json:"label"`
	Count        int       `json:"count"`
	MaxScore     float32   `json:"max_score"`
	FrameSeq     uint64    `json:"frame_seq"`
	InferenceFPS float64   `json:"inference_fps"`
	Timestamp    time.Time `json:"timestamp"`
}

// MessagePublisher publishes messages to the bus.
type MessagePublisher interface {
	Publish(subject string, data interface{}) error
}
