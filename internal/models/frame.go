package models

import (
	"time"
)

// BytesPerPixel is fixed: every frame in the pipeline is packed BGR24.
const BytesPerPixel = 3

// Frame is a single decoded image captured from the video source.
// Once handed to a slot it must not be modified; readers work on clones.
type Frame struct {
	Seq        uint64    `json:"seq"`
	CapturedAt time.Time `json:"captured_at"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Data       []byte    `json:"-"` // BGR24, row-major, Stride() bytes per row
}

// NewFrame allocates a black frame of the given size.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Data:   make([]byte, width*height*BytesPerPixel),
	}
}

// Stride returns the number of bytes per row.
func (f *Frame) Stride() int {
	return f.Width * BytesPerPixel
}

// Valid reports whether the frame has a positive size and a buffer that matches it.
func (f *Frame) Valid() bool {
	return f != nil && f.Width > 0 && f.Height > 0 && len(f.Data) == f.Width*f.Height*BytesPerPixel
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	c := *f
	c.Data = make([]byte, len(f.Data))
	copy(c.Data, f.Data)
	return &c
}

// AnnotatedFrame is a frame with the detection overlay and the inference
// rate caption already burned into its pixels.
type AnnotatedFrame struct {
	Frame

	SourceSeq         uint64        `json:"source_seq"`
	Detections        []Detection   `json:"detections"`
	InferenceFPS      float64       `json:"inference_fps"`
	InferenceDuration time.Duration `json:"inference_duration"`
	Device            string        `json:"device,omitempty"`
}

// Clone returns a deep copy, including the detection list.
func (a *AnnotatedFrame) Clone() *AnnotatedFrame {
	if a == nil {
		return nil
	}
	c := *a
	c.Frame = *a.Frame.Clone()
	if a.Detections != nil {
		c.Detections = make([]Detection, len(a.Detections))
		copy(c.Detections, a.Detections)
	}
	return &c
}
