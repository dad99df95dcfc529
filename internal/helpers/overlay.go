package helpers

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"firewatch-worker-go/internal/models"
)

var (
	CaptionColor = color.RGBA{G: 255, A: 255}
	BoxColor     = color.RGBA{R: 255, G: 64, A: 255}
)

// Overlay draws detection boxes and captions in pure Go using the fixed
// 7x13 bitmap face.
type Overlay struct {
	Face      font.Face
	Thickness int
}

func NewOverlay() *Overlay {
	return &Overlay{Face: basicfont.Face7x13, Thickness: 2}
}

// DrawDetections outlines each detection and writes its label above the box.
func (o *Overlay) DrawDetections(f *models.Frame, detections []models.Detection) {
	dst := NewBGR(f)
	for _, d := range detections {
		r := d.Rect().Intersect(dst.Bounds())
		if r.Empty() {
			continue
		}
		o.drawRect(dst, r)

		labelY := r.Min.Y - 4
		if labelY < o.Face.Metrics().Ascent.Ceil() {
			labelY = r.Min.Y + o.Face.Metrics().Ascent.Ceil() + 2
		}
		o.drawString(dst, LabelText(d), image.Pt(r.Min.X+2, labelY), BoxColor)
	}
}

// DrawLabel writes text with its baseline at pt.
func (o *Overlay) DrawLabel(f *models.Frame, text string, pt image.Point) {
	o.drawString(NewBGR(f), text, pt, CaptionColor)
}

func (o *Overlay) drawRect(dst *BGR, r image.Rectangle) {
	t := o.Thickness
	if t < 1 {
		t = 1
	}
	for i := 0; i < t; i++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.Set(x, r.Min.Y+i, BoxColor)
			dst.Set(x, r.Max.Y-1-i, BoxColor)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			dst.Set(r.Min.X+i, y, BoxColor)
			dst.Set(r.Max.X-1-i, y, BoxColor)
		}
	}
}

func (o *Overlay) drawString(dst *BGR, text string, pt image.Point, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: o.Face,
		Dot:  fixed.P(pt.X, pt.Y),
	}
	d.DrawString(text)
}

// LabelText renders "label 0.87".
func LabelText(d models.Detection) string {
	return fmt.Sprintf("%s %.2f", d.Label, d.Score)
}
