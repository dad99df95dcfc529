package helpers

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"firewatch-worker-go/internal/models"
)

// BGR adapts a BGR24 frame to draw.Image so the x/image drawing and font
// packages can paint straight into the frame buffer.
type BGR struct {
	frame *models.Frame
}

// NewBGR wraps f without copying.
func NewBGR(f *models.Frame) *BGR {
	return &BGR{frame: f}
}

func (b *BGR) ColorModel() color.Model { return color.RGBAModel }

func (b *BGR) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.frame.Width, b.frame.Height)
}

func (b *BGR) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(b.Bounds())) {
		return color.RGBA{}
	}
	i := y*b.frame.Stride() + x*models.BytesPerPixel
	d := b.frame.Data
	return color.RGBA{R: d[i+2], G: d[i+1], B: d[i], A: 0xff}
}

func (b *BGR) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}.In(b.Bounds())) {
		return
	}
	r, g, bl, _ := c.RGBA()
	i := y*b.frame.Stride() + x*models.BytesPerPixel
	d := b.frame.Data
	d[i], d[i+1], d[i+2] = uint8(bl>>8), uint8(g>>8), uint8(r>>8)
}

// ToRGBA converts a BGR24 frame to an RGBA image.
func ToRGBA(f *models.Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	src := f.Data
	dst := img.Pix
	for p, q := 0, 0; p+2 < len(src); p, q = p+3, q+4 {
		dst[q] = src[p+2]
		dst[q+1] = src[p+1]
		dst[q+2] = src[p]
		dst[q+3] = 0xff
	}
	return img
}

// FromRGBA converts an RGBA image back to a BGR24 frame.
func FromRGBA(img *image.RGBA) *models.Frame {
	b := img.Bounds()
	f := models.NewFrame(b.Dx(), b.Dy())
	for y := 0; y < f.Height; y++ {
		srcRow := img.Pix[(y)*img.Stride : (y)*img.Stride+f.Width*4]
		dstRow := f.Data[y*f.Stride() : (y+1)*f.Stride()]
		for p, q := 0, 0; q < len(dstRow); p, q = p+4, q+3 {
			dstRow[q] = srcRow[p+2]
			dstRow[q+1] = srcRow[p+1]
			dstRow[q+2] = srcRow[p]
		}
	}
	return f
}

// ScaledSize returns the size a width x height image takes after being
// limited to maxWidth, preserving aspect ratio. maxWidth <= 0 disables it.
func ScaledSize(width, height, maxWidth int) (int, int) {
	if maxWidth <= 0 || width <= maxWidth {
		return width, height
	}
	scale := float64(maxWidth) / float64(width)
	newHeight := int(float64(height) * scale)
	if newHeight < 1 {
		newHeight = 1
	}
	return maxWidth, newHeight
}

// Resizer downscales frames in pure Go. The Catmull-Rom kernel widens its
// support when shrinking, which averages over the source area like OpenCV's
// INTER_AREA and avoids aliasing.
type Resizer struct {
	Kernel *draw.Kernel
}

// NewResizer returns a Catmull-Rom resizer.
func NewResizer() *Resizer {
	return &Resizer{Kernel: draw.CatmullRom}
}

// Downscale returns f unchanged when it already fits maxWidth, otherwise a
// new frame carrying f's sequence number and capture time.
func (r *Resizer) Downscale(f *models.Frame, maxWidth int) (*models.Frame, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("cannot resize invalid frame %dx%d (%d bytes)", f.Width, f.Height, len(f.Data))
	}
	w, h := ScaledSize(f.Width, f.Height, maxWidth)
	if w == f.Width && h == f.Height {
		return f, nil
	}

	src := ToRGBA(f)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	r.Kernel.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := FromRGBA(dst)
	out.Seq = f.Seq
	out.CapturedAt = f.CapturedAt
	return out, nil
}

// IsJPEGData checks if the byte slice contains JPEG data by checking magic bytes
func IsJPEGData(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	// JPEG magic bytes: FF D8
	return data[0] == 0xFF && data[1] == 0xD8
}
