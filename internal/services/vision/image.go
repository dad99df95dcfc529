package vision

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"firewatch-worker-go/internal/helpers"
	"firewatch-worker-go/internal/models"
	"firewatch-worker-go/internal/services/jpegenc"
)

var (
	captionColor = color.RGBA{G: 255, A: 255}
	boxColor     = color.RGBA{R: 255, G: 64, A: 255}
)

// Resizer downscales with INTER_AREA, which avoids aliasing when shrinking.
type Resizer struct{}

func (Resizer) Downscale(f *models.Frame, maxWidth int) (*models.Frame, error) {
	w, h := helpers.ScaledSize(f.Width, f.Height, maxWidth)
	if w == f.Width && h == f.Height {
		return f, nil
	}

	src, err := frameToMat(f)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(src, &dst, image.Pt(w, h), 0, 0, gocv.InterpolationArea)

	out := matToFrame(dst)
	out.Seq = f.Seq
	out.CapturedAt = f.CapturedAt
	return out, nil
}

// Annotator draws with OpenCV's Hershey fonts.
type Annotator struct {
	FontScale float64
	Thickness int
}

func NewAnnotator() *Annotator {
	return &Annotator{FontScale: 0.6, Thickness: 2}
}

func (a *Annotator) DrawDetections(f *models.Frame, detections []models.Detection) {
	if len(detections) == 0 {
		return
	}
	a.draw(f, func(m *gocv.Mat) {
		for _, d := range detections {
			r := d.Rect()
			gocv.Rectangle(m, r, boxColor, a.Thickness)

			y := r.Min.Y - 6
			if y < 12 {
				y = r.Min.Y + 16
			}
			gocv.PutText(m, helpers.LabelText(d), image.Pt(r.Min.X, y), gocv.FontHersheySimplex, a.FontScale, boxColor, a.Thickness)
		}
	})
}

func (a *Annotator) DrawLabel(f *models.Frame, text string, pt image.Point) {
	a.draw(f, func(m *gocv.Mat) {
		gocv.PutText(m, text, pt, gocv.FontHersheySimplex, 1.0, captionColor, a.Thickness)
	})
}

// draw runs fn on a Mat view of f and copies the pixels back.
func (a *Annotator) draw(f *models.Frame, fn func(m *gocv.Mat)) {
	m, err := frameToMat(f)
	if err != nil {
		return
	}
	defer m.Close()
	fn(&m)
	copy(f.Data, m.ToBytes())
}

// Encoder is the OpenCV imencode JPEG path.
type Encoder struct{}

func (Encoder) Name() string { return "opencv" }

func (Encoder) Encode(f *models.Frame, quality int) ([]byte, error) {
	if !f.Valid() {
		return nil, jpegenc.ErrEmptyFrame
	}
	m, err := frameToMat(f)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, m, []int{gocv.IMWriteJpegQuality, jpegenc.ClampQuality(quality)})
	if err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	defer buf.Close()

	b := buf.GetBytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}
