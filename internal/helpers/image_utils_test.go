package helpers

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firewatch-worker-go/internal/models"
)

func fill(f *models.Frame, b, g, r byte) {
	for i := 0; i < len(f.Data); i += 3 {
		f.Data[i], f.Data[i+1], f.Data[i+2] = b, g, r
	}
}

func TestScaledSize(t *testing.T) {
	cases := []struct {
		w, h, max      int
		wantW, wantH   int
	}{
		{1920, 1080, 960, 960, 540},
		{640, 480, 960, 640, 480},
		{640, 480, 0, 640, 480},
		{1000, 1, 10, 10, 1},
		{1280, 721, 640, 640, 360},
	}
	for _, c := range cases {
		w, h := ScaledSize(c.w, c.h, c.max)
		assert.Equal(t, c.wantW, w, "%dx%d max %d", c.w, c.h, c.max)
		assert.Equal(t, c.wantH, h, "%dx%d max %d", c.w, c.h, c.max)
	}
}

func TestRGBARoundTrip(t *testing.T) {
	f := models.NewFrame(3, 2)
	fill(f, 10, 20, 30)
	img := ToRGBA(f)
	assert.Equal(t, color.RGBA{R: 30, G: 20, B: 10, A: 255}, img.RGBAAt(2, 1))

	back := FromRGBA(img)
	assert.Equal(t, f.Data, back.Data)
}

func TestBGRAdapter(t *testing.T) {
	f := models.NewFrame(4, 4)
	b := NewBGR(f)
	b.Set(1, 2, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	assert.Equal(t, color.RGBA{R: 200, G: 100, B: 50, A: 255}, b.At(1, 2))

	i := 2*f.Stride() + 1*3
	assert.Equal(t, []byte{50, 100, 200}, f.Data[i:i+3])

	// Out of bounds writes are dropped.
	b.Set(10, 10, color.White)
	assert.Equal(t, color.RGBA{}, b.At(-1, 0))
}

func TestDownscalePreservesAspectAndColor(t *testing.T) {
	f := models.NewFrame(200, 100)
	fill(f, 0, 0, 255)
	f.Seq = 42

	out, err := NewResizer().Downscale(f, 50)
	require.NoError(t, err)
	assert.Equal(t, 50, out.Width)
	assert.Equal(t, 25, out.Height)
	assert.Equal(t, uint64(42), out.Seq)
	assert.True(t, out.Valid())
	// Solid colour survives resampling.
	assert.InDelta(t, 255, int(out.Data[2]), 1)
	assert.InDelta(t, 0, int(out.Data[0]), 1)
}

func TestDownscaleNoopWhenSmall(t *testing.T) {
	f := models.NewFrame(64, 48)
	out, err := NewResizer().Downscale(f, 960)
	require.NoError(t, err)
	assert.Same(t, f, out)
}

func TestDownscaleRejectsInvalid(t *testing.T) {
	_, err := NewResizer().Downscale(&models.Frame{Width: 10, Height: 10}, 5)
	assert.Error(t, err)
}

func TestOverlayDrawsIntoFrame(t *testing.T) {
	f := models.NewFrame(120, 80)
	o := NewOverlay()

	o.DrawDetections(f, []models.Detection{{Label: "fire", Score: 0.87, BBox: [4]int{10, 20, 60, 70}}})
	b := NewBGR(f)
	assert.Equal(t, BoxColor, b.At(10, 40))
	assert.Equal(t, BoxColor, b.At(30, 20))
	assert.Equal(t, color.RGBA{A: 255}, b.At(30, 40))

	before := append([]byte(nil), f.Data...)
	o.DrawLabel(f, "INF FPS: 30.0", image.Pt(5, 15))
	assert.NotEqual(t, before, f.Data)
}

func TestOverlaySkipsBoxesOutsideFrame(t *testing.T) {
	f := models.NewFrame(20, 20)
	NewOverlay().DrawDetections(f, []models.Detection{{Label: "smoke", BBox: [4]int{100, 100, 200, 200}}})
	assert.Equal(t, make([]byte, len(f.Data)), f.Data)
}

func TestLabelText(t *testing.T) {
	assert.Equal(t, "fire 0.87", LabelText(models.Detection{Label: "fire", Score: 0.871}))
}

func TestIsJPEGData(t *testing.T) {
	assert.True(t, IsJPEGData([]byte{0xFF, 0xD8, 0xFF}))
	assert.False(t, IsJPEGData([]byte{0x89, 'P'}))
	assert.False(t, IsJPEGData(nil))
}
