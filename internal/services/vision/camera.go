// Package vision holds everything that needs OpenCV: the capture device,
// area-interpolated resizing, overlay drawing, JPEG encoding and the DNN
// detector. Everything else in the pipeline works on plain BGR buffers.
package vision

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"firewatch-worker-go/internal/config"
	"firewatch-worker-go/internal/models"
	"firewatch-worker-go/internal/services/streamcapture"
)

// Camera is a FrameSource backed by cv::VideoCapture. Only the capture loop
// calls NextFrame.
type Camera struct {
	source string
	cap    *gocv.VideoCapture
	mat    gocv.Mat
	bgr    gocv.Mat

	closeOnce sync.Once
}

// OpenCamera opens a device index ("0"), a file path or a stream URL.
func OpenCamera(cfg *config.Config) (*Camera, error) {
	var device interface{} = cfg.VideoSource
	if idx, err := strconv.Atoi(cfg.VideoSource); err == nil {
		device = idx
	}

	cap, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open video source %q: %w", cfg.VideoSource, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("video source %q did not open", cfg.VideoSource)
	}

	cap.Set(gocv.VideoCaptureBufferSize, 1) // Minimal buffer
	if cfg.CaptureWidth > 0 {
		cap.Set(gocv.VideoCaptureFrameWidth, float64(cfg.CaptureWidth))
	}
	if cfg.CaptureHeight > 0 {
		cap.Set(gocv.VideoCaptureFrameHeight, float64(cfg.CaptureHeight))
	}
	if cfg.CaptureFPS > 0 {
		cap.Set(gocv.VideoCaptureFPS, float64(cfg.CaptureFPS))
	}

	log.Info().
		Str("source", cfg.VideoSource).
		Float64("fps", cap.Get(gocv.VideoCaptureFPS)).
		Float64("width", cap.Get(gocv.VideoCaptureFrameWidth)).
		Float64("height", cap.Get(gocv.VideoCaptureFrameHeight)).
		Msg("Video source opened")

	return &Camera{
		source: cfg.VideoSource,
		cap:    cap,
		mat:    gocv.NewMat(),
		bgr:    gocv.NewMat(),
	}, nil
}

// NextFrame blocks on the device for one frame.
func (c *Camera) NextFrame() (*models.Frame, error) {
	if ok := c.cap.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, streamcapture.ErrFrameUnavailable
	}

	src := c.mat
	switch c.mat.Channels() {
	case 3:
	case 4:
		gocv.CvtColor(c.mat, &c.bgr, gocv.ColorBGRAToBGR)
		src = c.bgr
	case 1:
		gocv.CvtColor(c.mat, &c.bgr, gocv.ColorGrayToBGR)
		src = c.bgr
	default:
		return nil, fmt.Errorf("unsupported channel count %d", c.mat.Channels())
	}

	return matToFrame(src), nil
}

func (c *Camera) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mat.Close()
		c.bgr.Close()
		err = c.cap.Close()
		log.Info().Str("source", c.source).Msg("Video source closed")
	})
	return err
}

// matToFrame copies a CV_8UC3 Mat into a Go-owned frame.
func matToFrame(m gocv.Mat) *models.Frame {
	return &models.Frame{
		Width:  m.Cols(),
		Height: m.Rows(),
		Data:   m.ToBytes(),
	}
}

// frameToMat wraps a frame's pixels in a Mat. The caller must Close it.
func frameToMat(f *models.Frame) (gocv.Mat, error) {
	if !f.Valid() {
		return gocv.NewMat(), fmt.Errorf("invalid frame %dx%d", f.Width, f.Height)
	}
	return gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
}
