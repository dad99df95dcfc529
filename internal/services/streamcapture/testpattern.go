package streamcapture

import (
	"sync"
	"time"

	"firewatch-worker-go/internal/models"
)

// TestPattern is a synthetic FrameSource: a solid background with a bright
// bar that sweeps across the image, delivered at a fixed rate. It stands in
// for a camera in development and tests.
type TestPattern struct {
	width  int
	height int
	period time.Duration

	mu     sync.Mutex
	next   time.Time
	frame  int
	closed bool

	now func() time.Time
}

// NewTestPattern creates a source producing width x height frames at fps.
func NewTestPattern(width, height, fps int) *TestPattern {
	if fps <= 0 {
		fps = 30
	}
	return &TestPattern{
		width:  width,
		height: height,
		period: time.Second / time.Duration(fps),
		now:    time.Now,
	}
}

// NextFrame returns ErrFrameUnavailable until the next frame is due.
func (p *TestPattern) NextFrame() (*models.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrFrameUnavailable
	}
	now := p.now()
	if now.Before(p.next) {
		return nil, ErrFrameUnavailable
	}
	if p.next.IsZero() || now.Sub(p.next) > p.period {
		p.next = now
	}
	p.next = p.next.Add(p.period)

	f := models.NewFrame(p.width, p.height)
	f.CapturedAt = now
	p.paint(f)
	p.frame++
	return f, nil
}

func (p *TestPattern) paint(f *models.Frame) {
	barWidth := p.width / 16
	if barWidth < 1 {
		barWidth = 1
	}
	barX := (p.frame * 4) % p.width
	stride := f.Stride()
	for y := 0; y < p.height; y++ {
		row := f.Data[y*stride : (y+1)*stride]
		for x := 0; x < p.width; x++ {
			i := x * models.BytesPerPixel
			if x >= barX && x < barX+barWidth {
				row[i], row[i+1], row[i+2] = 0, 200, 255
			} else {
				row[i], row[i+1], row[i+2] = 60, 40, 30
			}
		}
	}
}

// Close stops the source; subsequent reads report no frame.
func (p *TestPattern) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
