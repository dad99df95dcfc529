package streamcapture

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firewatch-worker-go/internal/config"
	"firewatch-worker-go/internal/models"
	"firewatch-worker-go/internal/services/scheduling"
	"firewatch-worker-go/internal/services/slot"
)

// scriptedSource replays a fixed sequence of results, then reports no frame.
type scriptedSource struct {
	mu      sync.Mutex
	results []error
	calls   atomic.Int64
	closed  bool
}

func (s *scriptedSource) NextFrame() (*models.Frame, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return nil, ErrFrameUnavailable
	}
	err := s.results[0]
	s.results = s.results[1:]
	if err != nil {
		return nil, err
	}
	return models.NewFrame(4, 4), nil
}

func (s *scriptedSource) Close() error {
	s.closed = true
	return nil
}

type panicSource struct{ once sync.Once }

func (p *panicSource) NextFrame() (*models.Frame, error) {
	var panicked bool
	p.once.Do(func() { panicked = true })
	if panicked {
		panic("driver exploded")
	}
	return models.NewFrame(2, 2), nil
}

func (p *panicSource) Close() error { return nil }

func testConfig() *config.Config {
	return &config.Config{CaptureBackoff: time.Millisecond}
}

func runFor(t *testing.T, svc *Service, stop *scheduling.StopSignal, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		svc.Run()
		close(done)
	}()
	time.Sleep(d)
	stop.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("capture loop did not stop")
	}
}

func TestCapturePublishesFramesWithSequence(t *testing.T) {
	src := &scriptedSource{results: []error{nil, ErrFrameUnavailable, nil, nil}}
	raw := slot.New[models.Frame]("raw", (*models.Frame).Clone)
	stop := scheduling.NewStopSignal()
	svc := NewService(testConfig(), src, raw, stop)

	runFor(t, svc, stop, 50*time.Millisecond)

	f, ok := raw.Read()
	require.True(t, ok)
	assert.Equal(t, uint64(3), f.Seq)
	assert.False(t, f.CapturedAt.IsZero())

	st := svc.Stats()
	assert.Equal(t, uint64(3), st.FramesCaptured)
	assert.GreaterOrEqual(t, st.Unavailable, uint64(1))
	assert.Equal(t, uint64(0), st.Errors)
}

func TestCaptureSurvivesSourceErrors(t *testing.T) {
	src := &scriptedSource{results: []error{errors.New("usb glitch"), nil}}
	raw := slot.New[models.Frame]("raw", (*models.Frame).Clone)
	stop := scheduling.NewStopSignal()
	svc := NewService(testConfig(), src, raw, stop)

	runFor(t, svc, stop, 30*time.Millisecond)

	_, ok := raw.Read()
	assert.True(t, ok)
	assert.Equal(t, uint64(1), svc.Stats().Errors)
}

func TestCaptureRecoversFromPanic(t *testing.T) {
	raw := slot.New[models.Frame]("raw", (*models.Frame).Clone)
	stop := scheduling.NewStopSignal()
	svc := NewService(testConfig(), &panicSource{}, raw, stop)

	runFor(t, svc, stop, 30*time.Millisecond)

	_, ok := raw.Read()
	assert.True(t, ok)
	assert.Equal(t, uint64(1), svc.Stats().Errors)
}

func TestCaptureStopsBeforeFirstIteration(t *testing.T) {
	src := &scriptedSource{}
	raw := slot.New[models.Frame]("raw", (*models.Frame).Clone)
	stop := scheduling.NewStopSignal()
	stop.Stop()

	NewService(testConfig(), src, raw, stop).Run()
	assert.Equal(t, int64(0), src.calls.Load())
}

func TestTestPatternPacesFrames(t *testing.T) {
	now := time.Unix(0, 0)
	p := NewTestPattern(32, 8, 10)
	p.now = func() time.Time { return now }

	f, err := p.NextFrame()
	require.NoError(t, err)
	assert.True(t, f.Valid())

	_, err = p.NextFrame()
	assert.ErrorIs(t, err, ErrFrameUnavailable)

	now = now.Add(100 * time.Millisecond)
	_, err = p.NextFrame()
	assert.NoError(t, err)

	require.NoError(t, p.Close())
	now = now.Add(time.Second)
	_, err = p.NextFrame()
	assert.ErrorIs(t, err, ErrFrameUnavailable)
}

func TestRateMeter(t *testing.T) {
	m := NewRateMeter(5)
	assert.Equal(t, 0.0, m.Rate())

	base := time.Unix(100, 0)
	for i := 0; i < 12; i++ {
		m.Tick(base.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	assert.InDelta(t, 10.0, m.Rate(), 0.01)
}
