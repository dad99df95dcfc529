package streamcapture

import (
	"errors"

	"firewatch-worker-go/internal/models"
)

// ErrFrameUnavailable is returned by a FrameSource when no frame is ready
// yet. It is a polling gap, not a failure.
var ErrFrameUnavailable = errors.New("frame unavailable")

// FrameSource yields decoded frames from a camera, file or generator.
// It is owned by a single capture loop and never called concurrently.
type FrameSource interface {
	NextFrame() (*models.Frame, error)
	Close() error
}
