package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"firewatch-worker-go/internal/models"
)

// Service answers snapshot requests for a fixed channel list. It holds no
// state shared with the frame pipeline.
type Service struct {
	source   Source
	channels []string
	timeout  time.Duration

	requests atomic.Uint64
	failures atomic.Uint64
}

// NewService builds the service. A nil source reports every channel as zero.
func NewService(source Source, channels []string, timeout time.Duration) *Service {
	return &Service{
		source:   source,
		channels: append([]string(nil), channels...),
		timeout:  timeout,
	}
}

func (s *Service) Channels() []string {
	return append([]string(nil), s.channels...)
}

// Snapshot queries every channel concurrently under one deadline.
func (s *Service) Snapshot(ctx context.Context) models.SensorSnapshot {
	s.requests.Add(1)

	snap := models.SensorSnapshot{
		Values:    make(map[string]float64, len(s.channels)),
		Timestamp: time.Now().UTC(),
	}
	for _, ch := range s.channels {
		snap.Values[ch] = 0
	}
	if s.source == nil {
		return snap
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	values := make([]float64, len(s.channels))
	errs := make([]error, len(s.channels))

	var g errgroup.Group
	for i, ch := range s.channels {
		g.Go(func() error {
			values[i], errs[i] = s.source.Read(ctx, ch)
			return nil
		})
	}
	_ = g.Wait()

	for i, ch := range s.channels {
		if errs[i] != nil {
			s.failures.Add(1)
			snap.Failed = append(snap.Failed, ch)
			log.Debug().Err(errs[i]).Str("channel", ch).Str("source", s.source.Name()).Msg("Telemetry read failed, reporting 0")
			continue
		}
		snap.Values[ch] = values[i]
	}
	return snap
}

// Stats returns request and per-channel failure counts.
func (s *Service) Stats() (requests, failures uint64) {
	return s.requests.Load(), s.failures.Load()
}
