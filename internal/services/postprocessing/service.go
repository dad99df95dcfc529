// Package postprocessing turns annotated frames into detection events on the
// message bus, rate limited per label.
package postprocessing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"firewatch-worker-go/internal/config"
	"firewatch-worker-go/internal/models"
)

// Service publishes one event per label at most once per cooldown.
type Service struct {
	cfg        *config.Config
	publisher  models.MessagePublisher
	cooldownMu sync.RWMutex
	lastSent   map[string]time.Time
	cooldown   time.Duration
	now        func() time.Time

	published  atomic.Uint64
	suppressed atomic.Uint64
	failed     atomic.Uint64
}

func NewService(cfg *config.Config, publisher models.MessagePublisher) (*Service, error) {
	if publisher == nil {
		return nil, fmt.Errorf("message publisher is required")
	}

	s := &Service{
		cfg:       cfg,
		publisher: publisher,
		lastSent:  make(map[string]time.Time),
		cooldown:  cfg.AlertsCooldown,
		now:       time.Now,
	}

	log.Info().
		Str("subject", cfg.AlertsSubject).
		Dur("cooldown", s.cooldown).
		Msg("Post-processing service initialized")

	return s, nil
}

// HandleAnnotated is registered as an inference observer.
func (s *Service) HandleAnnotated(frame *models.AnnotatedFrame) {
	if frame == nil || len(frame.Detections) == 0 {
		return
	}

	for _, ev := range s.BuildEvents(frame) {
		if !s.CheckCooldown(ev.Label) {
			s.suppressed.Add(1)
			continue
		}
		if err := s.publisher.Publish(s.cfg.AlertsSubject, ev); err != nil {
			s.failed.Add(1)
			log.Warn().Err(err).Str("label", ev.Label).Msg("Failed to publish detection event")
			continue
		}
		s.UpdateCooldown(ev.Label)
		s.published.Add(1)
		log.Info().
			Str("label", ev.Label).
			Int("count", ev.Count).
			Float32("max_score", ev.MaxScore).
			Uint64("frame_seq", ev.FrameSeq).
			Msg("Detection event published")
	}
}

// BuildEvents groups the detections of one frame by label, ordered by label.
func (s *Service) BuildEvents(frame *models.AnnotatedFrame) []models.DetectionEvent {
	byLabel := make(map[string]*models.DetectionEvent)
	for _, det := range frame.Detections {
		ev, ok := byLabel[det.Label]
		if !ok {
			ev = &models.DetectionEvent{
				WorkerID:     s.cfg.WorkerID,
				Label:        det.Label,
				FrameSeq:     frame.SourceSeq,
				InferenceFPS: frame.InferenceFPS,
				Timestamp:    s.now().UTC(),
			}
			byLabel[det.Label] = ev
		}
		ev.Count++
		if det.Score > ev.MaxScore {
			ev.MaxScore = det.Score
		}
	}

	events := make([]models.DetectionEvent, 0, len(byLabel))
	for _, ev := range byLabel {
		events = append(events, *ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Label < events[j].Label })
	return events
}

// CheckCooldown reports whether label may be published now.
func (s *Service) CheckCooldown(label string) bool {
	s.cooldownMu.RLock()
	defer s.cooldownMu.RUnlock()

	lastSent, exists := s.lastSent[label]
	if !exists {
		return true
	}
	return s.now().Sub(lastSent) >= s.cooldown
}

func (s *Service) UpdateCooldown(label string) {
	s.cooldownMu.Lock()
	defer s.cooldownMu.Unlock()

	s.lastSent[label] = s.now()
}

// Stats returns published, cooldown-suppressed and failed event counts.
func (s *Service) Stats() (published, suppressed, failed uint64) {
	return s.published.Load(), s.suppressed.Load(), s.failed.Load()
}

func (s *Service) Shutdown(ctx context.Context) error {
	log.Info().Msg("Post-processing service shutdown")
	return nil
}
