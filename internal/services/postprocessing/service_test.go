package postprocessing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firewatch-worker-go/internal/config"
	"firewatch-worker-go/internal/models"
)

type recordingPublisher struct {
	subjects []string
	events   []models.DetectionEvent
	err      error
}

func (p *recordingPublisher) Publish(subject string, data interface{}) error {
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.events = append(p.events, data.(models.DetectionEvent))
	return nil
}

func newTestService(t *testing.T, pub *recordingPublisher) (*Service, *time.Time) {
	t.Helper()
	cfg := &config.Config{WorkerID: "w1", AlertsSubject: "firewatch.detections", AlertsCooldown: 10 * time.Second}
	svc, err := NewService(cfg, pub)
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return now }
	return svc, &now
}

func frameWith(seq uint64, dets ...models.Detection) *models.AnnotatedFrame {
	return &models.AnnotatedFrame{SourceSeq: seq, Detections: dets, InferenceFPS: 12}
}

func TestNewServiceRequiresPublisher(t *testing.T) {
	_, err := NewService(&config.Config{}, nil)
	assert.Error(t, err)
}

func TestBuildEventsGroupsByLabel(t *testing.T) {
	svc, _ := newTestService(t, &recordingPublisher{})
	events := svc.BuildEvents(frameWith(9,
		models.Detection{Label: "smoke", Score: 0.4},
		models.Detection{Label: "fire", Score: 0.6},
		models.Detection{Label: "fire", Score: 0.9},
	))

	require.Len(t, events, 2)
	assert.Equal(t, "fire", events[0].Label)
	assert.Equal(t, 2, events[0].Count)
	assert.InDelta(t, 0.9, events[0].MaxScore, 1e-6)
	assert.Equal(t, "smoke", events[1].Label)
	assert.Equal(t, uint64(9), events[1].FrameSeq)
	assert.Equal(t, "w1", events[1].WorkerID)
}

func TestHandleAnnotatedAppliesCooldown(t *testing.T) {
	pub := &recordingPublisher{}
	svc, now := newTestService(t, pub)
	fire := models.Detection{Label: "fire", Score: 0.8}

	svc.HandleAnnotated(frameWith(1, fire))
	svc.HandleAnnotated(frameWith(2, fire))
	*now = now.Add(11 * time.Second)
	svc.HandleAnnotated(frameWith(3, fire))

	require.Len(t, pub.events, 2)
	assert.Equal(t, uint64(1), pub.events[0].FrameSeq)
	assert.Equal(t, uint64(3), pub.events[1].FrameSeq)
	assert.Equal(t, []string{"firewatch.detections", "firewatch.detections"}, pub.subjects)

	published, suppressed, failed := svc.Stats()
	assert.Equal(t, uint64(2), published)
	assert.Equal(t, uint64(1), suppressed)
	assert.Zero(t, failed)
}

func TestHandleAnnotatedIgnoresEmptyFrames(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newTestService(t, pub)
	svc.HandleAnnotated(nil)
	svc.HandleAnnotated(frameWith(1))
	assert.Empty(t, pub.events)
}

func TestPublishFailureDoesNotStartCooldown(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats down")}
	svc, _ := newTestService(t, pub)
	svc.HandleAnnotated(frameWith(1, models.Detection{Label: "fire"}))

	_, _, failed := svc.Stats()
	assert.Equal(t, uint64(1), failed)
	assert.True(t, svc.CheckCooldown("fire"))
}
