package pipeline

import (
	"firewatch-worker-go/internal/services/frameprocessing"
	"firewatch-worker-go/internal/services/slot"
	"firewatch-worker-go/internal/services/streamcapture"
)

// Stats aggregates capture, inference and slot counters.
type Stats struct {
	Capture   streamcapture.Stats   `json:"capture"`
	Inference frameprocessing.Stats `json:"inference"`
	Slots     []slot.Stats          `json:"slots"`
	StreamFPS float64               `json:"stream_fps"`
	Running   bool                  `json:"running"`
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Capture:   p.capture.Stats(),
		Inference: p.inference.Stats(),
		Slots:     []slot.Stats{p.raw.Stats(), p.annotated.Stats()},
		StreamFPS: p.cfg.StreamFPS,
		Running:   p.Running(),
	}
}

// Running reports whether Start was called and Stop has not been.
func (p *Pipeline) Running() bool {
	return p.started.Load() && !p.stop.Stopped()
}
