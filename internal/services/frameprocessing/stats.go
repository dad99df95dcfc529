package frameprocessing

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Stats is a snapshot of inference loop activity.
type Stats struct {
	Iterations            uint64    `json:"iterations"`
	EmptyReads            uint64    `json:"empty_reads"`
	Skipped               uint64    `json:"skipped"`
	Inferred              uint64    `json:"inferred"`
	Failures              uint64    `json:"failures"`
	LastInferenceFPS      float64   `json:"last_inference_fps"`
	MeanLatencyMs         float64   `json:"mean_latency_ms"`
	P95LatencyMs          float64   `json:"p95_latency_ms"`
	LastInferenceAt       time.Time `json:"last_inference_at"`
	Device                string    `json:"device"`
	MaxInferenceFPS       float64   `json:"max_inference_fps"`
	FrameSkip             int       `json:"frame_skip"`
	EffectiveInferenceFPS float64   `json:"effective_inference_fps"`
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	mean, p95 := s.latencies.Summary()
	st := Stats{
		LastInferenceFPS: s.lastFPS,
		MeanLatencyMs:    mean,
		P95LatencyMs:     p95,
		LastInferenceAt:  s.lastAt,
	}
	s.mu.Unlock()

	st.Iterations = s.iterations.Load()
	st.EmptyReads = s.emptyReads.Load()
	st.Skipped = s.skipped.Load()
	st.Inferred = s.inferred.Load()
	st.Failures = s.failures.Load()
	st.Device = s.device
	st.MaxInferenceFPS = s.cfg.MaxInferenceFPS
	st.FrameSkip = int(s.skip)
	st.EffectiveInferenceFPS = s.cfg.EffectiveInferenceFPS()
	return st
}

// LatencyWindow keeps the most recent inference durations in milliseconds.
// It is not safe for concurrent use.
type LatencyWindow struct {
	samples []float64
	next    int
	full    bool
}

func NewLatencyWindow(size int) *LatencyWindow {
	if size < 1 {
		size = 1
	}
	return &LatencyWindow{samples: make([]float64, size)}
}

func (w *LatencyWindow) Add(d time.Duration) {
	w.samples[w.next] = float64(d) / float64(time.Millisecond)
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

func (w *LatencyWindow) Len() int {
	if w.full {
		return len(w.samples)
	}
	return w.next
}

// Summary returns the mean and 95th percentile of the window.
func (w *LatencyWindow) Summary() (mean, p95 float64) {
	n := w.Len()
	if n == 0 {
		return 0, 0
	}
	sorted := make([]float64, n)
	copy(sorted, w.samples[:n])
	sort.Float64s(sorted)
	return stat.Mean(sorted, nil), stat.Quantile(0.95, stat.Empirical, sorted, nil)
}
