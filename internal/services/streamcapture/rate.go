package streamcapture

import (
	"sync"
	"time"
)

// RateMeter estimates an event rate from a rolling window of timestamps.
type RateMeter struct {
	mu     sync.Mutex
	times  []time.Time
	next   int
	filled bool
}

// NewRateMeter keeps the last window timestamps.
func NewRateMeter(window int) *RateMeter {
	if window < 2 {
		window = 2
	}
	return &RateMeter{times: make([]time.Time, window)}
}

// Tick records an event at t.
func (m *RateMeter) Tick(t time.Time) {
	m.mu.Lock()
	m.times[m.next] = t
	m.next = (m.next + 1) % len(m.times)
	if m.next == 0 {
		m.filled = true
	}
	m.mu.Unlock()
}

// Rate returns events per second over the window, or 0 with fewer than two events.
func (m *RateMeter) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.next
	oldest := m.times[0]
	newest := m.times[(m.next-1+len(m.times))%len(m.times)]
	if m.filled {
		count = len(m.times)
		oldest = m.times[m.next]
	}
	if count < 2 {
		return 0
	}
	span := newest.Sub(oldest).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(count-1) / span
}
