// Package scheduling holds the timing primitives shared by the pipeline
// loops and the stream writers.
package scheduling

import (
	"time"
)

// Pacer enforces a maximum iteration rate. Each Wait sleeps for whatever is
// left of the interval since the previous iteration started. When the work
// overran the interval it returns immediately and does not try to catch up.
type Pacer struct {
	interval time.Duration
	last     time.Time

	now   func() time.Time
	sleep func(done <-chan struct{}, d time.Duration) bool
}

// NewPacer returns a pacer for rateHz iterations per second. A non-positive
// rate disables pacing.
func NewPacer(rateHz float64) *Pacer {
	return &Pacer{
		interval: IntervalFor(rateHz),
		now:      time.Now,
		sleep:    Sleep,
	}
}

// IntervalFor converts a rate in Hz to the minimum spacing between iterations.
func IntervalFor(rateHz float64) time.Duration {
	if rateHz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / rateHz)
}

func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Remaining returns how long the caller must still wait at instant now.
func (p *Pacer) Remaining(now time.Time) time.Duration {
	if p.last.IsZero() || p.interval <= 0 {
		return 0
	}
	left := p.interval - now.Sub(p.last)
	if left < 0 {
		return 0
	}
	return left
}

// Wait blocks until the next iteration may start and marks its start time.
// It returns false if done was closed while waiting.
func (p *Pacer) Wait(done <-chan struct{}) bool {
	if left := p.Remaining(p.now()); left > 0 {
		if !p.sleep(done, left) {
			return false
		}
	}
	p.last = p.now()
	return true
}

// Reset forgets the previous iteration so the next Wait returns immediately.
func (p *Pacer) Reset() {
	p.last = time.Time{}
}
