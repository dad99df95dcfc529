package scheduling

import (
	"sync"
	"sync/atomic"
	"time"
)

// StopSignal is the process-wide cooperative stop flag. Loops check Stopped
// at the top of every iteration; an in-flight device read or inference call
// is never interrupted, only the next iteration is skipped. Done lets loops
// cut their own sleeps short.
type StopSignal struct {
	stopped atomic.Bool
	done    chan struct{}
	once    sync.Once
}

func NewStopSignal() *StopSignal {
	return &StopSignal{done: make(chan struct{})}
}

// Stop sets the flag. Safe to call more than once.
func (s *StopSignal) Stop() {
	s.once.Do(func() {
		s.stopped.Store(true)
		close(s.done)
	})
}

func (s *StopSignal) Stopped() bool {
	return s.stopped.Load()
}

func (s *StopSignal) Done() <-chan struct{} {
	return s.done
}

// Sleep waits for d or until done is closed. It returns false if done fired.
func Sleep(done <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-done:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return false
	case <-t.C:
		return true
	}
}
