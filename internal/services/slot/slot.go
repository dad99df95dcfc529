// Package slot provides a single-value, freshest-wins holder shared between
// one producer and any number of readers.
//
// A Slot never queues: Publish overwrites whatever is stored, discarding an
// unread value. The internal mutex only guards the pointer swap, so a writer
// never waits on a reader's copy and readers never wait on each other's.
package slot

import (
	"sync"
	"sync/atomic"
	"time"
)

// CloneFunc produces an independent copy of a published value.
type CloneFunc[T any] func(*T) *T

// Slot holds at most one value of type T.
type Slot[T any] struct {
	name  string
	clone CloneFunc[T]

	mu          sync.Mutex
	value       *T
	gen         uint64
	unread      bool
	lastPublish time.Time

	published   atomic.Uint64
	overwritten atomic.Uint64
	reads       atomic.Uint64
	emptyReads  atomic.Uint64
}

// Stats is a point-in-time view of slot activity.
type Stats struct {
	Name        string    `json:"name"`
	Published   uint64    `json:"published"`
	Overwritten uint64    `json:"overwritten"`
	Reads       uint64    `json:"reads"`
	EmptyReads  uint64    `json:"empty_reads"`
	LastPublish time.Time `json:"last_publish"`
	Empty       bool      `json:"empty"`
}

// New creates an empty slot. clone is applied to every value handed out by
// Read; published values must not be mutated afterwards by the producer.
func New[T any](name string, clone CloneFunc[T]) *Slot[T] {
	return &Slot[T]{name: name, clone: clone}
}

// Publish stores v, replacing any previous value. It never blocks beyond the
// swap and never fails. Publishing nil is ignored.
func (s *Slot[T]) Publish(v *T) {
	if v == nil {
		return
	}

	s.mu.Lock()
	if s.unread {
		s.overwritten.Add(1)
	}
	s.value = v
	s.gen++
	s.unread = true
	s.lastPublish = time.Now()
	s.mu.Unlock()

	s.published.Add(1)
}

// Read returns an isolated copy of the latest value, or false if nothing has
// been published yet.
func (s *Slot[T]) Read() (*T, bool) {
	v, _, ok := s.ReadVersion()
	return v, ok
}

// ReadVersion is Read plus the generation of the returned value. The
// generation increases by one on every Publish, so two reads returning the
// same generation returned the same published value.
func (s *Slot[T]) ReadVersion() (*T, uint64, bool) {
	s.mu.Lock()
	v := s.value
	gen := s.gen
	s.unread = false
	s.mu.Unlock()

	if v == nil {
		s.emptyReads.Add(1)
		return nil, 0, false
	}
	s.reads.Add(1)

	if s.clone != nil {
		return s.clone(v), gen, true
	}
	return v, gen, true
}

// Stats returns the slot counters.
func (s *Slot[T]) Stats() Stats {
	s.mu.Lock()
	last := s.lastPublish
	empty := s.value == nil
	s.mu.Unlock()

	return Stats{
		Name:        s.name,
		Published:   s.published.Load(),
		Overwritten: s.overwritten.Load(),
		Reads:       s.reads.Load(),
		EmptyReads:  s.emptyReads.Load(),
		LastPublish: last,
		Empty:       empty,
	}
}

// Name returns the slot label used in logs and stats.
func (s *Slot[T]) Name() string {
	return s.name
}
