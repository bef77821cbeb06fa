// Package timer runs callbacks against simulation time instead of the wall clock.
package timer

import (
	"container/heap"
	"time"
)

// ID identifies a scheduled callback.
type ID uint64

type entry struct {
	id  ID
	due time.Duration
	seq uint64
	fn  func()
}

type queue []*entry

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].due != q[j].due {
		return q[i].due < q[j].due
	}
	return q[i].seq < q[j].seq
}

func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x any) { *q = append(*q, x.(*entry)) }

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

// Scheduler is a single-threaded timer queue. Callbacks run inside Advance,
// in due order; ties fire in scheduling order.
type Scheduler struct {
	now       time.Duration
	queue     queue
	cancelled map[ID]struct{}
	nextID    ID
	seq       uint64
}

// NewScheduler creates an empty scheduler at time zero.
func NewScheduler() *Scheduler {
	return &Scheduler{cancelled: make(map[ID]struct{})}
}

// After schedules fn to run once delay of simulation time has passed.
func (s *Scheduler) After(delay time.Duration, fn func()) ID {
	if delay < 0 {
		delay = 0
	}
	s.nextID++
	s.seq++
	heap.Push(&s.queue, &entry{id: s.nextID, due: s.now + delay, seq: s.seq, fn: fn})
	return s.nextID
}

// Cancel prevents a pending callback from running. Returns false if the
// callback already ran or was never scheduled.
func (s *Scheduler) Cancel(id ID) bool {
	for _, e := range s.queue {
		if e.id == id {
			if _, done := s.cancelled[id]; done {
				return false
			}
			s.cancelled[id] = struct{}{}
			return true
		}
	}
	return false
}

// Advance moves simulation time forward and runs every callback that is due.
// Callbacks scheduled from inside a callback run in the same call if they
// are already due.
func (s *Scheduler) Advance(dt time.Duration) {
	if dt > 0 {
		s.now += dt
	}
	for len(s.queue) > 0 && s.queue[0].due <= s.now {
		e := heap.Pop(&s.queue).(*entry)
		if _, ok := s.cancelled[e.id]; ok {
			delete(s.cancelled, e.id)
			continue
		}
		e.fn()
	}
}

// Now returns the current simulation time.
func (s *Scheduler) Now() time.Duration {
	return s.now
}

// Pending returns the number of callbacks waiting to run.
func (s *Scheduler) Pending() int {
	return len(s.queue) - len(s.cancelled)
}

// Clear drops all pending callbacks.
func (s *Scheduler) Clear() {
	s.queue = nil
	s.cancelled = make(map[ID]struct{})
}
