// Package eventfdctx implements the eventfd(2) counter shim: a 64-bit
// saturating counter backed by a dedicated kqueue used purely as the
// readiness signal, grounded line-for-line on
// original_source/src/eventfd_ctx.c.
package eventfdctx

import (
	"time"

	"go.uber.org/atomic"

	"github.com/jiixyj/epoll-shim-go/internal/kqueue"
	"github.com/jiixyj/epoll-shim-go/internal/shimerr"
)

// Semaphore, when set, makes Read always consume exactly 1 and return 1
// (EFD_SEMAPHORE); otherwise Read drains and returns the whole counter.
const Semaphore uint32 = 1 << 0

// State is the per-eventfd counter plus its dedicated readiness queue.
type State struct {
	queue     kqueue.Queue
	semaphore bool
	counter   atomic.Uint64
}

// New creates a State with the given initial counter value and flags,
// using the EVFILT_USER readiness filter that kqueue.Open already
// installed on q, and triggers it immediately if counter is already
// nonzero.
func New(q kqueue.Queue, counter uint64, flags uint32) (*State, error) {
	if flags&^Semaphore != 0 {
		return nil, shimerr.EINVAL
	}
	s := &State{queue: q, semaphore: flags&Semaphore != 0, counter: *atomic.NewUint64(counter)}
	if counter > 0 {
		if err := q.Trigger(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Queue returns the State's readiness queue, used by Poll/epollctl wiring.
func (s *State) Queue() kqueue.Queue { return s.queue }

// Write adds value to the counter, saturating rather than wrapping: it
// fails with EAGAIN (mirroring the nonblocking-write contract real
// eventfd uses for "would overflow") rather than silently truncating.
// value == math.MaxUint64 is always rejected, matching the Linux
// eventfd(2) contract the original enforces.
func (s *State) Write(value uint64) error {
	if value == ^uint64(0) {
		return shimerr.EINVAL
	}
	for {
		current := s.counter.Load()
		newValue := current + value
		if newValue < current || newValue > ^uint64(0)-1 {
			return shimerr.EAGAIN
		}
		if s.counter.CAS(current, newValue) {
			break
		}
	}
	return s.queue.Trigger()
}

// Read consumes from the counter: in semaphore mode it always decrements
// by 1 and returns 1; otherwise it drains the whole counter to 0 and
// returns the value that was there. Fails with EAGAIN if the counter is
// currently 0. When the counter reaches 0, any queued wakeups belonging to
// this eventfd are drained off the host queue before returning so a
// subsequent readiness check doesn't report a stale edge.
func (s *State) Read() (uint64, error) {
	for {
		current := s.counter.Load()
		if current == 0 {
			return 0, shimerr.EAGAIN
		}

		var newValue uint64
		if s.semaphore {
			newValue = current - 1
		} else {
			newValue = 0
		}

		if newValue == 0 {
			if _, err := s.queue.Drain(32, &zeroTimeout); err != nil {
				return 0, err
			}
		}

		if s.counter.CAS(current, newValue) {
			if s.semaphore {
				return 1, nil
			}
			return current, nil
		}

		if newValue == 0 {
			if err := s.queue.Trigger(); err != nil {
				return 0, err
			}
		}
	}
}

var zeroTimeout = time.Duration(0)
