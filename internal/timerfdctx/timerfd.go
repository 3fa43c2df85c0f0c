// Package timerfdctx implements the timerfd(2) shim: an absolute
// itimerspec tracked under a mutex, re-armed against a dedicated kqueue's
// EVFILT_TIMER filter on every settime and every read, grounded
// line-for-line on original_source/src/timerfd_ctx.c.
//
// Periodic (interval) timers are handled entirely by the recompute loop
// in updateToCurrentTime walking forward past however many intervals have
// elapsed since the last read, rather than by a second, OS-timer-backed
// "complex" backend: original_source/src/timerfd.c prototypes such a
// backend with POSIX timer_create and a SIGEV_THREAD_ID worker, but that
// requires directing a realtime signal at a specific OS thread, which Go's
// runtime does not expose a portable way to do without cgo. Since the
// recompute loop already produces the correct expiration count and
// reload time for any interval representable in microseconds, the
// simple backend covers every case the header's TIMERFD_KIND_COMPLEX
// variant exists for.
package timerfdctx

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jiixyj/epoll-shim-go/internal/kqueue"
	"github.com/jiixyj/epoll-shim-go/internal/rtstep"
	"github.com/jiixyj/epoll-shim-go/internal/shimerr"
	"github.com/jiixyj/epoll-shim-go/internal/timespec"
)

// ClockID selects which clock a timer is sampled against.
type ClockID int

// Supported clocks, matching CLOCK_MONOTONIC/CLOCK_REALTIME.
const (
	ClockMonotonic ClockID = iota
	ClockRealtime
)

// Settime flags.
const (
	Abstime = 1 << 0
)

var zeroTimeout = time.Duration(0)

func now(clock ClockID) timespec.Timespec {
	if clock == ClockRealtime {
		t := time.Now()
		return timespec.Timespec{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
	}
	var mt unix.Timespec
	_ = unix.ClockGettime(unix.CLOCK_MONOTONIC, &mt)
	return timespec.Timespec{Sec: int64(mt.Sec), Nsec: int64(mt.Nsec)}
}

// State is the per-timerfd armed-itimerspec tracker.
type State struct {
	queue kqueue.Queue
	clock ClockID

	mu            sync.Mutex
	current       timespec.Itimerspec
	nrExpirations uint64
}

// New creates a State for the given clock, backed by q. CLOCK_REALTIME
// timers subscribe to the process-wide realtime step detector so a wall
// clock step wakes them for an early recompute.
func New(q kqueue.Queue, clock ClockID) (*State, error) {
	if clock != ClockMonotonic && clock != ClockRealtime {
		return nil, shimerr.EINVAL
	}
	s := &State{queue: q, clock: clock}
	if clock == ClockRealtime {
		rtstep.Default().Register(s)
	}
	return s, nil
}

// Queue returns the State's readiness queue.
func (s *State) Queue() kqueue.Queue { return s.queue }

// NotifyRealtimeStep implements rtstep.Subscriber: it wakes the queue so a
// waiting epoll/poll caller re-checks this timer, triggering the real
// recompute on its next Read. It does not itself recompute or synthesize
// expirations, so a backwards step never fabricates one.
func (s *State) NotifyRealtimeStep() {
	_ = s.queue.Trigger()
}

// Close releases the timer's realtime-step subscription, if any.
func (s *State) Close() {
	if s.clock == ClockRealtime {
		rtstep.Default().Unregister(s)
	}
}

func (s *State) isDisarmed() bool {
	return s.current.Value.IsZero()
}

func (s *State) disarm() {
	s.current.Value = timespec.Timespec{}
}

// updateToCurrentTime walks the armed value forward past every interval
// boundary at or before currentTime, counting one expiration per step.
// Must be called with s.mu held.
func (s *State) updateToCurrentTime(currentTime timespec.Timespec) {
	if s.isDisarmed() {
		return
	}
	for s.current.Value.Compare(currentTime) <= 0 {
		s.nrExpirations++
		if !s.current.IsPeriodic() {
			s.disarm()
			return
		}
		next, err := s.current.Value.Add(s.current.Interval)
		if err != nil {
			s.disarm()
			return
		}
		s.current.Value = next
	}
}

// registerEvent arms the host queue's EVFILT_TIMER filter to fire once
// value is reached, as a microsecond delay relative to currentTime.
// Must be called with s.mu held.
func (s *State) registerEvent(value, currentTime timespec.Timespec) error {
	delta := value.SaturatingSub(currentTime)
	micros, err := delta.ToMicroseconds()
	if err != nil {
		return shimerr.EINVAL
	}
	_, regErr := s.queue.Register([]kqueue.Change{{
		Filter: kqueue.FilterTimer,
		Flags:  kqueue.FlagAdd | kqueue.FlagOneshot,
		Fflags: kqueue.NoteUsec,
		Data:   micros,
	}})
	return regErr
}

// Settime arms or disarms the timer, returning the previous itimerspec
// (remaining time, not absolute) the way Linux's timerfd_settime does.
func (s *State) Settime(flags int, new timespec.Itimerspec) (timespec.Itimerspec, error) {
	if !new.Valid() {
		return timespec.Itimerspec{}, shimerr.EINVAL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	currentTime := now(s.clock)
	s.updateToCurrentTime(currentTime)

	old := s.current
	if !s.isDisarmed() {
		old.Value = old.Value.SaturatingSub(currentTime)
	}

	if new.Value.IsZero() {
		_, _ = s.queue.Register([]kqueue.Change{{Filter: kqueue.FilterTimer, Flags: kqueue.FlagDelete}})
		s.disarm()
		s.nrExpirations = 0
		return old, nil
	}

	var newAbsolute timespec.Itimerspec
	if flags&Abstime != 0 {
		newAbsolute = new
	} else {
		value, err := currentTime.Add(new.Value)
		if err != nil {
			return old, shimerr.EINVAL
		}
		newAbsolute = timespec.Itimerspec{Interval: new.Interval, Value: value}
	}

	if err := s.registerEvent(newAbsolute.Value, currentTime); err != nil {
		return old, err
	}

	s.current = newAbsolute
	s.nrExpirations = 0
	return old, nil
}

// Gettime reports the timer's current itimerspec (remaining time, not
// absolute), without arming or disarming anything.
func (s *State) Gettime() timespec.Itimerspec {
	s.mu.Lock()
	defer s.mu.Unlock()

	currentTime := now(s.clock)
	s.updateToCurrentTime(currentTime)

	cur := s.current
	if !s.isDisarmed() {
		cur.Value = cur.Value.SaturatingSub(currentTime)
	}
	return cur
}

// Read harvests however many expirations have accumulated since the last
// successful Read. It never blocks: callers needing blocking semantics
// wait on the Queue's host fd first.
func (s *State) Read() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.queue.Drain(1, &zeroTimeout)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, shimerr.EAGAIN
	}

	currentTime := now(s.clock)
	s.updateToCurrentTime(currentTime)

	nrExpirations := s.nrExpirations
	s.nrExpirations = 0

	if !s.isDisarmed() {
		if err := s.registerEvent(s.current.Value, currentTime); err != nil {
			s.disarm()
		}
	}

	if nrExpirations == 0 {
		return 0, shimerr.EAGAIN
	}
	return nrExpirations, nil
}
