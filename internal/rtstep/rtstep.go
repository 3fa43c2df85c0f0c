// Package rtstep detects CLOCK_REALTIME steps (NTP corrections, manual
// settime) and notifies subscribers so CLOCK_REALTIME timerfds get a
// chance to recompute early instead of waiting for their next read().
// kqueue's EVFILT_TIMER always counts down against the monotonic clock
// regardless of which clockid the shimmed timer uses, so a realtime step
// that moves a deadline earlier would otherwise go unnoticed until the
// stale, monotonic-scheduled wakeup eventually fires.
//
// Grounded on original_source/src/epoll_shim_ctx.c's
// "#ifndef HAVE_TIMERFD" realtime_step_detection thread: a background
// goroutine samples CLOCK_REALTIME minus CLOCK_MONOTONIC once a second
// and broadcasts to subscribers when it changes. The goroutine is started
// lazily on the first subscriber and torn down (via a generation counter,
// to tolerate the detector already being mid-sleep when the last
// subscriber leaves) once the last one unsubscribes.
package rtstep

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jiixyj/epoll-shim-go/internal/taskpool"
	"github.com/jiixyj/epoll-shim-go/internal/timespec"
)

// Subscriber is notified when the realtime clock has stepped.
type Subscriber interface {
	NotifyRealtimeStep()
}

// Detector is the process-wide step-detection singleton.
type Detector struct {
	mu          sync.Mutex
	subscribers map[Subscriber]struct{}
	generation  uint64
}

var (
	defaultDetector     *Detector
	defaultDetectorOnce sync.Once

	samplingInterval = time.Second
)

// SetSamplingInterval changes how often the background sampler compares
// CLOCK_REALTIME against CLOCK_MONOTONIC. Intended to be called once at
// startup (the root package's SetRealtimeStepInterval option); changing
// it mid-run only affects the sampler's next sleep.
func SetSamplingInterval(d time.Duration) {
	samplingInterval = d
}

// Default returns the process-wide detector singleton.
func Default() *Detector {
	defaultDetectorOnce.Do(func() {
		defaultDetector = &Detector{subscribers: make(map[Subscriber]struct{})}
	})
	return defaultDetector
}

func sampleOffset() (timespec.Timespec, error) {
	var rt, mt unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &rt); err != nil {
		return timespec.Timespec{}, err
	}
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &mt); err != nil {
		return timespec.Timespec{}, err
	}
	rtTs := timespec.Timespec{Sec: int64(rt.Sec), Nsec: int64(rt.Nsec)}
	mtTs := timespec.Timespec{Sec: int64(mt.Sec), Nsec: int64(mt.Nsec)}
	return rtTs.SaturatingSub(mtTs), nil
}

// Register subscribes sub to future realtime-step notifications, starting
// the background sampler if this is the first subscriber.
func (d *Detector) Register(sub Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()

	wasEmpty := len(d.subscribers) == 0
	d.subscribers[sub] = struct{}{}

	if wasEmpty {
		offset, err := sampleOffset()
		if err != nil {
			// best effort, matching the original's "bail out" on
			// clock_gettime failure
			return
		}
		generation := d.generation
		if err := taskpool.Go(func() { d.run(generation, offset) }); err != nil {
			// pool exhausted or closed: fall back to an unpooled goroutine
			// rather than silently never detecting steps.
			go d.run(generation, offset)
		}
	}
}

// Unregister removes sub. If it was the last subscriber, the background
// sampler exits at its next wakeup.
func (d *Detector) Unregister(sub Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.subscribers, sub)
	if len(d.subscribers) == 0 {
		d.generation++
	}
}

func (d *Detector) run(generation uint64, offset timespec.Timespec) {
	for {
		time.Sleep(samplingInterval)

		newOffset, err := sampleOffset()
		if err != nil {
			return
		}

		d.mu.Lock()
		if d.generation != generation {
			d.mu.Unlock()
			return
		}
		if newOffset != offset {
			offset = newOffset
			for sub := range d.subscribers {
				sub.NotifyRealtimeStep()
			}
		}
		d.mu.Unlock()
	}
}
