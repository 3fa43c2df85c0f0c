// Package signalfdctx implements the signalfd(2) shim: synchronous
// dequeue of process signals through a channel fed by os/signal, exposed
// as a readable fd via a dedicated kqueue the way the other shims work,
// grounded on original_source/src/signalfd_ctx.c.
//
// The original's comment on EVFILT_SIGNAL explains the core difficulty
// this package also has to solve: "EVFILT_SIGNAL is an observer. It does
// not hook into the signal disposition mechanism... to properly emulate
// signalfd, sigtimedwait must be called" so the signal is actually
// consumed rather than merely observed. os/signal.Notify is Go's
// equivalent hook into signal disposition (it registers with the
// runtime's signal handler instead of the process's default action), so
// a background goroutine draining a Notify channel plays the role
// sigtimedwait plays in the original: the single place signals are
// actually taken off the process.
package signalfdctx

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jiixyj/epoll-shim-go/internal/kqueue"
	"github.com/jiixyj/epoll-shim-go/internal/shimerr"
)

// Siginfo is this module's reduced signalfd_siginfo: Go's os/signal does
// not expose sender pid/uid/value payloads, only which signal arrived, so
// every field but Signo is always zero. This matches spec.md's own
// carve-out that exact signal-info payloads are best-effort per host.
type Siginfo struct {
	Signo uint32
}

// State is the per-signalfd pending-signal queue plus its readiness edge.
type State struct {
	queue  kqueue.Queue
	ch     chan os.Signal
	done   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	backlog []Siginfo
}

// New creates a State watching sigs, registered against q's readiness
// queue. sigs are given as raw signal numbers (SIGINT == 2, etc).
func New(q kqueue.Queue, sigs []int) (*State, error) {
	if len(sigs) == 0 {
		return nil, shimerr.EINVAL
	}
	s := &State{
		queue: q,
		ch:    make(chan os.Signal, 64),
		done:  make(chan struct{}),
	}
	toNotify := make([]os.Signal, len(sigs))
	for i, n := range sigs {
		toNotify[i] = syscall.Signal(n)
	}
	signal.Notify(s.ch, toNotify...)

	s.wg.Add(1)
	go s.loop()

	// A signal already pending against the process before Notify ran
	// above is never delivered: os/signal only hooks into signals
	// the runtime observes going forward, and unlike sigtimedwait
	// there's no portable way through golang.org/x/sys/unix to query
	// or claim a pre-existing pending set across the BSDs this shim
	// targets. So this is best-effort, matching Notify's own contract,
	// not the kernel's signalfd(2) semantics at registration time.
	return s, nil
}

// Queue returns the State's readiness queue.
func (s *State) Queue() kqueue.Queue { return s.queue }

func (s *State) loop() {
	defer s.wg.Done()
	for {
		select {
		case sig, ok := <-s.ch:
			if !ok {
				return
			}
			signo, ok := sig.(syscall.Signal)
			if !ok {
				continue
			}
			s.mu.Lock()
			s.backlog = append(s.backlog, Siginfo{Signo: uint32(signo)})
			s.mu.Unlock()
			_ = s.queue.Trigger()
		case <-s.done:
			return
		}
	}
}

func (s *State) hasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.backlog) > 0
}

// clearSignal mirrors signalfd_ctx_clear_signal: when the caller already
// knows a wakeup was delivered and the backlog is still non-empty there is
// no need to touch the host queue, otherwise drain it and re-trigger if a
// signal raced in during the drain.
func (s *State) clearSignal(wasTriggered bool) bool {
	if wasTriggered && s.hasPending() {
		return true
	}
	_ = s.queue.ClearTrigger()
	if s.hasPending() {
		_ = s.queue.Trigger()
		return true
	}
	return false
}

// Read dequeues the oldest pending signal, or fails with EAGAIN if none
// are pending.
func (s *State) Read() (Siginfo, error) {
	s.mu.Lock()
	var rec Siginfo
	ok := len(s.backlog) > 0
	if ok {
		rec = s.backlog[0]
		s.backlog = s.backlog[1:]
	}
	s.mu.Unlock()

	s.clearSignal(false)

	if !ok {
		return Siginfo{}, shimerr.EAGAIN
	}
	return rec, nil
}

// Poll reports whether a signal is currently available to read.
func (s *State) Poll() bool {
	return s.clearSignal(true)
}

// Close stops watching the registered signals and releases the
// background goroutine.
func (s *State) Close() {
	signal.Stop(s.ch)
	close(s.done)
	s.wg.Wait()
}
