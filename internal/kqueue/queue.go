// Package kqueue adapts the host kqueue(2)/kevent(2) readiness mechanism to
// the handful of operations the rest of this module needs: create a queue,
// register or change filters on it, drain ready events with a timeout, and
// trigger a software-only readiness edge on it. Everything above this
// package talks in terms of FilterKind/Change/Event, never raw kevent
// structs, mirroring the shape of the teacher's internal/poller kqueue
// backend (golang.org/x/sys/unix.Kevent_t, EV_RECEIPT-checked registration,
// the EVFILT_USER/NOTE_TRIGGER wake idiom) generalized from "one fixed pair
// of read/write filters per fd" to the four filter kinds this module needs.
package kqueue

import "time"

// FilterKind identifies which kqueue filter a Change/Event refers to.
type FilterKind int

// Filter kinds used by this module's components.
const (
	FilterRead FilterKind = iota
	FilterWrite
	FilterSignal
	FilterTimer
	FilterUser
)

// ChangeFlag is a bitmask of kevent flags relevant to registration, kept
// host-agnostic so callers don't import golang.org/x/sys/unix directly.
type ChangeFlag uint32

// Flags accepted in a Change.
const (
	FlagAdd ChangeFlag = 1 << iota
	FlagDelete
	FlagEnable
	FlagDisable
	FlagOneshot
	FlagClear
	FlagForceOneshot // best-effort: falls back to Oneshot where the host lacks EV_FORCEONESHOT
)

// Change describes one filter registration/modification.
type Change struct {
	Ident  uint64
	Filter FilterKind
	Flags  ChangeFlag
	// Fflags carries filter-specific data, e.g. NOTE_USECONDS/NOTE_TRIGGER
	// for FilterTimer/FilterUser.
	Fflags uint32
	Data   int64
	Udata  uintptr
}

// NoteUsec is the NOTE_USECONDS fflag for FilterTimer changes, telling the
// host kqueue to interpret Data as a microsecond delay rather than the
// default milliseconds. Its value (0x2) is shared by the FreeBSD and
// Darwin kqueue headers that define it.
const NoteUsec uint32 = 0x00000002

// Receipt is the EV_RECEIPT acknowledgement of a single Change.
type Receipt struct {
	// Errno is the per-filter error: 0 on success, otherwise a unix.E*
	// value (as returned in kevent's data field for EV_ERROR receipts).
	Errno int
}

// Event is one readiness notification drained from the queue.
type Event struct {
	Ident  uint64
	Filter FilterKind
	EOF    bool
	Error  bool
	Oneshot bool
	// Fflags carries the raw kevent fflags, e.g. the errno-on-EOF value
	// used for FilterRead/FilterWrite EOF synthesis.
	Fflags uint32
	Data   int64
	Udata  uintptr
}

// Queue is the minimal host-queue handle every shimmed fd kind registers
// itself against.
type Queue interface {
	// Register posts the given filter changes with EV_RECEIPT semantics and
	// returns one Receipt per Change, in order.
	Register(changes []Change) ([]Receipt, error)
	// Drain returns up to max ready events, waiting up to timeout (nil
	// means block indefinitely, 0 means return immediately).
	Drain(max int, timeout *time.Duration) ([]Event, error)
	// Trigger posts a FilterUser/NOTE_TRIGGER wakeup, coalescing repeated
	// triggers between drains the way edge-triggered user events require.
	Trigger() error
	// ClearTrigger drains every pending event off the queue, whatever its
	// filter, and re-allows Trigger to post; used by signalfd's coalescing
	// protocol, whose queue carries only the FilterUser wakeup.
	ClearTrigger() error
	// HostFD returns the underlying queue file descriptor.
	HostFD() int
	// Close releases the queue.
	Close() error
}
