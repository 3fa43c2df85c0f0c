//go:build darwin || freebsd || netbsd || openbsd || dragonfly
// +build darwin freebsd netbsd openbsd dragonfly

package kqueue

import (
	"os"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/jiixyj/epoll-shim-go/internal/locker"
)

const maxBatch = 64

// Open creates a new kqueue-backed Queue with close-on-exec and (optionally)
// non-blocking set on the queue fd itself, grounded on
// original_source/src/compat_kqueue1.c's kqueue1 emulation and the teacher's
// newPoller (FD_CLOEXEC applied for consistency with the Go runtime).
func Open(nonblock bool) (Queue, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("fcntl(F_SETFD)", err)
	}
	if nonblock {
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(fd)
			return nil, os.NewSyscallError("fcntl(F_SETFL)", err)
		}
	}
	if _, err := unix.Kevent(fd, []unix.Kevent_t{{
		Ident:  0,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}}, nil, nil); err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("kevent(EVFILT_USER add)", err)
	}
	return &bsdQueue{fd: fd, triggered: locker.New()}, nil
}

type bsdQueue struct {
	fd int
	// triggered coalesces repeated Trigger() calls between drains, the way
	// the teacher's poller_kqueue.go coalesces wakeups with an atomic CAS
	// guard before resetting on the next Drain.
	triggered *locker.Locker
}

func (q *bsdQueue) HostFD() int { return q.fd }

func filterToKqueue(f FilterKind) int16 {
	switch f {
	case FilterRead:
		return unix.EVFILT_READ
	case FilterWrite:
		return unix.EVFILT_WRITE
	case FilterSignal:
		return unix.EVFILT_SIGNAL
	case FilterTimer:
		return unix.EVFILT_TIMER
	default:
		return unix.EVFILT_USER
	}
}

func filterFromKqueue(f int16) FilterKind {
	switch f {
	case unix.EVFILT_READ:
		return FilterRead
	case unix.EVFILT_WRITE:
		return FilterWrite
	case unix.EVFILT_SIGNAL:
		return FilterSignal
	case unix.EVFILT_TIMER:
		return FilterTimer
	default:
		return FilterUser
	}
}

func flagsToKqueue(f ChangeFlag) uint16 {
	var out uint16
	if f&FlagAdd != 0 {
		out |= unix.EV_ADD
	}
	if f&FlagDelete != 0 {
		out |= unix.EV_DELETE
	}
	if f&FlagEnable != 0 {
		out |= unix.EV_ENABLE
	}
	if f&FlagDisable != 0 {
		out |= unix.EV_DISABLE
	}
	if f&FlagOneshot != 0 {
		out |= unix.EV_ONESHOT
	}
	if f&FlagClear != 0 {
		out |= unix.EV_CLEAR
	}
	if f&FlagForceOneshot != 0 {
		out |= forceOneshotFlag
	}
	return out
}

func (q *bsdQueue) Register(changes []Change) ([]Receipt, error) {
	if len(changes) == 0 {
		return nil, nil
	}
	kevs := make([]unix.Kevent_t, len(changes))
	for i, c := range changes {
		kevs[i] = unix.Kevent_t{
			Ident:  c.Ident,
			Filter: filterToKqueue(c.Filter),
			Flags:  flagsToKqueue(c.Flags) | unix.EV_RECEIPT,
			Fflags: c.Fflags,
			Data:   c.Data,
		}
		*(*uintptr)(unsafe.Pointer(&kevs[i].Udata)) = c.Udata
	}
	out := make([]unix.Kevent_t, len(changes))
	n, err := unix.Kevent(q.fd, kevs, out, nil)
	if err != nil {
		return nil, os.NewSyscallError("kevent", err)
	}
	if n != len(changes) {
		return nil, errors.New("kqueue: short EV_RECEIPT response")
	}
	receipts := make([]Receipt, n)
	for i := 0; i < n; i++ {
		if out[i].Flags&unix.EV_ERROR == 0 {
			return nil, errors.New("kqueue: receipt missing EV_ERROR")
		}
		receipts[i] = Receipt{Errno: int(out[i].Data)}
	}
	return receipts, nil
}

func (q *bsdQueue) Drain(max int, timeout *time.Duration) ([]Event, error) {
	if max <= 0 {
		max = maxBatch
	}
	raw := make([]unix.Kevent_t, max)
	var ts *unix.Timespec
	if timeout != nil {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	n, err := unix.Kevent(q.fd, nil, raw, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, err
		}
		return nil, os.NewSyscallError("kevent", err)
	}
	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		ev := raw[i]
		if ev.Ident == 0 && filterFromKqueue(ev.Filter) == FilterUser {
			q.triggered.Unlock()
		}
		events = append(events, Event{
			Ident:   ev.Ident,
			Filter:  filterFromKqueue(ev.Filter),
			EOF:     ev.Flags&unix.EV_EOF != 0,
			Error:   ev.Flags&unix.EV_ERROR != 0,
			Oneshot: ev.Flags&unix.EV_ONESHOT != 0,
			Fflags:  ev.Fflags,
			Data:    int64(ev.Data),
			Udata:   *(*uintptr)(unsafe.Pointer(&ev.Udata)),
		})
	}
	return events, nil
}

func (q *bsdQueue) Trigger() error {
	if !q.triggered.TryLock() {
		return nil
	}
	return q.postTrigger()
}

func (q *bsdQueue) postTrigger() error {
	for {
		_, err := unix.Kevent(q.fd, []unix.Kevent_t{{
			Ident:  0,
			Filter: unix.EVFILT_USER,
			Fflags: unix.NOTE_TRIGGER,
		}}, nil, nil)
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		if err != nil {
			return os.NewSyscallError("kevent(NOTE_TRIGGER)", err)
		}
		return nil
	}
}

func (q *bsdQueue) ClearTrigger() error {
	defer q.triggered.Unlock()
	for {
		n, err := unix.Kevent(q.fd, nil, make([]unix.Kevent_t, maxBatch), &unix.Timespec{})
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return os.NewSyscallError("kevent", err)
		}
		if n == 0 {
			return nil
		}
	}
}

func (q *bsdQueue) Close() error {
	return os.NewSyscallError("close", unix.Close(q.fd))
}
