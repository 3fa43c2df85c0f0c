//go:build darwin || freebsd || netbsd || openbsd || dragonfly

//
//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2023 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package epollshim

import (
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jiixyj/epoll-shim-go/internal/epollctx"
	"github.com/jiixyj/epoll-shim-go/internal/eventfdctx"
	"github.com/jiixyj/epoll-shim-go/internal/fdctx"
	"github.com/jiixyj/epoll-shim-go/internal/kqueue"
	"github.com/jiixyj/epoll-shim-go/internal/shimerr"
	"github.com/jiixyj/epoll-shim-go/internal/signalfdctx"
	"github.com/jiixyj/epoll-shim-go/internal/timer"
	"github.com/jiixyj/epoll-shim-go/internal/timerfdctx"
	"github.com/jiixyj/epoll-shim-go/log"
	"github.com/jiixyj/epoll-shim-go/metrics"
)

// EpollCreate1 creates a new epoll instance backed by a dedicated kqueue,
// registers it in the process-wide fd registry and returns its fd.
func EpollCreate1(flags int) (int, error) {
	if flags&^EpollCloexec != 0 {
		return -1, shimerr.EINVAL
	}
	q, err := kqueue.Open(false)
	if err != nil {
		return -1, shimerr.FromSyscallErrno(err)
	}
	st := epollctx.New(q)
	if _, err := fdctx.Default().Insert(q.HostFD(), fdctx.KindEpoll, q.HostFD(), st); err != nil {
		_ = q.Close()
		return -1, shimerr.FromSyscallErrno(err)
	}
	return q.HostFD(), nil
}

// EpollCreate always fails with EINVAL: Linux has ignored the size
// argument since kernel 2.6.8, and nothing in this shim needs it for
// sizing anything either. Kept only because real programs still call it.
func EpollCreate(size int) (int, error) {
	log.Warnf("epollshim: EpollCreate(%d) is unsupported, use EpollCreate1 instead", size)
	return -1, shimerr.EINVAL
}

func epollCtlOp(op int) int {
	switch op {
	case EpollCtlAdd:
		return epollctx.OpAdd
	case EpollCtlDel:
		return epollctx.OpDel
	case EpollCtlMod:
		return epollctx.OpMod
	default:
		return 0
	}
}

// EpollCtl adds, modifies or removes fd's registration on epfd.
func EpollCtl(epfd, op, fd int, event *EpollEvent) error {
	desc, ok := fdctx.Default().Lookup(epfd)
	if !ok || desc.Kind != fdctx.KindEpoll {
		return shimerr.EBADF
	}
	if op != EpollCtlDel && event == nil {
		return shimerr.EINVAL
	}
	if !desc.Begin() {
		return shimerr.EBADF
	}
	defer desc.End()

	st := desc.Payload().(*epollctx.State)

	var events uint32
	var data uint64
	if event != nil {
		events = event.Events
		data = event.U64()
	}

	err := st.Ctl(epollCtlOp(op), fd, events, data)
	switch op {
	case EpollCtlAdd:
		metrics.Add(metrics.EpollCtlAdd, 1)
	case EpollCtlMod:
		metrics.Add(metrics.EpollCtlMod, 1)
	case EpollCtlDel:
		metrics.Add(metrics.EpollCtlDel, 1)
	}
	return err
}

// EpollWait blocks up to timeoutMS milliseconds (negative means forever,
// zero means return immediately) for readiness on epfd, filling as many
// of events as are ready.
func EpollWait(epfd int, events []EpollEvent, timeoutMS int) (int, error) {
	return epollWait(epfd, events, timeoutMS, nil)
}

// EpollPwait is EpollWait with the calling thread's signal mask replaced
// by sigmask for the duration of the wait. The mask is installed just
// before the wait starts and restored after it returns; the swap is not
// atomic with the wait itself.
func EpollPwait(epfd int, events []EpollEvent, timeoutMS int, sigmask *unix.Sigset_t) (int, error) {
	return epollWait(epfd, events, timeoutMS, sigmask)
}

func epollWait(epfd int, events []EpollEvent, timeoutMS int, sigmask *unix.Sigset_t) (int, error) {
	if len(events) == 0 {
		return 0, shimerr.EINVAL
	}

	desc, ok := fdctx.Default().Lookup(epfd)
	if !ok || desc.Kind != fdctx.KindEpoll {
		return 0, shimerr.EBADF
	}
	if !desc.Begin() {
		return 0, shimerr.EBADF
	}
	defer desc.End()

	st := desc.Payload().(*epollctx.State)
	hostFD := st.Queue().HostFD()

	if sigmask != nil {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		var oldmask unix.Sigset_t
		if err := unix.PthreadSigmask(unix.SIG_SETMASK, sigmask, &oldmask); err != nil {
			return 0, shimerr.FromSyscallErrno(err)
		}
		defer func() { _ = unix.PthreadSigmask(unix.SIG_SETMASK, &oldmask, nil) }()
	}

	n, err := epollWaitBlocking(st, hostFD, events, timeoutMS)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		metrics.Add(metrics.EpollWait, 1)
		metrics.Add(metrics.EpollEvents, uint64(n))
	} else {
		metrics.Add(metrics.EpollNoWait, 1)
	}
	return n, nil
}

// epollWaitBlocking drives epollctx.State.Wait, which only ever reports
// events already sitting on the host queue: when nothing is ready yet
// and the caller wants to block, this loop waits on the queue's own host
// fd via poll(2) (itself bounded by the remaining deadline, tracked with
// internal/timer so every retry recomputes the slice instead of
// accumulating drift) and retries.
func epollWaitBlocking(st *epollctx.State, hostFD int, events []EpollEvent, timeoutMS int) (int, error) {
	max := len(events)
	if max > 32 {
		max = 32
	}
	ready := make([]epollctx.Ready, max)

	fill := func(n int) int {
		for i := 0; i < n; i++ {
			events[i].Events = ready[i].Events
			events[i].SetU64(ready[i].Data)
		}
		return n
	}

	n, err := st.Wait(ready)
	if err != nil || n > 0 || timeoutMS == 0 {
		return fill(n), err
	}

	infinite := timeoutMS < 0
	var deadline *timer.Timer
	if !infinite {
		deadline = timer.New(time.Now().Add(time.Duration(timeoutMS) * time.Millisecond))
		deadline.Start()
	}

	pfd := []unix.PollFd{{Fd: int32(hostFD), Events: unix.POLLIN}}
	for {
		pollTimeoutMS := -1
		if !infinite {
			if deadline.Expired() {
				return 0, nil
			}
			pollTimeoutMS = int(time.Until(deadline.Deadline())/time.Millisecond) + 1
		}

		if _, perr := unix.Poll(pfd, pollTimeoutMS); perr != nil && perr != unix.EINTR {
			return 0, shimerr.FromSyscallErrno(perr)
		}

		n, err := st.Wait(ready)
		if err != nil || n > 0 {
			return fill(n), err
		}
		if !infinite && deadline.Expired() {
			return 0, nil
		}
	}
}

// Eventfd creates a new eventfd-shaped counter backed by a dedicated
// kqueue and returns its fd.
func Eventfd(initval uint, flags int) (int, error) {
	if flags&^(EFDNonblock|EFDCloexec|EFDSemaphore) != 0 {
		return -1, shimerr.EINVAL
	}
	q, err := kqueue.Open(flags&EFDNonblock != 0)
	if err != nil {
		return -1, shimerr.FromSyscallErrno(err)
	}
	st, err := eventfdctx.New(q, uint64(initval), uint32(flags&EFDSemaphore))
	if err != nil {
		_ = q.Close()
		return -1, err
	}
	desc, err := fdctx.Default().Insert(q.HostFD(), fdctx.KindEvent, q.HostFD(), st)
	if err != nil {
		_ = q.Close()
		return -1, shimerr.FromSyscallErrno(err)
	}
	desc.Nonblock.Store(flags&EFDNonblock != 0)
	return q.HostFD(), nil
}

// TimerfdCreate creates a new timerfd on the given clock, backed by a
// dedicated kqueue, and returns its fd.
func TimerfdCreate(clockid, flags int) (int, error) {
	if flags&^(TFDNonblock|TFDCloexec) != 0 {
		return -1, shimerr.EINVAL
	}
	var clock timerfdctx.ClockID
	switch clockid {
	case ClockMonotonic:
		clock = timerfdctx.ClockMonotonic
	case ClockRealtime:
		clock = timerfdctx.ClockRealtime
	default:
		return -1, shimerr.EINVAL
	}

	q, err := kqueue.Open(flags&TFDNonblock != 0)
	if err != nil {
		return -1, shimerr.FromSyscallErrno(err)
	}
	st, err := timerfdctx.New(q, clock)
	if err != nil {
		_ = q.Close()
		return -1, err
	}
	desc, err := fdctx.Default().Insert(q.HostFD(), fdctx.KindTimer, q.HostFD(), st)
	if err != nil {
		st.Close()
		_ = q.Close()
		return -1, shimerr.FromSyscallErrno(err)
	}
	desc.Nonblock.Store(flags&TFDNonblock != 0)
	return q.HostFD(), nil
}

// TimerfdSettime arms or disarms fd, returning the previous value in old
// if non-nil.
func TimerfdSettime(fd, flags int, new *ITimerspec, old *ITimerspec) error {
	if new == nil {
		return shimerr.EINVAL
	}
	desc, ok := fdctx.Default().Lookup(fd)
	if !ok || desc.Kind != fdctx.KindTimer {
		return shimerr.EBADF
	}
	if !desc.Begin() {
		return shimerr.EBADF
	}
	defer desc.End()

	st := desc.Payload().(*timerfdctx.State)
	prev, err := st.Settime(flags, *new)
	if err != nil {
		return err
	}
	if old != nil {
		*old = prev
	}
	return nil
}

// TimerfdGettime reports fd's current itimerspec.
func TimerfdGettime(fd int) (*ITimerspec, error) {
	desc, ok := fdctx.Default().Lookup(fd)
	if !ok || desc.Kind != fdctx.KindTimer {
		return nil, shimerr.EBADF
	}
	if !desc.Begin() {
		return nil, shimerr.EBADF
	}
	defer desc.End()

	st := desc.Payload().(*timerfdctx.State)
	cur := st.Gettime()
	return &cur, nil
}

// Signalfd creates a signalfd watching sigs, backed by a dedicated
// kqueue, and returns its fd. Re-specifying the mask of an
// already-created signalfd (fd != -1) is not supported.
func Signalfd(fd int, sigs *unix.Sigset_t, flags int) (int, error) {
	if flags&^(SFDNonblock|SFDCloexec) != 0 {
		return -1, shimerr.EINVAL
	}
	if fd != -1 {
		return -1, shimerr.ENOTSUP
	}

	q, err := kqueue.Open(flags&SFDNonblock != 0)
	if err != nil {
		return -1, shimerr.FromSyscallErrno(err)
	}
	st, err := signalfdctx.New(q, signalsFromSigset(sigs))
	if err != nil {
		_ = q.Close()
		return -1, err
	}
	desc, err := fdctx.Default().Insert(q.HostFD(), fdctx.KindSignal, q.HostFD(), st)
	if err != nil {
		st.Close()
		_ = q.Close()
		return -1, shimerr.FromSyscallErrno(err)
	}
	desc.Nonblock.Store(flags&SFDNonblock != 0)
	return q.HostFD(), nil
}
