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
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/jiixyj/epoll-shim-go/internal/eventfdctx"
	"github.com/jiixyj/epoll-shim-go/internal/fdctx"
	"github.com/jiixyj/epoll-shim-go/internal/kqueue"
	"github.com/jiixyj/epoll-shim-go/internal/shimerr"
	"github.com/jiixyj/epoll-shim-go/internal/signalfdctx"
	"github.com/jiixyj/epoll-shim-go/internal/timerfdctx"
	"github.com/jiixyj/epoll-shim-go/metrics"
)

// waitReadable blocks until hostFD's dedicated queue reports readiness,
// the way spec.md §4.3/§4.4/§4.5 describe a blocking read/write looping
// around the host poll. Used only when the fd's non-block flag is clear.
func waitReadable(hostFD int) error {
	pfd := []unix.PollFd{{Fd: int32(hostFD), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(pfd, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return shimerr.FromSyscallErrno(err)
		}
		if n > 0 {
			return nil
		}
	}
}

// Read is a drop-in replacement for unix.Read that also understands the
// shim's eventfd/timerfd/signalfd fds. Any fd this package didn't create
// passes straight through to the host. When the fd's non-block flag is
// clear, a Read against an empty fd blocks on the dedicated queue's host
// fd and retries instead of returning WouldBlock immediately.
func Read(fd int, buf []byte) (int, error) {
	desc, ok := fdctx.Default().Lookup(fd)
	if !ok {
		return unix.Read(fd, buf)
	}
	if !desc.Begin() {
		return 0, shimerr.EBADF
	}
	defer desc.End()

	switch desc.Kind {
	case fdctx.KindEvent:
		if len(buf) < 8 {
			return 0, shimerr.EINVAL
		}
		st := desc.Payload().(*eventfdctx.State)
		var v uint64
		var err error
		for {
			v, err = st.Read()
			if err == nil || !errors.Is(err, shimerr.EAGAIN) || desc.Nonblock.Load() {
				break
			}
			if werr := waitReadable(st.Queue().HostFD()); werr != nil {
				return 0, werr
			}
		}
		if err != nil {
			return 0, err
		}
		*(*uint64)(unsafe.Pointer(&buf[0])) = v
		metrics.Add(metrics.EventfdReads, 1)
		return 8, nil

	case fdctx.KindTimer:
		if len(buf) < 8 {
			return 0, shimerr.EINVAL
		}
		st := desc.Payload().(*timerfdctx.State)
		var v uint64
		var err error
		for {
			v, err = st.Read()
			if err == nil || !errors.Is(err, shimerr.EAGAIN) || desc.Nonblock.Load() {
				break
			}
			if werr := waitReadable(st.Queue().HostFD()); werr != nil {
				return 0, werr
			}
		}
		if err != nil {
			return 0, err
		}
		*(*uint64)(unsafe.Pointer(&buf[0])) = v
		metrics.Add(metrics.TimerfdExpirations, v)
		return 8, nil

	case fdctx.KindSignal:
		const siginfoSize = int(unsafe.Sizeof(SignalfdSiginfo{}))
		if len(buf) < siginfoSize {
			return 0, shimerr.EINVAL
		}
		return readSignalfd(desc, buf, siginfoSize)

	default:
		return 0, shimerr.EINVAL
	}
}

// readSignalfd repeatedly dequeues pending signals into buf, one
// SignalfdSiginfo record at a time, until the buffer is full or the
// dequeue reports no signal pending. A non-blocking fd returning no
// signal on the very first attempt reports WouldBlock; once at least one
// record has been filled, "no signal" ends the loop successfully instead
// of blocking for a second one, per spec.md §4.5.
func readSignalfd(desc *fdctx.Description, buf []byte, siginfoSize int) (int, error) {
	st := desc.Payload().(*signalfdctx.State)
	n := 0
	for n+siginfoSize <= len(buf) {
		info, err := st.Read()
		if err != nil {
			if !errors.Is(err, shimerr.EAGAIN) {
				if n > 0 {
					return n, nil
				}
				return 0, err
			}
			if n > 0 {
				break
			}
			if desc.Nonblock.Load() {
				return 0, err
			}
			if werr := waitReadable(st.Queue().HostFD()); werr != nil {
				return 0, werr
			}
			continue
		}

		out := (*SignalfdSiginfo)(unsafe.Pointer(&buf[n]))
		*out = SignalfdSiginfo{Signo: info.Signo}
		n += siginfoSize
		metrics.Add(metrics.SignalfdRecordsDelivered, 1)
	}
	return n, nil
}

// Write is a drop-in replacement for unix.Write. Only eventfd fds
// support it; everything else this package created rejects writes the
// same way the real kernel objects do, and anything unrecognized passes
// straight through to the host. When the fd's non-block flag is clear, a
// Write that would overflow the counter blocks on the dedicated queue's
// host fd and retries instead of returning WouldBlock immediately.
func Write(fd int, buf []byte) (int, error) {
	desc, ok := fdctx.Default().Lookup(fd)
	if !ok {
		return unix.Write(fd, buf)
	}
	if !desc.Begin() {
		return 0, shimerr.EBADF
	}
	defer desc.End()

	if desc.Kind != fdctx.KindEvent {
		return 0, shimerr.EINVAL
	}
	if len(buf) < 8 {
		return 0, shimerr.EINVAL
	}
	v := *(*uint64)(unsafe.Pointer(&buf[0]))

	st := desc.Payload().(*eventfdctx.State)
	var err error
	for {
		err = st.Write(v)
		if err == nil {
			break
		}
		if !errors.Is(err, shimerr.EAGAIN) {
			return 0, err
		}
		if desc.Nonblock.Load() {
			metrics.Add(metrics.EventfdWriteBlocks, 1)
			return 0, err
		}
		if werr := waitReadable(st.Queue().HostFD()); werr != nil {
			return 0, werr
		}
	}
	metrics.Add(metrics.EventfdWrites, 1)
	return 8, nil
}

// queueCloser is implemented by every State type this package creates:
// each owns a dedicated kqueue that must be released on Close.
type queueCloser interface {
	Queue() kqueue.Queue
}

// stopper is implemented by State types with teardown beyond releasing
// their queue (unsubscribing from the realtime-step detector, stopping
// an os/signal watch).
type stopper interface {
	Close()
}

// Close tears down a shim fd: it blocks until any in-flight Read/Write/
// Wait/Ctl on fd has returned, runs the underlying State's own teardown
// if it has one, releases the dedicated kqueue, and removes fd from the
// registry. Anything this package didn't create passes straight through
// to the host.
func Close(fd int) error {
	desc, ok := fdctx.Default().Lookup(fd)
	if !ok {
		return unix.Close(fd)
	}

	desc.Close()

	if s, ok := desc.Payload().(stopper); ok {
		s.Close()
	}

	var err error
	if qc, ok := desc.Payload().(queueCloser); ok {
		err = qc.Queue().Close()
	}

	fdctx.Default().Remove(fd)
	return err
}

// Poll is a drop-in replacement for unix.Poll. The shim fds created by
// this package are, by construction, the host fd of their own dedicated
// kqueue, so poll(2) against them already reports the right readiness
// natively with no translation needed here.
func Poll(fds []unix.PollFd, timeoutMS int) (int, error) {
	return unix.Poll(fds, timeoutMS)
}

// PPoll is a drop-in replacement for unix.Ppoll, same reasoning as Poll.
func PPoll(fds []unix.PollFd, timeout *unix.Timespec, sigmask *unix.Sigset_t) (int, error) {
	return unix.Ppoll(fds, timeout, sigmask)
}

// Fcntl is a drop-in replacement for unix.FcntlInt. Every fcntl op other
// than F_SETFL on a shimmed fd already does the right thing against the
// host fd without translation. F_SETFL is special-cased: for a shimmed
// fd it must also update the Description's own non-block flag, since
// Read/Write consult that flag (not the host fd's O_NONBLOCK bit) to
// decide whether to block. The host fcntl(F_SETFL) is still issued so
// poll(2) against the fd keeps behaving consistently; an ENOTTY failure
// from that call is ignored.
func Fcntl(fd int, cmd int, arg int) (int, error) {
	if cmd != unix.F_SETFL {
		return unix.FcntlInt(uintptr(fd), cmd, arg)
	}

	desc, ok := fdctx.Default().Lookup(fd)
	if !ok {
		return unix.FcntlInt(uintptr(fd), cmd, arg)
	}

	nonblock := arg&unix.O_NONBLOCK != 0
	desc.Nonblock.Store(nonblock)

	ret, err := unix.FcntlInt(uintptr(fd), cmd, arg)
	if err != nil && err != unix.ENOTTY {
		return ret, err
	}
	return ret, nil
}
