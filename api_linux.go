//go:build linux

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

// On Linux there is nothing to shim: epoll/eventfd/timerfd/signalfd are
// native. Every exported function in this build delegates straight to
// golang.org/x/sys/unix so a program written against this package behaves
// identically whether it ends up running on its original platform or on
// a BSD host via the kqueue-backed build.
package epollshim

import "golang.org/x/sys/unix"

// EpollCreate1 delegates to unix.EpollCreate1.
func EpollCreate1(flags int) (int, error) {
	return unix.EpollCreate1(flags)
}

// EpollCreate delegates to unix.EpollCreate.
func EpollCreate(size int) (int, error) {
	return unix.EpollCreate(size)
}

// EpollCtl delegates to unix.EpollCtl.
func EpollCtl(epfd, op, fd int, event *EpollEvent) error {
	var ev *unix.EpollEvent
	if event != nil {
		ev = &unix.EpollEvent{Events: event.Events, Fd: event.FD()}
	}
	return unix.EpollCtl(epfd, op, fd, ev)
}

// EpollWait delegates to unix.EpollWait.
func EpollWait(epfd int, events []EpollEvent, timeoutMS int) (int, error) {
	raw := make([]unix.EpollEvent, len(events))
	n, err := unix.EpollWait(epfd, raw, timeoutMS)
	for i := 0; i < n; i++ {
		events[i].Events = raw[i].Events
		events[i].SetFD(raw[i].Fd)
	}
	return n, err
}

// EpollPwait delegates to unix.EpollPwait.
func EpollPwait(epfd int, events []EpollEvent, timeoutMS int, sigmask *unix.Sigset_t) (int, error) {
	raw := make([]unix.EpollEvent, len(events))
	n, err := unix.EpollPwait(epfd, raw, timeoutMS, sigmask)
	for i := 0; i < n; i++ {
		events[i].Events = raw[i].Events
		events[i].SetFD(raw[i].Fd)
	}
	return n, err
}

// Eventfd delegates to unix.Eventfd.
func Eventfd(initval uint, flags int) (int, error) {
	return unix.Eventfd(initval, flags)
}

// TimerfdCreate delegates to unix.TimerfdCreate.
func TimerfdCreate(clockid, flags int) (int, error) {
	return unix.TimerfdCreate(clockid, flags)
}

// TimerfdSettime delegates to unix.TimerfdSettime.
func TimerfdSettime(fd, flags int, new *ITimerspec, old *ITimerspec) error {
	n := itimerspecToUnix(new)
	var o unix.ItimerSpec
	err := unix.TimerfdSettime(fd, flags, n, &o)
	if old != nil {
		*old = itimerspecFromUnix(&o)
	}
	return err
}

// TimerfdGettime delegates to unix.TimerfdGettime.
func TimerfdGettime(fd int) (*ITimerspec, error) {
	var cur unix.ItimerSpec
	if err := unix.TimerfdGettime(fd, &cur); err != nil {
		return nil, err
	}
	out := itimerspecFromUnix(&cur)
	return &out, nil
}

func itimerspecToUnix(t *ITimerspec) *unix.ItimerSpec {
	if t == nil {
		return nil
	}
	return &unix.ItimerSpec{
		Interval: unix.Timespec{Sec: t.Interval.Sec, Nsec: t.Interval.Nsec},
		Value:    unix.Timespec{Sec: t.Value.Sec, Nsec: t.Value.Nsec},
	}
}

func itimerspecFromUnix(t *unix.ItimerSpec) ITimerspec {
	return ITimerspec{
		Interval: Timespec{Sec: t.Interval.Sec, Nsec: t.Interval.Nsec},
		Value:    Timespec{Sec: t.Value.Sec, Nsec: t.Value.Nsec},
	}
}

// Signalfd delegates to unix.Signalfd.
func Signalfd(fd int, sigs *unix.Sigset_t, flags int) (int, error) {
	return unix.Signalfd(fd, sigs, flags)
}

// Read delegates to unix.Read.
func Read(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

// Write delegates to unix.Write.
func Write(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

// Close delegates to unix.Close.
func Close(fd int) error {
	return unix.Close(fd)
}

// Poll delegates to unix.Poll.
func Poll(fds []unix.PollFd, timeoutMS int) (int, error) {
	return unix.Poll(fds, timeoutMS)
}

// PPoll delegates to unix.Ppoll.
func PPoll(fds []unix.PollFd, timeout *unix.Timespec, sigmask *unix.Sigset_t) (int, error) {
	return unix.Ppoll(fds, timeout, sigmask)
}

// Fcntl delegates to unix.FcntlInt.
func Fcntl(fd int, cmd int, arg int) (int, error) {
	return unix.FcntlInt(uintptr(fd), cmd, arg)
}
