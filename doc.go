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

// Package epollshim reimplements Linux's epoll/eventfd/timerfd/signalfd
// family on top of kqueue(2), the way original_source/src ships it as a
// small C shared library (LD_PRELOAD-interposed on Linux-targeting
// binaries running on a BSD host). Every exported function here returns
// the same file descriptor shape the Linux syscalls would: the caller
// gets back a plain int fd, can poll/select/kevent on it directly
// (internal/kqueue.Open always returns the dedicated kqueue's own fd, so
// the host kernel's own readiness machinery already works on it without
// help from this package), and must eventually Close it.
//
// On hosts that already have a native epoll (linux), every function in
// this package is a thin, zero-translation passthrough straight to
// golang.org/x/sys/unix — see api_linux.go.
package epollshim

// Eventfd flags, matching Linux's EFD_* bit values (shared with O_NONBLOCK
// / O_CLOEXEC since the kernel reuses those bits).
const (
	EFDSemaphore = 1
	EFDCloexec   = 0o2000000
	EFDNonblock  = 0o4000
)

// Timerfd/signalfd flags, matching Linux's TFD_*/SFD_* bit values.
const (
	TFDCloexec  = 0o2000000
	TFDNonblock = 0o4000

	SFDCloexec  = 0o2000000
	SFDNonblock = 0o4000
)

// TimerAbstime is TFD_TIMER_ABSTIME: Settime's new value is an absolute
// deadline rather than relative to now.
const TimerAbstime = 1 << 0

// Epoll flags/ops, matching Linux's EPOLL_* values.
const (
	EpollCloexec = 0o2000000

	EpollCtlAdd = 1
	EpollCtlDel = 2
	EpollCtlMod = 3
)

// Clock IDs accepted by TimerfdCreate, matching Linux's CLOCK_* values.
const (
	ClockMonotonic = 1
	ClockRealtime  = 0
)

// Epoll event bits, matching Linux's EPOLL* values used in EpollEvent.Events.
const (
	EPOLLIN    uint32 = 0x001
	EPOLLOUT   uint32 = 0x004
	EPOLLERR   uint32 = 0x008
	EPOLLHUP   uint32 = 0x010
	EPOLLRDHUP uint32 = 0x2000
)
