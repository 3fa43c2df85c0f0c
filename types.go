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

import "github.com/jiixyj/epoll-shim-go/internal/timespec"

// Timespec is a (seconds, nanoseconds) pair, the currency of
// TimerfdSettime/TimerfdGettime.
type Timespec = timespec.Timespec

// ITimerspec mirrors struct itimerspec: the armed value plus a reload
// interval for periodic timers.
type ITimerspec = timespec.Itimerspec

// SignalfdSiginfo mirrors Linux's struct signalfd_siginfo byte for byte
// (128 bytes). Go's os/signal only surfaces which signal arrived, so
// every field but Signo is always zero; this matches the Non-goal that
// exact siginfo payload parity is best-effort per host.
type SignalfdSiginfo struct {
	Signo    uint32
	Errno    int32
	Code     int32
	PID      uint32
	UID      uint32
	FD       int32
	TID      uint32
	Band     uint32
	Overrun  uint32
	Trapno   uint32
	Status   int32
	Int      int32
	Ptr      uint64
	Utime    uint64
	Stime    uint64
	Addr     uint64
	AddrLsb  uint16
	_        uint16
	Syscall  int32
	CallAddr uint64
	Arch     uint32
	_        [28]byte
}
