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
	"time"

	"github.com/jiixyj/epoll-shim-go/internal/rtstep"
	"github.com/jiixyj/epoll-shim-go/internal/taskpool"
	"github.com/jiixyj/epoll-shim-go/log"
)

// SetWorkerPoolSize resizes the shared background goroutine pool used for
// the realtime-step detector's sampler (each signalfd's Notify drain loop
// runs on its own goroutine, outside the pool). Generally not actively
// used; the pool defaults to unbounded.
func SetWorkerPoolSize(n int) {
	taskpool.Resize(n)
}

// SetRealtimeStepInterval sets how often the realtime-step detector
// compares CLOCK_REALTIME against CLOCK_MONOTONIC. The default is one
// second, matching the sampling period original_source/src/epoll_shim_ctx.c
// uses. Intended to be called once at startup, before any CLOCK_REALTIME
// timerfd is created.
func SetRealtimeStepInterval(d time.Duration) {
	rtstep.SetSamplingInterval(d)
}

// SetLogger replaces the package-level logger. The only message the shim
// itself logs is EpollCreate's unsupported-call warning; receipt-level
// errors and race recoveries (e.g. a MOD racing a concurrent removal) are
// not logged. Not called on any hot path.
func SetLogger(l log.Logger) {
	log.Default = l
}
