//
//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2023 THL A29 Limited, a Tencent company.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package epollshim

import (
	"github.com/panjf2000/ants/v2"

	"github.com/jiixyj/epoll-shim-go/metrics"
)

var (
	maxRoutines = 0 // meaning INT32_MAX.
	usrPool, _  = ants.NewPool(maxRoutines)
)

// Submit submits a task to the default user business goroutine pool.
// Callers that want to react to a readiness event delivered through
// EpollWait without blocking the caller's own goroutine can hand the
// reaction off here instead of spawning a bare `go` statement.
func Submit(task func()) error {
	metrics.Add(metrics.TaskAssigned, 1)
	return usrPool.Submit(task)
}
