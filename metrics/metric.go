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

// Package metrics provides runtime monitoring data for the epoll-shim
// fd kinds, such as the number of epoll_wait returns with events versus
// empty polls, which is a good tool for performance tuning.
package metrics

import (
	"fmt"
	"time"

	"go.uber.org/atomic"
)

// All metrics definitions.
const (
	// Epoll metrics
	EpollWait = iota
	EpollNoWait
	EpollEvents
	EpollCtlAdd
	EpollCtlMod
	EpollCtlDel
	EpollFallbackPoll

	// Eventfd metrics
	EventfdReads
	EventfdWrites
	EventfdWriteBlocks

	// Timerfd metrics
	TimerfdExpirations
	TimerfdRealtimeSteps

	// Signalfd metrics
	SignalfdRecordsDelivered

	TaskAssigned
	Max
)

var (
	metrics [Max]atomic.Uint64
)

// Add metrics counter.
func Add(name int, delta uint64) {
	if name >= Max {
		return
	}
	metrics[name].Add(delta)
}

// Get one metric counter.
func Get(name int) uint64 {
	if name >= Max {
		return 0
	}
	return metrics[name].Load()
}

// GetAll get all metrics.
func GetAll() [Max]uint64 {
	var m [Max]uint64
	for i := range metrics {
		m[i] = metrics[i].Load()
	}
	return m
}

// ShowMetricsOfPeriod shows metric info of duration d from now on.
// It will block d duration, and then prints metrics info.
func ShowMetricsOfPeriod(d time.Duration) {
	old := GetAll()
	<-time.After(d)
	new := GetAll()
	var m [Max]uint64
	for i := range metrics {
		m[i] = new[i] - old[i]
	}
	showAll(m)
}

// ShowMetrics shows metric info in console.
func ShowMetrics() {
	m := GetAll()
	showAll(m)
}

func showAll(m [Max]uint64) {
	fmt.Println("######### epoll-shim metrics (", time.Now().Format("2006-01-02 15:04:05"), ") ###########")
	showEpollMetrics(m)
	showEventfdMetrics(m)
	showTimerfdMetrics(m)
	fmt.Printf("%-59s: %d\n", "# SIGNALFD - number of records delivered", m[SignalfdRecordsDelivered])
	fmt.Printf("%-59s: %d\n", "# number of task assigned (Submit)", m[TaskAssigned])
	fmt.Printf("\n")
}

func showEpollMetrics(m [Max]uint64) {
	fmt.Printf("%-59s: %d\n", "# EPOLL - number of epoll_wait returns with events (tag:b)", m[EpollWait])
	fmt.Printf("%-59s: %d\n", "# EPOLL - number of epoll_wait calls with no events (tag:a)", m[EpollNoWait])
	fmt.Printf("%-59s: %d\n", "# EPOLL - number of total events", m[EpollEvents])
	if m[EpollWait] > 0 {
		fmt.Printf("%-59s: %.2f%%\n", "# EPOLL - a/b * 100%", float32(m[EpollNoWait])*100/float32(m[EpollWait]))
		fmt.Printf("%-59s: %.2f\n", "# EPOLL - average events number per epoll_wait",
			float32(m[EpollEvents])/float32(m[EpollWait]))
	}
	fmt.Printf("%-59s: %d\n", "# EPOLL - number of ctl ADD/MOD/DEL calls", m[EpollCtlAdd]+m[EpollCtlMod]+m[EpollCtlDel])
	fmt.Printf("%-59s: %d\n", "# EPOLL - number of fds served by the poll-only fallback slot", m[EpollFallbackPoll])
}

func showEventfdMetrics(m [Max]uint64) {
	fmt.Printf("%-59s: %d\n", "# EVENTFD - number of read(2) calls", m[EventfdReads])
	fmt.Printf("%-59s: %d\n", "# EVENTFD - number of write(2) calls", m[EventfdWrites])
	fmt.Printf("%-59s: %d\n", "# EVENTFD - number of writes that returned EAGAIN on overflow", m[EventfdWriteBlocks])
}

func showTimerfdMetrics(m [Max]uint64) {
	fmt.Printf("%-59s: %d\n", "# TIMERFD - number of expirations delivered", m[TimerfdExpirations])
	fmt.Printf("%-59s: %d\n", "# TIMERFD - number of realtime clock steps observed", m[TimerfdRealtimeSteps])
}
