//go:build darwin || netbsd || openbsd || dragonfly
// +build darwin netbsd openbsd dragonfly

package kqueue

import "golang.org/x/sys/unix"

// forceOneshotFlag falls back to plain EV_ONESHOT on hosts without
// EV_FORCEONESHOT; the epoll engine compensates by re-registering explicitly
// after every delivery instead of relying on the kernel to keep firing.
// Grounded on original_source/src/epollfd_ctx.c's "#ifdef EV_FORCEONESHOT"
// branch (the #else path is a no-op there; we choose the closest available
// semantics instead of dropping NYCSS handling on these hosts).
const forceOneshotFlag = unix.EV_ONESHOT
