//go:build freebsd
// +build freebsd

package kqueue

import "golang.org/x/sys/unix"

// forceOneshotFlag is EV_FORCEONESHOT where the host kernel supports it:
// unlike EV_ONESHOT it keeps delivering while the condition still holds
// across re-enables, which is what NYCSS re-arming in the epoll engine
// needs. Grounded on original_source/src/epollfd_ctx.c's
// "#ifdef EV_FORCEONESHOT" branch.
const forceOneshotFlag = unix.EV_FORCEONESHOT
