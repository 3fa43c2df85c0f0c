// Package taskpool holds the process-wide ants.Pool used for transient
// background goroutines this module spawns on the caller's behalf (the
// realtime-step detector's sampler), so that work is scheduled and
// recycled the same way the teacher's sysPool/usrPool split handles
// async I/O callbacks, instead of a bare `go` statement with no shared
// lifecycle. Long-lived blocking goroutines (the per-signalfd
// os/signal drain loop, which blocks for the fd's entire lifetime) stay
// off this pool deliberately: pinning one of a bounded number of ants
// workers for the life of a fd would starve every other transient task.
package taskpool

import "github.com/panjf2000/ants/v2"

// maxRoutines of 0 means ants treats the pool as unbounded (INT32_MAX),
// matching the teacher's sysPool/usrPool sizing.
const maxRoutines = 0

var bgPool, _ = ants.NewPool(maxRoutines, ants.WithNonblocking(false))

// Go submits task to the shared background pool. Unlike a raw `go`
// statement, a task submitted here is subject to the pool's concurrency
// cap and its goroutine is returned to the pool once task finishes.
func Go(task func()) error {
	return bgPool.Submit(task)
}

// Resize changes the background pool's worker cap, used by the
// root-level SetWorkerPoolSize option.
func Resize(size int) {
	bgPool.Tune(size)
}
