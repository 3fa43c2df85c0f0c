// Package fdctx holds the process-wide registry of shimmed file
// descriptors and the per-descriptor state ("FileDescription" in the
// specification) behind each of them. It is the site at which the
// dispatch wrappers decide whether a given fd is one of ours or should
// fall through to the host, grounded on
// original_source/src/epoll_shim_ctx.{h,c} and styled after the teacher's
// singleton PollMgr/descCache pattern (a package-level instance created
// once, never torn down mid-process).
package fdctx

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/jiixyj/epoll-shim-go/internal/safejob"
)

// Kind tags which shim a Description belongs to.
type Kind int

// Supported kinds.
const (
	KindEpoll Kind = iota
	KindEvent
	KindTimer
	KindSignal
)

func (k Kind) String() string {
	switch k {
	case KindEpoll:
		return "epoll"
	case KindEvent:
		return "eventfd"
	case KindTimer:
		return "timerfd"
	case KindSignal:
		return "signalfd"
	default:
		return "unknown"
	}
}

// Description is the per-shimmed-fd state the specification calls
// "FileDescription": a kind tag, the owning host queue fd, and a
// kind-specific payload. Every read/write/ctl/wait/settime/gettime
// operation is wrapped in the embedded ConcurrentJob (Poll and PPoll pass
// straight to the host and are not) so a close cannot race (and double-free)
// state a concurrent reader is still using, matching spec.md §9's "scoped
// acquisition... guaranteed release on all paths" and the teacher's
// closer.go pattern.
type Description struct {
	safejob.ConcurrentJob

	FD       int
	Kind     Kind
	HostFD   int
	Nonblock atomic.Bool

	payload any
}

// Payload returns the kind-specific state (*eventfdctx.State,
// *timerfdctx.State, *signalfdctx.State or *epollctx.State), set once at
// construction time and never replaced.
func (d *Description) Payload() any {
	return d.payload
}

// Registry is the process-wide fd -> Description map described by
// spec.md §3: at most one Description per fd, membership is authoritative
// ("absent" means "pass through to the host"), guarded by a single coarse
// mutex that is never held across I/O.
type Registry struct {
	mu    sync.Mutex
	descs map[int]*Description
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry singleton, created lazily on
// first use as spec.md §9 describes ("no destruction-order pitfalls
// because no other globals depend on them").
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = &Registry{descs: make(map[int]*Description)}
	})
	return defaultRegistry
}

// ErrAlreadyRegistered is returned by Insert when fd already has a
// Description, which would violate the registry's "at most one" invariant.
var ErrAlreadyRegistered = errors.New("fdctx: fd already registered")

// Insert installs a new Description for fd, returned from a successful
// shim constructor. Fails if fd is already shimmed.
func (r *Registry) Insert(fd int, kind Kind, hostFD int, payload any) (*Description, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.descs[fd]; ok {
		return nil, ErrAlreadyRegistered
	}
	d := &Description{FD: fd, Kind: kind, HostFD: hostFD, payload: payload}
	r.descs[fd] = d
	return d, nil
}

// Lookup returns the Description registered for fd, or (nil, false) if fd
// is not shimmed (the wrapper should fall through to the host syscall).
func (r *Registry) Lookup(fd int) (*Description, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.descs[fd]
	return d, ok
}

// Remove deletes fd's Description from the registry. It is a no-op if fd
// is not present (tolerates double-close races).
func (r *Registry) Remove(fd int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.descs, fd)
}

// Len reports the number of shimmed fds currently registered, for tests
// and metrics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.descs)
}
