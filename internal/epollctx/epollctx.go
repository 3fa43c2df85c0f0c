// Package epollctx is the central translation engine between epoll's
// level-triggered readiness model and kqueue's mostly edge-triggered
// one: it tracks one node per registered fd, caches whether that fd is a
// FIFO or a socket (each needs different EOF/HUP/RDHUP synthesis), keeps
// a single poll-only fallback slot for fd kinds kqueue can't filter at
// all, and re-arms not-yet-connected-stream-socket reads so a later
// connect() is still observed. Grounded line-for-line on
// original_source/src/epollfd_ctx.c.
package epollctx

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/jiixyj/epoll-shim-go/internal/kqueue"
	"github.com/jiixyj/epoll-shim-go/internal/rwlock"
	"github.com/jiixyj/epoll-shim-go/internal/shimerr"
)

// Event mask bits, matching Linux's epoll_event.events values. Only
// darwin/zos builds of x/sys/unix predefine these (epoll is Linux-only
// there); the kqueue-backed hosts this package targets don't have them at
// all, so this package is their source of truth.
const (
	EPOLLIN    uint32 = 0x001
	EPOLLOUT   uint32 = 0x004
	EPOLLERR   uint32 = 0x008
	EPOLLHUP   uint32 = 0x010
	EPOLLRDHUP uint32 = 0x2000
)

const supportedMask = EPOLLIN | EPOLLOUT | EPOLLHUP | EPOLLRDHUP | EPOLLERR

// Ctl operations, matching EPOLL_CTL_ADD/DEL/MOD.
const (
	OpAdd = iota + 1
	OpDel
	OpMod
)

type nodeFlags uint16

const (
	flagEPOLLIN nodeFlags = 1 << iota
	flagEPOLLOUT
	flagEPOLLRDHUP
	flagNYCSS
	flagISFIFO
	flagISSOCK
)

type eofState uint8

const (
	eofStateRead eofState = 1 << iota
	eofStateWrite
)

// node is the per-registered-fd bookkeeping entry, kept alive by the
// State.nodes map and referenced directly from kevent udata the way the
// original stashes a RegisteredFDsNode pointer there.
type node struct {
	fd    int
	data  uint64
	flags nodeFlags
	eof   eofState
}

func nodeToUdata(n *node) uintptr { return uintptr(unsafe.Pointer(n)) }
func udataToNode(u uintptr) *node { return (*node)(unsafe.Pointer(u)) }

// Ready is one readiness report from Wait, pre-translated to epoll event
// bits plus the opaque data word the caller registered.
type Ready struct {
	Events uint32
	Data   uint64
}

// State is one epoll instance's fd table and fallback poll slot.
type State struct {
	lock  rwlock.RWLock
	queue kqueue.Queue

	nodes map[int]*node

	fallbackFD     int
	fallbackEvents int16
	fallbackData   uint64
}

// New creates an empty epoll instance backed by q.
func New(q kqueue.Queue) *State {
	return &State{queue: q, nodes: make(map[int]*node), fallbackFD: -1}
}

// Queue returns the State's host readiness queue.
func (s *State) Queue() kqueue.Queue { return s.queue }

func isNotYetConnectedStreamSocket(fd int) bool {
	if accepting, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ACCEPTCONN); err == nil && accepting != 0 {
		return false
	}
	typ, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TYPE)
	if err != nil || (typ != unix.SOCK_STREAM && typ != unix.SOCK_SEQPACKET) {
		return false
	}
	_, err = unix.Getpeername(fd)
	return err == unix.ENOTCONN
}

// Ctl implements EPOLL_CTL_ADD/MOD/DEL against fd2, mirroring
// epollfd_ctx_ctl_impl.
func (s *State) Ctl(op int, fd2 int, events uint32, data uint64) error {
	if fd2 == s.queue.HostFD() {
		return shimerr.EINVAL
	}
	if events&^supportedMask != 0 {
		return shimerr.EINVAL
	}
	if op != OpAdd && op != OpDel && op != OpMod {
		return shimerr.EINVAL
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	existing := s.nodes[fd2]

	var stat unix.Stat_t
	if err := unix.Fstat(fd2, &stat); err != nil {
		if existing != nil {
			s.removeNode(fd2, existing)
		}
		return shimerr.FromSyscallErrno(err)
	}

	switch op {
	case OpAdd:
		return s.ctlAdd(fd2, events, data, stat, existing)
	case OpDel:
		if existing == nil {
			return shimerr.ENOENT
		}
		return s.ctlDel(fd2, existing)
	default: // OpMod
		if existing == nil {
			return shimerr.ENOENT
		}
		return s.ctlMod(fd2, events, data, existing)
	}
}

func (s *State) removeNode(fd2 int, n *node) {
	delete(s.nodes, fd2)
	if s.fallbackFD == fd2 {
		s.fallbackFD = -1
	}
	_ = n
}

func eventFlags(events uint32) nodeFlags {
	var f nodeFlags
	if events&EPOLLIN != 0 {
		f |= flagEPOLLIN
	}
	if events&EPOLLOUT != 0 {
		f |= flagEPOLLOUT
	}
	if events&EPOLLRDHUP != 0 {
		f |= flagEPOLLRDHUP
	}
	return f
}

// handleReceipts interprets the EV_RECEIPT acks for a [READ, WRITE]
// change pair, matching the per-receipt error tolerance/fallback-slot
// logic of the original's shared loop. Returns (usedFallback, error).
func (s *State) handleReceipts(receipts []kqueue.Receipt, op int, fd2 int, events uint32, data uint64) (bool, error) {
	for i, r := range receipts {
		if r.Errno == int(unix.ENODEV) && op != OpDel && fd2 >= 0 &&
			events&^(EPOLLIN|EPOLLOUT) == 0 &&
			(s.fallbackFD < 0 || s.fallbackFD == fd2) {
			var pollEvents int16
			if events&EPOLLIN != 0 {
				pollEvents |= unix.POLLIN
			}
			if events&EPOLLOUT != 0 {
				pollEvents |= unix.POLLOUT
			}
			s.fallbackFD = fd2
			s.fallbackEvents = pollEvents
			s.fallbackData = data
			return true, nil
		}

		// EVFILT_WRITE registration commonly fails on fd kinds that don't
		// support it (kqueues themselves, some device nodes) or on a
		// previously-partial ADD; tolerate it.
		if i == 1 && (r.Errno == int(unix.EINVAL) || r.Errno == int(unix.EPERM) || r.Errno == int(unix.ENOENT)) {
			continue
		}

		if r.Errno != 0 {
			return false, shimerr.FromSyscallErrno(unix.Errno(r.Errno))
		}
	}
	return false, nil
}

func (s *State) ctlAdd(fd2 int, events uint32, data uint64, stat unix.Stat_t, existing *node) error {
	if existing != nil {
		return shimerr.EEXIST
	}

	flags := eventFlags(events)
	switch stat.Mode & unix.S_IFMT {
	case unix.S_IFIFO:
		flags |= flagISFIFO
	case unix.S_IFSOCK:
		flags |= flagISSOCK
	}

	n := &node{fd: fd2, data: data, flags: flags}

	readFlags := kqueue.FlagAdd
	if events&EPOLLIN == 0 {
		readFlags |= kqueue.FlagDisable
	}
	writeFlags := kqueue.FlagAdd
	if events&EPOLLOUT == 0 {
		writeFlags |= kqueue.FlagDisable
	}

	receipts, err := s.queue.Register([]kqueue.Change{
		{Ident: uint64(fd2), Filter: kqueue.FilterRead, Flags: readFlags, Udata: nodeToUdata(n)},
		{Ident: uint64(fd2), Filter: kqueue.FilterWrite, Flags: writeFlags, Udata: nodeToUdata(n)},
	})
	if err != nil {
		return err
	}

	usedFallback, ec := s.handleReceipts(receipts, OpAdd, fd2, events, data)
	if ec != nil {
		return ec
	}

	if !usedFallback && isNotYetConnectedStreamSocket(fd2) {
		if _, err := s.queue.Register([]kqueue.Change{
			{Ident: uint64(fd2), Filter: kqueue.FilterRead, Flags: kqueue.FlagEnable | kqueue.FlagForceOneshot, Udata: nodeToUdata(n)},
		}); err != nil {
			return shimerr.FromSyscallErrno(err)
		}
		flags |= flagNYCSS
	}

	n.flags = flags
	s.nodes[fd2] = n
	return nil
}

func (s *State) ctlDel(fd2 int, existing *node) error {
	// fds tracked only through the poll-only fallback slot were never
	// actually registered with the host kqueue (their EVFILT_READ/WRITE
	// registration is what failed with ENODEV in the first place), so
	// there is nothing to delete there.
	if fd2 == s.fallbackFD {
		s.removeNode(fd2, existing)
		return nil
	}

	receipts, err := s.queue.Register([]kqueue.Change{
		{Ident: uint64(fd2), Filter: kqueue.FilterRead, Flags: kqueue.FlagDelete},
		{Ident: uint64(fd2), Filter: kqueue.FilterWrite, Flags: kqueue.FlagDelete},
	})
	var ec error
	if err != nil {
		ec = err
	} else {
		_, ec = s.handleReceipts(receipts, OpDel, fd2, 0, 0)
	}
	s.removeNode(fd2, existing)
	return ec
}

func (s *State) ctlMod(fd2 int, events uint32, data uint64, existing *node) error {
	readFlags := kqueue.ChangeFlag(0)
	if events&EPOLLIN != 0 {
		readFlags = kqueue.FlagEnable
	} else {
		readFlags = kqueue.FlagDisable
	}
	writeFlags := kqueue.ChangeFlag(0)
	if events&EPOLLOUT != 0 {
		writeFlags = kqueue.FlagEnable
	} else {
		writeFlags = kqueue.FlagDisable
	}

	newFlags := (existing.flags &^ (flagEPOLLIN | flagEPOLLOUT | flagEPOLLRDHUP)) | eventFlags(events)

	receipts, err := s.queue.Register([]kqueue.Change{
		{Ident: uint64(fd2), Filter: kqueue.FilterRead, Flags: readFlags, Udata: nodeToUdata(existing)},
		{Ident: uint64(fd2), Filter: kqueue.FilterWrite, Flags: writeFlags, Udata: nodeToUdata(existing)},
	})
	if err != nil {
		return err
	}

	_, ec := s.handleReceipts(receipts, OpMod, fd2, events, data)
	if ec == nil {
		existing.flags = newFlags
		existing.data = data
		return nil
	}

	if se, ok := ec.(shimerr.Errno); ok && (se == shimerr.ENOENT || se == shimerr.EBADF) {
		s.removeNode(fd2, existing)
	}
	return ec
}

// pollToEpoll translates poll(2) revents bits (used only by the
// poll-only fallback slot) to epoll event bits.
func pollToEpoll(revents int16) uint32 {
	var out uint32
	if revents&unix.POLLIN != 0 {
		out |= EPOLLIN
	}
	if revents&unix.POLLOUT != 0 {
		out |= EPOLLOUT
	}
	if revents&unix.POLLERR != 0 {
		out |= EPOLLERR
	}
	if revents&unix.POLLHUP != 0 {
		out |= EPOLLHUP
	}
	return out
}

// Wait drains up to len(out) ready events, never blocking itself (the
// caller arranges blocking/timeout semantics by waiting on the host
// queue fd first). It returns the number of entries filled in out.
func (s *State) Wait(out []Ready) (int, error) {
	if len(out) < 1 || len(out) > 32 {
		return 0, shimerr.EINVAL
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.fallbackFD >= 0 {
		pfd := []unix.PollFd{{Fd: int32(s.fallbackFD), Events: s.fallbackEvents}}
		n, err := unix.Poll(pfd, 0)
		if err != nil {
			return 0, shimerr.FromSyscallErrno(err)
		}
		if n > 0 && pfd[0].Revents&(unix.POLLIN|unix.POLLOUT|unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			out[0] = Ready{Events: pollToEpoll(pfd[0].Revents), Data: s.fallbackData}
			return 1, nil
		}
	}

	for {
		events, err := s.queue.Drain(len(out), &zeroTimeout)
		if err != nil {
			return 0, err
		}

		j := 0
		for _, ev := range events {
			n := udataToNode(ev.Udata)
			if n == nil {
				continue
			}

			epollEvents, keep := s.translate(ev, n)
			if !keep {
				continue
			}
			out[j] = Ready{Events: epollEvents, Data: n.data}
			j++
		}

		if len(events) > 0 && j == 0 {
			continue
		}
		return j, nil
	}
}

var zeroTimeout = new(time.Duration)

// translate folds one drained kqueue event for fd n into epoll event
// bits, handling NYCSS re-arming and the FIFO/socket EOF synthesis
// tables. Returns keep=false when the event should be silently dropped
// (e.g. an NYCSS re-arm that produced no user-visible readiness yet).
func (s *State) translate(ev kqueue.Event, n *node) (uint32, bool) {
	var events uint32

	if ev.Filter == kqueue.FilterRead {
		events |= EPOLLIN

		if ev.Oneshot && n.flags&flagNYCSS != 0 {
			if isNotYetConnectedStreamSocket(int(ev.Ident)) {
				events = EPOLLHUP
				if n.flags&flagEPOLLOUT != 0 {
					events |= EPOLLOUT
				}
				_, _ = s.queue.Register([]kqueue.Change{
					{Ident: ev.Ident, Filter: kqueue.FilterRead, Flags: kqueue.FlagAdd},
					{Ident: ev.Ident, Filter: kqueue.FilterRead, Flags: kqueue.FlagEnable | kqueue.FlagForceOneshot, Udata: nodeToUdata(n)},
				})
			} else {
				n.flags &^= flagNYCSS
				readFlags := kqueue.FlagDisable
				if n.flags&flagEPOLLIN != 0 {
					readFlags = kqueue.FlagEnable
				}
				_, _ = s.queue.Register([]kqueue.Change{
					{Ident: ev.Ident, Filter: kqueue.FilterRead, Flags: kqueue.FlagAdd},
					{Ident: ev.Ident, Filter: kqueue.FilterRead, Flags: readFlags, Udata: nodeToUdata(n)},
				})
				return 0, false
			}
		}
	} else if ev.Filter == kqueue.FilterWrite {
		events |= EPOLLOUT
	}

	if ev.Filter == kqueue.FilterRead {
		if ev.EOF {
			n.eof |= eofStateRead
		} else {
			n.eof &^= eofStateRead
		}
	} else if ev.Filter == kqueue.FilterWrite {
		if ev.EOF {
			n.eof |= eofStateWrite
		} else {
			n.eof &^= eofStateWrite
		}
	}

	if ev.Error {
		events |= EPOLLERR
	}

	if ev.EOF {
		if ev.Fflags != 0 {
			events |= EPOLLERR
		}

		var epollEvent uint32
		switch {
		case n.flags&flagISFIFO != 0:
			if ev.Filter == kqueue.FilterRead {
				epollEvent = EPOLLHUP
				if ev.Data == 0 {
					events &^= EPOLLIN
				}
			} else {
				epollEvent = EPOLLERR
			}
		case n.flags&flagISSOCK != 0:
			epollEvent = s.translateSocketEOF(ev, n)
		default:
			epollEvent = EPOLLHUP
		}
		events |= epollEvent
	}

	return events, true
}

// translateSocketEOF mirrors the original's socket-specific EVFILT_READ
// EOF handling: peek at poll(2) to decide whether this is a clean
// half-close (EPOLLIN/EPOLLRDHUP) or a full hangup (EPOLLHUP), stealing
// whatever extra readiness poll reports along the way.
func (s *State) translateSocketEOF(ev kqueue.Event, n *node) uint32 {
	var epollEvent uint32
	if ev.Filter == kqueue.FilterRead {
		epollEvent = EPOLLIN
		if n.flags&flagEPOLLRDHUP != 0 {
			epollEvent |= EPOLLRDHUP
		}
	} else {
		epollEvent = EPOLLOUT
	}

	pfd := []unix.PollFd{{Fd: int32(ev.Ident), Events: unix.POLLIN | unix.POLLOUT | unix.POLLHUP}}
	if pollN, err := unix.Poll(pfd, 0); err != nil || pollN != 1 {
		return epollEvent
	}

	if pfd[0].Revents&unix.POLLHUP != 0 || n.eof == eofStateRead|eofStateWrite {
		if n.flags&flagEPOLLIN != 0 {
			epollEvent |= EPOLLIN
		}
		if n.flags&flagEPOLLRDHUP != 0 {
			epollEvent |= EPOLLRDHUP
		}
		epollEvent |= EPOLLHUP
	}

	if pfd[0].Revents&unix.POLLIN != 0 && n.flags&flagEPOLLIN != 0 {
		epollEvent |= EPOLLIN
	}
	if pfd[0].Revents&unix.POLLOUT != 0 && n.flags&flagEPOLLOUT != 0 {
		epollEvent |= EPOLLOUT
	}

	return epollEvent
}
