//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package epollshim_test

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func unsafePtr(buf []byte) unsafe.Pointer {
	return unsafe.Pointer(&buf[0])
}

func sigsetAdd(set *unix.Sigset_t, sig int) {
	size := int(unsafe.Sizeof(*set))
	base := unsafe.Pointer(set)
	byteIdx := (sig - 1) / 8
	bitIdx := uint((sig - 1) % 8)
	if byteIdx >= size {
		return
	}
	p := (*byte)(unsafe.Pointer(uintptr(base) + uintptr(byteIdx)))
	*p |= 1 << bitIdx
}

func osPipe() (r int, w int, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}
