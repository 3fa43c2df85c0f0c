// Package shimerr defines the Linux-errno-compatible error type returned
// by the public entry points for the errors they detect themselves and
// for bare unix.Errno values from syscalls, so callers can keep comparing
// against unix.E* the way they would on real Linux. Errors produced by
// the kqueue adapter are passed through as it built them (usually an
// *os.SyscallError, which errors.Is still matches against unix.E*; a few
// are plain errors with no errno).
package shimerr

import "golang.org/x/sys/unix"

// Errno is a Linux-compatible error kind. It implements error and
// unwraps to the underlying unix.Errno via Unwrap, so errors.Is(err,
// unix.EAGAIN) keeps working through pkg/errors.Wrap call chains.
type Errno unix.Errno

// Named error kinds from spec.md §7.
const (
	EINVAL  = Errno(unix.EINVAL)
	EEXIST  = Errno(unix.EEXIST)
	ENOENT  = Errno(unix.ENOENT)
	EBADF   = Errno(unix.EBADF)
	ENOMEM  = Errno(unix.ENOMEM)
	EAGAIN  = Errno(unix.EAGAIN)
	EINTR   = Errno(unix.EINTR)
	EIO     = Errno(unix.EIO)
	ENOTSUP = Errno(unix.ENOTSUP)
	ENODEV  = Errno(unix.ENODEV)
	EPERM   = Errno(unix.EPERM)
)

func (e Errno) Error() string {
	return unix.Errno(e).Error()
}

// Unwrap exposes the underlying unix.Errno for errors.Is/As.
func (e Errno) Unwrap() error {
	return unix.Errno(e)
}

// Is allows errors.Is(shimErr, unix.EAGAIN) to succeed in both directions.
func (e Errno) Is(target error) bool {
	if other, ok := target.(Errno); ok {
		return e == other
	}
	if other, ok := target.(unix.Errno); ok {
		return unix.Errno(e) == other
	}
	return false
}

// FromSyscallErrno converts a raw unix.Errno (as returned from a syscall
// wrapper) into an Errno, passing through unrecognized values unchanged.
func FromSyscallErrno(err error) error {
	if err == nil {
		return nil
	}
	if errno, ok := err.(unix.Errno); ok {
		return Errno(errno)
	}
	return err
}
