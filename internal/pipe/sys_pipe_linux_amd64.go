//go:build linux && amd64
// +build linux,amd64

// Filename: sys_pipe_linux_amd64.go
// Package pipe provides a thin wrapper around the pipe(2)/pipe2(2), dup
// family, and fcntl/ioctl pipe-sizing syscalls used by comcom's invocation
// plumbing.
package pipe

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	// Re-export the flags for pipe2():
	O_NONBLOCK = unix.O_NONBLOCK
	O_CLOEXEC  = unix.O_CLOEXEC
	// Re-export the fcntl pipe sizing commands:
	F_GETPIPE_SZ = unix.F_GETPIPE_SZ
	F_SETPIPE_SZ = unix.F_SETPIPE_SZ
	// Re-export the ioctl request flag for FIONREAD:
	FIONREAD = 0x541B // FIONREAD/TIOCINQ request flag value.
	// pipeBufSize is PIPE_BUF on Linux: the largest write(2) the kernel
	// guarantees not to interleave with another writer on the same pipe.
	pipeBufSize = 4096
)

// Pipe is a wrapper around the pipe(2) syscall.
// It returns r, w file descriptors, or an error.
func Pipe() (r, w int, err error) {
	// The kernel expects an array of two ints (32-bit on amd64).
	var fds [2]int32
	_, _, e := unix.Syscall(unix.SYS_PIPE,
		uintptr(unsafe.Pointer(&fds)), 0, 0,
	)
	if e != 0 {
		return 0, 0, e
	}
	return int(fds[0]), int(fds[1]), nil
}

// Pipe2 is a wrapper around the pipe2(2) syscall.
// Flags can be O_NONBLOCK|O_CLOEXEC, etc.
func Pipe2(flags int) (r, w int, err error) {
	var fds [2]int32
	_, _, e := unix.Syscall(unix.SYS_PIPE2,
		uintptr(unsafe.Pointer(&fds)),
		uintptr(flags),
		0,
	)
	if e != 0 {
		return 0, 0, e
	}
	return int(fds[0]), int(fds[1]), nil
}

// GetPipeSize returns the current capacity (in bytes) of the pipe referred to by fd.
func GetPipeSize(fd int) (int, error) {
	r, _, e := unix.Syscall(
		unix.SYS_FCNTL,
		uintptr(fd),
		uintptr(F_GETPIPE_SZ),
		0,
	)
	if e != 0 {
		return 0, e
	}
	return int(r), nil
}

// SetPipeSize attempts to change the capacity of the pipe referred to by fd to 'sz'.
// It returns the (possibly adjusted) new capacity.
func SetPipeSize(fd int, sz int) (int, error) {
	r, _, e := unix.Syscall(
		unix.SYS_FCNTL,
		uintptr(fd),
		uintptr(F_SETPIPE_SZ),
		uintptr(sz),
	)
	if e != 0 {
		return 0, e
	}
	return int(r), nil
}

// GetAvailableBytes is a wrapper around the ioctl(fd,FIONREAD,&cnt) syscall.
// It returns the number of unread bytes queued in the pipe.
func GetAvailableBytes(fd int) (int, error) {
	n, e := unix.IoctlGetInt(fd, FIONREAD)
	if e != nil {
		return 0, e
	}
	return n, nil
}

// Dup is a wrapper around the dup() syscall.
func Dup(oldfd int) (int, error) {
	r, _, e := unix.Syscall(unix.SYS_DUP, uintptr(oldfd), 0, 0)
	if e != 0 { // syscall failed?
		return 0, e // Yes, return 0 and error.
	} // No, return the new fd and nil.
	return int(r), nil // Return the new fd and nil.
}

// Dup2 is a wrapper around the dup2() syscall.
func Dup2(oldfd, newfd int) (int, error) {
	r, _, e := unix.Syscall(unix.SYS_DUP2, uintptr(oldfd), uintptr(newfd), 0)
	if e != 0 { // syscall failed?
		return 0, e // Yes, return 0 and error.
	} // No, return the new fd and nil.
	return int(r), nil // Return the new fd and nil.
} // end of Dup2

// Dup3 is a wrapper around the dup3() syscall.
func Dup3(oldfd, newfd, flags int) (int, error) {
	r, _, e := unix.Syscall(unix.SYS_DUP3, uintptr(oldfd), uintptr(newfd), uintptr(flags))
	if e != 0 { // syscall failed?
		return 0, e // Yes, return 0 and error.
	} // No, return the new fd and nil.
	return int(r), nil // Return the new fd and nil.
}

// CloseFD closes a raw fd, retrying on EINTR until the close completes or
// fails with a non-interruption error (spec.md 4.1 "close-fd").
func CloseFD(fd int) error {
	for { // Loop until we get past an EINTR.
		err := unix.Close(fd) // Attempt the close.
		if err == unix.EINTR {
			continue // Interrupted by a signal, retry the close.
		}
		return err // Either nil or a real error; either way we're done.
	}
}
