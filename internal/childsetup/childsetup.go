//go:build linux && amd64
// +build linux,amd64

/*=============================================================================*
* Filename:
*   childsetup.go
*
* Description:
*   Post-fork, pre-exec plumbing for one comcom invocation's child process.
*   Run strictly between fork(2) and execve(2), on the single goroutine that
*   survived the fork (the Go runtime only keeps that one alive in the
*   child), so every step here must be async-signal-safe: no allocation
*   beyond what's unavoidable, no locks, nothing that could touch another
*   goroutine's state.
*
* Author:
*   J.EP, J. Enrique Peraza
==============================================================================*/
package childsetup

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/vporton/libcomcom/internal/pipe"
)

// exOSErr is sysexits.h's EX_OSERR, the exit status original_source/src/lib.c
// uses when execvpe(3) itself fails. Preserved verbatim as the exit
// convention; nothing in this module's contract overrides it.
const exOSErr = 71

// Plumb wires stdin/stdout/errpipe/notifypipe onto the child's standard fds
// and execs file with argv/envp, per the six ordered steps of the
// post-fork/pre-exec contract. It never returns on success: the goroutine is
// replaced by the new program image. On any setup failure before exec, or on
// exec failure itself, it writes the raw errno to errpipe (best-effort) and
// calls os.Exit(exOSErr); it never returns control to the caller's Go stack,
// since by construction the caller is the freshly forked child and must not
// unwind back into code shared with the parent.
func Plumb(stdin, stdout *pipe.Pipe, errpipeWrite *os.File, file string, argv, envp []string) {
	// Step 1: dup2 stdin's read end onto fd 0; close its write end.
	stdinR, err := stdin.ReadEnd()
	if err != nil {
		fail(errpipeWrite, unix.EBADF)
	}
	if _, err := pipe.Dup2File(stdinR, 0); err != nil {
		fail(errpipeWrite, errnoOf(err))
	}
	stdin.CloseWrite() // Drop the child's copy of the write end.
	stdin.CloseRead()  // Drop the pre-dup2 read fd too; fd 0 now owns it.

	// Step 2: dup2 stdout's write end onto fd 1; close its read end.
	stdoutW, err := stdout.WriteEnd()
	if err != nil {
		fail(errpipeWrite, unix.EBADF)
	}
	if _, err := pipe.Dup2File(stdoutW, 1); err != nil {
		fail(errpipeWrite, errnoOf(err))
	}
	stdout.CloseRead()
	stdout.CloseWrite()

	// Step 3: close both ends of the session's notify pipe. Go's self-pipe
	// is an os/signal channel, not a real fd — fork duplicates no such
	// descriptor into the child, so there is nothing here to close; this
	// step is a no-op in the Go realization of the C original's contract.

	// Step 4: the error pipe's read end was already closed in the child by
	// the caller before Plumb (the child only ever writes); set FD_CLOEXEC
	// on the write end so a successful exec
	// closes it automatically — the parent's read of EOF-with-no-bytes on
	// that pipe is how it learns exec succeeded.
	unix.CloseOnExec(int(errpipeWrite.Fd()))

	// Step 5: execve(file, argv, envp); envp == nil means inherit
	// os.Environ(). Go has no direct execvpe(3) (PATH-searching execve with
	// an explicit environment), so the child does its own PATH search,
	// mirroring glibc's search order, before the final bare execve.
	resolved := file
	if !strings.Contains(file, "/") {
		if p, ok := searchPath(file); ok {
			resolved = p
		}
	}
	env := envp
	if env == nil {
		env = os.Environ()
	}
	err = unix.Exec(resolved, argv, env)
	// Step 6: exec only returns on failure. Best-effort report the errno,
	// then exit with the OS-error convention.
	fail(errpipeWrite, errnoOf(err))
}

// searchPath mirrors execvpe(3)'s PATH search: try each PATH entry + "/" +
// file in order, stopping at the first prefix whose candidate is at least
// not ENOENT (an EACCES/ENOEXEC candidate is "found but unusable" and still
// wins, so exec surfaces that error rather than the search continuing).
func searchPath(file string) (string, bool) {
	path := os.Getenv("PATH")
	if path == "" {
		return "", false
	}
	for _, dir := range strings.Split(path, ":") {
		if dir == "" {
			dir = "."
		}
		candidate := dir + "/" + file
		if err := unix.Access(candidate, unix.X_OK); err == nil || err == unix.EACCES {
			return candidate, true
		}
	}
	return "", false
}

// errnoOf extracts a syscall.Errno from err, or EIO if err doesn't carry one.
func errnoOf(err error) unix.Errno {
	if err == nil {
		return 0
	}
	if errno, ok := err.(unix.Errno); ok {
		return errno
	}
	return unix.EIO
}

// fail writes the raw errno to errpipe (best-effort, ignoring any write
// failure: the parent's fallback is just "exec failed, no detail") and
// exits with the OS-error convention. It never returns.
func fail(errpipeWrite *os.File, errno unix.Errno) {
	if errpipeWrite != nil {
		var buf [4]byte
		v := uint32(errno)
		buf[0] = byte(v)
		buf[1] = byte(v >> 8)
		buf[2] = byte(v >> 16)
		buf[3] = byte(v >> 24)
		errpipeWrite.Write(buf[:])
	}
	os.Exit(exOSErr)
}
