//go:build linux && amd64
// +build linux,amd64

/*=============================================================================*
* Filename:
*   run.go
*
* Description:
*   Session.Run: the parent-side event loop for one invocation. Pipe, fork,
*   child-setup, then a four-way readiness wait (notify / stdin-writable /
*   stdout-readable / error-pipe exec-failure report) held open for the
*   life of the invocation, computing the remaining whole-invocation budget
*   fresh before every wait so a slow individual wait can never silently
*   extend the deadline.
*
* Author:
*   J.EP, J. Enrique Peraza
==============================================================================*/
package comcom

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/vporton/libcomcom/internal/childsetup"
	"github.com/vporton/libcomcom/internal/pipe"
)

// Result is the output of one successful invocation, exclusively owned by
// the caller.
type Result struct {
	Output []byte
}

// outputBuf accumulates stdout under a mutex so a timed-out or cancelled
// Run can still hand back whatever partial output the child produced.
type outputBuf struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (o *outputBuf) write(b []byte) {
	o.mu.Lock()
	o.buf.Write(b)
	o.mu.Unlock()
}

func (o *outputBuf) bytes() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]byte, o.buf.Len())
	copy(out, o.buf.Bytes())
	return out
}

// Run executes file as a child process, feeds it input on stdin, and
// returns its captured stdout. timeout < 0 means infinite. Cancelling ctx
// is equivalent to an external Terminate() call arriving mid-invocation.
// Only one Run can be in flight per Session; a second concurrent call
// returns ErrBusyInvocation.
func (s *Session) Run(ctx context.Context, input []byte, file string,
	argv, envp []string, timeout time.Duration) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.busy.TryAcquire(1) {
		return nil, ErrBusyInvocation
	}
	defer s.busy.Release(1)

	if cfg := s.config(); cfg != nil {
		if !cfg.Allowed(file) {
			return nil, newErr(ErrNotAllowed, fmt.Errorf("comcom: %q is not in the configured allowlist", file))
		}
		if timeout == 0 {
			timeout = cfg.DefaultTimeout
		}
	}

	start := time.Now()
	s.stats.recordStart()
	s.log.Inf("Running %s.", file)
	defer func() { s.stats.recordLatency(time.Since(start)) }()

	rec := s.perfRecorder()
	var cyclesStart uint64
	if rec != nil {
		cyclesStart, _ = rec.Mark()
	}
	defer func() {
		if rec == nil {
			return
		}
		if end, err := rec.Mark(); err == nil {
			s.stats.recordCycles(end - cyclesStart)
		}
	}()

	stdinPipe, err := pipe.NewPipe()
	if err != nil {
		return nil, newErr(ErrResource, fmt.Errorf("comcom: stdin pipe: %w", err))
	}
	stdoutPipe, err := pipe.NewPipe()
	if err != nil {
		stdinPipe.Close()
		return nil, newErr(ErrResource, fmt.Errorf("comcom: stdout pipe: %w", err))
	}
	errPipe, err := pipe.NewPipe2(pipe.O_CLOEXEC)
	if err != nil {
		stdinPipe.Close()
		stdoutPipe.Close()
		return nil, newErr(ErrResource, fmt.Errorf("comcom: error pipe: %w", err))
	}

	pid, _, errno := syscall.RawSyscall(syscall.SYS_FORK, 0, 0, 0)
	if errno != 0 {
		stdinPipe.Close()
		stdoutPipe.Close()
		errPipe.Close()
		return nil, newErr(ErrResource, fmt.Errorf("comcom: fork: %w", errno))
	}

	if pid == 0 {
		errW, _ := errPipe.WriteEnd()
		errPipe.CloseRead()
		childsetup.Plumb(stdinPipe, stdoutPipe, errW, file, argv, envp)
		// childsetup.Plumb never returns.
	}

	// Parent from here down.
	notifyCh := s.bridge.Arm(int(pid))
	// The bridge may already have reaped the child between Arm and here;
	// Result reports that case (see reaper.Arm's doc).
	if _, ok := s.bridge.Result(int(pid)); ok {
		s.bridge.Disarm()
		return s.finishEarlyExit(file, stdinPipe, stdoutPipe, errPipe)
	}

	stdinPipe.CloseRead()
	stdoutPipe.CloseWrite()
	errPipe.CloseWrite()

	cleanup := func() {
		stdinPipe.Close()
		stdoutPipe.Close()
		errPipe.Close()
		s.bridge.Disarm()
	}

	stdinWrite, _ := stdinPipe.WriteEnd()
	stdoutRead, _ := stdoutPipe.ReadEnd()

	out := &outputBuf{}
	writeErrCh := make(chan error, 1)
	readDoneCh := make(chan struct{})
	execFailCh := make(chan syscall.Errno, 1)

	go func() { // Feed stdin, tolerating a child that stops reading early.
		writeErrCh <- writeAll(stdinWrite, input)
		stdinPipe.CloseWrite()
	}()
	go func() { // Drain stdout until EOF.
		readAll(stdoutRead, out)
		close(readDoneCh)
	}()
	probeDone := make(chan struct{})
	go func() { // Block on the error pipe for the life of the invocation; a
		// zero-length read (EOF, since the write end is CLOEXEC and closes
		// itself on a successful exec) means exec succeeded, so this
		// goroutine just exits without sending.
		defer close(probeDone)
		if errRead, err := errPipe.ReadEnd(); err == nil {
			if errno, failed := readExecProbe(errRead); failed {
				execFailCh <- errno
			}
		}
	}()

	var deadline time.Time
	hasDeadline := timeout >= 0
	if hasDeadline {
		deadline = start.Add(timeout)
	}

	writeDone, readDone := false, false
	ctxDone := ctx.Done()
	var writeErr error

	for !(writeDone && readDone) {
		var timeoutCh <-chan time.Time
		if hasDeadline {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return s.finishTimeout(int(pid), cleanup, out)
			}
			timeoutCh = time.After(remaining)
		}
		select {
		case <-ctxDone:
			_ = s.bridge.Terminate()
			ctxDone = nil // Don't spin on an already-cancelled context.
		case we := <-writeErrCh:
			writeErr = we
			writeDone = true
		case <-readDoneCh:
			readDone = true
		case <-notifyCh:
			// Child exited; the pipes it held open will EOF shortly, so
			// keep looping rather than returning immediately.
		case errno := <-execFailCh:
			_ = syscall.Kill(int(pid), syscall.SIGKILL)
			cleanup()
			s.stats.recordExecFailure()
			return nil, newErr(ErrExec, fmt.Errorf("comcom: exec %q: %w", file, errno))
		case <-timeoutCh:
			return s.finishTimeout(int(pid), cleanup, out)
		}
	}

	// stdout reached EOF, so the child has exec'd or exited and the error
	// pipe already holds its answer; collect it before reporting success.
	<-probeDone
	select {
	case errno := <-execFailCh:
		cleanup()
		s.stats.recordExecFailure()
		return nil, newErr(ErrExec, fmt.Errorf("comcom: exec %q: %w", file, errno))
	default:
	}
	cleanup()
	if writeErr != nil && !isEPIPE(writeErr) {
		return nil, newErr(ErrIO, fmt.Errorf("comcom: write stdin: %w", writeErr))
	}
	return &Result{Output: out.bytes()}, nil
}

// finishEarlyExit handles the case where the child had already exited by
// the time Run got around to arming the bridge. The exec-failure report, if
// any, is still sitting in the error pipe's buffer, so it must be checked
// here too rather than assumed away.
func (s *Session) finishEarlyExit(file string, stdinPipe, stdoutPipe, errPipe *pipe.Pipe) (*Result, error) {
	stdinPipe.CloseRead()
	stdoutPipe.CloseWrite()
	errPipe.CloseWrite()
	var execErrno syscall.Errno
	var execFailed bool
	if errRead, err := errPipe.ReadEnd(); err == nil {
		execErrno, execFailed = readExecProbe(errRead)
	}
	out := &outputBuf{}
	if stdoutRead, err := stdoutPipe.ReadEnd(); err == nil {
		readAll(stdoutRead, out)
	}
	stdinPipe.Close()
	stdoutPipe.Close()
	errPipe.Close()
	if execFailed {
		s.stats.recordExecFailure()
		return nil, newErr(ErrExec, fmt.Errorf("comcom: exec %q: %w", file, execErrno))
	}
	return &Result{Output: out.bytes()}, nil
}

// readExecProbe reads the error pipe's 4-byte errno payload. A zero-length
// read (n == 0, EOF) means exec succeeded and the write end closed itself
// (it is CLOEXEC); a full 4-byte read means exec failed and ebuf holds the
// errno the child observed.
func readExecProbe(errRead io.Reader) (syscall.Errno, bool) {
	var ebuf [4]byte
	n, err := io.ReadFull(errRead, ebuf[:])
	_ = err
	if n != 4 {
		return 0, false
	}
	return syscall.Errno(uint32(ebuf[0]) | uint32(ebuf[1])<<8 | uint32(ebuf[2])<<16 | uint32(ebuf[3])<<24), true
}

// finishTimeout terminates the child, gives it a short grace period to
// release, then returns whatever partial output has accumulated.
func (s *Session) finishTimeout(pid int, cleanup func(), out *outputBuf) (*Result, error) {
	s.stats.recordTimeout()
	_ = syscall.Kill(pid, syscall.SIGTERM)
	time.Sleep(20 * time.Millisecond)
	_ = syscall.Kill(pid, syscall.SIGKILL)
	cleanup()
	return &Result{Output: out.bytes()}, newErr(ErrTimeout, fmt.Errorf("comcom: invocation exceeded its timeout"))
}

// writeAll writes b to f in AtomicWriteSize()-bounded chunks, retrying
// EINTR and treating EPIPE as a clean early stop rather than an error.
func writeAll(f io.Writer, b []byte) error {
	chunk := pipe.AtomicWriteSize()
	for len(b) > 0 {
		n := chunk
		if n > len(b) {
			n = len(b)
		}
		wrote, err := f.Write(b[:n])
		if err != nil {
			if isEPIPE(err) {
				return nil // Child stopped reading; not an error.
			}
			if err == syscall.EINTR {
				continue
			}
			return err
		}
		b = b[wrote:]
	}
	return nil
}

// readAll drains f into out until EOF, retrying EINTR.
func readAll(f io.Reader, out *outputBuf) {
	buf := make([]byte, 64*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			out.write(buf[:n])
		}
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			return // io.EOF, EPIPE-on-read (won't happen in practice), or any other terminal error.
		}
	}
}
