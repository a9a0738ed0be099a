//go:build linux && amd64
// +build linux,amd64

package comcom

import (
	"bytes"
	"context"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"
)

// ------------------------------------ //
// Test the short-command path: cat echoes back exactly what it was fed.
// ------------------------------------ //
func TestRunShortCat(t *testing.T) {
	sess, err := NewSession()
	if err != nil {
		t.Fatalf("could not create session: %v", err)
	}
	defer sess.Close()

	input := []byte("qwe")
	result, err := sess.Run(context.Background(), input, "/bin/cat", []string{"cat"}, nil, 5*time.Second)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !bytes.Equal(result.Output, input) {
		t.Errorf("expected output %q but got %q", input, result.Output)
	}
} // ---------- TestRunShortCat --------- //

// ------------------------------------ //
// Test the long-command path: a 1MB payload through cat round-trips intact,
// exercising the pipe-buffer-sized chunked writer/reader against a payload
// many times larger than one pipe capacity.
// ------------------------------------ //
func TestRunLongCat(t *testing.T) {
	sess, err := NewSession()
	if err != nil {
		t.Fatalf("could not create session: %v", err)
	}
	defer sess.Close()

	input := bytes.Repeat([]byte("x"), 1_000_000)
	result, err := sess.Run(context.Background(), input, "/bin/cat", []string{"cat"}, nil, 5*time.Second)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !bytes.Equal(result.Output, input) {
		t.Errorf("expected %d bytes back but got %d, or content mismatch", len(input), len(result.Output))
	}
} // ---------- TestRunLongCat --------- //

// ------------------------------------ //
// Test the block-oriented re-framing scenario: a child that reads in large
// fixed blocks (dd bs=100000 count=10 iflag=fullblock) over exactly
// 1,000,000 bytes of input must still round-trip every byte, identical to
// the input, well inside its timeout. This exercises the chunked writer
// against a reader with its own large, fixed internal block size rather
// than cat's byte-stream-shaped reads.
// ------------------------------------ //
func TestRunDDBlockReframing(t *testing.T) {
	sess, err := NewSession()
	if err != nil {
		t.Fatalf("could not create session: %v", err)
	}
	defer sess.Close()

	input := bytes.Repeat([]byte("y"), 1_000_000)
	argv := []string{"dd", "bs=100000", "count=10", "iflag=fullblock"}
	result, err := sess.Run(context.Background(), input, "/bin/dd", argv, nil, 5*time.Second)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Output) != len(input) {
		t.Fatalf("expected exactly %d bytes back but got %d", len(input), len(result.Output))
	}
	if !bytes.Equal(result.Output, input) {
		t.Errorf("dd output was not byte-identical to its input")
	}
} // ---------- TestRunDDBlockReframing --------- //

// ------------------------------------ //
// Test that a command exceeding its timeout is killed and returns whatever
// partial output it had already produced, tagged ErrTimeout.
// ------------------------------------ //
func TestRunTimeout(t *testing.T) {
	sess, err := NewSession()
	if err != nil {
		t.Fatalf("could not create session: %v", err)
	}
	defer sess.Close()

	result, err := sess.Run(context.Background(), nil, "/bin/sleep", []string{"sleep", "5"}, nil, 100*time.Millisecond)
	if err == nil {
		t.Fatalf("expected a timeout error but got nil")
	}
	cerr, ok := err.(*Error)
	if !ok || cerr.Kind != ErrTimeout {
		t.Errorf("expected an ErrTimeout *Error but got %v (%T)", err, err)
	}
	if result == nil {
		t.Errorf("expected a non-nil Result carrying partial output even on timeout")
	}
} // ---------- TestRunTimeout --------- //

// ------------------------------------ //
// Test that exec failure (nonexistent binary) is reported as ErrExec rather
// than hanging until the timeout.
// ------------------------------------ //
func TestRunExecFailure(t *testing.T) {
	sess, err := NewSession()
	if err != nil {
		t.Fatalf("could not create session: %v", err)
	}
	defer sess.Close()

	start := time.Now()
	_, err = sess.Run(context.Background(), nil, "/no/such/binary", []string{"/no/such/binary"}, nil, 5*time.Second)
	elapsed := time.Since(start)
	if err == nil {
		t.Fatalf("expected an exec error but got nil")
	}
	cerr, ok := err.(*Error)
	if !ok || cerr.Kind != ErrExec {
		t.Errorf("expected an ErrExec *Error but got %v (%T)", err, err)
	}
	if elapsed >= 1*time.Second {
		t.Errorf("expected exec failure to be detected quickly, took %v", elapsed)
	}
} // ---------- TestRunExecFailure --------- //

// ------------------------------------ //
// Test that readExecProbe has no internal deadline of its own: a write that
// lands well after the old fixed 20ms probe window would have expired must
// still be read and reported, since the error pipe is now a real select
// source held open for the life of the invocation rather than abandoned
// after a fixed window.
// ------------------------------------ //
func TestReadExecProbeUnbounded(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("could not create pipe: %v", err)
	}
	defer r.Close()

	go func() {
		time.Sleep(100 * time.Millisecond) // Well past the old 20ms probe window.
		var ebuf [4]byte
		errno := uint32(syscall.ENOENT)
		ebuf[0] = byte(errno)
		ebuf[1] = byte(errno >> 8)
		ebuf[2] = byte(errno >> 16)
		ebuf[3] = byte(errno >> 24)
		w.Write(ebuf[:])
		w.Close()
	}()

	start := time.Now()
	errno, failed := readExecProbe(r)
	elapsed := time.Since(start)
	if !failed {
		t.Fatalf("expected readExecProbe to report a failure")
	}
	if errno != syscall.ENOENT {
		t.Errorf("expected ENOENT but got %v", errno)
	}
	if elapsed < 90*time.Millisecond {
		t.Errorf("expected readExecProbe to have actually waited for the delayed write, only took %v", elapsed)
	}
} // ---------- TestReadExecProbeUnbounded --------- //

// ------------------------------------ //
// Test broken-pipe leniency: a child that exits immediately without
// consuming stdin must not surface an I/O error for the unread input.
// ------------------------------------ //
func TestRunBrokenPipeIsLenient(t *testing.T) {
	sess, err := NewSession()
	if err != nil {
		t.Fatalf("could not create session: %v", err)
	}
	defer sess.Close()

	input := bytes.Repeat([]byte("y"), 1_000_000) // Large enough to fill the pipe.
	_, err = sess.Run(context.Background(), input, "/bin/sh", []string{"sh", "-c", "exit 0"}, nil, 5*time.Second)
	if err != nil {
		t.Errorf("expected a broken pipe on unread stdin to be tolerated, got %v", err)
	}
} // ---------- TestRunBrokenPipeIsLenient --------- //

// ------------------------------------ //
// Test that a second Run while one is in flight is rejected with ErrBusy
// rather than blocking or corrupting the first invocation.
// ------------------------------------ //
func TestRunBusy(t *testing.T) {
	sess, err := NewSession()
	if err != nil {
		t.Fatalf("could not create session: %v", err)
	}
	defer sess.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Run(context.Background(), nil, "/bin/sleep", []string{"sleep", "1"}, nil, 5*time.Second)
	}()
	time.Sleep(100 * time.Millisecond) // Give the first Run a head start.

	_, err = sess.Run(context.Background(), nil, "/bin/cat", []string{"cat"}, nil, time.Second)
	if err != ErrBusyInvocation {
		t.Errorf("expected ErrBusyInvocation but got %v", err)
	}
	<-done
} // ---------- TestRunBusy --------- //

// ------------------------------------ //
// Test that cancelling ctx terminates an in-flight invocation the same way
// an explicit Terminate() would.
// ------------------------------------ //
func TestRunContextCancel(t *testing.T) {
	sess, err := NewSession()
	if err != nil {
		t.Fatalf("could not create session: %v", err)
	}
	defer sess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err = sess.Run(ctx, nil, "/bin/sleep", []string{"sleep", "5"}, nil, 10*time.Second)
	elapsed := time.Since(start)
	if err != nil {
		t.Logf("run returned after cancel: %v", err)
	}
	if elapsed >= 3*time.Second {
		t.Errorf("expected ctx cancellation to end the run quickly, took %v", elapsed)
	}
} // ---------- TestRunContextCancel --------- //

// ------------------------------------ //
// Test descriptor conservation: many sequential invocations must not leak
// file descriptors, proxied here by running a batch without error.
// ------------------------------------ //
func TestRunDescriptorConservation(t *testing.T) {
	sess, err := NewSession()
	if err != nil {
		t.Fatalf("could not create session: %v", err)
	}
	defer sess.Close()

	for i := 0; i < 50; i++ {
		result, err := sess.Run(context.Background(), []byte("hi"), "/bin/cat", []string{"cat"}, nil, 2*time.Second)
		if err != nil {
			t.Fatalf("iteration %d: run failed: %v", i, err)
		}
		if string(result.Output) != "hi" {
			t.Fatalf("iteration %d: expected 'hi' but got %q", i, result.Output)
		}
	}
} // ---------- TestRunDescriptorConservation --------- //

// ------------------------------------ //
// Test the package-level Default/Run convenience wrapper.
// ------------------------------------ //
func TestPackageLevelRun(t *testing.T) {
	result, err := Run(context.Background(), []byte("abc"), "/bin/cat", []string{"cat"}, nil, 2*time.Second)
	if err != nil {
		t.Fatalf("package-level Run failed: %v", err)
	}
	if !strings.Contains(string(result.Output), "abc") {
		t.Errorf("expected output to contain 'abc' but got %q", result.Output)
	}
} // ---------- TestPackageLevelRun --------- //
