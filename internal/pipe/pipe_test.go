//go:build linux && amd64
// +build linux,amd64

package pipe

import (
	"testing"
)

// ------------------------------------ //
// Test that bytes written to a pipe's write end come back unchanged on its
// read end.
// ------------------------------------ //
func TestPipeRoundTrip(t *testing.T) {
	p, err := NewPipe()
	if err != nil {
		t.Fatalf("could not create pipe: %v", err)
	}
	defer p.Close()

	w, err := p.WriteEnd()
	if err != nil {
		t.Fatalf("could not get write end: %v", err)
	}
	r, err := p.ReadEnd()
	if err != nil {
		t.Fatalf("could not get read end: %v", err)
	}

	msg := []byte("round trip")
	if _, err := w.Write(msg); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	buf := make([]byte, len(msg))
	if _, err := r.Read(buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(buf) != string(msg) {
		t.Errorf("expected %q but got %q", msg, buf)
	}
} // ---------- TestPipeRoundTrip --------- //

// ------------------------------------ //
// Test that CloseRead/CloseWrite/Close are idempotent and that Close after
// CloseRead+CloseWrite returns no error.
// ------------------------------------ //
func TestPipeCloseIdempotent(t *testing.T) {
	p, err := NewPipe()
	if err != nil {
		t.Fatalf("could not create pipe: %v", err)
	}
	if err := p.CloseRead(); err != nil {
		t.Errorf("CloseRead failed: %v", err)
	}
	if err := p.CloseRead(); err != nil {
		t.Errorf("second CloseRead should be a no-op, got %v", err)
	}
	if err := p.CloseWrite(); err != nil {
		t.Errorf("CloseWrite failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close on an already-closed pipe should be a no-op, got %v", err)
	}
} // ---------- TestPipeCloseIdempotent --------- //

// ------------------------------------ //
// Test that AtomicWriteSize reports the platform PIPE_BUF.
// ------------------------------------ //
func TestAtomicWriteSize(t *testing.T) {
	if AtomicWriteSize() != 4096 {
		t.Errorf("expected AtomicWriteSize 4096 on Linux but got %d", AtomicWriteSize())
	}
} // ---------- TestAtomicWriteSize --------- //

// ------------------------------------ //
// Test that NewPipe2 with O_CLOEXEC produces a pipe that still round-trips
// data normally.
// ------------------------------------ //
func TestNewPipe2CloseOnExec(t *testing.T) {
	p, err := NewPipe2(O_CLOEXEC)
	if err != nil {
		t.Fatalf("could not create cloexec pipe: %v", err)
	}
	defer p.Close()

	w, _ := p.WriteEnd()
	r, _ := p.ReadEnd()
	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	buf := make([]byte, 1)
	if _, err := r.Read(buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if buf[0] != 'x' {
		t.Errorf("expected 'x' but got %q", buf)
	}
} // ---------- TestNewPipe2CloseOnExec --------- //
