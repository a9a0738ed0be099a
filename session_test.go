//go:build linux && amd64
// +build linux,amd64

package comcom

import (
	"context"
	"testing"
	"time"

	"github.com/vporton/libcomcom/config"
	"github.com/vporton/libcomcom/internal/logger"
)

// ------------------------------------ //
// Test that Close is idempotent and safe to call more than once.
// ------------------------------------ //
func TestSessionCloseIdempotent(t *testing.T) {
	sess, err := NewSession()
	if err != nil {
		t.Fatalf("could not create session: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("first Close returned an error: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
} // ---------- TestSessionCloseIdempotent --------- //

// ------------------------------------ //
// Test that InstallDefaultTermination/ResetDefaultTermination are each
// idempotent and compose in either order.
// ------------------------------------ //
func TestDefaultTerminationIdempotent(t *testing.T) {
	sess, err := NewSession()
	if err != nil {
		t.Fatalf("could not create session: %v", err)
	}
	defer sess.Close()

	if err := sess.InstallDefaultTermination(); err != nil {
		t.Errorf("first InstallDefaultTermination failed: %v", err)
	}
	if err := sess.InstallDefaultTermination(); err != nil {
		t.Errorf("second InstallDefaultTermination should be a no-op, got %v", err)
	}
	if err := sess.ResetDefaultTermination(); err != nil {
		t.Errorf("first ResetDefaultTermination failed: %v", err)
	}
	if err := sess.ResetDefaultTermination(); err != nil {
		t.Errorf("second ResetDefaultTermination should be a no-op, got %v", err)
	}
} // ---------- TestDefaultTerminationIdempotent --------- //

// ------------------------------------ //
// Test that Terminate with nothing in flight is a harmless no-op.
// ------------------------------------ //
func TestTerminateWithNothingInFlight(t *testing.T) {
	sess, err := NewSession()
	if err != nil {
		t.Fatalf("could not create session: %v", err)
	}
	defer sess.Close()

	if err := sess.Terminate(); err != nil {
		t.Errorf("expected Terminate with nothing in flight to be a no-op, got %v", err)
	}
} // ---------- TestTerminateWithNothingInFlight --------- //

// ------------------------------------ //
// Test that Stats returns a live, usable pointer even before any invocation
// has run.
// ------------------------------------ //
func TestSessionStatsBeforeAnyRun(t *testing.T) {
	sess, err := NewSession()
	if err != nil {
		t.Fatalf("could not create session: %v", err)
	}
	defer sess.Close()

	snap := sess.Stats().Snapshot()
	if snap.Total != 0 {
		t.Errorf("expected a fresh session to report zero invocations, got %d", snap.Total)
	}
} // ---------- TestSessionStatsBeforeAnyRun --------- //

// ------------------------------------ //
// Test that SetConfig's allowlist is actually consulted by Run: a file not
// in the allowlist is rejected with ErrNotAllowed before any pipe or fork
// happens, and an allowed file still runs normally.
// ------------------------------------ //
func TestRunHonorsConfigAllowlist(t *testing.T) {
	sess, err := NewSession()
	if err != nil {
		t.Fatalf("could not create session: %v", err)
	}
	defer sess.Close()

	l, err := logger.NewLogger()
	if err != nil {
		t.Fatalf("could not create logger: %v", err)
	}
	cfg := config.NewConfig(l)
	cfg.Allowlist = []string{"cat"}
	sess.SetConfig(cfg)

	if _, err := sess.Run(context.Background(), nil, "/bin/echo", []string{"echo"}, nil, time.Second); err == nil {
		t.Fatalf("expected a disallowed file to be rejected")
	} else if cerr, ok := err.(*Error); !ok || cerr.Kind != ErrNotAllowed {
		t.Errorf("expected an ErrNotAllowed *Error but got %v (%T)", err, err)
	}

	result, err := sess.Run(context.Background(), []byte("hi"), "/bin/cat", []string{"cat"}, nil, time.Second)
	if err != nil {
		t.Fatalf("expected an allowed file to run, got %v", err)
	}
	if string(result.Output) != "hi" {
		t.Errorf("expected %q but got %q", "hi", result.Output)
	}
} // ---------- TestRunHonorsConfigAllowlist --------- //

// ------------------------------------ //
// Test that SetConfig's DefaultTimeout is substituted whenever a caller
// passes timeout == 0, per Config.DefaultTimeout's own doc comment.
// ------------------------------------ //
func TestRunHonorsConfigDefaultTimeout(t *testing.T) {
	sess, err := NewSession()
	if err != nil {
		t.Fatalf("could not create session: %v", err)
	}
	defer sess.Close()

	l, err := logger.NewLogger()
	if err != nil {
		t.Fatalf("could not create logger: %v", err)
	}
	cfg := config.NewConfig(l)
	cfg.DefaultTimeout = 100 * time.Millisecond
	sess.SetConfig(cfg)

	start := time.Now()
	_, err = sess.Run(context.Background(), nil, "/bin/sleep", []string{"sleep", "5"}, nil, 0)
	elapsed := time.Since(start)
	if err == nil {
		t.Fatalf("expected the configured default timeout to fire")
	}
	cerr, ok := err.(*Error)
	if !ok || cerr.Kind != ErrTimeout {
		t.Errorf("expected an ErrTimeout *Error but got %v (%T)", err, err)
	}
	if elapsed >= 2*time.Second {
		t.Errorf("expected the 100ms configured default timeout to fire quickly, took %v", elapsed)
	}
} // ---------- TestRunHonorsConfigDefaultTimeout --------- //

// ------------------------------------ //
// Test that AttachPerf actually causes Run to record a cycle count, tolerant
// of environments where perf_event_open is unavailable (no CAP_PERFMON,
// restrictive perf_event_paranoid, or a sandboxed kernel), matching
// internal/perf's own test tolerance.
// ------------------------------------ //
func TestRunRecordsCyclesWhenPerfAttached(t *testing.T) {
	sess, err := NewSession()
	if err != nil {
		t.Fatalf("could not create session: %v", err)
	}
	defer sess.Close()

	if err := sess.AttachPerf(); err != nil {
		t.Skipf("perf_event_open unavailable in this environment: %v", err)
	}

	result, err := sess.Run(context.Background(), []byte("hi"), "/bin/cat", []string{"cat"}, nil, time.Second)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if string(result.Output) != "hi" {
		t.Errorf("expected %q but got %q", "hi", result.Output)
	}
	if sess.Stats().Snapshot().LastCycles <= 0 {
		t.Errorf("expected AttachPerf to leave a positive LastCycles after Run")
	}
} // ---------- TestRunRecordsCyclesWhenPerfAttached --------- //
