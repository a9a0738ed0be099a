package reaper

import (
	"os/exec"
	"syscall"
	"testing"
	"time"
)

// ------------------------------------ //
// Test that Arm notifies and Result reports the exit status of an armed
// child that runs to completion on its own.
// ------------------------------------ //
func TestArmNotifiesOnExit(t *testing.T) {
	b, err := NewBridge()
	if err != nil {
		t.Fatalf("could not create bridge: %v", err)
	}
	defer b.Close()

	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Fatalf("could not start child: %v", err)
	}
	pid := cmd.Process.Pid
	notify := b.Arm(pid)

	select {
	case <-notify:
		// Reaped.
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for reap notification")
	}

	state, ok := b.Result(pid)
	if !ok {
		t.Fatalf("expected a reaped result for pid %d", pid)
	}
	if !state.Status.Exited() || state.Status.ExitStatus() != 0 {
		t.Errorf("expected clean exit status 0 but got %v", state.Status)
	}
	// cmd.Wait would race with our own reap; mark it waited to avoid a
	// zombie-reap warning from the exec package.
	cmd.Process.Release()
} // ---------- TestArmNotifiesOnExit --------- //

// ------------------------------------ //
// Test that an unowned child's exit reaches the prior callback, not the
// notify channel of an unrelated armed invocation.
// ------------------------------------ //
func TestUnownedExitReachesPrior(t *testing.T) {
	reached := make(chan int, 1)
	b, err := NewBridgeWithPrior(func(pid int, ws syscall.WaitStatus) {
		reached <- pid
	})
	if err != nil {
		t.Fatalf("could not create bridge: %v", err)
	}
	defer b.Close()

	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Fatalf("could not start child: %v", err)
	}
	pid := cmd.Process.Pid
	// Deliberately not armed: this exit belongs to nobody.

	select {
	case got := <-reached:
		if got != pid {
			t.Errorf("expected prior callback for pid %d but got %d", pid, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for prior callback")
	}
	cmd.Process.Release()
} // ---------- TestUnownedExitReachesPrior --------- //

// ------------------------------------ //
// Test that Terminate sends SIGTERM to the armed pid and is a no-op when
// nothing is armed.
// ------------------------------------ //
func TestTerminate(t *testing.T) {
	b, err := NewBridge()
	if err != nil {
		t.Fatalf("could not create bridge: %v", err)
	}
	defer b.Close()

	if err := b.Terminate(); err != nil {
		t.Errorf("expected Terminate on an unarmed bridge to be a no-op, got %v", err)
	}

	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Fatalf("could not start child: %v", err)
	}
	pid := cmd.Process.Pid
	notify := b.Arm(pid)

	if err := b.Terminate(); err != nil {
		t.Errorf("expected Terminate to succeed but got %v", err)
	}

	select {
	case <-notify:
		state, ok := b.Result(pid)
		if !ok {
			t.Fatalf("expected a reaped result after termination")
		}
		if !state.Status.Signaled() || state.Status.Signal() != syscall.SIGTERM {
			t.Errorf("expected the child to die of SIGTERM but got %v", state.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for terminated child to be reaped")
	}
	cmd.Process.Release()
} // ---------- TestTerminate --------- //

// ------------------------------------ //
// Test that Disarm releases ownership before the exit arrives, so the exit
// falls through to the prior callback instead of the original notify
// channel.
// ------------------------------------ //
func TestDisarmReleasesOwnership(t *testing.T) {
	reached := make(chan int, 1)
	b, err := NewBridgeWithPrior(func(pid int, ws syscall.WaitStatus) {
		reached <- pid
	})
	if err != nil {
		t.Fatalf("could not create bridge: %v", err)
	}
	defer b.Close()

	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Fatalf("could not start child: %v", err)
	}
	pid := cmd.Process.Pid
	_ = b.Arm(pid)
	b.Disarm()

	select {
	case got := <-reached:
		if got != pid {
			t.Errorf("expected the disarmed pid %d to reach prior but got %d", pid, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for disarmed exit to reach prior")
	}
	cmd.Process.Release()
} // ---------- TestDisarmReleasesOwnership --------- //
