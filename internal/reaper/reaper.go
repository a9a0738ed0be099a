/*=============================================================================*
* Filename:
*   reaper.go
*
* Description:
*   Bridges the os/signal SIGCHLD stream to the "child exited" notification a
*   Session's in-flight invocation waits on. Every comcom.Session owns one
*   Bridge. Go delivers a signal to every goroutine that called signal.Notify
*   for it, so chaining to whatever SIGCHLD watcher the embedding process
*   already installed is just another Notify registration rather than C's
*   save-and-call-the-old-handler dance; this package is the comcom
*   realization of that self-pipe coupling.
*
* Author:
*   J.EP, J. Enrique Peraza
==============================================================================*/
package reaper

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// ExitState is the wait4(2) result for one reaped child.
type ExitState struct {
	Status syscall.WaitStatus
	Rusage syscall.Rusage
}

// Bridge reaps every child of this process via a SIGCHLD-driven wait4 loop
// and notifies the one pid currently Arm'd (a Session's in-flight
// invocation). Children nobody armed for are still reaped, so they never
// zombie, and are handed to the optional prior callback, mirroring the
// "chain to whatever else was watching SIGCHLD" contract of
// libcomcom_run_command's caller.
type Bridge struct {
	mtx      sync.Mutex
	pid      int                                   // pid currently armed, 0 if none.
	notifyCh chan struct{}                         // the self-pipe's read end for pid.
	results  map[int]ExitState                     // reaped exits not yet consumed by Result.
	prior    func(pid int, ws syscall.WaitStatus)  // chain target for unowned exits.
	sigCh    chan os.Signal
	closing  chan struct{}
	closed   bool
}

// NewBridge starts a Bridge with no prior-owner callback: exits of children
// nobody armed for are reaped and discarded.
func NewBridge() (*Bridge, error) { // ------------- NewBridge ------------- //
	return newBridge(nil) // No prior callback, exits are reaped and discarded.
} // ------------- NewBridge ------------- //

// NewBridgeCapturingPrior starts a Bridge whose default prior callback
// writes unowned exits to stderr. Useful for a standalone binary that wants
// to notice when something outside comcom's bookkeeping exits.
func NewBridgeCapturingPrior() (*Bridge, error) { // ---- NewBridgeCapturingPrior --- //
	return newBridge(func(pid int, ws syscall.WaitStatus) {
		fmt.Fprintf(os.Stderr, "reaper: reaped unowned pid %d: %v\n", pid, ws)
	})
} // ---- NewBridgeCapturingPrior --- //

// NewBridgeWithPrior starts a Bridge that forwards exits of children nobody
// armed for to the caller-supplied prior function, the Go analogue of
// chaining to a previously-installed SIGCHLD handler.
func NewBridgeWithPrior(prior func(pid int, ws syscall.WaitStatus)) (*Bridge, error) {
	return newBridge(prior)
} // ------------- NewBridgeWithPrior ------------- //

func newBridge(prior func(pid int, ws syscall.WaitStatus)) (*Bridge, error) {
	b := &Bridge{ // Build the bridge object.
		results: make(map[int]ExitState), // No reaped-but-unconsumed exits yet.
		prior:   prior,                   // May be nil.
		sigCh:   make(chan os.Signal, 8), // Buffered: SIGCHLD can coalesce anyway.
		closing: make(chan struct{}),     // Closed by Close to stop the goroutine.
	} // Done building the bridge object.
	signal.Notify(b.sigCh, syscall.SIGCHLD) // Subscribe to SIGCHLD delivery.
	go b.loop()                             // Reap in the background.
	return b, nil                           // Return the bridge and nil error.
} // ------------- newBridge ------------- //

// Arm marks pid as the bridge's one owned invocation and returns the notify
// channel (the self-pipe's read end): it receives exactly one value once
// wait4 reaps pid. Arm must be called before the child can possibly have
// exited (immediately after fork, before the parent does any blocking
// work): an exit reaped before Arm is treated as unowned, goes to the prior
// callback, and is not recorded for Result. comcom.Session.Run checks Result
// right after arming to catch an exit reaped after Arm but before its loop.
func (b *Bridge) Arm(pid int) <-chan struct{} { // ------------- Arm ------------- //
	ch := make(chan struct{}, 1) // Buffered: the loop never blocks delivering.
	b.mtx.Lock()                 // Protect pid/notifyCh.
	b.pid = pid                  // Claim ownership of this pid.
	b.notifyCh = ch              // Remember where to notify.
	b.mtx.Unlock()               // Unlock when done.
	return ch                    // Return the channel to the caller.
} // ------------- Arm ------------- //

// Disarm releases ownership of the currently armed pid; a subsequent exit
// of that pid (if any) is no longer claimed and falls through to the prior
// callback instead.
func (b *Bridge) Disarm() { // ------------- Disarm ------------- //
	b.mtx.Lock()        // Protect pid/notifyCh.
	b.pid = 0           // Release ownership.
	b.notifyCh = nil    // Forget the notify channel.
	b.mtx.Unlock()      // Unlock when done.
} // ------------- Disarm ------------- //

// Result returns and consumes the reaped wait4 result for pid, if the
// bridge has already reaped it. ok is false if pid has not exited yet (or
// its result was already consumed).
func (b *Bridge) Result(pid int) (state ExitState, ok bool) { // --- Result --- //
	b.mtx.Lock()                 // Protect the results map.
	state, ok = b.results[pid]   // Look up the reaped result.
	if ok {                      // Did we find one?
		delete(b.results, pid) // Yes, consume it.
	}
	b.mtx.Unlock() // Unlock when done.
	return         // Return whatever we found.
} // ------------- Result ------------- //

// Terminate sends SIGTERM to the currently armed pid, the async-signal-safe
// equivalent of an in-flight invocation's cancellation request. A no-op,
// returning nil, if nothing is armed.
func (b *Bridge) Terminate() error { // ------------- Terminate ------------- //
	b.mtx.Lock()   // Protect pid.
	pid := b.pid   // Snapshot the armed pid.
	b.mtx.Unlock() // Unlock before the syscall.
	if pid == 0 {  // Is anything armed?
		return nil // No, nothing to terminate.
	}
	return syscall.Kill(pid, syscall.SIGTERM) // Yes, ask it to terminate.
} // ------------- Terminate ------------- //

// Close stops the signal subscription and the reaping goroutine. It does
// not wait on any still-armed child; callers with invocations in flight
// must finish or abandon them first.
func (b *Bridge) Close() error { // ------------- Close ------------- //
	b.mtx.Lock()  // Protect closed/closing.
	if b.closed { // Already closed?
		b.mtx.Unlock() // Yes, unlock and return nil, idempotent.
		return nil
	}
	b.closed = true       // Mark closed.
	close(b.closing)      // Signal the goroutine to stop.
	b.mtx.Unlock()        // Unlock when done.
	signal.Stop(b.sigCh)  // Unsubscribe from SIGCHLD delivery.
	return nil            // Done, no error.
} // ------------- Close ------------- //

// loop is the reaping goroutine: on every SIGCHLD it drains every exited
// child with a non-blocking wait4(-1, WNOHANG), since one SIGCHLD can
// represent more than one simultaneous exit.
func (b *Bridge) loop() { // ------------- loop ------------- //
	for { // Until Close.
		select { // Wait for either a signal or a close.
		case <-b.closing: // Were we asked to stop?
			return // Yes, stop the goroutine.
		case <-b.sigCh: // Did we receive a SIGCHLD?
			b.reapAll() // Yes, reap every exited child.
		} // Done selecting.
	} // Done looping.
} // ------------- loop ------------- //

// reapAll drains wait4(-1, WNOHANG) until there is nothing left to reap,
// dispatching each exit to the armed notify channel or to the prior
// callback.
func (b *Bridge) reapAll() { // ------------- reapAll ------------- //
	for { // Until wait4 says there's nothing left.
		var ws syscall.WaitStatus
		var ru syscall.Rusage
		pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, &ru) // Non-blocking reap of any child.
		if err == syscall.EINTR {                                // Were we interrupted?
			continue // Yes, retry immediately.
		}
		if err == syscall.ECHILD { // No children left to wait for at all?
			return // Yes, nothing more to do.
		}
		if pid <= 0 { // No child was ready to be reaped right now?
			return // Yes, stop draining.
		}
		b.dispatch(pid, ws, ru) // Hand the exit off.
	} // Done draining.
} // ------------- reapAll ------------- //

func (b *Bridge) dispatch(pid int, ws syscall.WaitStatus, ru syscall.Rusage) {
	b.mtx.Lock() // Protect pid/notifyCh/results.
	owned := pid == b.pid && b.pid != 0
	var ch chan struct{}
	if owned { // Is this the pid we're armed for?
		b.results[pid] = ExitState{Status: ws, Rusage: ru} // Stash the result for Result().
		ch = b.notifyCh                                    // Snapshot the notify channel.
		b.pid = 0                                          // Disarm: this invocation is over.
		b.notifyCh = nil
	}
	prior := b.prior // Snapshot prior under the lock.
	b.mtx.Unlock()    // Unlock before calling out.
	if owned {        // Was someone armed for this pid?
		if ch != nil {
			ch <- struct{}{} // Yes, notify.
		}
		return
	}
	if prior != nil { // No, but is there a prior/unowned callback?
		prior(pid, ws) // Yes, hand it the exit.
	} // Otherwise the exit is silently discarded; it has still been reaped.
}
