/*=============================================================================*
* Filename:
*   stats.go
*
* Description:
*   Invocation counters a Session keeps for the statusserver package to
*   expose. Updated with sync/atomic so Run never needs to hold a lock to
*   bump them.
*
* Author:
*   J.EP, J. Enrique Peraza
==============================================================================*/
package comcom

import (
	"sync/atomic"
	"time"
)

// Stats holds a Session's running invocation counters. The zero value is
// ready to use.
type Stats struct {
	total         int64 // Total invocations started.
	timeouts      int64 // Invocations that hit the whole-invocation deadline.
	execFailures  int64 // Invocations where exec(3) itself failed in the child.
	lastLatencyNs int64 // Wall-clock duration of the most recent Run, in ns.
	lastCycles    int64 // Parent-side CPU cycles spent in the most recent Run, if a Recorder is attached.
}

func (s *Stats) recordStart() { // ------------- recordStart ------------- //
	atomic.AddInt64(&s.total, 1) // One more invocation started.
} // ------------- recordStart ------------- //

func (s *Stats) recordTimeout() { // ------------- recordTimeout ------------- //
	atomic.AddInt64(&s.timeouts, 1) // One more invocation timed out.
} // ------------- recordTimeout ------------- //

func (s *Stats) recordExecFailure() { // ------------- recordExecFailure ------------- //
	atomic.AddInt64(&s.execFailures, 1) // One more invocation failed to exec.
} // ------------- recordExecFailure ------------- //

func (s *Stats) recordLatency(d time.Duration) { // ------------- recordLatency ------------- //
	atomic.StoreInt64(&s.lastLatencyNs, int64(d)) // Remember how long that took.
} // ------------- recordLatency ------------- //

func (s *Stats) recordCycles(c uint64) { // ------------- recordCycles ------------- //
	atomic.StoreInt64(&s.lastCycles, int64(c)) // Remember the parent-side cycle cost.
} // ------------- recordCycles ------------- //

// Snapshot is a point-in-time copy of Stats, safe to read without racing
// further updates.
type Snapshot struct {
	Total        int64
	Timeouts     int64
	ExecFailures int64
	LastLatency  time.Duration
	LastCycles   int64
}

// Snapshot copies the current counters.
func (s *Stats) Snapshot() Snapshot { // ------------- Snapshot ------------- //
	return Snapshot{
		Total:        atomic.LoadInt64(&s.total),
		Timeouts:     atomic.LoadInt64(&s.timeouts),
		ExecFailures: atomic.LoadInt64(&s.execFailures),
		LastLatency:  time.Duration(atomic.LoadInt64(&s.lastLatencyNs)),
		LastCycles:   atomic.LoadInt64(&s.lastCycles),
	}
} // ------------- Snapshot ------------- //
