//go:build linux && amd64
// +build linux,amd64

/*=============================================================================*
* Filename:
*   session.go
*
* Description:
*   A Session is the Go-shaped equivalent of libcomcom's implicit
*   process-wide global: the owner of the SIGCHLD reaping bridge and the
*   busy guard that enforces "at most one outstanding invocation." Callers
*   that want more than one concurrent invocation create more than one
*   Session.
*
* Author:
*   J.EP, J. Enrique Peraza
==============================================================================*/
package comcom

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sync/semaphore"

	"github.com/vporton/libcomcom/config"
	"github.com/vporton/libcomcom/internal/logger"
	"github.com/vporton/libcomcom/internal/perf"
	"github.com/vporton/libcomcom/internal/reaper"
)

// Session owns one child-reaping bridge and enforces that at most one
// invocation runs through it at a time.
type Session struct {
	mtx   sync.Mutex
	bridge *reaper.Bridge
	busy   *semaphore.Weighted
	log    logger.Log
	perf   *perf.Recorder
	cfg    *config.Config

	defaultTermCh   chan os.Signal
	defaultTermStop chan struct{}
	defaultTermOn   bool

	stats  Stats
	closed bool
}

// NewSession creates a Session with no chained SIGCHLD handler: exits of
// children this Session did not start are reaped and discarded.
func NewSession() (*Session, error) { // ------------- NewSession ------------- //
	return newSession(nil)
} // ------------- NewSession ------------- //

// NewSessionCapturingPrior creates a Session whose bridge logs unowned
// child exits through the default logger rather than discarding them.
func NewSessionCapturingPrior() (*Session, error) { // ---- NewSessionCapturingPrior --- //
	l, err := logger.NewLogger()
	if err != nil {
		return nil, newErr(ErrResource, fmt.Errorf("comcom: new logger: %w", err))
	}
	return newSessionWithLogger(func(pid int, ws syscall.WaitStatus) {
		l.War("reaped unowned pid %d: %v", pid, ws)
	}, l)
} // ---- NewSessionCapturingPrior --- //

// NewSessionWithPrior creates a Session that forwards exits of children it
// did not start to the caller-supplied prior function, the Go analogue of
// chaining to a previously-installed SIGCHLD handler.
func NewSessionWithPrior(prior func(pid int, ws syscall.WaitStatus)) (*Session, error) {
	return newSession(prior)
} // ------------- NewSessionWithPrior ------------- //

func newSession(prior func(pid int, ws syscall.WaitStatus)) (*Session, error) {
	l, err := logger.NewLogger()
	if err != nil {
		return nil, newErr(ErrResource, fmt.Errorf("comcom: new logger: %w", err))
	}
	return newSessionWithLogger(prior, l)
}

func newSessionWithLogger(prior func(pid int, ws syscall.WaitStatus), l logger.Log) (*Session, error) {
	b, err := reaper.NewBridgeWithPrior(prior)
	if err != nil {
		return nil, newErr(ErrResource, fmt.Errorf("comcom: new reaper bridge: %w", err))
	}
	s := &Session{
		bridge: b,
		busy:   semaphore.NewWeighted(1), // At most one outstanding invocation.
		log:    l,
	}
	s.log.Inf("Session created.")
	return s, nil
}

// AttachPerf turns on per-invocation CPU-cycle accounting. Optional; a
// Session without it simply skips the measurement.
func (s *Session) AttachPerf() error { // ------------- AttachPerf ------------- //
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.perf != nil { // Already attached?
		return nil // Yes, nothing to do.
	}
	r, err := perf.NewRecorder()
	if err != nil {
		return newErr(ErrResource, fmt.Errorf("comcom: attach perf: %w", err))
	}
	s.perf = r
	return nil
} // ------------- AttachPerf ------------- //

// Stats returns a live pointer to this Session's counters, for a
// statusserver handler to read.
func (s *Session) Stats() *Stats { // ------------- Stats ------------- //
	return &s.stats
} // ------------- Stats ------------- //

// SetConfig attaches session-wide defaults (command allowlist, default
// timeout) loaded by config.ReadConfig. Run consults cfg.Allowed before
// every invocation and substitutes cfg.DefaultTimeout whenever a caller
// passes timeout == 0. A Session with no config attached imposes no
// allowlist and leaves timeout == 0 meaning "expired immediately," matching
// Run's documented convention.
func (s *Session) SetConfig(cfg *config.Config) { // ------------- SetConfig ------------- //
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.cfg = cfg
} // ------------- SetConfig ------------- //

// config returns the currently attached Config, or nil.
func (s *Session) config() *config.Config { // ------------- config ------------- //
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.cfg
} // ------------- config ------------- //

// perfRecorder returns the attached perf.Recorder, or nil if AttachPerf was
// never called.
func (s *Session) perfRecorder() *perf.Recorder { // ------------- perfRecorder ------------- //
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.perf
} // ------------- perfRecorder ------------- //

// Terminate sends SIGTERM to whatever invocation is currently in flight. A
// no-op if nothing is in flight. Async-signal-safe to call from a signal
// handler in spirit (it only calls kill(2)), mirroring
// libcomcom_terminate's "usually run in SIGTERM/SIGINT handlers" contract.
func (s *Session) Terminate() error { // ------------- Terminate ------------- //
	if err := s.bridge.Terminate(); err != nil {
		return newErr(ErrWait, fmt.Errorf("comcom: terminate: %w", err))
	}
	return nil
} // ------------- Terminate ------------- //

// InstallDefaultTermination installs a SIGTERM/SIGINT handler that calls
// Terminate(), so an in-flight invocation is asked to exit when the
// embedding program receives either signal. Mirrors
// libcomcom_set_default_terminate.
func (s *Session) InstallDefaultTermination() error { // -- InstallDefaultTermination -- //
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.defaultTermOn { // Already installed?
		return nil // Idempotent.
	}
	s.defaultTermCh = make(chan os.Signal, 1)
	s.defaultTermStop = make(chan struct{})
	signal.Notify(s.defaultTermCh, syscall.SIGTERM, syscall.SIGINT)
	s.defaultTermOn = true
	go func() { // Forward the signal to Terminate until ResetDefaultTermination.
		for {
			select {
			case <-s.defaultTermStop:
				return
			case sig := <-s.defaultTermCh:
				s.log.Inf("Received %v: terminating in-flight invocation.", sig)
				if err := s.Terminate(); err != nil {
					s.log.Err("default termination: %v", err)
				}
			}
		}
	}()
	return nil
} // -- InstallDefaultTermination -- //

// ResetDefaultTermination undoes InstallDefaultTermination. Mirrors
// libcomcom_reset_default_terminate.
func (s *Session) ResetDefaultTermination() error { // -- ResetDefaultTermination -- //
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if !s.defaultTermOn { // Never installed, or already reset?
		return nil // Idempotent.
	}
	signal.Stop(s.defaultTermCh)
	close(s.defaultTermStop)
	s.defaultTermOn = false
	return nil
} // -- ResetDefaultTermination -- //

// Close tears down the Session: resets default termination if installed,
// closes the reaping bridge and the perf recorder, and shuts the logger
// down. Should be run for normal termination, not from a signal handler —
// mirrors libcomcom_destroy.
func (s *Session) Close() error { // ------------- Close ------------- //
	s.mtx.Lock()
	if s.closed {
		s.mtx.Unlock()
		return nil
	}
	s.closed = true
	s.mtx.Unlock()

	_ = s.ResetDefaultTermination()
	var first error
	if err := s.bridge.Close(); err != nil && first == nil {
		first = newErr(ErrResource, fmt.Errorf("comcom: close bridge: %w", err))
	}
	if s.perf != nil {
		if err := s.perf.Close(); err != nil && first == nil {
			first = newErr(ErrResource, fmt.Errorf("comcom: close perf: %w", err))
		}
	}
	s.log.Inf("Session closed.")
	if err := s.log.Shutdown(); err != nil && first == nil {
		first = newErr(ErrResource, fmt.Errorf("comcom: shutdown logger: %w", err))
	}
	return first
} // ------------- Close ------------- //
