//go:build linux && amd64
// +build linux,amd64

/*=============================================================================*
* Filename:
*   comcom.go
*
* Description:
*   comcom runs one external command as a child process at a time, feeds it
*   caller-supplied input on stdin, captures its stdout into a buffer, and
*   returns it — subject to a whole-invocation wall-clock timeout that
*   forcibly terminates the child. No stderr capture, no bidirectional
*   interactive streaming, no concurrent multi-child management per
*   Session, no shell interpretation, no PTY allocation.
*
*   Run over an explicit *Session for concurrent or long-lived callers; Run
*   (the package-level function) is a convenience wrapper over a
*   lazily-initialized default Session, for parity with the C library's
*   implicit single global session.
*
* Author:
*   J.EP, J. Enrique Peraza
==============================================================================*/
package comcom

import (
	"context"
	"sync"
	"time"
)

var (
	defaultOnce    sync.Once
	defaultSession *Session
	defaultErr     error
)

// Default returns the package-level default Session, creating it on first
// use.
func Default() (*Session, error) { // ------------- Default ------------- //
	defaultOnce.Do(func() {
		defaultSession, defaultErr = NewSession()
	})
	return defaultSession, defaultErr
} // ------------- Default ------------- //

// Run is a convenience wrapper over Default().Run, for callers that don't
// need more than one Session.
func Run(ctx context.Context, input []byte, file string, argv, envp []string,
	timeout time.Duration) (*Result, error) {
	s, err := Default()
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, input, file, argv, envp, timeout)
} // ------------- Run ------------- //
