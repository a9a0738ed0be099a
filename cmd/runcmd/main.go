//go:build linux && amd64
// +build linux,amd64

/**
* file: main.go
* Description: Demonstrates running one external command through a comcom
* Session: feed it stdin, capture stdout, bound the whole invocation by a
* timeout, and release whatever was captured even if that timeout fires.
* Usage: runcmd <timeout-ms> <file> [args...], reading stdin from the
* process's own stdin.
*
* Author:
*  J.EP, J. Enrique Peraza
*/
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/vporton/libcomcom"
	"github.com/vporton/libcomcom/config"
	"github.com/vporton/libcomcom/internal/logger"
)

func main() {
	if len(os.Args) < 3 || os.Args[1] == "--help" { // User asking for help?
		fmt.Printf("Usage: %s <timeout-ms> <file> [args...]\n", os.Args[0]) // Print usage message.
		os.Exit(1)                                                          // Yes, exit program.
	} // Done checking for help.

	ms, err := strconv.Atoi(os.Args[1]) // Parse the timeout in milliseconds.
	if err != nil {                     // Error parsing the timeout?
		fmt.Fprintf(os.Stderr, "invalid timeout %q: %v\n", os.Args[1], err)
		os.Exit(1) // Yes, exit program.
	} // Done parsing the timeout.
	timeout := time.Duration(ms) * time.Millisecond

	file := os.Args[2]   // The program to run.
	argv := os.Args[2:]  // argv[0] is the program itself, per execve convention.

	input, err := io.ReadAll(os.Stdin) // Read all of stdin as the child's input.
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading stdin: %v\n", err)
		os.Exit(1)
	}

	sess, err := comcom.NewSessionCapturingPrior() // Create a new Session.
	if err != nil {                                // Error creating the session?
		fmt.Fprintf(os.Stderr, "error creating session: %v\n", err)
		os.Exit(1) // Yes, exit program.
	} // Done creating the session.
	defer sess.Close()

	// Load $COMCOM_CONFIG (or ./comcom.yaml, if present) for the allowlist
	// and default timeout; a missing default config just means "no
	// restriction," per ReadConfig's own contract.
	if cfgLog, err := logger.NewLogger(); err == nil {
		defer cfgLog.Shutdown()
		if cfg, err := config.ReadConfig("", cfgLog); err == nil {
			sess.SetConfig(cfg)
		} else {
			fmt.Fprintf(os.Stderr, "warning: could not load config: %v\n", err)
		}
	}

	// No matter how we exit the program we need to terminate an in-flight
	// invocation on SIGTERM/SIGINT, so clean shutdown releases the child too.
	if err := sess.InstallDefaultTermination(); err != nil {
		fmt.Fprintf(os.Stderr, "error installing default termination: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	result, err := sess.Run(ctx, input, file, argv, nil, timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		if result != nil { // Timed out but still produced partial output?
			os.Stdout.Write(result.Output) // Yes, surface whatever we got.
		}
		os.Exit(1)
	}
	os.Stdout.Write(result.Output)
}
