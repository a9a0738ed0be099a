/****************************************************************************
* Filename:
*	 logrotate.go
*
* Description:
*  Determines which processes have comcom's log file open and sends them a
*  SIGHUP so they reopen it after rotation.
*
* Author: J.EP, J. Enrique Peraza
*******************************************************************************/

package logrotate

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// Helper functions to build sentences. Should probably make an English package.

func pls(count int) string {
	if count == 1 {
		return ""
	}
	return "s"
}

func was(count int) string {
	if count == 1 {
		return "was"
	}
	return "were"
}

func ples(count int) string {
	if count == 1 {
		return ""
	}
	return "es"
}

// Summary is the outcome of one Check call.
type Summary struct {
	Signaled int    // Processes we sent SIGHUP (excluding tail/less/more).
	Tail     int    // "tail" instances holding the file open, left alone.
	Less     int    // "less" instances holding the file open, left alone.
	More     int    // "more" instances holding the file open, left alone.
	Message  string // Human-readable summary, teacher-style.
}

// Check finds every process with logPath open via lsof, sends each one
// (other than interactive pagers: tail/less/more) a SIGHUP so it reopens the
// file, and returns a summary. It never calls os.Exit: callers decide what
// to do with an error.
func Check(logPath string) (Summary, error) { // -----------Check---------- //
	cmd := exec.Command("lsof", logPath) // Create the lsof command.
	stdout, err := cmd.StdoutPipe()      // Get the stdout pipe.
	if err != nil {                      // Error getting stdout pipe?
		return Summary{}, fmt.Errorf("logrotate: opening lsof pipe: %w", err)
	} // Done checking for error getting stdout pipe.
	if err := cmd.Start(); err != nil { // Error starting lsof?
		return Summary{}, fmt.Errorf("logrotate: starting lsof: %w", err)
	} // Done checking for error starting lsof.
	var n, tail, less, more int       // Our counters.
	scanner := bufio.NewScanner(stdout) // Our scanner for the lsof output.
	for scanner.Scan() {              // While we can scan the lsof output.
		line := scanner.Bytes() // Get the incoming line.
		if !bytes.Contains(line, []byte(logPath)) {
			continue // Line doesn't mention our log file.
		}
		// ------------------------------ //
		// Extract the process name (first token) and process ID (second
		// token) from the lsof line.
		// ------------------------------ //
		sp := bytes.IndexByte(line, ' ') // Extract the process name (first token)
		if sp == -1 {                    // Found a space?
			continue // No, skip this line.
		} // Done checking for space.
		proc := bytes.TrimSpace(line[:sp]) // Extract everything up to 1st space.
		p := sp + 1                        // Skip the space.
		for p < len(line) && (line[p] == ' ' || line[p] == '\t') {
			p++ // Skip spaces.
		} // Done skipping spaces.
		pidstr := line[p:]                    // Extract everything starting at p.
		endpid := bytes.IndexByte(pidstr, ' ') // Find the end of the process ID token.
		if endpid != -1 {                      // Found the end of the process ID?
			pidstr = pidstr[:endpid] // Yes, extract everything up to the end.
		} // Done checking for end of process ID.
		pid, err := strconv.Atoi(string(pidstr)) // Turn pidstr into an integer.
		if err != nil {                          // Error converting pidstr to integer?
			continue // Skip a line we can't parse, rather than aborting the scan.
		} // Done with str to int conversion err.
		switch string(proc) { // Except for interactive pagers, send SIGHUP.
		case "tail":
			tail++
		case "less":
			less++
		case "more":
			more++
		default:
			if err := syscall.Kill(pid, syscall.SIGHUP); err == nil {
				n++ // Count only the ones we actually signaled.
			}
		} // Done checking for "tail", "less" and "more".
	} // Done scanning the lsof output.
	if err := scanner.Err(); err != nil { // Error scanning lsof output?
		return Summary{}, fmt.Errorf("logrotate: reading lsof output: %w", err)
	} // Done checking for error scanning lsof output.
	if err := cmd.Wait(); err != nil { // Error waiting for our child process?
		// lsof exits 1 when nothing has the file open; that's not an error.
		if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() != 1 {
			return Summary{}, fmt.Errorf("logrotate: waiting for lsof: %w", err)
		} // Done checking for the "nothing has it open" exit code.
	} // Done checking for error waiting for child process.
	// ---------------------------------- //
	// Construct the summary message, accounting for tail/less/more and any
	// other (signaled) processes.
	// ---------------------------------- //
	var tailstr strings.Builder // Our string builder for the pager summary.
	if tail+less+more > 0 {     // Any "tail", "less" or "more" processes?
		if n > 0 { // ... and extra processes to account for?
			tailstr.WriteString("(and") // Yes, so add "and" to the string.
		} else { // Else, no extra processes to account for.
			tailstr.WriteString("(except for") // So add "except for" to the string.
		} // Done with additional processes.
		if tail > 0 { // Did we count any tail processes?
			tailstr.WriteString(fmt.Sprintf(" %d instance%s of \"tail\"", tail, pls(tail)))
		}
		if less > 0 { // Did we count any "less" processes?
			if tail > 0 { // Did we also count any "tail" processes?
				if more == 0 { // But no "more" processes?
					tailstr.WriteString(" and") // Yes, so add an "and" to the string.
				} else { // Else, we have "more" processes.
					tailstr.WriteString(",") // So add a comma to the string.
				} // Done checking for "more" processes.
			} // Done checking for "tail" processes.
			tailstr.WriteString(fmt.Sprintf(" %d instance%s of \"less\"", less, pls(less)))
		} // Done checking for "less" processes.
		if more > 0 { // Did we count any "more" processes?
			if tail == 0 && less == 0 { // No "tail" or "less" processes?
				tailstr.WriteString("") // NOOP
			} else if less == 0 { // No "less" processes?
				tailstr.WriteString(" and") // Add an "and" to the string.
			} else { // Else we have a "less" process and maybe a "tail" process.
				tailstr.WriteString(", and") // Add the Oxford comma
			} // Done determining punctuation.
			tailstr.WriteString(fmt.Sprintf(" %d instance%s of \"more\"", more, pls(more)))
		} // Done checking for "more" processes.
		tailstr.WriteString(") ") // Close the parenthetical summary.
	} // Done building the pager summary.
	var msg string
	if n == 0 { // Any NOT tail, less, and more procs using logs?
		msg = fmt.Sprintf("No process%s %s%s using the log file.",
			ples(tail+less+more), tailstr.String(), was(tail+less+more))
	} else { // Else, other processes we using the log files.
		msg = fmt.Sprintf("%d process%s %s%s using the log file.",
			n, ples(n), tailstr.String(), was(n+tail+less+more))
	} // Done checking for other processes using log files.
	return Summary{Signaled: n, Tail: tail, Less: less, More: more, Message: msg}, nil
} // -----------Check---------- //
