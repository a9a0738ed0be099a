package logrotate

import (
	"strings"
	"testing"
)

// ------------------------------------ //
// Test that Check on a path nothing has open reports zero signaled
// processes and a "no process" message, tolerating lsof being unavailable in
// a minimal test environment.
// ------------------------------------ //
func TestCheckNoHolders(t *testing.T) {
	summary, err := Check("/tmp/comcom-logrotate-test-does-not-exist.log")
	if err != nil {
		if strings.Contains(err.Error(), "executable file not found") {
			t.Skipf("lsof not available in this environment: %v", err)
		}
		t.Fatalf("Check returned an unexpected error: %v", err)
	}
	if summary.Signaled != 0 {
		t.Errorf("Expected no processes signaled for an unheld path, got %d", summary.Signaled)
	}
	if !strings.Contains(summary.Message, "No process") {
		t.Errorf("Expected a 'No process...' summary message, got %q", summary.Message)
	}
	t.Logf("Summary: %+v", summary)
} // ---------- TestCheckNoHolders --------- //

// ------------------------------------ //
// Test the English-sentence helpers directly: singular vs. plural forms.
// ------------------------------------ //
func TestPluralHelpers(t *testing.T) {
	fail := false
	if pls(1) != "" || pls(2) != "s" {
		t.Errorf("pls gave unexpected forms: pls(1)=%q pls(2)=%q", pls(1), pls(2))
		fail = true
	}
	if was(1) != "was" || was(2) != "were" {
		t.Errorf("was gave unexpected forms: was(1)=%q was(2)=%q", was(1), was(2))
		fail = true
	}
	if ples(1) != "" || ples(2) != "es" {
		t.Errorf("ples gave unexpected forms: ples(1)=%q ples(2)=%q", ples(1), ples(2))
		fail = true
	}
	if fail {
		t.Errorf("one or more plural helpers returned an unexpected form")
	}
} // ---------- TestPluralHelpers --------- //
