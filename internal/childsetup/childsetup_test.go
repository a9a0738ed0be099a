//go:build linux && amd64
// +build linux,amd64

package childsetup

import (
	"os"
	"testing"
)

// ------------------------------------ //
// Test that searchPath finds a well-known binary somewhere on $PATH and
// resolves it to an absolute, executable path.
// ------------------------------------ //
func TestSearchPathFindsCat(t *testing.T) {
	resolved, ok := searchPath("cat")
	if !ok {
		t.Fatalf("expected to find 'cat' on $PATH")
	}
	if resolved[0] != '/' {
		t.Errorf("expected an absolute path but got %q", resolved)
	}
	if _, err := os.Stat(resolved); err != nil {
		t.Errorf("resolved path %q does not exist: %v", resolved, err)
	}
} // ---------- TestSearchPathFindsCat --------- //

// ------------------------------------ //
// Test that searchPath reports not-found for a name no directory on $PATH
// has.
// ------------------------------------ //
func TestSearchPathMisses(t *testing.T) {
	_, ok := searchPath("no-such-binary-comcom-test")
	if ok {
		t.Errorf("expected searchPath to miss a nonexistent binary name")
	}
} // ---------- TestSearchPathMisses --------- //

// ------------------------------------ //
// Test that an empty $PATH is handled without a panic.
// ------------------------------------ //
func TestSearchPathEmptyPath(t *testing.T) {
	old := os.Getenv("PATH")
	os.Setenv("PATH", "")
	defer os.Setenv("PATH", old)

	_, ok := searchPath("cat")
	if ok {
		t.Errorf("expected searchPath to miss with an empty $PATH")
	}
} // ---------- TestSearchPathEmptyPath --------- //
