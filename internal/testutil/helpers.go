package testutil

import (
	"os"
	"testing"
)

// RequireVM skips the test unless SIEVE_VM_TEST is set. Tests that load
// programs, attach to interfaces or create namespaces need root and a kernel
// with BPF support, which only the test VM provides.
func RequireVM(t *testing.T) {
	t.Helper()
	if os.Getenv("SIEVE_VM_TEST") == "" {
		t.Skip("Skipping test: requires SIEVE_VM_TEST environment")
	}
}
