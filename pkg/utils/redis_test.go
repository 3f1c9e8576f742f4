package utils

import "testing"

func TestPairSlotScriptsCompile(t *testing.T) {
	// Compile-time smoke test: scripts should be initialized.
	if pairSlotAcquireScript == nil || pairSlotReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}
