package testutil

import (
	"os"
	"testing"
)

// TempDir creates a temporary directory for testing, removed via t.Cleanup.
func TempDir(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "calyx-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	t.Cleanup(func() {
		if err := os.RemoveAll(dir); err != nil {
			t.Errorf("failed to remove temp dir: %v", err)
		}
	})

	return dir
}
