package lock

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	tmpDir := t.TempDir()

	l, err := Acquire(tmpDir, "work")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// Verify lock file exists and contains PID.
	data, err := os.ReadFile(filepath.Join(tmpDir, "work.lock"))
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if len(data) == 0 {
		t.Error("lock file is empty")
	}

	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "work.lock")); !os.IsNotExist(err) {
		t.Error("lock file not removed on release")
	}
}

func TestAcquirePerAccount(t *testing.T) {
	tmpDir := t.TempDir()

	l1, err := Acquire(tmpDir, "work")
	if err != nil {
		t.Fatalf("Acquire(work) error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	// A different account in the same dir must not collide.
	l2, err := Acquire(tmpDir, "personal")
	if err != nil {
		t.Fatalf("Acquire(personal) error = %v", err)
	}
	if err := l2.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("Release() on nil = %v", err)
	}
}
