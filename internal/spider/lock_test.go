package spider

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// unlockLock is a test helper that unlocks and logs any error
func unlockLock(t *testing.T, lock *Lock) {
	t.Helper()
	if err := lock.Unlock(); err != nil {
		t.Logf("Warning: Unlock failed: %v", err)
	}
}

func TestLock_TryLock_Success(t *testing.T) {
	dir := t.TempDir()

	lock := NewLock(dir)
	defer unlockLock(t, lock)

	if err := lock.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	if !lock.IsLocked() {
		t.Error("Expected IsLocked to return true")
	}
	if lock.Path() != filepath.Join(dir, LockFilename) {
		t.Errorf("Unexpected lock path %q", lock.Path())
	}
}

func TestLock_TryLock_AlreadyHeld(t *testing.T) {
	dir := t.TempDir()

	lock1 := NewLock(dir)
	if err := lock1.TryLock(); err != nil {
		t.Fatalf("First TryLock failed: %v", err)
	}
	defer unlockLock(t, lock1)

	lock2 := NewLock(dir)
	err := lock2.TryLock()
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("Expected ErrLocked, got %v", err)
	}
	if lock2.IsLocked() {
		t.Error("Expected second lock's IsLocked to return false")
	}
}

func TestLock_LockWithContext_WaitsForRelease(t *testing.T) {
	dir := t.TempDir()

	lock1 := NewLock(dir)
	if err := lock1.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		unlockLock(t, lock1)
	}()

	lock2 := NewLock(dir)
	defer unlockLock(t, lock2)
	if err := lock2.LockWithContext(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("LockWithContext failed: %v", err)
	}
	if !lock2.IsLocked() {
		t.Error("Expected lock to be held after waiting")
	}
}

func TestLock_LockWithContext_Timeout(t *testing.T) {
	dir := t.TempDir()

	lock1 := NewLock(dir)
	if err := lock1.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	defer unlockLock(t, lock1)

	lock2 := NewLock(dir)
	err := lock2.LockWithContext(context.Background(), 50*time.Millisecond)
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("Expected ErrLockTimeout, got %v", err)
	}
	if lock2.IsLocked() {
		t.Error("Expected lock not to be held after timeout")
	}
}

func TestLock_LockWithContext_Canceled(t *testing.T) {
	dir := t.TempDir()

	lock1 := NewLock(dir)
	if err := lock1.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	defer unlockLock(t, lock1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lock2 := NewLock(dir)
	err := lock2.LockWithContext(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestLock_UnlockWhenNotLocked(t *testing.T) {
	lock := NewLock(t.TempDir())
	if err := lock.Unlock(); err != nil {
		t.Errorf("Unlock on unlocked lock should be a no-op, got %v", err)
	}
}

func TestLock_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "index")

	lock := NewLock(dir)
	defer unlockLock(t, lock)
	if err := lock.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
}
