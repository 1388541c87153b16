package spider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// LockFilename is the name of the lock file inside the index directory
const LockFilename = "spider.lock"

var (
	// ErrLocked indicates another process holds the index lock
	ErrLocked = errors.New("index is locked by another process")

	// ErrLockTimeout indicates the lock acquisition timed out
	ErrLockTimeout = errors.New("lock acquisition timed out")
)

// Lock is an exclusive flock(2) on the index directory. It coordinates
// spiders and servers across processes and is released when the process
// exits or crashes.
type Lock struct {
	path string
	file *os.File
}

// NewLock creates the lock for an index directory.
func NewLock(indexDir string) *Lock {
	return &Lock{path: filepath.Join(indexDir, LockFilename)}
}

// TryLock acquires the lock without blocking. It returns ErrLocked when
// another process holds it.
func (l *Lock) TryLock() error {
	if err := l.open(); err != nil {
		return err
	}

	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == nil {
		return nil
	}
	l.release()
	if errors.Is(err, syscall.EWOULDBLOCK) {
		return fmt.Errorf("%w: %s", ErrLocked, l.path)
	}
	return fmt.Errorf("flock failed: %w", err)
}

// LockWithContext acquires the lock, blocking until it is available, the
// timeout expires or the context is canceled.
func (l *Lock) LockWithContext(ctx context.Context, timeout time.Duration) error {
	if err := l.open(); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	pollInterval := 10 * time.Millisecond
	maxPollInterval := 500 * time.Millisecond

	for {
		err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return nil
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			l.release()
			return fmt.Errorf("flock failed: %w", err)
		}

		if time.Now().After(deadline) {
			l.release()
			return ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			l.release()
			return ctx.Err()
		case <-time.After(pollInterval):
			pollInterval = min(pollInterval*2, maxPollInterval)
		}
	}
}

// Unlock releases the lock. Unlocking an unlocked Lock is a no-op.
func (l *Lock) Unlock() error {
	if l.file == nil {
		return nil
	}

	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if err != nil {
		return fmt.Errorf("flock unlock failed: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close failed: %w", closeErr)
	}
	return nil
}

// IsLocked returns true if this instance holds the lock.
func (l *Lock) IsLocked() bool {
	return l.file != nil
}

// Path returns the path to the lock file.
func (l *Lock) Path() string {
	return l.path
}

func (l *Lock) release() {
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}

// open creates the lock file and its parent directories if needed.
func (l *Lock) open() error {
	if l.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	l.file = file
	return nil
}
