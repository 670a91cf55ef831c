package ipc

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockName is the run lock filename created under the log directory.
const LockName = "loom.lock"

// RunLock enforces a single active pipeline run per workspace.
type RunLock struct {
	path string
	lock *flock.Flock
}

// NewRunLock prepares a run lock in the given log directory. The lock is not
// held until Acquire succeeds.
func NewRunLock(logDir string) *RunLock {
	path := filepath.Join(logDir, LockName)
	return &RunLock{path: path, lock: flock.New(path)}
}

// Acquire takes the run lock without blocking. It fails when another run
// already holds the lock for this workspace.
func (l *RunLock) Acquire() error {
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return errors.New("another loom run is already active for this workspace")
	}
	return nil
}

// Release drops the run lock.
func (l *RunLock) Release() error {
	return l.lock.Unlock()
}

// Path returns the lock file location.
func (l *RunLock) Path() string {
	return l.path
}
