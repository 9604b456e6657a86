package artifactcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrCacheBusy is returned when maintenance cannot take the cache lock
// because a native host is running.
var ErrCacheBusy = errors.New("cache is in use by a running host")

const lockRetryDelay = 100 * time.Millisecond

// Lock wraps the cache lock file.
type Lock struct {
	lock *flock.Flock
	path string
}

// NewLock returns a lock on path. The file is created on first acquisition.
func NewLock(path string) *Lock {
	return &Lock{lock: flock.New(path), path: path}
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Shared takes the lock in shared mode, waiting while maintenance holds it.
func (l *Lock) Shared(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := l.lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire shared cache lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("acquire shared cache lock: %s", l.path)
	}
	return nil
}

// Exclusive takes the lock in exclusive mode without waiting. It returns
// ErrCacheBusy when any host holds the shared lock.
func (l *Lock) Exclusive() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire cache lock: %w", err)
	}
	if !ok {
		return ErrCacheBusy
	}
	return nil
}

// Unlock releases the lock.
func (l *Lock) Unlock() error {
	return l.lock.Unlock()
}
