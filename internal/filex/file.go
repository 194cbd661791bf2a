// Package filex holds the small file helpers behind the JSON post store:
// directory setup, atomic whole-file replacement and a cross-process lock file.
package filex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// EnsureDir creates dir (and parents) if it does not exist yet.
func EnsureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}

// WriteFileAtomic writes data to a temp file in the same directory, syncs it
// and renames it over path. Readers never observe a partially written file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// ErrLockTimeout is returned when a lock file could not be acquired in time.
var ErrLockTimeout = errors.New("lock timeout")

// FileLock is an exclusive advisory lock (flock) on a file next to the
// data it guards. It serializes writers across processes sharing a data
// directory; the kernel drops it when the holder dies.
type FileLock struct {
	fl *flock.Flock
}

// LockOptions tunes Lock. Zero values fall back to defaults.
type LockOptions struct {
	// Timeout bounds how long Lock waits for a holder to release.
	Timeout time.Duration
	// Poll is the retry interval.
	Poll time.Duration
}

func (o LockOptions) withDefaults() LockOptions {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Poll <= 0 {
		o.Poll = 10 * time.Millisecond
	}
	return o
}

// Lock acquires the lock on path, waiting up to opts.Timeout or until ctx
// is done.
func Lock(ctx context.Context, path string, opts LockOptions) (*FileLock, error) {
	opts = opts.withDefaults()
	lctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	fl := flock.New(path)
	ok, err := fl.TryLockContext(lctx, opts.Poll)
	if err == nil && ok {
		return &FileLock{fl: fl}, nil
	}
	_ = fl.Close()
	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case err == nil || errors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, path)
	default:
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
}

// Unlock releases the lock. It is safe to call on a nil lock.
func (l *FileLock) Unlock() error {
	if l == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("unlock %s: %w", l.fl.Path(), err)
	}
	return nil
}
