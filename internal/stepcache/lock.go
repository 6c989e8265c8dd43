package stepcache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryDelay is the polling interval while waiting for a held key lock.
const lockRetryDelay = 50 * time.Millisecond

// KeyLocker serializes work on identical cache keys across processes sharing a
// cache root. Locks are advisory files under {root}/.locks.
type KeyLocker struct {
	dir string
}

// NewKeyLocker returns a locker for the cache rooted at root.
func NewKeyLocker(root string) *KeyLocker {
	return &KeyLocker{dir: filepath.Join(root, locksDir)}
}

// Lock blocks until the lock for key is held or ctx is done. The returned
// function releases it.
func (l *KeyLocker) Lock(ctx context.Context, key Key) (func(), error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("stepcache: create lock dir: %w", err)
	}
	lock := flock.New(filepath.Join(l.dir, key.String()+".lock"))
	ok, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("stepcache: lock %s: %w", key.Step, err)
	}
	if !ok {
		return nil, fmt.Errorf("stepcache: lock %s: not acquired", key.Step)
	}
	return func() { _ = lock.Unlock() }, nil
}
