package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a lock taken by a SessionLocker.
type UnlockFunc func(ctx context.Context) error

// SessionLocker serializes turns on the same session across processes.
type SessionLocker interface {
	// Lock blocks until the lock for key is held or ctx is done.
	// The lock expires after ttl if the holder never releases it.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
