package adapter

import (
	"context"
	"time"
)

// Locker is a short-lived advisory lock keyed by string. TryLock returns a token that must be
// presented to Unlock; it fails with domain.ErrLockNotAcquired when the key is held.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

func MandateLockKey(mandateID string) string { return "lock:mandate:" + mandateID }

func UserLockKey(userID string) string { return "lock:user:" + userID }
