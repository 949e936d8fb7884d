// Package lock provides an in-process Locker for single-node and dev deployments where no
// Redis is configured.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/ports/adapter"
)

var _ adapter.Locker = (*MemoryLocker)(nil)

type lease struct {
	token   string
	expires time.Time
}

type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]lease), now: time.Now}
}

func (l *MemoryLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expires) {
		return "", domain.ErrLockNotAcquired
	}
	token := uuid.NewString()
	l.leases[key] = lease{token: token, expires: now.Add(ttl)}
	return token, nil
}

func (l *MemoryLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.leases[key]; ok && cur.token == token {
		delete(l.leases, key)
	}
	return nil
}
