package usecase

import (
	"context"
	"errors"
	"time"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/ports/adapter"
	"upi-autopay-subscription/internal/infra/metrics"
)

const defaultLockTTL = 30 * time.Second

// withLock runs fn while holding the advisory lock for key. Contention surfaces as
// domain.ErrLockNotAcquired so callers (and webhook redelivery) can retry.
func withLock(ctx context.Context, l adapter.Locker, key string, ttl time.Duration, fn func() error) error {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	token, err := l.TryLock(ctx, key, ttl)
	if err != nil {
		return err
	}
	// Unlock on a fresh context so a cancelled request still releases the key.
	defer func() {
		uctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Unlock(uctx, key, token)
	}()
	return fn()
}

// callProvider bounds a provider call by timeout and normalises its error into a
// *domain.ProviderError. A deadline is always retryable.
func callProvider(ctx context.Context, provider string, timeout time.Duration, op string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(cctx)
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded):
		result = "timeout"
		err = domain.NewProviderError(op, true, err)
	default:
		result = "error"
		if !errors.Is(err, domain.ErrProvider) {
			err = domain.NewProviderError(op, false, err)
		}
	}
	metrics.ObserveProviderCall(provider, op, result, time.Since(start).Seconds())
	return err
}
