package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upi-autopay-subscription/internal/domain"
)

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("held keys are refused", func(t *testing.T) {
		l := NewMemoryLocker()
		tok, err := l.TryLock(ctx, "a", time.Minute)
		require.NoError(t, err)

		_, err = l.TryLock(ctx, "a", time.Minute)
		assert.ErrorIs(t, err, domain.ErrLockNotAcquired)

		_, err = l.TryLock(ctx, "b", time.Minute)
		assert.NoError(t, err, "other keys are independent")

		require.NoError(t, l.Unlock(ctx, "a", tok))
		_, err = l.TryLock(ctx, "a", time.Minute)
		assert.NoError(t, err)
	})

	t.Run("an expired lease can be taken over", func(t *testing.T) {
		l := NewMemoryLocker()
		now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		l.now = func() time.Time { return now }
		old, err := l.TryLock(ctx, "a", time.Second)
		require.NoError(t, err)

		now = now.Add(2 * time.Second)
		fresh, err := l.TryLock(ctx, "a", time.Second)
		require.NoError(t, err)

		require.NoError(t, l.Unlock(ctx, "a", old))
		_, err = l.TryLock(ctx, "a", time.Second)
		assert.ErrorIs(t, err, domain.ErrLockNotAcquired, "the stale holder must not release the new lease")
		assert.NotEqual(t, old, fresh)
	})
}
