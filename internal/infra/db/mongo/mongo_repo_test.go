//go:build integration

package mongo

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/model"
	"upi-autopay-subscription/internal/domain/ports/repository"
)

// openTestDB connects to MONGO_TEST_URI (a replica set, transactions need one).
func openTestDB(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx := context.Background()
	client, err := Connect(ctx, uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("autopay_test_" + time.Now().Format("150405"))
	t.Cleanup(func() { _ = db.Drop(context.Background()) })
	require.NoError(t, EnsureIndexes(ctx, db))
	return db
}

func TestMongoStore_Integration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	users := NewUserRepo(db)
	mandates := NewMandateRepo(db)
	payments := NewPaymentRepo(db)
	tm := NewTxManager(db.Client())

	u, _ := model.NewTrialUser("user-1", "fp-1", 7, now)
	require.NoError(t, users.Create(ctx, nil, u))
	assert.ErrorIs(t, users.Create(ctx, nil, u), domain.ErrAlreadyExists)

	t.Run("should keep a single open mandate per user", func(t *testing.T) {
		m1, _ := model.NewMandate("user-1", "alice@okhdfc", "merchant@upi", 9900, "INR", now)
		m2, _ := model.NewMandate("user-1", "alice@okhdfc", "merchant@upi", 9900, "INR", now.Add(time.Second))

		require.NoError(t, mandates.Create(ctx, nil, m1))
		assert.ErrorIs(t, mandates.Create(ctx, nil, m2), domain.ErrAlreadyExists)
	})

	t.Run("should reject a stale update", func(t *testing.T) {
		open, err := mandates.ListOpenByUser(ctx, nil, "user-1")
		require.NoError(t, err)
		require.Len(t, open, 1)
		a, b := open[0], open[0].Clone()

		require.NoError(t, a.TransitionTo(model.MandateStatusActive, now))
		require.NoError(t, mandates.Update(ctx, nil, a))
		require.NoError(t, b.TransitionTo(model.MandateStatusCancelled, now))

		assert.ErrorIs(t, mandates.Update(ctx, nil, b), domain.ErrStaleRecord)
		assert.Equal(t, int64(1), a.Version)
	})

	t.Run("should roll back a failed transaction", func(t *testing.T) {
		p, _ := model.NewCompletedPayment("user-1", "pay_tx", 9900, "INR", model.PaymentMetadata{Kind: model.PaymentKindRecurringCharge}, now)
		boom := errors.New("boom")

		err := tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if err := payments.Create(ctx, tx, p); err != nil {
				return err
			}
			return boom
		})

		assert.ErrorIs(t, err, boom)
		_, err = payments.FindByProviderPaymentID(ctx, nil, "pay_tx")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
