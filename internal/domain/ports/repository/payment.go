package repository

import (
	"context"
	"time"

	"upi-autopay-subscription/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	// Create fails with domain.ErrAlreadyExists on duplicate transactionId or providerPaymentId.
	Create(ctx context.Context, tx Tx, p *model.Payment) error
	FindByTransactionID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByProviderPaymentID(ctx context.Context, tx Tx, providerPaymentID string) (*model.Payment, error)
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.Payment, error)
	// MarkRefunded moves a completed payment to refunded; reports false if it was not completed.
	MarkRefunded(ctx context.Context, tx Tx, transactionID string, at time.Time) (bool, error)
}

// -----------------------------
// Webhook idempotency
// -----------------------------

type WebhookEventRepository interface {
	Exists(ctx context.Context, tx Tx, key string) (bool, error)
	// Record fails with domain.ErrAlreadyExists if the key was recorded before.
	Record(ctx context.Context, tx Tx, ev *model.WebhookEvent) error
}

// -----------------------------
// Reconciliation tasks
// -----------------------------

type ReconciliationRepository interface {
	Create(ctx context.Context, tx Tx, t *model.ReconciliationTask) error
	Update(ctx context.Context, tx Tx, t *model.ReconciliationTask) error
	ListPending(ctx context.Context, tx Tx, limit int) ([]*model.ReconciliationTask, error)
}
