package repository

import (
	"context"
	"time"

	"upi-autopay-subscription/internal/domain/model"
)

// MandateRepository is the port for mandate persistence.
type MandateRepository interface {
	// Create inserts a new mandate. A second PENDING/ACTIVE mandate for the same user or a
	// duplicate id fails with domain.ErrAlreadyExists.
	Create(ctx context.Context, tx Tx, m *model.Mandate) error
	// Update is a compare-and-swap on m.Version; on success m.Version is incremented.
	// A concurrent writer yields domain.ErrStaleRecord.
	Update(ctx context.Context, tx Tx, m *model.Mandate) error
	Delete(ctx context.Context, tx Tx, id string) (int64, error)

	FindByID(ctx context.Context, tx Tx, id string) (*model.Mandate, error)
	FindByPaymentLinkID(ctx context.Context, tx Tx, linkID string) (*model.Mandate, error)
	FindBySubscriptionID(ctx context.Context, tx Tx, subscriptionID string) (*model.Mandate, error)
	// ListOpenByUser returns PENDING and ACTIVE mandates; more than one means a broken invariant.
	ListOpenByUser(ctx context.Context, tx Tx, userID string) ([]*model.Mandate, error)
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.Mandate, error)

	// ListDue returns ACTIVE mandates with nextChargeDate <= now, oldest first.
	ListDue(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.Mandate, error)
	// ListEnded returns non-terminal mandates whose endDate <= now.
	ListEnded(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.Mandate, error)
}
