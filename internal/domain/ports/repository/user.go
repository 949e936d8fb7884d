package repository

import (
	"context"
	"time"

	"upi-autopay-subscription/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	// Create fails with domain.ErrAlreadyExists when the id is taken.
	Create(ctx context.Context, tx Tx, u *model.User) error
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	ListByRiskLevel(ctx context.Context, tx Tx, level model.RiskLevel, limit int) ([]*model.User, error)
	ListByStatus(ctx context.Context, tx Tx, status model.SubscriptionStatus, limit int) ([]*model.User, error)
	ListByDevice(ctx context.Context, tx Tx, fingerprint string, limit int) ([]*model.User, error)
	// IsDeviceBlocked reports whether any user on the fingerprint is blocked.
	IsDeviceBlocked(ctx context.Context, tx Tx, fingerprint string) (bool, error)
	// ListLapsed returns active users past expiry without auto-renewal and trial users past trial end.
	ListLapsed(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.User, error)
}
