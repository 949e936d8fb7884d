// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/model"
	"upi-autopay-subscription/internal/domain/ports/adapter"
	"upi-autopay-subscription/internal/domain/ports/repository"
	"upi-autopay-subscription/internal/infra/logging"
	"upi-autopay-subscription/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// CheckoutVerification is a one-off checkout the client asks us to honour.
type CheckoutVerification struct {
	UserID    string
	OrderID   string
	PaymentID string
	Signature string
	Amount    int64 // minor units; zero means the configured price
}

type PaymentUseCase interface {
	// VerifyCheckout checks the checkout signature, records a manual_verification payment
	// and extends the user's entitlement by one period.
	VerifyCheckout(ctx context.Context, in CheckoutVerification) (*model.Payment, error)
	History(ctx context.Context, userID string, limit int) ([]*model.Payment, error)
}

type PaymentConfig struct {
	KeySecret string
	Amount    int64
	Currency  string
	LockTTL   time.Duration
	Now       func() time.Time
}

type paymentUC struct {
	stores   Stores
	provider adapter.Provider
	locker   adapter.Locker
	cfg      PaymentConfig
	log      *zerolog.Logger
	now      func() time.Time
}

func NewPaymentUseCase(stores Stores, provider adapter.Provider, locker adapter.Locker, cfg PaymentConfig, logger *zerolog.Logger) *paymentUC {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	l := logger.With().Str("component", "PaymentUC").Logger()
	return &paymentUC{stores: stores, provider: provider, locker: locker, cfg: cfg, log: &l, now: now}
}

func (u *paymentUC) VerifyCheckout(ctx context.Context, in CheckoutVerification) (*model.Payment, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.VerifyCheckout")()

	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" || in.OrderID == "" || in.PaymentID == "" || in.Signature == "" {
		return nil, fmt.Errorf("%w: userId, orderId, paymentId and signature are required", domain.ErrInvalidArgument)
	}
	if !u.provider.VerifyCheckoutSignature(in.OrderID, in.PaymentID, in.Signature, u.cfg.KeySecret) {
		metrics.IncCheckoutVerify("fail", "bad_signature")
		u.log.Warn().Str("user_id", in.UserID).Str("order_id", in.OrderID).Msg("checkout signature mismatch")
		return nil, domain.ErrBadSignature
	}
	amount := in.Amount
	if amount <= 0 {
		amount = u.cfg.Amount
	}

	var out *model.Payment
	err := withLock(ctx, u.locker, adapter.UserLockKey(in.UserID), u.cfg.LockTTL, func() error {
		existing, err := u.stores.Payments.FindByProviderPaymentID(ctx, repository.NoTX, in.PaymentID)
		switch {
		case err == nil:
			return &domain.ConflictError{Reason: domain.ErrDuplicatePayment, Existing: existing}
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		user, err := u.stores.Users.FindByID(ctx, repository.NoTX, in.UserID)
		if err != nil {
			return err
		}
		now := u.now()
		p, err := model.NewCompletedPayment(in.UserID, in.PaymentID, amount, u.cfg.Currency, model.PaymentMetadata{
			Kind:    model.PaymentKindManualVerification,
			OrderID: in.OrderID,
		}, now)
		if err != nil {
			return err
		}
		projected := ProjectEntitlement(user, nil, EntitlementDelta{Change: ChangeManualPayment, At: now})
		if err := u.stores.commit(ctx, []StoreOp{createPaymentOp{p}, saveUserOp{projected}}); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			metrics.IncCheckoutVerify("fail", "conflict")
		} else {
			metrics.IncCheckoutVerify("fail", "error")
		}
		return nil, err
	}

	metrics.IncCheckoutVerify("ok", "")
	metrics.IncPayment(string(out.Metadata.Kind), string(out.Status))
	metrics.AddPaymentRevenue(out.Currency, out.Amount)
	metrics.IncEntitlementChange(string(ChangeManualPayment))
	u.log.Info().Str("user_id", in.UserID).Str("transaction_id", out.TransactionID).Msg("checkout verified")
	return out, nil
}

func (u *paymentUC) History(ctx context.Context, userID string, limit int) ([]*model.Payment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return u.stores.Payments.ListByUser(ctx, repository.NoTX, userID, limit)
}
