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
	"upi-autopay-subscription/internal/infra/logging"
	"upi-autopay-subscription/internal/infra/metrics"
)

// Compile-time check
var _ MandateUseCase = (*mandateUC)(nil)

// MandateUseCase is the mandate state machine. Every transition takes the per-mandate
// advisory lock, reads the mandate fresh and commits its writes in one transaction.
type MandateUseCase interface {
	Create(ctx context.Context, userID, upiID string, amount int64) (*model.Mandate, error)
	HandleCallback(ctx context.Context, cb CheckoutCallback) (*model.Mandate, error)
	// Activate moves a PENDING mandate to ACTIVE for a captured setup payment. extra ops are
	// committed in the same transaction whatever the outcome.
	Activate(ctx context.Context, mandateID, paymentID, trigger string, extra ...StoreOp) (ActivationResult, error)
	// Cancel returns the number of mandates moved to CANCELLED (0 when already terminal).
	Cancel(ctx context.Context, userID, mandateID, reason, trigger string) (int, error)
	// Current returns the open mandate, else the most recent one, else nil.
	Current(ctx context.Context, userID string) (*model.Mandate, error)
	History(ctx context.Context, userID string, limit int) ([]*model.Mandate, error)

	ChargeDue(ctx context.Context, mandateID string, tickStart time.Time) (ChargeResult, error)
	ExpireEnded(ctx context.Context, limit int) (int, error)
}

type MandateConfig struct {
	MerchantVPA  string
	MerchantName string
	MerchantCode string
	Amount       int64 // default mandate amount, minor units
	Currency     string
	PlanID       string
	TotalCount   int
	CallbackURL  string
	// KeySecret signs checkout and payment-link callbacks.
	KeySecret string

	ProviderTimeout   time.Duration
	LockTTL           time.Duration
	MaxFailedAttempts int
	Dev               bool
	Now               func() time.Time
}

// CheckoutCallback carries the query parameters of the provider redirect.
type CheckoutCallback struct {
	PaymentLinkID string
	ReferenceID   string
	Status        string
	PaymentID     string
	Signature     string
}

type ActivationOutcome string

const (
	ActivationApplied        ActivationOutcome = "activated"
	ActivationAlreadyApplied ActivationOutcome = "already_active"
	ActivationNotPending     ActivationOutcome = "not_pending"
)

type ActivationResult struct {
	Mandate *model.Mandate
	Outcome ActivationOutcome
}

type mandateUC struct {
	stores   Stores
	provider adapter.Provider
	charger  adapter.MandateCharger
	locker   adapter.Locker
	qr       adapter.QRGenerator
	cfg      MandateConfig
	log      *zerolog.Logger
	now      func() time.Time
}

// NewMandateUseCase wires the engine. charger may be nil when no charge path is available;
// the scheduler then leaves due mandates for provider-driven subscription.charged webhooks.
func NewMandateUseCase(
	stores Stores,
	provider adapter.Provider,
	charger adapter.MandateCharger,
	locker adapter.Locker,
	qr adapter.QRGenerator,
	cfg MandateConfig,
	logger *zerolog.Logger,
) *mandateUC {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = 3
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	l := logger.With().Str("component", "MandateUC").Logger()
	return &mandateUC{
		stores:   stores,
		provider: provider,
		charger:  charger,
		locker:   locker,
		qr:       qr,
		cfg:      cfg,
		log:      &l,
		now:      now,
	}
}

func (u *mandateUC) Create(ctx context.Context, userID, upiID string, amount int64) (*model.Mandate, error) {
	defer logging.TraceDuration(u.log, "MandateUC.Create")()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", domain.ErrInvalidArgument)
	}
	if err := model.ValidateUPIID(upiID); err != nil {
		return nil, err
	}
	if amount <= 0 {
		amount = u.cfg.Amount
	}

	var created *model.Mandate
	err := withLock(ctx, u.locker, adapter.UserLockKey(userID), u.cfg.LockTTL, func() error {
		user, err := u.stores.Users.FindByID(ctx, nil, userID)
		if err != nil {
			return err
		}
		if user.IsBlocked() {
			return domain.ErrUserBlocked
		}
		if err := u.ensureNoOpenMandate(ctx, userID); err != nil {
			return err
		}

		now := u.now()
		m, err := model.NewMandate(userID, upiID, u.cfg.MerchantVPA, amount, u.cfg.Currency, now)
		if err != nil {
			return err
		}

		var link adapter.PaymentLink
		err = callProvider(ctx, u.provider.Name(), u.cfg.ProviderTimeout, "create_payment_link", func(ctx context.Context) error {
			var perr error
			link, perr = u.provider.CreatePaymentLink(ctx, adapter.PaymentLinkRequest{
				Amount:      m.Amount,
				Currency:    m.Currency,
				Description: "UPI AutoPay setup for " + u.cfg.MerchantName,
				ReferenceID: m.ID,
				Notes: map[string]string{
					"mandate_id": m.ID,
					"user_id":    userID,
					"type":       string(model.PaymentKindMandateSetup),
				},
				CallbackURL: u.cfg.CallbackURL,
			})
			return perr
		})
		if err != nil {
			u.log.Error().Err(err).Str("mandate_id", m.ID).Msg("payment link creation failed")
			return err
		}
		m.ProviderPaymentLinkID = link.LinkID
		m.ShortURL = link.ShortURL
		u.attachQR(m)

		if err := u.stores.commit(ctx, []StoreOp{createMandateOp{m}}); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				// Lost a race the lock did not cover; report the winner.
				if cerr := u.ensureNoOpenMandate(ctx, userID); cerr != nil {
					return cerr
				}
			}
			return err
		}
		created = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncMandateCreated()
	metrics.IncMandateTransition("", string(model.MandateStatusPending), "user")
	u.log.Info().
		Str("mandate_id", created.ID).
		Str("user_id", userID).
		Str("upi_id", logging.Redact(upiID, u.cfg.Dev)).
		Int64("amount", created.Amount).
		Msg("mandate created")
	return created, nil
}

// ensureNoOpenMandate returns a *domain.ConflictError carrying the open mandate, or a
// *domain.FatalError if the store already holds more than one.
func (u *mandateUC) ensureNoOpenMandate(ctx context.Context, userID string) error {
	open, err := u.stores.Mandates.ListOpenByUser(ctx, nil, userID)
	if err != nil {
		return err
	}
	switch len(open) {
	case 0:
		return nil
	case 1:
		existing := open[0].Clone()
		existing.QRPayload = ""
		return &domain.ConflictError{Reason: domain.ErrMandateExists, Existing: existing}
	default:
		fe := &domain.FatalError{
			Invariant: "single_open_mandate",
			Detail:    fmt.Sprintf("user %s has %d open mandates", userID, len(open)),
		}
		logging.Alert(u.log).Err(fe).Str("user_id", userID).Msg("invariant violation")
		return fe
	}
}

func (u *mandateUC) attachQR(m *model.Mandate) {
	if u.qr == nil {
		return
	}
	m.UPIURL = u.qr.MandateURI(adapter.MandateURI{
		PayeeVPA:      u.cfg.MerchantVPA,
		PayeeName:     u.cfg.MerchantName,
		Amount:        m.Amount,
		OrgID:         u.cfg.MerchantCode,
		MandateID:     m.ID,
		ValidityStart: m.StartDate,
		ValidityEnd:   m.EndDate,
	})
	content := m.ShortURL
	if content == "" {
		content = m.UPIURL
	}
	png, err := u.qr.PNGDataURL(content)
	if err != nil {
		u.log.Warn().Err(err).Str("mandate_id", m.ID).Msg("qr encoding failed")
		return
	}
	m.QRPayload = png
}

func (u *mandateUC) HandleCallback(ctx context.Context, cb CheckoutCallback) (*model.Mandate, error) {
	defer logging.TraceDuration(u.log, "MandateUC.HandleCallback")()

	if cb.PaymentLinkID == "" {
		return nil, fmt.Errorf("%w: payment link id is required", domain.ErrInvalidArgument)
	}
	m, err := u.stores.Mandates.FindByPaymentLinkID(ctx, nil, cb.PaymentLinkID)
	if err != nil {
		return nil, err
	}

	if cb.Signature != "" && u.cfg.KeySecret != "" {
		// Payment link redirects sign link_id|reference_id|status|payment_id.
		signed := cb.PaymentLinkID + "|" + cb.ReferenceID + "|" + cb.Status
		if !u.provider.VerifyCheckoutSignature(signed, cb.PaymentID, cb.Signature, u.cfg.KeySecret) {
			u.log.Warn().Str("mandate_id", m.ID).Msg("callback signature mismatch")
			return nil, domain.ErrBadSignature
		}
	}

	if !strings.EqualFold(cb.Status, "paid") {
		u.log.Info().Str("mandate_id", m.ID).Str("status", cb.Status).Msg("checkout not paid")
		return m, domain.ErrCheckoutNotPaid
	}
	if cb.PaymentID == "" {
		return nil, fmt.Errorf("%w: payment id is required", domain.ErrInvalidArgument)
	}

	res, err := u.Activate(ctx, m.ID, cb.PaymentID, "callback")
	if err != nil {
		return nil, err
	}
	if res.Outcome == ActivationNotPending {
		return res.Mandate, fmt.Errorf("%w: mandate is %s", domain.ErrInvalidTransition, res.Mandate.Status)
	}
	return res.Mandate, nil
}

func (u *mandateUC) Activate(ctx context.Context, mandateID, paymentID, trigger string, extra ...StoreOp) (ActivationResult, error) {
	defer logging.TraceDuration(u.log, "MandateUC.Activate")()

	var res ActivationResult
	err := withLock(ctx, u.locker, adapter.MandateLockKey(mandateID), u.cfg.LockTTL, func() error {
		m, err := u.stores.Mandates.FindByID(ctx, nil, mandateID)
		if err != nil {
			return err
		}

		if m.Status == model.MandateStatusActive && m.ApprovalReference == paymentID {
			res = ActivationResult{Mandate: m, Outcome: ActivationAlreadyApplied}
			return u.stores.commit(ctx, extra)
		}
		if m.Status != model.MandateStatusPending {
			res = ActivationResult{Mandate: m, Outcome: ActivationNotPending}
			return u.recordOrphanSetupPayment(ctx, m, paymentID, extra)
		}

		return u.lockUser(ctx, m.UserID, func() error {
			next, err := u.activatePending(ctx, m, paymentID, trigger, extra)
			if err != nil {
				return err
			}
			res = ActivationResult{Mandate: next, Outcome: ActivationApplied}
			return nil
		})
	})
	if err != nil {
		return ActivationResult{}, err
	}

	if res.Outcome == ActivationApplied {
		u.log.Info().
			Str("mandate_id", mandateID).
			Str("user_id", res.Mandate.UserID).
			Str("trigger", trigger).
			Msg("mandate activated")
	}
	return res, nil
}

// lockUser serialises writes to one user's entitlement. It is always taken after the
// mandate lock, never before.
func (u *mandateUC) lockUser(ctx context.Context, userID string, fn func() error) error {
	return withLock(ctx, u.locker, adapter.UserLockKey(userID), u.cfg.LockTTL, fn)
}

func (u *mandateUC) activatePending(ctx context.Context, m *model.Mandate, paymentID, trigger string, extra []StoreOp) (*model.Mandate, error) {
	open, err := u.stores.Mandates.ListOpenByUser(ctx, nil, m.UserID)
	if err != nil {
		return nil, err
	}
	for _, o := range open {
		if o.ID != m.ID && o.Status == model.MandateStatusActive {
			fe := &domain.FatalError{
				Invariant: "single_open_mandate",
				Detail:    fmt.Sprintf("activating %s while %s is ACTIVE", m.ID, o.ID),
			}
			logging.Alert(u.log).Err(fe).Str("user_id", m.UserID).Msg("invariant violation")
			return nil, fe
		}
	}

	user, err := u.stores.Users.FindByID(ctx, nil, m.UserID)
	if err != nil {
		return nil, err
	}

	now := u.now()
	var sub adapter.Subscription
	err = callProvider(ctx, u.provider.Name(), u.cfg.ProviderTimeout, "create_subscription", func(ctx context.Context) error {
		var perr error
		sub, perr = u.provider.CreateSubscription(ctx, adapter.SubscriptionRequest{
			PlanID:     u.cfg.PlanID,
			TotalCount: u.cfg.TotalCount,
			StartAt:    now.Add(model.BillingPeriod),
			Notes: map[string]string{
				"mandate_id": m.ID,
				"user_id":    m.UserID,
			},
		})
		return perr
	})
	if err != nil {
		logging.Audit(u.log).Err(err).
			Str("mandate_id", m.ID).
			Str("payment_id", paymentID).
			Msg("subscription creation failed after setup payment; mandate left PENDING")
		return nil, err
	}

	next := m.Clone()
	if next.ProviderSubscriptionID == "" {
		next.ProviderSubscriptionID = sub.SubscriptionID
	}
	next.ApprovalReference = paymentID
	if err := next.TransitionTo(model.MandateStatusActive, now); err != nil {
		return nil, err
	}

	p, err := model.NewCompletedPayment(m.UserID, paymentID, m.Amount, m.Currency, model.PaymentMetadata{
		Kind:      model.PaymentKindMandateSetup,
		MandateID: m.ID,
	}, now)
	if err != nil {
		return nil, err
	}
	if err := next.AppendAttempt(model.ChargeAttempt{
		Date:              now,
		Amount:            m.Amount,
		Status:            model.ChargeStatusSuccess,
		Reference:         p.TransactionID,
		ProviderPaymentID: paymentID,
	}); err != nil {
		return nil, err
	}
	charged := now
	next.LastChargedDate = &charged

	projected := ProjectEntitlement(user, next, EntitlementDelta{Change: ChangeActivation, At: now})

	ops := []StoreOp{updateMandateOp{next}, createPaymentOp{p}, saveUserOp{projected}}
	if err := u.stores.commit(ctx, append(ops, extra...)); err != nil {
		return nil, err
	}

	metrics.IncMandateTransition(string(m.Status), string(next.Status), trigger)
	metrics.IncPayment(string(p.Metadata.Kind), string(p.Status))
	metrics.AddPaymentRevenue(p.Currency, p.Amount)
	metrics.IncEntitlementChange(string(ChangeActivation))
	return next, nil
}

// recordOrphanSetupPayment keeps the money trail for a setup payment that arrived after the
// mandate left PENDING. Entitlement is not touched; the audit entry is the follow-up.
func (u *mandateUC) recordOrphanSetupPayment(ctx context.Context, m *model.Mandate, paymentID string, extra []StoreOp) error {
	ops := append([]StoreOp(nil), extra...)
	if paymentID != "" {
		_, err := u.stores.Payments.FindByProviderPaymentID(ctx, nil, paymentID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			p, perr := model.NewCompletedPayment(m.UserID, paymentID, m.Amount, m.Currency, model.PaymentMetadata{
				Kind:        model.PaymentKindMandateSetup,
				MandateID:   m.ID,
				Diagnostics: map[string]string{"mandate_status": string(m.Status)},
			}, u.now())
			if perr != nil {
				return perr
			}
			ops = append([]StoreOp{createPaymentOp{p}}, ops...)
			logging.Audit(u.log).
				Str("mandate_id", m.ID).
				Str("payment_id", paymentID).
				Str("status", string(m.Status)).
				Msg("setup payment captured for a mandate that is no longer PENDING")
		case err != nil:
			return err
		}
	}
	return u.stores.commit(ctx, ops)
}

func (u *mandateUC) Cancel(ctx context.Context, userID, mandateID, reason, trigger string) (int, error) {
	defer logging.TraceDuration(u.log, "MandateUC.Cancel")()

	if strings.TrimSpace(mandateID) == "" {
		return 0, fmt.Errorf("%w: mandateId is required", domain.ErrInvalidArgument)
	}

	affected := 0
	err := withLock(ctx, u.locker, adapter.MandateLockKey(mandateID), u.cfg.LockTTL, func() error {
		m, err := u.stores.Mandates.FindByID(ctx, nil, mandateID)
		if err != nil {
			return err
		}
		if userID != "" && m.UserID != userID {
			return domain.ErrNotFound
		}
		if m.Status.IsTerminal() {
			return nil
		}

		now := u.now()
		var tail []StoreOp
		if m.ProviderSubscriptionID != "" {
			err := callProvider(ctx, u.provider.Name(), u.cfg.ProviderTimeout, "cancel_subscription", func(ctx context.Context) error {
				return u.provider.CancelSubscription(ctx, m.ProviderSubscriptionID, true)
			})
			if err != nil {
				logging.Audit(u.log).Err(err).
					Str("mandate_id", m.ID).
					Str("subscription_id", m.ProviderSubscriptionID).
					Msg("provider cancel failed; cancelling locally and queueing reconciliation")
				tail = append(tail, createTaskOp{newProviderCancelTask(m, err, now)})
				metrics.IncReconciliationTask(string(model.ReconciliationProviderCancel), "created")
			}
		}

		return u.lockUser(ctx, m.UserID, func() error {
			user, err := u.stores.Users.FindByID(ctx, nil, m.UserID)
			if err != nil {
				return err
			}
			next := m.Clone()
			if err := next.TransitionTo(model.MandateStatusCancelled, now); err != nil {
				return err
			}
			next.CancelReason = reason
			projected := ProjectEntitlement(user, next, EntitlementDelta{Change: ChangeCancel, At: now})

			ops := append([]StoreOp{updateMandateOp{next}, saveUserOp{projected}}, tail...)
			if err := u.stores.commit(ctx, ops); err != nil {
				return err
			}
			metrics.IncMandateTransition(string(m.Status), string(next.Status), trigger)
			metrics.IncEntitlementChange(string(ChangeCancel))
			affected = 1
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		u.log.Info().Str("mandate_id", mandateID).Str("trigger", trigger).Str("reason", reason).Msg("mandate cancelled")
	}
	return affected, nil
}

func (u *mandateUC) Current(ctx context.Context, userID string) (*model.Mandate, error) {
	open, err := u.stores.Mandates.ListOpenByUser(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		return open[0], nil
	}
	recent, err := u.stores.Mandates.ListByUser(ctx, nil, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, nil
	}
	return recent[0], nil
}

func (u *mandateUC) History(ctx context.Context, userID string, limit int) ([]*model.Mandate, error) {
	if limit <= 0 || limit > 10 {
		limit = 10
	}
	ms, err := u.stores.Mandates.ListByUser(ctx, nil, userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Mandate, 0, len(ms))
	for _, m := range ms {
		cp := m.Clone()
		cp.QRPayload = ""
		out = append(out, cp)
	}
	return out, nil
}
