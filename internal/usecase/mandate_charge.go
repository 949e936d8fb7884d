package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/model"
	"upi-autopay-subscription/internal/domain/ports/adapter"
	"upi-autopay-subscription/internal/infra/logging"
	"upi-autopay-subscription/internal/infra/metrics"
)

type ChargeOutcome string

const (
	ChargeSucceeded ChargeOutcome = "success"
	ChargeDeclined  ChargeOutcome = "failed"
	ChargePaused    ChargeOutcome = "paused"
	ChargeSkipped   ChargeOutcome = "skipped"
	ChargeErrored   ChargeOutcome = "error"
)

// ChargeResult is one line of a scheduler tick report.
type ChargeResult struct {
	MandateID string        `json:"mandateId"`
	UserID    string        `json:"userId,omitempty"`
	Outcome   ChargeOutcome `json:"outcome"`
	Reference string        `json:"reference,omitempty"`
	Error     string        `json:"error,omitempty"`
}

func (r ChargeResult) Success() bool { return r.Outcome == ChargeSucceeded }

// ChargeDue runs the scheduler transition for one mandate. A provider error or timeout
// records nothing and is returned so the mandate is retried on the next tick.
func (u *mandateUC) ChargeDue(ctx context.Context, mandateID string, tickStart time.Time) (ChargeResult, error) {
	defer logging.TraceDuration(u.log, "MandateUC.ChargeDue")()

	res := ChargeResult{MandateID: mandateID, Outcome: ChargeSkipped}
	err := withLock(ctx, u.locker, adapter.MandateLockKey(mandateID), u.cfg.LockTTL, func() error {
		m, err := u.stores.Mandates.FindByID(ctx, nil, mandateID)
		if err != nil {
			return err
		}
		res.UserID = m.UserID

		now := u.now()
		if !m.Due(now) {
			return nil
		}
		// A webhook charge landed between selection and processing.
		if m.LastChargedDate != nil && m.LastChargedDate.After(tickStart) {
			return nil
		}

		if u.charger == nil && m.ConsecutiveFailures() < u.cfg.MaxFailedAttempts {
			u.log.Debug().Str("mandate_id", m.ID).Msg("no charge path configured; waiting for provider webhook")
			return nil
		}
		return u.lockUser(ctx, m.UserID, func() error {
			return u.chargeLocked(ctx, m, now, &res)
		})
	})

	switch {
	case errors.Is(err, domain.ErrLockNotAcquired):
		// Someone else (webhook or a parallel tick) holds the mandate; next tick will see it.
		res.Outcome = ChargeSkipped
		res.Error = err.Error()
		metrics.IncChargeAttempt(string(res.Outcome))
		return res, nil
	case err != nil:
		res.Outcome = ChargeErrored
		res.Error = err.Error()
		metrics.IncChargeAttempt(string(res.Outcome))
		return res, err
	}
	metrics.IncChargeAttempt(string(res.Outcome))
	return res, nil
}

func (u *mandateUC) chargeLocked(ctx context.Context, m *model.Mandate, now time.Time, res *ChargeResult) error {
	user, err := u.stores.Users.FindByID(ctx, nil, m.UserID)
	if err != nil {
		return err
	}

	if m.ConsecutiveFailures() >= u.cfg.MaxFailedAttempts {
		return u.pauseAfterFailures(ctx, m, user, now, res)
	}

	reference := model.NewTransactionID(now)
	var out adapter.ChargeResult
	err = callProvider(ctx, u.provider.Name(), u.cfg.ProviderTimeout, "charge_mandate", func(ctx context.Context) error {
		var perr error
		out, perr = u.charger.ChargeMandate(ctx, adapter.ChargeRequest{
			MandateID:              m.ID,
			ProviderSubscriptionID: m.ProviderSubscriptionID,
			Amount:                 m.Amount,
			Currency:               m.Currency,
			Reference:              reference,
		})
		return perr
	})
	if err != nil {
		return err
	}
	res.Reference = reference

	if out.Success {
		return u.applyScheduledSuccess(ctx, m, user, reference, out, now, res)
	}
	return u.applyScheduledFailure(ctx, m, user, reference, out, now, res)
}

func (u *mandateUC) applyScheduledSuccess(ctx context.Context, m *model.Mandate, user *model.User, reference string, out adapter.ChargeResult, now time.Time, res *ChargeResult) error {
	p, err := model.NewCompletedPayment(m.UserID, out.ProviderPaymentID, m.Amount, m.Currency, model.PaymentMetadata{
		Kind:      model.PaymentKindRecurringCharge,
		MandateID: m.ID,
	}, now)
	if err != nil {
		return err
	}
	p.TransactionID = reference

	next := m.Clone()
	if err := next.RecordSuccessfulCharge(model.ChargeAttempt{
		Date:              now,
		Amount:            m.Amount,
		Reference:         reference,
		ProviderPaymentID: out.ProviderPaymentID,
	}, now); err != nil {
		return err
	}
	projected := ProjectEntitlement(user, next, EntitlementDelta{Change: ChangeRenewal, At: now})

	if err := u.stores.commit(ctx, []StoreOp{updateMandateOp{next}, createPaymentOp{p}, saveUserOp{projected}}); err != nil {
		return err
	}
	metrics.IncPayment(string(p.Metadata.Kind), string(p.Status))
	metrics.AddPaymentRevenue(p.Currency, p.Amount)
	metrics.IncEntitlementChange(string(ChangeRenewal))
	res.Outcome = ChargeSucceeded
	return nil
}

func (u *mandateUC) applyScheduledFailure(ctx context.Context, m *model.Mandate, user *model.User, reference string, out adapter.ChargeResult, now time.Time, res *ChargeResult) error {
	next := m.Clone()
	reason := out.FailureReason
	if reason == "" {
		reason = "declined"
	}
	if err := next.AppendAttempt(model.ChargeAttempt{
		Date:              now,
		Amount:            m.Amount,
		Status:            model.ChargeStatusFailed,
		Reference:         reference,
		ProviderPaymentID: out.ProviderPaymentID,
		FailureReason:     reason,
	}); err != nil {
		return err
	}
	next.UpdatedAt = now

	ops := []StoreOp{updateMandateOp{next}}
	res.Outcome = ChargeDeclined
	if next.ConsecutiveFailures() >= u.cfg.MaxFailedAttempts {
		if err := next.TransitionTo(model.MandateStatusPaused, now); err != nil {
			return err
		}
		ops = append(ops, saveUserOp{ProjectEntitlement(user, next, EntitlementDelta{Change: ChangeHalt, At: now})})
		res.Outcome = ChargePaused
	}
	if err := u.stores.commit(ctx, ops); err != nil {
		return err
	}
	if res.Outcome == ChargePaused {
		metrics.IncMandateTransition(string(m.Status), string(next.Status), "scheduler")
		metrics.IncEntitlementChange(string(ChangeHalt))
	}
	u.log.Warn().
		Str("mandate_id", m.ID).
		Str("reason", reason).
		Int("consecutive_failures", next.ConsecutiveFailures()).
		Msg("scheduled charge declined")
	return nil
}

func (u *mandateUC) pauseAfterFailures(ctx context.Context, m *model.Mandate, user *model.User, now time.Time, res *ChargeResult) error {
	next := m.Clone()
	if err := next.TransitionTo(model.MandateStatusPaused, now); err != nil {
		return err
	}
	projected := ProjectEntitlement(user, next, EntitlementDelta{Change: ChangeHalt, At: now})
	if err := u.stores.commit(ctx, []StoreOp{updateMandateOp{next}, saveUserOp{projected}}); err != nil {
		return err
	}
	metrics.IncMandateTransition(string(m.Status), string(next.Status), "scheduler")
	res.Outcome = ChargePaused
	return nil
}

// ExpireEnded moves mandates past their endDate to EXPIRED and returns how many moved.
func (u *mandateUC) ExpireEnded(ctx context.Context, limit int) (int, error) {
	defer logging.TraceDuration(u.log, "MandateUC.ExpireEnded")()

	if limit <= 0 {
		limit = 100
	}
	ended, err := u.stores.Mandates.ListEnded(ctx, nil, u.now(), limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, cand := range ended {
		err := withLock(ctx, u.locker, adapter.MandateLockKey(cand.ID), u.cfg.LockTTL, func() error {
			m, err := u.stores.Mandates.FindByID(ctx, nil, cand.ID)
			if err != nil {
				return err
			}
			now := u.now()
			if m.Status.IsTerminal() || m.EndDate.After(now) {
				return nil
			}
			return u.lockUser(ctx, m.UserID, func() error {
				user, err := u.stores.Users.FindByID(ctx, nil, m.UserID)
				if err != nil {
					return err
				}
				next := m.Clone()
				if err := next.TransitionTo(model.MandateStatusExpired, now); err != nil {
					return err
				}
				projected := ProjectEntitlement(user, next, EntitlementDelta{Change: ChangeMandateExpired, At: now})
				if err := u.stores.commit(ctx, []StoreOp{updateMandateOp{next}, saveUserOp{projected}}); err != nil {
					return err
				}
				metrics.IncMandateTransition(string(m.Status), string(next.Status), "expiry")
				expired++
				return nil
			})
		})
		if err != nil {
			if errors.Is(err, domain.ErrLockNotAcquired) {
				continue
			}
			return expired, fmt.Errorf("expire mandate %s: %w", cand.ID, err)
		}
	}
	if expired > 0 {
		metrics.IncMandatesExpired(expired)
	}
	return expired, nil
}
