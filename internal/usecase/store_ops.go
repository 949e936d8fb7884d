package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/model"
	"upi-autopay-subscription/internal/domain/ports/repository"
)

// Stores groups the repositories a transition writes to.
type Stores struct {
	Users           repository.UserRepository
	Mandates        repository.MandateRepository
	Payments        repository.PaymentRepository
	Events          repository.WebhookEventRepository
	Reconciliations repository.ReconciliationRepository
	TM              repository.TransactionManager
}

// StoreOp is a single planned write. Transitions are computed as a list of ops from a fresh
// snapshot and committed together, which keeps planning free of I/O.
type StoreOp interface {
	Apply(ctx context.Context, tx repository.Tx, s Stores) error
}

type createMandateOp struct{ m *model.Mandate }

func (o createMandateOp) Apply(ctx context.Context, tx repository.Tx, s Stores) error {
	return s.Mandates.Create(ctx, tx, o.m)
}

type updateMandateOp struct{ m *model.Mandate }

// Updates never change identity, so a unique violation means stored mandates already break
// an invariant (one open mandate per user or unique provider ids). It is fatal, not a conflict.
func (o updateMandateOp) Apply(ctx context.Context, tx repository.Tx, s Stores) error {
	err := s.Mandates.Update(ctx, tx, o.m)
	if errors.Is(err, domain.ErrAlreadyExists) {
		return &domain.FatalError{
			Invariant: "single_open_mandate",
			Detail:    fmt.Sprintf("update of %s (%s) for user %s hit a unique index", o.m.ID, o.m.Status, o.m.UserID),
		}
	}
	return err
}

type saveUserOp struct{ u *model.User }

func (o saveUserOp) Apply(ctx context.Context, tx repository.Tx, s Stores) error {
	return s.Users.Save(ctx, tx, o.u)
}

type createPaymentOp struct{ p *model.Payment }

func (o createPaymentOp) Apply(ctx context.Context, tx repository.Tx, s Stores) error {
	if err := s.Payments.Create(ctx, tx, o.p); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return &domain.ConflictError{Reason: domain.ErrDuplicatePayment, Existing: o.p.ProviderPaymentID}
		}
		return err
	}
	return nil
}

type markRefundedOp struct {
	transactionID string
	at            time.Time
}

func (o markRefundedOp) Apply(ctx context.Context, tx repository.Tx, s Stores) error {
	_, err := s.Payments.MarkRefunded(ctx, tx, o.transactionID, o.at)
	return err
}

type recordEventOp struct{ ev *model.WebhookEvent }

func (o recordEventOp) Apply(ctx context.Context, tx repository.Tx, s Stores) error {
	if err := s.Events.Record(ctx, tx, o.ev); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.ErrDuplicateEvent
		}
		return err
	}
	return nil
}

type createTaskOp struct{ t *model.ReconciliationTask }

func (o createTaskOp) Apply(ctx context.Context, tx repository.Tx, s Stores) error {
	return s.Reconciliations.Create(ctx, tx, o.t)
}

// commit applies ops atomically.
func (s Stores) commit(ctx context.Context, ops []StoreOp) error {
	if len(ops) == 0 {
		return nil
	}
	return s.TM.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		for _, op := range ops {
			if err := op.Apply(ctx, tx, s); err != nil {
				return err
			}
		}
		return nil
	})
}
