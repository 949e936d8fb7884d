package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/model"
	"upi-autopay-subscription/internal/domain/ports/adapter"
	"upi-autopay-subscription/internal/infra/logging"
	"upi-autopay-subscription/internal/infra/metrics"
)

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

type WebhookOutcome string

const (
	WebhookApplied   WebhookOutcome = "applied"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
)

type WebhookResult struct {
	Key       string
	Event     string
	MandateID string
	Outcome   WebhookOutcome
	Note      string
}

// WebhookUseCase authenticates, deduplicates and applies provider webhooks. Any nil error
// means the delivery can be acked; errors matching domain.ErrTransient ask for redelivery.
type WebhookUseCase interface {
	Handle(ctx context.Context, rawBody []byte, signature, eventID string) (WebhookResult, error)
}

type webhookUC struct {
	stores   Stores
	mandates MandateUseCase
	provider adapter.Provider
	locker   adapter.Locker
	secret   string
	lockTTL  time.Duration
	log      *zerolog.Logger
	now      func() time.Time
}

func NewWebhookUseCase(
	stores Stores,
	mandates MandateUseCase,
	provider adapter.Provider,
	locker adapter.Locker,
	secret string,
	lockTTL time.Duration,
	now func() time.Time,
	logger *zerolog.Logger,
) *webhookUC {
	if now == nil {
		now = time.Now
	}
	l := logger.With().Str("component", "WebhookUC").Logger()
	return &webhookUC{
		stores:   stores,
		mandates: mandates,
		provider: provider,
		locker:   locker,
		secret:   secret,
		lockTTL:  lockTTL,
		log:      &l,
		now:      now,
	}
}

func (u *webhookUC) Handle(ctx context.Context, rawBody []byte, signature, eventID string) (res WebhookResult, err error) {
	defer logging.TraceDuration(u.log, "WebhookUC.Handle")()
	start := time.Now()
	defer func() {
		result := string(res.Outcome)
		switch {
		case errors.Is(err, domain.ErrAuthFailure):
			result = "bad_signature"
		case errors.Is(err, domain.ErrInvalidArgument):
			result = "bad_payload"
		case err != nil:
			result = "error"
		}
		metrics.ObserveWebhook(res.Event, result, time.Since(start).Seconds())
	}()

	if u.secret == "" || signature == "" || !u.provider.VerifyWebhookSignature(rawBody, signature, u.secret) {
		u.log.Warn().Msg("webhook signature rejected")
		return res, domain.ErrBadSignature
	}

	ev, err := u.provider.ParseWebhookEvent(rawBody)
	if err != nil {
		return res, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if eventID != "" {
		ev.ID = eventID
	}
	res.Event = ev.Type
	res.Key = IdempotencyKey(ev)

	seen, err := u.stores.Events.Exists(ctx, nil, res.Key)
	if err != nil {
		return res, err
	}
	if seen {
		res.Outcome = WebhookDuplicate
		return res, nil
	}

	record := recordEventOp{&model.WebhookEvent{
		Key:        res.Key,
		Event:      ev.Type,
		EntityID:   ev.EntityID,
		EventAt:    ev.CreatedAt,
		ReceivedAt: u.now(),
	}}

	switch {
	case !KnownEvent(ev.Type):
		u.log.Info().Str("event", ev.Type).Msg("unhandled webhook event acknowledged")
		res.Outcome, res.Note = WebhookIgnored, "unknown event"
		err = u.stores.commit(ctx, []StoreOp{record})
	case ev.Type == adapter.EventPaymentLinkPaid:
		err = u.applyLinkPaid(ctx, ev, record, &res)
	default:
		err = u.applyPlanned(ctx, ev, record, &res)
	}

	if errors.Is(err, domain.ErrDuplicateEvent) {
		// A concurrent delivery of the same event committed first.
		res.Outcome, res.Note = WebhookDuplicate, ""
		return res, nil
	}
	if errors.Is(err, domain.ErrFatal) {
		logging.Alert(u.log).Err(err).Str("event", ev.Type).Str("key", res.Key).Str("mandate_id", res.MandateID).Msg("invariant violation")
		return res, err
	}
	if err != nil {
		u.log.Error().Err(err).Str("event", ev.Type).Str("key", res.Key).Msg("webhook application failed")
		return res, err
	}

	u.log.Info().
		Str("event", ev.Type).
		Str("key", res.Key).
		Str("mandate_id", res.MandateID).
		Str("outcome", string(res.Outcome)).
		Str("note", res.Note).
		Msg("webhook processed")
	return res, nil
}

func (u *webhookUC) applyLinkPaid(ctx context.Context, ev adapter.ProviderEvent, record StoreOp, res *WebhookResult) error {
	m, err := u.findMandate(ctx, ev)
	if err != nil {
		return err
	}
	if m == nil || ev.PaymentID == "" {
		res.Outcome, res.Note = WebhookIgnored, "no matching mandate"
		return u.stores.commit(ctx, []StoreOp{record})
	}
	res.MandateID = m.ID

	act, err := u.mandates.Activate(ctx, m.ID, ev.PaymentID, "webhook", record)
	if err != nil {
		return err
	}
	if act.Outcome == ActivationApplied {
		res.Outcome = WebhookApplied
	} else {
		res.Outcome, res.Note = WebhookIgnored, string(act.Outcome)
	}
	return nil
}

func (u *webhookUC) applyPlanned(ctx context.Context, ev adapter.ProviderEvent, record StoreOp, res *WebhookResult) error {
	cand, err := u.findMandate(ctx, ev)
	if err != nil {
		return err
	}
	if cand == nil {
		if ev.Type != adapter.EventRefundProcessed {
			res.Outcome, res.Note = WebhookIgnored, "no matching mandate"
			return u.stores.commit(ctx, []StoreOp{record})
		}
		return u.planAndCommit(ctx, ev, EventSnapshot{}, record, res)
	}

	res.MandateID = cand.ID
	return withLock(ctx, u.locker, adapter.MandateLockKey(cand.ID), u.lockTTL, func() error {
		m, err := u.stores.Mandates.FindByID(ctx, nil, cand.ID)
		if err != nil {
			return err
		}
		// Mandate first, then user; the same order the engine uses.
		return withLock(ctx, u.locker, adapter.UserLockKey(m.UserID), u.lockTTL, func() error {
			user, err := u.stores.Users.FindByID(ctx, nil, m.UserID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			open, err := u.stores.Mandates.ListOpenByUser(ctx, nil, m.UserID)
			if err != nil {
				return err
			}
			snap := EventSnapshot{Mandate: m, User: user}
			for _, o := range open {
				if o.ID != m.ID {
					snap.OtherOpen = append(snap.OtherOpen, o)
				}
			}
			return u.planAndCommit(ctx, ev, snap, record, res)
		})
	})
}

func (u *webhookUC) planAndCommit(ctx context.Context, ev adapter.ProviderEvent, snap EventSnapshot, record StoreOp, res *WebhookResult) error {
	if ev.PaymentID != "" {
		p, err := u.stores.Payments.FindByProviderPaymentID(ctx, nil, ev.PaymentID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		snap.Payment = p
	}

	plan, err := PlanEvent(ev, snap, u.now())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			// Not applicable to the current state; ack so the provider stops retrying.
			res.Outcome, res.Note = WebhookIgnored, err.Error()
			return u.stores.commit(ctx, []StoreOp{record})
		}
		return err
	}

	err = u.stores.commit(ctx, append(plan.Ops, record))
	if errors.Is(err, domain.ErrDuplicatePayment) {
		res.Outcome, res.Note = WebhookIgnored, "payment already recorded"
		return u.stores.commit(ctx, []StoreOp{record})
	}
	if err != nil {
		return err
	}

	res.Note = plan.Note
	if plan.Audit != "" {
		logging.Audit(u.log).
			Str("event", ev.Type).
			Str("mandate_id", res.MandateID).
			Str("payment_id", ev.PaymentID).
			Str("note", plan.Note).
			Msg(plan.Audit)
	}
	if !plan.Applied() {
		res.Outcome = WebhookIgnored
		return nil
	}
	res.Outcome = WebhookApplied
	if plan.From != plan.To {
		metrics.IncMandateTransition(string(plan.From), string(plan.To), "webhook")
	}
	if plan.Change != "" {
		metrics.IncEntitlementChange(string(plan.Change))
	}
	if ev.Type == adapter.EventSubscriptionCharged {
		metrics.IncPayment(string(model.PaymentKindRecurringCharge), string(model.PaymentStatusCompleted))
	}
	return nil
}

// findMandate resolves the mandate an event refers to, or nil when none matches.
func (u *webhookUC) findMandate(ctx context.Context, ev adapter.ProviderEvent) (*model.Mandate, error) {
	lookups := []func() (*model.Mandate, error){}
	if ev.SubscriptionID != "" {
		lookups = append(lookups, func() (*model.Mandate, error) {
			return u.stores.Mandates.FindBySubscriptionID(ctx, nil, ev.SubscriptionID)
		})
	}
	if ev.PaymentLinkID != "" {
		lookups = append(lookups, func() (*model.Mandate, error) {
			return u.stores.Mandates.FindByPaymentLinkID(ctx, nil, ev.PaymentLinkID)
		})
	}
	if id := ev.Notes["mandate_id"]; id != "" {
		lookups = append(lookups, func() (*model.Mandate, error) {
			return u.stores.Mandates.FindByID(ctx, nil, id)
		})
	}
	for _, find := range lookups {
		m, err := find()
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}
