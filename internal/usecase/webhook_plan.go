package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"upi-autopay-subscription/internal/domain/model"
	"upi-autopay-subscription/internal/domain/ports/adapter"
)

// EventSnapshot is the state an event is planned against, read fresh under the mandate lock.
type EventSnapshot struct {
	Mandate *model.Mandate
	User    *model.User
	// Payment already stored under the event's provider payment id, if any.
	Payment *model.Payment
	// OtherOpen holds the owner's PENDING/ACTIVE mandates besides Mandate.
	OtherOpen []*model.Mandate
}

// EventPlan is the outcome of planning: the writes to commit plus what they mean.
type EventPlan struct {
	Ops    []StoreOp
	Note   string
	From   model.MandateStatus
	To     model.MandateStatus
	Change EntitlementChange
	// Audit is set when the event was deliberately not applied and needs a human look.
	Audit string
}

// Applied reports whether the plan changes anything besides the idempotency record.
func (p EventPlan) Applied() bool { return len(p.Ops) > 0 }

func ignore(note string) EventPlan { return EventPlan{Note: note} }

// IdempotencyKey is the provider event id, else a digest of event name, entity id and
// provider timestamp.
func IdempotencyKey(ev adapter.ProviderEvent) string {
	if ev.ID != "" {
		return ev.ID
	}
	sum := sha256.Sum256([]byte(ev.Type + "|" + ev.EntityID + "|" + strconv.FormatInt(ev.CreatedAt.Unix(), 10)))
	return "evt_" + hex.EncodeToString(sum[:])
}

// KnownEvent reports whether the reconciler maps the event to a transition.
func KnownEvent(t string) bool {
	switch t {
	case adapter.EventSubscriptionActivated,
		adapter.EventSubscriptionCharged,
		adapter.EventSubscriptionHalted,
		adapter.EventSubscriptionPaused,
		adapter.EventSubscriptionResumed,
		adapter.EventSubscriptionCancelled,
		adapter.EventSubscriptionCompleted,
		adapter.EventPaymentFailed,
		adapter.EventPaymentLinkPaid,
		adapter.EventRefundProcessed:
		return true
	}
	return false
}

// PlanEvent maps a webhook event onto store writes. It performs no I/O and never mutates the
// snapshot, so replaying it against the same snapshot yields the same plan.
func PlanEvent(ev adapter.ProviderEvent, snap EventSnapshot, now time.Time) (EventPlan, error) {
	if ev.Type == adapter.EventRefundProcessed {
		return planRefund(ev, snap, now), nil
	}

	m := snap.Mandate
	if m == nil {
		return ignore("no matching mandate"), nil
	}
	if snap.User == nil {
		return ignore("mandate owner not found"), nil
	}

	switch ev.Type {
	case adapter.EventSubscriptionCharged:
		return planCharged(ev, snap, now)
	case adapter.EventPaymentFailed:
		return planPaymentFailed(ev, m, now)
	}

	// Status events are ordered by provider time; an older one than the last applied is stale.
	if m.LastEventAt != nil && !ev.CreatedAt.IsZero() && ev.CreatedAt.Before(*m.LastEventAt) {
		return ignore("stale status event"), nil
	}

	switch ev.Type {
	case adapter.EventSubscriptionActivated:
		return planActivated(ev, snap, now)
	case adapter.EventSubscriptionHalted, adapter.EventSubscriptionPaused:
		if m.Status != model.MandateStatusActive {
			return ignore("mandate not ACTIVE"), nil
		}
		return planStatus(ev, snap, model.MandateStatusPaused, ChangeHalt, "", now)
	case adapter.EventSubscriptionResumed:
		if m.Status != model.MandateStatusPaused {
			return ignore("mandate not PAUSED"), nil
		}
		if other := firstOpen(snap.OtherOpen); other != nil {
			plan := ignore("superseded by " + other.ID)
			plan.Audit = "provider resumed a mandate the user already replaced"
			return plan, nil
		}
		return planStatus(ev, snap, model.MandateStatusActive, ChangeResume, "", now)
	case adapter.EventSubscriptionCancelled:
		if m.Status.IsTerminal() {
			return ignore("mandate already terminal"), nil
		}
		return planStatus(ev, snap, model.MandateStatusCancelled, ChangeCancel, "provider_cancelled", now)
	case adapter.EventSubscriptionCompleted:
		if m.Status.IsTerminal() {
			return ignore("mandate already terminal"), nil
		}
		return planStatus(ev, snap, model.MandateStatusExpired, ChangeMandateExpired, "", now)
	}
	return ignore("unhandled event"), nil
}

func planActivated(ev adapter.ProviderEvent, snap EventSnapshot, now time.Time) (EventPlan, error) {
	m := snap.Mandate
	switch m.Status {
	case model.MandateStatusActive:
		next := m.Clone()
		if next.ProviderSubscriptionID == "" {
			next.ProviderSubscriptionID = ev.SubscriptionID
		}
		touchEventTime(next, ev.CreatedAt)
		return EventPlan{Ops: []StoreOp{updateMandateOp{next}}, From: m.Status, To: next.Status, Note: "already ACTIVE"}, nil
	case model.MandateStatusPending:
		return planStatus(ev, snap, model.MandateStatusActive, ChangeResume, "", now)
	}
	return ignore("mandate not PENDING or ACTIVE"), nil
}

func planStatus(ev adapter.ProviderEvent, snap EventSnapshot, to model.MandateStatus, change EntitlementChange, reason string, now time.Time) (EventPlan, error) {
	m := snap.Mandate
	next := m.Clone()
	if next.ProviderSubscriptionID == "" && ev.SubscriptionID != "" {
		next.ProviderSubscriptionID = ev.SubscriptionID
	}
	if err := next.TransitionTo(to, now); err != nil {
		return EventPlan{}, err
	}
	if reason != "" {
		next.CancelReason = reason
	}
	touchEventTime(next, ev.CreatedAt)
	user := ProjectEntitlement(snap.User, next, EntitlementDelta{Change: change, At: now})
	return EventPlan{
		Ops:    []StoreOp{updateMandateOp{next}, saveUserOp{user}},
		From:   m.Status,
		To:     to,
		Change: change,
	}, nil
}

func planCharged(ev adapter.ProviderEvent, snap EventSnapshot, now time.Time) (EventPlan, error) {
	m := snap.Mandate
	if ev.PaymentID == "" {
		return ignore("charge without payment id"), nil
	}
	if snap.Payment != nil || m.HasAttemptForPayment(ev.PaymentID) {
		return ignore("payment already recorded"), nil
	}

	amount := ev.Amount
	if amount <= 0 {
		amount = m.Amount
	}
	p, err := model.NewCompletedPayment(m.UserID, ev.PaymentID, amount, ev.Currency, model.PaymentMetadata{
		Kind:            model.PaymentKindRecurringCharge,
		MandateID:       m.ID,
		ProviderEventID: ev.ID,
	}, now)
	if err != nil {
		return EventPlan{}, err
	}
	attempt := model.ChargeAttempt{
		Date:              now,
		Amount:            amount,
		Status:            model.ChargeStatusSuccess,
		Reference:         p.TransactionID,
		ProviderPaymentID: ev.PaymentID,
	}

	next := m.Clone()
	var change EntitlementChange
	other := firstOpen(snap.OtherOpen)
	switch {
	case m.Status == model.MandateStatusPaused && other != nil:
		// Reopening would leave the user with two open mandates; keep the money only.
		plan := planDetachedCharge(p, snap, now, map[string]string{
			"mandate_status": string(m.Status),
			"superseded_by":  other.ID,
		})
		plan.Audit = "charge on a mandate the user already replaced"
		return plan, nil
	case m.Status == model.MandateStatusActive:
		if err := next.RecordSuccessfulCharge(attempt, now); err != nil {
			return EventPlan{}, err
		}
		change = ChangeRenewal
	case m.Status == model.MandateStatusPaused:
		// Provider recovered the subscription; resume with a fresh period.
		if err := next.TransitionTo(model.MandateStatusActive, now); err != nil {
			return EventPlan{}, err
		}
		if err := next.AppendAttempt(attempt); err != nil {
			return EventPlan{}, err
		}
		charged := now
		next.LastChargedDate = &charged
		change = ChangeActivation
	default:
		// Local cancel/expiry wins; the captured money is still recorded and honoured.
		return planDetachedCharge(p, snap, now, map[string]string{"mandate_status": string(m.Status)}), nil
	}

	touchEventTime(next, ev.CreatedAt)
	user := ProjectEntitlement(snap.User, next, EntitlementDelta{Change: change, At: now})
	return EventPlan{
		Ops:    []StoreOp{updateMandateOp{next}, createPaymentOp{p}, saveUserOp{user}},
		From:   m.Status,
		To:     next.Status,
		Change: change,
	}, nil
}

// planDetachedCharge records a captured charge without touching the mandate it came from.
func planDetachedCharge(p *model.Payment, snap EventSnapshot, now time.Time, diag map[string]string) EventPlan {
	m := snap.Mandate
	p.Metadata.Diagnostics = diag
	user := ProjectEntitlement(snap.User, m, EntitlementDelta{Change: ChangeManualPayment, At: now})
	return EventPlan{
		Ops:    []StoreOp{createPaymentOp{p}, saveUserOp{user}},
		From:   m.Status,
		To:     m.Status,
		Change: ChangeManualPayment,
		Note:   "charge on " + string(m.Status) + " mandate",
	}
}

func firstOpen(ms []*model.Mandate) *model.Mandate {
	for _, m := range ms {
		if m != nil && m.Status.IsOpen() {
			return m
		}
	}
	return nil
}

func planPaymentFailed(ev adapter.ProviderEvent, m *model.Mandate, now time.Time) (EventPlan, error) {
	if m.Status != model.MandateStatusActive {
		return ignore("mandate not ACTIVE"), nil
	}
	if m.HasAttemptForPayment(ev.PaymentID) {
		return ignore("attempt already recorded"), nil
	}
	amount := ev.Amount
	if amount <= 0 {
		amount = m.Amount
	}
	reason := ev.FailureReason
	if reason == "" {
		reason = "payment failed"
	}
	ref := ev.PaymentID
	if ref == "" {
		ref = IdempotencyKey(ev)
	}
	next := m.Clone()
	if err := next.AppendAttempt(model.ChargeAttempt{
		Date:              now,
		Amount:            amount,
		Status:            model.ChargeStatusFailed,
		Reference:         ref,
		ProviderPaymentID: ev.PaymentID,
		FailureReason:     reason,
	}); err != nil {
		return EventPlan{}, err
	}
	next.UpdatedAt = now
	touchEventTime(next, ev.CreatedAt)
	return EventPlan{Ops: []StoreOp{updateMandateOp{next}}, From: m.Status, To: next.Status}, nil
}

func planRefund(ev adapter.ProviderEvent, snap EventSnapshot, now time.Time) EventPlan {
	p := snap.Payment
	if p == nil {
		return ignore("refund for unknown payment")
	}
	if p.Status != model.PaymentStatusCompleted {
		return ignore(fmt.Sprintf("payment is %s", p.Status))
	}
	return EventPlan{Ops: []StoreOp{markRefundedOp{transactionID: p.TransactionID, at: now}}}
}

func touchEventTime(m *model.Mandate, at time.Time) {
	if at.IsZero() {
		return
	}
	if m.LastEventAt == nil || at.After(*m.LastEventAt) {
		t := at
		m.LastEventAt = &t
	}
}
