package usecase

import (
	"time"

	"upi-autopay-subscription/internal/domain/model"
)

// EntitlementChange names the lifecycle delta being projected onto a user.
type EntitlementChange string

const (
	ChangeActivation     EntitlementChange = "activation"
	ChangeRenewal        EntitlementChange = "renewal"
	ChangeResume         EntitlementChange = "resume"
	ChangeManualPayment  EntitlementChange = "manual_payment"
	ChangeHalt           EntitlementChange = "halt"
	ChangeCancel         EntitlementChange = "cancel"
	ChangeMandateExpired EntitlementChange = "mandate_expired"
	ChangeExpiryCheck    EntitlementChange = "expiry_check"
	ChangeBlock          EntitlementChange = "block"
	ChangeUnblock        EntitlementChange = "unblock"
)

type EntitlementDelta struct {
	Change EntitlementChange
	At     time.Time
	Reason string
}

// ProjectEntitlement derives the user's entitlement fields from a mandate and a delta.
// It never mutates u; the returned copy is what gets persisted. m may be nil for deltas that
// are not tied to a mandate (manual payment, expiry check, block, unblock).
func ProjectEntitlement(u *model.User, m *model.Mandate, d EntitlementDelta) *model.User {
	out := u.Clone()
	now := d.At

	switch d.Change {
	case ChangeActivation:
		base := now
		if out.SubscriptionExpiry != nil && out.SubscriptionExpiry.After(base) {
			base = *out.SubscriptionExpiry
		}
		setExpiry(out, base.Add(model.BillingPeriod))
		out.HasAutoRenewal = true
		if m != nil {
			out.UPIMandateID = m.ID
		}
		setLastPayment(out, now)
		activate(out)

	case ChangeRenewal:
		// Extend from the current expiry so repeated renewals never drift toward now.
		base := now
		if out.SubscriptionExpiry != nil {
			base = *out.SubscriptionExpiry
		}
		setExpiry(out, base.Add(model.BillingPeriod))
		setLastPayment(out, now)
		activate(out)

	case ChangeResume:
		// Mandate became ACTIVE without a payment of its own; the existing runway is kept.
		out.HasAutoRenewal = true
		if m != nil {
			out.UPIMandateID = m.ID
		}
		activate(out)

	case ChangeManualPayment:
		base := now
		if out.SubscriptionExpiry != nil && out.SubscriptionExpiry.After(base) {
			base = *out.SubscriptionExpiry
		}
		setExpiry(out, base.Add(model.BillingPeriod))
		setLastPayment(out, now)
		activate(out)

	case ChangeHalt, ChangeCancel, ChangeMandateExpired:
		if m == nil || out.UPIMandateID == "" || out.UPIMandateID == m.ID {
			out.HasAutoRenewal = false
		}
		expireIfLapsed(out, now)

	case ChangeExpiryCheck:
		expireIfLapsed(out, now)

	case ChangeBlock:
		if !out.IsBlocked() {
			t := now
			out.BlockedAt = &t
		}
		out.SubscriptionStatus = model.SubscriptionStatusBlocked
		out.BlockedReason = d.Reason
		out.SecurityRiskLevel = model.RiskLevelHigh

	case ChangeUnblock:
		if !out.IsBlocked() {
			return out
		}
		out.BlockedAt = nil
		out.BlockedReason = ""
		out.SubscriptionStatus = restoredStatus(out, now)
	}

	out.UpdatedAt = now
	return out
}

func setExpiry(u *model.User, t time.Time) { u.SubscriptionExpiry = &t }

func setLastPayment(u *model.User, t time.Time) { u.LastPaymentDate = &t }

// activate never lifts a block.
func activate(u *model.User) {
	if u.IsBlocked() {
		return
	}
	u.SubscriptionStatus = model.SubscriptionStatusActive
}

func expireIfLapsed(u *model.User, now time.Time) {
	switch u.SubscriptionStatus {
	case model.SubscriptionStatusActive:
		if u.HasAutoRenewal {
			return
		}
		if u.SubscriptionExpiry == nil || now.After(*u.SubscriptionExpiry) || now.Equal(*u.SubscriptionExpiry) {
			u.SubscriptionStatus = model.SubscriptionStatusExpired
		}
	case model.SubscriptionStatusTrial:
		if u.TrialDaysRemaining(now) == 0 {
			u.SubscriptionStatus = model.SubscriptionStatusExpired
		}
	}
}

func restoredStatus(u *model.User, now time.Time) model.SubscriptionStatus {
	if u.HasAutoRenewal || (u.SubscriptionExpiry != nil && u.SubscriptionExpiry.After(now)) {
		return model.SubscriptionStatusActive
	}
	if u.TrialDaysRemaining(now) > 0 {
		return model.SubscriptionStatusTrial
	}
	return model.SubscriptionStatusExpired
}
