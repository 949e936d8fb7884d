package model

import (
	"math"
	"strings"
	"time"

	"upi-autopay-subscription/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusBlocked   SubscriptionStatus = "blocked"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// User is the entitlement holder. Subscription fields are written only by the entitlement
// projector and admin actions.
type User struct {
	ID                 string
	SubscriptionStatus SubscriptionStatus
	SubscriptionExpiry *time.Time
	HasAutoRenewal     bool
	LastPaymentDate    *time.Time
	UPIMandateID       string
	TrialEndsAt        *time.Time
	SecurityRiskLevel  RiskLevel
	DeviceFingerprint  string
	BlockedReason      string
	BlockedAt          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewTrialUser registers a user at the start of the free trial.
func NewTrialUser(id, deviceFingerprint string, trialDays int, now time.Time) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" || trialDays < 0 {
		return nil, domain.ErrInvalidArgument
	}
	trialEnd := now.Add(time.Duration(trialDays) * Day)
	return &User{
		ID:                 id,
		SubscriptionStatus: SubscriptionStatusTrial,
		TrialEndsAt:        &trialEnd,
		SecurityRiskLevel:  RiskLevelLow,
		DeviceFingerprint:  deviceFingerprint,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

func (u *User) IsBlocked() bool { return u != nil && u.SubscriptionStatus == SubscriptionStatusBlocked }

// TrialDaysRemaining rounds up partial days; zero once the trial is over.
func (u *User) TrialDaysRemaining(now time.Time) int {
	if u == nil || u.TrialEndsAt == nil || !now.Before(*u.TrialEndsAt) {
		return 0
	}
	return int(math.Ceil(u.TrialEndsAt.Sub(now).Hours() / 24))
}

// HasAccess is the entitlement boolean exposed to the extension.
func (u *User) HasAccess(now time.Time) bool {
	if u == nil {
		return false
	}
	switch u.SubscriptionStatus {
	case SubscriptionStatusActive:
		return u.HasAutoRenewal || (u.SubscriptionExpiry != nil && !now.After(*u.SubscriptionExpiry))
	case SubscriptionStatusTrial:
		return u.TrialDaysRemaining(now) > 0
	default:
		return false
	}
}

func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.SubscriptionExpiry = cloneTime(u.SubscriptionExpiry)
	cp.LastPaymentDate = cloneTime(u.LastPaymentDate)
	cp.TrialEndsAt = cloneTime(u.TrialEndsAt)
	cp.BlockedAt = cloneTime(u.BlockedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
