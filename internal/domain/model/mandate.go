package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"upi-autopay-subscription/internal/domain"
)

const (
	Day = 24 * time.Hour
	// BillingPeriod is fixed at 30 days regardless of calendar month length.
	BillingPeriod = 30 * Day

	MinMandateValidity = 30 * Day
	MaxMandateYears    = 5
)

var upiIDPattern = regexp.MustCompile(`^[a-zA-Z0-9.\-_]{2,256}@[a-zA-Z]{2,64}$`)

// ValidateUPIID checks a payer VPA such as alice@okhdfc.
func ValidateUPIID(v string) error {
	if !upiIDPattern.MatchString(v) {
		return domain.ErrInvalidUPIID
	}
	return nil
}

type MandateStatus string

const (
	MandateStatusPending   MandateStatus = "PENDING"
	MandateStatusActive    MandateStatus = "ACTIVE"
	MandateStatusPaused    MandateStatus = "PAUSED"
	MandateStatusCancelled MandateStatus = "CANCELLED"
	MandateStatusExpired   MandateStatus = "EXPIRED"
)

var mandateTransitions = map[MandateStatus][]MandateStatus{
	MandateStatusPending: {MandateStatusActive, MandateStatusCancelled, MandateStatusExpired},
	MandateStatusActive:  {MandateStatusPaused, MandateStatusCancelled, MandateStatusExpired},
	MandateStatusPaused:  {MandateStatusActive, MandateStatusCancelled, MandateStatusExpired},
}

func (s MandateStatus) IsTerminal() bool {
	return s == MandateStatusCancelled || s == MandateStatusExpired
}

// IsOpen reports the statuses limited to one per user.
func (s MandateStatus) IsOpen() bool {
	return s == MandateStatusPending || s == MandateStatusActive
}

func (s MandateStatus) CanTransitionTo(next MandateStatus) bool {
	for _, allowed := range mandateTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Frequency string

const (
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
	FrequencyYearly    Frequency = "YEARLY"
)

type ChargeStatus string

const (
	ChargeStatusSuccess ChargeStatus = "SUCCESS"
	ChargeStatusFailed  ChargeStatus = "FAILED"
)

type ChargeAttempt struct {
	Date              time.Time    `json:"date" bson:"date"`
	Amount            int64        `json:"amount" bson:"amount"`
	Status            ChargeStatus `json:"status" bson:"status"`
	Reference         string       `json:"reference" bson:"reference"`
	ProviderPaymentID string       `json:"providerPaymentId,omitempty" bson:"provider_payment_id,omitempty"`
	FailureReason     string       `json:"failureReason,omitempty" bson:"failure_reason,omitempty"`
}

// Mandate is a standing UPI autopay authorization. Version is bumped on every persisted change
// and used for compare-and-swap updates.
type Mandate struct {
	ID                     string
	UserID                 string
	UPIID                  string
	MerchantVPA            string
	Amount                 int64 // minor units (paise)
	Currency               string
	Frequency              Frequency
	StartDate              time.Time
	EndDate                time.Time
	Status                 MandateStatus
	ProviderPaymentLinkID  string
	ProviderSubscriptionID string
	ApprovalReference      string
	ShortURL               string
	UPIURL                 string
	QRPayload              string
	LastChargedDate        *time.Time
	NextChargeDate         *time.Time
	ChargeAttempts         []ChargeAttempt
	LastEventAt            *time.Time
	CancelledAt            *time.Time
	CancelReason           string
	CreatedAt              time.Time
	UpdatedAt              time.Time
	Version                int64
}

// MandateID follows MANDATE_{userId}_{epochMs}.
func MandateID(userID string, now time.Time) string {
	return fmt.Sprintf("MANDATE_%s_%d", userID, now.UnixMilli())
}

// NewMandate creates a PENDING mandate valid for five years from now.
func NewMandate(userID, upiID, merchantVPA string, amount int64, currency string, now time.Time) (*Mandate, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || amount <= 0 || merchantVPA == "" {
		return nil, domain.ErrInvalidArgument
	}
	if err := ValidateUPIID(upiID); err != nil {
		return nil, err
	}
	if currency == "" {
		currency = "INR"
	}
	m := &Mandate{
		ID:          MandateID(userID, now),
		UserID:      userID,
		UPIID:       upiID,
		MerchantVPA: merchantVPA,
		Amount:      amount,
		Currency:    currency,
		Frequency:   FrequencyMonthly,
		StartDate:   now,
		EndDate:     now.AddDate(MaxMandateYears, 0, 0),
		Status:      MandateStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.ValidateValidity(); err != nil {
		return nil, err
	}
	return m, nil
}

// ValidateValidity enforces endDate > startDate with a window between one month and five years.
func (m *Mandate) ValidateValidity() error {
	if !m.EndDate.After(m.StartDate) {
		return fmt.Errorf("%w: end date must be after start date", domain.ErrInvalidArgument)
	}
	if m.EndDate.Sub(m.StartDate) < MinMandateValidity {
		return fmt.Errorf("%w: mandate validity shorter than one month", domain.ErrInvalidArgument)
	}
	if m.EndDate.After(m.StartDate.AddDate(MaxMandateYears, 0, 0)) {
		return fmt.Errorf("%w: mandate validity longer than five years", domain.ErrInvalidArgument)
	}
	return nil
}

// TransitionTo moves the mandate to next and keeps nextChargeDate set only while ACTIVE.
func (m *Mandate) TransitionTo(next MandateStatus, now time.Time) error {
	if m.Status == next {
		return nil
	}
	if !m.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, m.Status, next)
	}
	m.Status = next
	m.UpdatedAt = now
	switch next {
	case MandateStatusActive:
		if m.NextChargeDate == nil {
			n := now.Add(BillingPeriod)
			m.NextChargeDate = &n
		}
	default:
		m.NextChargeDate = nil
	}
	if next == MandateStatusCancelled {
		t := now
		m.CancelledAt = &t
	}
	return nil
}

// AppendAttempt keeps chargeAttempts append-only and ordered by date.
func (m *Mandate) AppendAttempt(a ChargeAttempt) error {
	if n := len(m.ChargeAttempts); n > 0 && a.Date.Before(m.ChargeAttempts[n-1].Date) {
		return fmt.Errorf("%w: charge attempt older than the last recorded attempt", domain.ErrInvalidArgument)
	}
	m.ChargeAttempts = append(m.ChargeAttempts, a)
	return nil
}

// RecordSuccessfulCharge applies a renewal: SUCCESS attempt, lastChargedDate and a 30 day
// advance of nextChargeDate from its current value.
func (m *Mandate) RecordSuccessfulCharge(a ChargeAttempt, now time.Time) error {
	a.Status = ChargeStatusSuccess
	if err := m.AppendAttempt(a); err != nil {
		return err
	}
	t := now
	m.LastChargedDate = &t
	base := now
	if m.NextChargeDate != nil {
		base = *m.NextChargeDate
	}
	next := base.Add(BillingPeriod)
	m.NextChargeDate = &next
	m.UpdatedAt = now
	return nil
}

// ConsecutiveFailures counts FAILED attempts since the last SUCCESS.
func (m *Mandate) ConsecutiveFailures() int {
	n := 0
	for i := len(m.ChargeAttempts) - 1; i >= 0; i-- {
		if m.ChargeAttempts[i].Status != ChargeStatusFailed {
			break
		}
		n++
	}
	return n
}

func (m *Mandate) HasAttemptForPayment(providerPaymentID string) bool {
	if providerPaymentID == "" {
		return false
	}
	for _, a := range m.ChargeAttempts {
		if a.ProviderPaymentID == providerPaymentID {
			return true
		}
	}
	return false
}

// Due reports whether the scheduler should charge at now.
func (m *Mandate) Due(now time.Time) bool {
	return m.Status == MandateStatusActive && m.NextChargeDate != nil && !m.NextChargeDate.After(now)
}

func (m *Mandate) Clone() *Mandate {
	if m == nil {
		return nil
	}
	cp := *m
	cp.LastChargedDate = cloneTime(m.LastChargedDate)
	cp.NextChargeDate = cloneTime(m.NextChargeDate)
	cp.LastEventAt = cloneTime(m.LastEventAt)
	cp.CancelledAt = cloneTime(m.CancelledAt)
	if m.ChargeAttempts != nil {
		cp.ChargeAttempts = append([]ChargeAttempt(nil), m.ChargeAttempts...)
	}
	return &cp
}
