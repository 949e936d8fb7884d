//go:build !integration

package model

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"upi-autopay-subscription/internal/domain"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// --- Mandate Model Tests ---

func TestNewMandate(t *testing.T) {
	t.Run("should create a pending mandate valid for five years", func(t *testing.T) {
		m, err := NewMandate("user-1", "alice@okhdfc", "merchant@upi", 9900, "", t0)

		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if m.Status != MandateStatusPending {
			t.Errorf("expected PENDING, got %s", m.Status)
		}
		if m.ID != "MANDATE_user-1_"+strconv.FormatInt(t0.UnixMilli(), 10) {
			t.Errorf("unexpected mandate id %q", m.ID)
		}
		if !m.EndDate.Equal(t0.AddDate(5, 0, 0)) {
			t.Errorf("expected end date five years out, got %v", m.EndDate)
		}
		if m.Currency != "INR" {
			t.Errorf("expected default currency INR, got %s", m.Currency)
		}
		if m.NextChargeDate != nil {
			t.Error("a pending mandate must not carry a next charge date")
		}
	})

	t.Run("should reject a malformed UPI id", func(t *testing.T) {
		for _, upi := range []string{"", "alice", "a@1", "alice@@okhdfc", "al ice@okhdfc"} {
			_, err := NewMandate("user-1", upi, "merchant@upi", 9900, "INR", t0)
			if !errors.Is(err, domain.ErrInvalidUPIID) {
				t.Errorf("%q: expected ErrInvalidUPIID, got %v", upi, err)
			}
			if !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("%q: expected ErrInvalidArgument in chain", upi)
			}
		}
	})

	t.Run("should reject a non-positive amount", func(t *testing.T) {
		_, err := NewMandate("user-1", "alice@okhdfc", "merchant@upi", 0, "INR", t0)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestMandate_ValidateValidity(t *testing.T) {
	cases := map[string]struct {
		end     time.Time
		wantErr bool
	}{
		"one month":        {end: t0.Add(30 * Day), wantErr: false},
		"five years":       {end: t0.AddDate(5, 0, 0), wantErr: false},
		"end before start": {end: t0.Add(-time.Hour), wantErr: true},
		"under a month":    {end: t0.Add(29 * Day), wantErr: true},
		"over five years":  {end: t0.AddDate(5, 0, 1), wantErr: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			m := &Mandate{StartDate: t0, EndDate: tc.end}
			err := m.ValidateValidity()
			if tc.wantErr != (err != nil) {
				t.Fatalf("wantErr=%v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestMandate_TransitionTo(t *testing.T) {
	t.Run("should set the next charge date on activation", func(t *testing.T) {
		m, _ := NewMandate("user-1", "alice@okhdfc", "merchant@upi", 9900, "INR", t0)

		if err := m.TransitionTo(MandateStatusActive, t0); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if m.NextChargeDate == nil || !m.NextChargeDate.Equal(t0.Add(BillingPeriod)) {
			t.Fatalf("expected next charge at +30d, got %v", m.NextChargeDate)
		}
	})

	t.Run("should clear the next charge date and stamp cancellation", func(t *testing.T) {
		m, _ := NewMandate("user-1", "alice@okhdfc", "merchant@upi", 9900, "INR", t0)
		_ = m.TransitionTo(MandateStatusActive, t0)

		if err := m.TransitionTo(MandateStatusCancelled, t0.Add(time.Hour)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if m.NextChargeDate != nil {
			t.Error("expected next charge date cleared")
		}
		if m.CancelledAt == nil {
			t.Error("expected cancelledAt to be set")
		}
	})

	t.Run("should refuse to leave a terminal state", func(t *testing.T) {
		m, _ := NewMandate("user-1", "alice@okhdfc", "merchant@upi", 9900, "INR", t0)
		_ = m.TransitionTo(MandateStatusExpired, t0)

		err := m.TransitionTo(MandateStatusActive, t0)
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
		if !m.Status.IsTerminal() {
			t.Error("expected status to stay terminal")
		}
	})

	t.Run("should treat a same-state transition as a no-op", func(t *testing.T) {
		m, _ := NewMandate("user-1", "alice@okhdfc", "merchant@upi", 9900, "INR", t0)
		if err := m.TransitionTo(MandateStatusPending, t0.Add(time.Minute)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !m.UpdatedAt.Equal(t0) {
			t.Error("expected updatedAt untouched")
		}
	})
}

func TestMandate_Charges(t *testing.T) {
	newActive := func() *Mandate {
		m, _ := NewMandate("user-1", "alice@okhdfc", "merchant@upi", 9900, "INR", t0)
		_ = m.TransitionTo(MandateStatusActive, t0)
		return m
	}

	t.Run("should advance the next charge date from its previous value", func(t *testing.T) {
		m := newActive()
		due := *m.NextChargeDate
		late := due.Add(3 * time.Hour)

		err := m.RecordSuccessfulCharge(ChargeAttempt{Date: late, Amount: 9900, ProviderPaymentID: "pay_1"}, late)

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !m.NextChargeDate.Equal(due.Add(BillingPeriod)) {
			t.Errorf("expected %v, got %v", due.Add(BillingPeriod), m.NextChargeDate)
		}
		if m.ChargeAttempts[0].Status != ChargeStatusSuccess {
			t.Error("expected attempt stored as SUCCESS")
		}
		if !m.HasAttemptForPayment("pay_1") || m.HasAttemptForPayment("") {
			t.Error("payment id lookup is wrong")
		}
	})

	t.Run("should keep attempts ordered by date", func(t *testing.T) {
		m := newActive()
		_ = m.AppendAttempt(ChargeAttempt{Date: t0.Add(2 * Day), Status: ChargeStatusFailed})

		err := m.AppendAttempt(ChargeAttempt{Date: t0.Add(Day), Status: ChargeStatusFailed})

		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
		if len(m.ChargeAttempts) != 1 {
			t.Errorf("expected one attempt, got %d", len(m.ChargeAttempts))
		}
	})

	t.Run("should count failures since the last success", func(t *testing.T) {
		m := newActive()
		_ = m.AppendAttempt(ChargeAttempt{Date: t0.Add(1 * Day), Status: ChargeStatusFailed})
		_ = m.AppendAttempt(ChargeAttempt{Date: t0.Add(2 * Day), Status: ChargeStatusSuccess})
		_ = m.AppendAttempt(ChargeAttempt{Date: t0.Add(3 * Day), Status: ChargeStatusFailed})
		_ = m.AppendAttempt(ChargeAttempt{Date: t0.Add(4 * Day), Status: ChargeStatusFailed})

		if got := m.ConsecutiveFailures(); got != 2 {
			t.Errorf("expected 2, got %d", got)
		}
	})

	t.Run("should be due only while active and past its date", func(t *testing.T) {
		m := newActive()
		if m.Due(t0) {
			t.Error("not due before the billing period")
		}
		if !m.Due(t0.Add(BillingPeriod)) {
			t.Error("expected due at the boundary")
		}
		_ = m.TransitionTo(MandateStatusPaused, t0)
		if m.Due(t0.Add(2 * BillingPeriod)) {
			t.Error("a paused mandate is never due")
		}
	})

	t.Run("should deep copy on clone", func(t *testing.T) {
		m := newActive()
		_ = m.AppendAttempt(ChargeAttempt{Date: t0, Status: ChargeStatusFailed})
		cp := m.Clone()

		cp.ChargeAttempts[0].Status = ChargeStatusSuccess
		*cp.NextChargeDate = t0

		if m.ChargeAttempts[0].Status != ChargeStatusFailed || m.NextChargeDate.Equal(t0) {
			t.Error("clone shares memory with the original")
		}
	})
}

// --- User Model Tests ---

func TestNewTrialUser(t *testing.T) {
	t.Run("should start a trial with low risk", func(t *testing.T) {
		u, err := NewTrialUser(" user-1 ", "fp", 7, t0)

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if u.ID != "user-1" {
			t.Errorf("expected trimmed id, got %q", u.ID)
		}
		if u.SubscriptionStatus != SubscriptionStatusTrial || u.SecurityRiskLevel != RiskLevelLow {
			t.Errorf("unexpected defaults: %s/%s", u.SubscriptionStatus, u.SecurityRiskLevel)
		}
		if got := u.TrialDaysRemaining(t0); got != 7 {
			t.Errorf("expected 7 trial days, got %d", got)
		}
	})

	t.Run("should fail with an empty id", func(t *testing.T) {
		u, err := NewTrialUser("  ", "", 7, t0)
		if !errors.Is(err, domain.ErrInvalidArgument) || u != nil {
			t.Fatalf("expected ErrInvalidArgument and nil user, got %v", err)
		}
	})
}

func TestUser_HasAccess(t *testing.T) {
	past, future := t0.Add(-Day), t0.Add(Day)
	cases := map[string]struct {
		user *User
		want bool
	}{
		"nil user":                 {user: nil, want: false},
		"trial with days left":     {user: &User{SubscriptionStatus: SubscriptionStatusTrial, TrialEndsAt: &future}, want: true},
		"trial over":               {user: &User{SubscriptionStatus: SubscriptionStatusTrial, TrialEndsAt: &past}, want: false},
		"active before expiry":     {user: &User{SubscriptionStatus: SubscriptionStatusActive, SubscriptionExpiry: &future}, want: true},
		"active lapsed":            {user: &User{SubscriptionStatus: SubscriptionStatusActive, SubscriptionExpiry: &past}, want: false},
		"active with auto-renewal": {user: &User{SubscriptionStatus: SubscriptionStatusActive, HasAutoRenewal: true, SubscriptionExpiry: &past}, want: true},
		"blocked with paid expiry": {user: &User{SubscriptionStatus: SubscriptionStatusBlocked, SubscriptionExpiry: &future}, want: false},
		"cancelled with paid time": {user: &User{SubscriptionStatus: SubscriptionStatusCancelled, SubscriptionExpiry: &future}, want: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := tc.user.HasAccess(t0); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestUser_TrialDaysRemaining(t *testing.T) {
	end := t0.Add(36 * time.Hour)
	u := &User{TrialEndsAt: &end}

	if got := u.TrialDaysRemaining(t0); got != 2 {
		t.Errorf("expected partial days rounded up to 2, got %d", got)
	}
	if got := u.TrialDaysRemaining(end); got != 0 {
		t.Errorf("expected 0 at the end of trial, got %d", got)
	}
}

// --- Payment Model Tests ---

func TestNewCompletedPayment(t *testing.T) {
	t.Run("should record a validated completed payment", func(t *testing.T) {
		p, err := NewCompletedPayment("user-1", "pay_1", 9900, "", PaymentMetadata{Kind: PaymentKindRecurringCharge, MandateID: "m1"}, t0)

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.HasPrefix(p.TransactionID, "TXN_") {
			t.Errorf("expected TXN_ prefix, got %q", p.TransactionID)
		}
		if p.Status != PaymentStatusCompleted || !p.Status.IsFinal() {
			t.Errorf("expected final completed status, got %s", p.Status)
		}
		if p.ValidatedAt == nil || p.Currency != "INR" {
			t.Error("expected validatedAt and default currency")
		}
	})

	t.Run("should require a metadata kind", func(t *testing.T) {
		_, err := NewCompletedPayment("user-1", "pay_1", 9900, "INR", PaymentMetadata{}, t0)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("should produce ids sortable by time", func(t *testing.T) {
		a := NewTransactionID(t0)
		b := NewTransactionID(t0.Add(time.Second))
		if a >= b {
			t.Errorf("expected %s < %s", a, b)
		}
	})
}
