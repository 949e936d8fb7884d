//go:build !integration

package usecase_test

import (
	"testing"
	"time"

	"upi-autopay-subscription/internal/domain/model"
	"upi-autopay-subscription/internal/usecase"
)

func TestProjectEntitlement(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(10 * model.Day)
	past := now.Add(-model.Day)

	mandate := &model.Mandate{ID: "MANDATE_user-1_1"}
	other := &model.Mandate{ID: "MANDATE_user-1_2"}

	base := func(mut func(u *model.User)) *model.User {
		u := &model.User{ID: "user-1", SubscriptionStatus: model.SubscriptionStatusActive}
		if mut != nil {
			mut(u)
		}
		return u
	}

	tests := []struct {
		name       string
		user       *model.User
		mandate    *model.Mandate
		delta      usecase.EntitlementDelta
		wantStatus model.SubscriptionStatus
		wantAuto   bool
		wantExpiry *time.Time
	}{
		{
			name:       "activation stacks on remaining paid time",
			user:       base(func(u *model.User) { u.SubscriptionExpiry = &future }),
			mandate:    mandate,
			delta:      usecase.EntitlementDelta{Change: usecase.ChangeActivation, At: now},
			wantStatus: model.SubscriptionStatusActive,
			wantAuto:   true,
			wantExpiry: ptr(future.Add(model.BillingPeriod)),
		},
		{
			name: "renewal extends from the current expiry",
			user: base(func(u *model.User) {
				u.SubscriptionExpiry = &past
				u.HasAutoRenewal = true
			}),
			mandate:    mandate,
			delta:      usecase.EntitlementDelta{Change: usecase.ChangeRenewal, At: now},
			wantStatus: model.SubscriptionStatusActive,
			wantAuto:   true,
			wantExpiry: ptr(past.Add(model.BillingPeriod)),
		},
		{
			name: "cancel keeps paid time",
			user: base(func(u *model.User) {
				u.SubscriptionExpiry = &future
				u.HasAutoRenewal = true
				u.UPIMandateID = mandate.ID
			}),
			mandate:    mandate,
			delta:      usecase.EntitlementDelta{Change: usecase.ChangeCancel, At: now},
			wantStatus: model.SubscriptionStatusActive,
			wantAuto:   false,
			wantExpiry: &future,
		},
		{
			name: "cancel of a superseded mandate leaves auto renewal alone",
			user: base(func(u *model.User) {
				u.SubscriptionExpiry = &future
				u.HasAutoRenewal = true
				u.UPIMandateID = other.ID
			}),
			mandate:    mandate,
			delta:      usecase.EntitlementDelta{Change: usecase.ChangeCancel, At: now},
			wantStatus: model.SubscriptionStatusActive,
			wantAuto:   true,
			wantExpiry: &future,
		},
		{
			name: "halt after expiry lapses the user",
			user: base(func(u *model.User) {
				u.SubscriptionExpiry = &past
				u.HasAutoRenewal = true
			}),
			mandate:    nil,
			delta:      usecase.EntitlementDelta{Change: usecase.ChangeHalt, At: now},
			wantStatus: model.SubscriptionStatusExpired,
			wantAuto:   false,
			wantExpiry: &past,
		},
		{
			name:       "manual payment never lifts a block",
			user:       base(func(u *model.User) { u.SubscriptionStatus = model.SubscriptionStatusBlocked }),
			delta:      usecase.EntitlementDelta{Change: usecase.ChangeManualPayment, At: now},
			wantStatus: model.SubscriptionStatusBlocked,
			wantExpiry: ptr(now.Add(model.BillingPeriod)),
		},
		{
			name:       "unblock with nothing paid falls back to expired",
			user:       base(func(u *model.User) { u.SubscriptionStatus = model.SubscriptionStatusBlocked }),
			delta:      usecase.EntitlementDelta{Change: usecase.ChangeUnblock, At: now},
			wantStatus: model.SubscriptionStatusExpired,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			before := tc.user.Clone()

			got := usecase.ProjectEntitlement(tc.user, tc.mandate, tc.delta)

			if got.SubscriptionStatus != tc.wantStatus {
				t.Errorf("status: want %s, got %s", tc.wantStatus, got.SubscriptionStatus)
			}
			if got.HasAutoRenewal != tc.wantAuto {
				t.Errorf("autoRenewal: want %v, got %v", tc.wantAuto, got.HasAutoRenewal)
			}
			switch {
			case tc.wantExpiry == nil && got.SubscriptionExpiry != nil:
				t.Errorf("expiry: want nil, got %v", got.SubscriptionExpiry)
			case tc.wantExpiry != nil && (got.SubscriptionExpiry == nil || !got.SubscriptionExpiry.Equal(*tc.wantExpiry)):
				t.Errorf("expiry: want %v, got %v", *tc.wantExpiry, got.SubscriptionExpiry)
			}
			if tc.user.SubscriptionStatus != before.SubscriptionStatus || tc.user.HasAutoRenewal != before.HasAutoRenewal {
				t.Error("expected the input user to be left untouched")
			}
		})
	}
}

func ptr(t time.Time) *time.Time { return &t }
