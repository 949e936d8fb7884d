//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/model"
	"upi-autopay-subscription/internal/domain/ports/repository"
)

func seedUser(t *testing.T, ctx context.Context, id string, now time.Time) *model.User {
	t.Helper()
	u, err := model.NewTrialUser(id, "fp-"+id, 7, now)
	if err != nil {
		t.Fatalf("NewTrialUser: %v", err)
	}
	if err := NewUserRepo(testPool).Create(ctx, nil, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestUserRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewUserRepo(testPool)
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("should create, find and refuse a duplicate", func(t *testing.T) {
		cleanup(t)
		u := seedUser(t, ctx, "user-1", now)

		found, err := repo.FindByID(ctx, nil, u.ID)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if found.SubscriptionStatus != model.SubscriptionStatusTrial || !found.TrialEndsAt.Equal(*u.TrialEndsAt) {
			t.Errorf("unexpected user read back: %+v", found)
		}
		if err := repo.Create(ctx, nil, u); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
		if _, err := repo.FindByID(ctx, nil, "ghost"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should flag blocked devices and list lapsed users", func(t *testing.T) {
		cleanup(t)
		blocked := seedUser(t, ctx, "user-b", now.Add(-10*model.Day))
		blocked.SubscriptionStatus = model.SubscriptionStatusBlocked
		blocked.SecurityRiskLevel = model.RiskLevelHigh
		if err := repo.Save(ctx, nil, blocked); err != nil {
			t.Fatalf("save: %v", err)
		}
		seedUser(t, ctx, "user-lapsed", now.Add(-10*model.Day))

		isBlocked, err := repo.IsDeviceBlocked(ctx, nil, "fp-user-b")
		if err != nil || !isBlocked {
			t.Errorf("expected device blocked, got %v (%v)", isBlocked, err)
		}
		lapsed, err := repo.ListLapsed(ctx, nil, now, 10)
		if err != nil {
			t.Fatalf("ListLapsed: %v", err)
		}
		if len(lapsed) != 1 || lapsed[0].ID != "user-lapsed" {
			t.Errorf("expected only user-lapsed, got %d users", len(lapsed))
		}
		risky, _ := repo.ListByRiskLevel(ctx, nil, model.RiskLevelHigh, 10)
		if len(risky) != 1 {
			t.Errorf("expected one high-risk user, got %d", len(risky))
		}
	})
}

func TestMandateRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewMandateRepo(testPool)
	tm := NewTxManager(testPool)
	now := time.Now().UTC().Truncate(time.Millisecond)

	newMandate := func(t *testing.T, userID string, at time.Time) *model.Mandate {
		t.Helper()
		m, err := model.NewMandate(userID, "alice@okhdfc", "merchant@upi", 9900, "INR", at)
		if err != nil {
			t.Fatalf("NewMandate: %v", err)
		}
		return m
	}

	t.Run("should keep a single open mandate per user", func(t *testing.T) {
		cleanup(t)
		seedUser(t, ctx, "user-1", now)
		if err := repo.Create(ctx, nil, newMandate(t, "user-1", now)); err != nil {
			t.Fatalf("first create: %v", err)
		}

		err := repo.Create(ctx, nil, newMandate(t, "user-1", now.Add(time.Second)))

		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("should reject a stale update", func(t *testing.T) {
		cleanup(t)
		seedUser(t, ctx, "user-1", now)
		m := newMandate(t, "user-1", now)
		m.ProviderPaymentLinkID = "plink_1"
		_ = repo.Create(ctx, nil, m)

		a, _ := repo.FindByID(ctx, nil, m.ID)
		b, _ := repo.FindByID(ctx, nil, m.ID)
		if err := a.TransitionTo(model.MandateStatusActive, now); err != nil {
			t.Fatalf("transition: %v", err)
		}
		if err := repo.Update(ctx, nil, a); err != nil {
			t.Fatalf("first update: %v", err)
		}
		_ = b.TransitionTo(model.MandateStatusCancelled, now)
		err := repo.Update(ctx, nil, b)

		if !errors.Is(err, domain.ErrStaleRecord) {
			t.Fatalf("expected ErrStaleRecord, got %v", err)
		}
		got, _ := repo.FindByPaymentLinkID(ctx, nil, "plink_1")
		if got.Status != model.MandateStatusActive || got.Version != 1 || got.NextChargeDate == nil {
			t.Errorf("expected active v1 with a next charge date, got %s v%d", got.Status, got.Version)
		}
	})

	t.Run("should round-trip charge attempts and list due mandates", func(t *testing.T) {
		cleanup(t)
		seedUser(t, ctx, "user-1", now)
		m := newMandate(t, "user-1", now.Add(-40*model.Day))
		_ = m.TransitionTo(model.MandateStatusActive, now.Add(-40*model.Day))
		_ = m.AppendAttempt(model.ChargeAttempt{Date: now.Add(-time.Hour), Amount: 9900, Status: model.ChargeStatusFailed, Reference: "CHG_1", FailureReason: "insufficient funds"})
		_ = repo.Create(ctx, nil, m)

		due, err := repo.ListDue(ctx, nil, now, 10)

		if err != nil || len(due) != 1 {
			t.Fatalf("expected 1 due mandate, got %d (%v)", len(due), err)
		}
		if len(due[0].ChargeAttempts) != 1 || due[0].ChargeAttempts[0].FailureReason != "insufficient funds" {
			t.Errorf("charge attempts did not round-trip: %+v", due[0].ChargeAttempts)
		}
	})

	t.Run("should roll back every write when the callback fails", func(t *testing.T) {
		cleanup(t)
		seedUser(t, ctx, "user-1", now)
		m := newMandate(t, "user-1", now)

		err := tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if err := repo.Create(ctx, tx, m); err != nil {
				return err
			}
			return domain.ErrOperationFailed
		})

		if !errors.Is(err, domain.ErrOperationFailed) {
			t.Fatalf("expected the callback error, got %v", err)
		}
		if _, err := repo.FindByID(ctx, nil, m.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected the insert to be rolled back, got %v", err)
		}
	})
}

func TestPaymentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewPaymentRepo(testPool)
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("should dedupe by provider payment id and refund once", func(t *testing.T) {
		cleanup(t)
		seedUser(t, ctx, "user-1", now)
		meta := model.PaymentMetadata{Kind: model.PaymentKindRecurringCharge, MandateID: "MANDATE_user-1_1"}
		p, _ := model.NewCompletedPayment("user-1", "pay_1", 9900, "INR", meta, now)
		if err := repo.Create(ctx, nil, p); err != nil {
			t.Fatalf("create: %v", err)
		}
		dup, _ := model.NewCompletedPayment("user-1", "pay_1", 9900, "INR", meta, now.Add(time.Millisecond))
		if err := repo.Create(ctx, nil, dup); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}

		first, err := repo.MarkRefunded(ctx, nil, p.TransactionID, now)
		second, _ := repo.MarkRefunded(ctx, nil, p.TransactionID, now)

		if err != nil || !first || second {
			t.Fatalf("expected refund once, got %v then %v (%v)", first, second, err)
		}
		got, _ := repo.FindByProviderPaymentID(ctx, nil, "pay_1")
		if got.Status != model.PaymentStatusRefunded || got.Metadata.MandateID != meta.MandateID {
			t.Errorf("unexpected payment: %+v", got)
		}
	})

	t.Run("should allow several payments without a provider id", func(t *testing.T) {
		cleanup(t)
		seedUser(t, ctx, "user-1", now)
		meta := model.PaymentMetadata{Kind: model.PaymentKindAdminAction, AdminReason: "goodwill"}
		a, _ := model.NewCompletedPayment("user-1", "", 100, "INR", meta, now)
		b, _ := model.NewCompletedPayment("user-1", "", 100, "INR", meta, now.Add(time.Millisecond))

		if err := repo.Create(ctx, nil, a); err != nil {
			t.Fatalf("create a: %v", err)
		}
		if err := repo.Create(ctx, nil, b); err != nil {
			t.Fatalf("create b: %v", err)
		}
		list, _ := repo.ListByUser(ctx, nil, "user-1", 10)
		if len(list) != 2 || list[0].TransactionID != b.TransactionID {
			t.Errorf("expected newest first, got %d payments", len(list))
		}
	})
}

func TestWebhookAndReconciliationRepos_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("should record an event key once", func(t *testing.T) {
		cleanup(t)
		repo := NewWebhookEventRepo(testPool)
		ev := &model.WebhookEvent{Key: "evt_1", Event: "subscription.charged", EntityID: "sub_1", EventAt: now, ReceivedAt: now}

		if err := repo.Record(ctx, nil, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
		if err := repo.Record(ctx, nil, ev); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
		if ok, _ := repo.Exists(ctx, nil, "evt_1"); !ok {
			t.Error("expected the key to exist")
		}
	})

	t.Run("should list only pending tasks", func(t *testing.T) {
		cleanup(t)
		repo := NewReconciliationRepo(testPool)
		task := &model.ReconciliationTask{
			ID: uuid.NewString(), Kind: model.ReconciliationProviderCancel, MandateID: "MANDATE_user-1_1",
			ProviderSubscriptionID: "sub_1", Status: model.ReconciliationPending, Attempts: 1, CreatedAt: now, UpdatedAt: now,
		}
		_ = repo.Create(ctx, nil, task)

		pending, _ := repo.ListPending(ctx, nil, 10)
		task.Status = model.ReconciliationDone
		_ = repo.Update(ctx, nil, task)
		after, _ := repo.ListPending(ctx, nil, 10)

		if len(pending) != 1 || len(after) != 0 {
			t.Errorf("expected 1 then 0 pending, got %d then %d", len(pending), len(after))
		}
	})
}
