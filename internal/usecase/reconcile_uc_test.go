//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/model"
	"upi-autopay-subscription/internal/usecase"
)

func TestReconcileUseCase_RetryPending(t *testing.T) {
	ctx := context.Background()

	// queueTask cancels an active mandate while the provider is down.
	queueTask := func(deps *testDeps) *model.Mandate {
		deps.seedUser("user-1")
		engine := deps.engine()
		m := deps.activeMandate(engine, "user-1")
		deps.provider.CancelSubscriptionFunc = func(ctx context.Context, id string, immediate bool) error {
			return domain.NewProviderError("cancel", true, errors.New("503"))
		}
		if _, err := engine.Cancel(ctx, "user-1", m.ID, "user_cancelled", "user"); err != nil {
			t.Fatalf("cancel failed: %v", err)
		}
		return m
	}

	t.Run("should complete a task once the provider recovers", func(t *testing.T) {
		// --- Arrange ---
		deps := newTestDeps()
		m := queueTask(deps)
		deps.provider.CancelSubscriptionFunc = nil
		uc := usecase.NewReconcileUseCase(deps.recon, deps.provider, time.Second, 5, deps.clock.Now, newTestLogger())

		// --- Act ---
		rep, err := uc.RetryPending(ctx, 10)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if rep.Checked != 1 || rep.Done != 1 {
			t.Errorf("expected 1 done, got %+v", rep)
		}
		if len(deps.provider.Cancelled) != 1 || deps.provider.Cancelled[0] != m.ProviderSubscriptionID {
			t.Errorf("expected provider cancel for %s, got %v", m.ProviderSubscriptionID, deps.provider.Cancelled)
		}
		again, _ := uc.RetryPending(ctx, 10)
		if again.Checked != 0 {
			t.Errorf("expected no pending tasks left, got %d", again.Checked)
		}
	})

	t.Run("should abandon a task after the retry budget", func(t *testing.T) {
		// --- Arrange ---
		deps := newTestDeps()
		queueTask(deps)
		uc := usecase.NewReconcileUseCase(deps.recon, deps.provider, time.Second, 3, deps.clock.Now, newTestLogger())

		// --- Act ---
		first, _ := uc.RetryPending(ctx, 10)
		second, err := uc.RetryPending(ctx, 10)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if first.Retrying != 1 || second.Abandoned != 1 {
			t.Errorf("expected retrying then abandoned, got %+v then %+v", first, second)
		}
		tasks := deps.recon.all()
		if len(tasks) != 1 || tasks[0].Status != model.ReconciliationAbandoned || tasks[0].Attempts != 3 {
			t.Errorf("expected an abandoned task after 3 attempts, got %+v", tasks)
		}
	})
}
