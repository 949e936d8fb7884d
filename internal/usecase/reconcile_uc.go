package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/model"
	"upi-autopay-subscription/internal/domain/ports/adapter"
	"upi-autopay-subscription/internal/domain/ports/repository"
	"upi-autopay-subscription/internal/infra/logging"
	"upi-autopay-subscription/internal/infra/metrics"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	Checked   int `json:"checked"`
	Done      int `json:"done"`
	Retrying  int `json:"retrying"`
	Abandoned int `json:"abandoned"`
}

// ReconcileUseCase replays provider side effects that failed after the local state committed.
type ReconcileUseCase interface {
	RetryPending(ctx context.Context, limit int) (ReconcileReport, error)
}

type reconcileUC struct {
	tasks    repository.ReconciliationRepository
	provider adapter.Provider
	timeout  time.Duration
	maxTries int
	log      *zerolog.Logger
	now      func() time.Time
}

func NewReconcileUseCase(
	tasks repository.ReconciliationRepository,
	provider adapter.Provider,
	providerTimeout time.Duration,
	maxTries int,
	now func() time.Time,
	logger *zerolog.Logger,
) *reconcileUC {
	if maxTries <= 0 {
		maxTries = 10
	}
	if now == nil {
		now = time.Now
	}
	l := logger.With().Str("component", "ReconcileUC").Logger()
	return &reconcileUC{
		tasks:    tasks,
		provider: provider,
		timeout:  providerTimeout,
		maxTries: maxTries,
		log:      &l,
		now:      now,
	}
}

func newProviderCancelTask(m *model.Mandate, cause error, now time.Time) *model.ReconciliationTask {
	t := &model.ReconciliationTask{
		ID:                     uuid.NewString(),
		Kind:                   model.ReconciliationProviderCancel,
		MandateID:              m.ID,
		ProviderSubscriptionID: m.ProviderSubscriptionID,
		Status:                 model.ReconciliationPending,
		Attempts:               1,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if cause != nil {
		t.LastError = cause.Error()
	}
	return t
}

func (u *reconcileUC) RetryPending(ctx context.Context, limit int) (ReconcileReport, error) {
	defer logging.TraceDuration(u.log, "ReconcileUC.RetryPending")()

	var rep ReconcileReport
	if limit <= 0 {
		limit = 50
	}
	pending, err := u.tasks.ListPending(ctx, repository.NoTX, limit)
	if err != nil {
		return rep, err
	}

	for _, t := range pending {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		rep.Checked++
		status := u.retry(ctx, t)
		if err := u.tasks.Update(ctx, repository.NoTX, t); err != nil {
			u.log.Error().Err(err).Str("task_id", t.ID).Msg("failed to persist reconciliation task")
			continue
		}
		metrics.IncReconciliationTask(string(t.Kind), string(status))
		switch status {
		case model.ReconciliationDone:
			rep.Done++
		case model.ReconciliationAbandoned:
			rep.Abandoned++
		default:
			rep.Retrying++
		}
	}
	return rep, nil
}

// retry runs one attempt and updates t in place.
func (u *reconcileUC) retry(ctx context.Context, t *model.ReconciliationTask) model.ReconciliationStatus {
	now := u.now()
	t.UpdatedAt = now

	if t.Kind != model.ReconciliationProviderCancel || t.ProviderSubscriptionID == "" {
		t.Status = model.ReconciliationAbandoned
		t.LastError = "unsupported task"
		return t.Status
	}

	t.Attempts++
	err := callProvider(ctx, u.provider.Name(), u.timeout, "cancel_subscription", func(ctx context.Context) error {
		return u.provider.CancelSubscription(ctx, t.ProviderSubscriptionID, true)
	})
	switch {
	case err == nil:
		t.Status = model.ReconciliationDone
		t.LastError = ""
		logging.Audit(u.log).
			Str("task_id", t.ID).
			Str("mandate_id", t.MandateID).
			Int("attempts", t.Attempts).
			Msg("provider subscription cancelled on retry")
	case t.Attempts >= u.maxTries || !errors.Is(err, domain.ErrTransient):
		t.Status = model.ReconciliationAbandoned
		t.LastError = err.Error()
		logging.Alert(u.log).Err(err).
			Str("task_id", t.ID).
			Str("mandate_id", t.MandateID).
			Str("subscription_id", t.ProviderSubscriptionID).
			Int("attempts", t.Attempts).
			Msg("provider cancel abandoned; manual follow-up required")
	default:
		t.LastError = err.Error()
		u.log.Warn().Err(err).Str("task_id", t.ID).Int("attempts", t.Attempts).Msg("provider cancel still failing")
	}
	return t.Status
}
