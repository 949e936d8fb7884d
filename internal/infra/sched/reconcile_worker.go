package sched

import (
	"context"

	"github.com/rs/zerolog"

	"upi-autopay-subscription/internal/usecase"
)

// ReconcileWorker retries provider side effects that failed after local state committed.
type ReconcileWorker struct {
	uc    usecase.ReconcileUseCase
	batch int
	log   *zerolog.Logger
}

func NewReconcileWorker(uc usecase.ReconcileUseCase, batch int, logger *zerolog.Logger) *ReconcileWorker {
	if batch <= 0 {
		batch = 50
	}
	l := logger.With().Str("component", "ReconcileWorker").Logger()
	return &ReconcileWorker{uc: uc, batch: batch, log: &l}
}

func (w *ReconcileWorker) RunOnce(ctx context.Context) error {
	rep, err := w.uc.RetryPending(ctx, w.batch)
	if err != nil {
		return err
	}
	if rep.Checked > 0 {
		w.log.Info().
			Int("checked", rep.Checked).
			Int("done", rep.Done).
			Int("retrying", rep.Retrying).
			Int("abandoned", rep.Abandoned).
			Msg("reconciliation pass")
	}
	return nil
}
