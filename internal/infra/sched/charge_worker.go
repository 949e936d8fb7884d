package sched

import (
	"context"

	"github.com/rs/zerolog"

	"upi-autopay-subscription/internal/usecase"
)

// ChargeWorker runs one billing tick per trigger.
type ChargeWorker struct {
	billing usecase.BillingUseCase
	log     *zerolog.Logger
}

func NewChargeWorker(billing usecase.BillingUseCase, logger *zerolog.Logger) *ChargeWorker {
	l := logger.With().Str("component", "ChargeWorker").Logger()
	return &ChargeWorker{billing: billing, log: &l}
}

func (w *ChargeWorker) RunOnce(ctx context.Context) error {
	report, err := w.billing.RunTick(ctx)
	if err != nil {
		return err
	}
	w.log.Info().
		Int("selected", report.Selected).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("paused", report.Paused).
		Int("errored", report.Errored).
		Bool("timed_out", report.TimedOut).
		Msg("charge tick finished")
	return nil
}
