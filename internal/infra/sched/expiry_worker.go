package sched

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"upi-autopay-subscription/internal/usecase"
)

// ExpiryWorker closes mandates past their end date and moves lapsed users to expired.
type ExpiryWorker struct {
	mandates usecase.MandateUseCase
	users    usecase.UserUseCase
	batch    int
	log      *zerolog.Logger
}

func NewExpiryWorker(mandates usecase.MandateUseCase, users usecase.UserUseCase, batch int, logger *zerolog.Logger) *ExpiryWorker {
	if batch <= 0 {
		batch = 200
	}
	l := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{mandates: mandates, users: users, batch: batch, log: &l}
}

// RunOnce runs both sweeps; a failure in one does not skip the other.
func (w *ExpiryWorker) RunOnce(ctx context.Context) error {
	m, errM := w.mandates.ExpireEnded(ctx, w.batch)
	if errM != nil {
		w.log.Error().Err(errM).Msg("mandate expiry sweep failed")
	}
	u, errU := w.users.ExpireLapsed(ctx, w.batch)
	if errU != nil {
		w.log.Error().Err(errU).Msg("user expiry sweep failed")
	}
	if m > 0 || u > 0 {
		w.log.Info().Int("mandates", m).Int("users", u).Msg("expired records")
	}
	return errors.Join(errM, errU)
}
