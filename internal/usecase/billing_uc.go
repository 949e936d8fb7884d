package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/ports/repository"
	"upi-autopay-subscription/internal/infra/logging"
	"upi-autopay-subscription/internal/infra/metrics"
)

// Compile-time check
var _ BillingUseCase = (*billingUC)(nil)

var ErrTickInProgress = fmt.Errorf("%w: charge tick already running", domain.ErrTransient)

// TickReport aggregates one scheduler pass.
type TickReport struct {
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Selected   int            `json:"selected"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Paused     int            `json:"paused"`
	Skipped    int            `json:"skipped"`
	Errored    int            `json:"errored"`
	TimedOut   bool           `json:"timedOut"`
	Results    []ChargeResult `json:"results"`
}

type BillingUseCase interface {
	// RunTick charges due mandates once. Unprocessed mandates are left for the next tick when
	// the tick deadline passes.
	RunTick(ctx context.Context) (*TickReport, error)
}

type BillingConfig struct {
	BatchSize   int
	TickTimeout time.Duration
	Now         func() time.Time
}

type billingUC struct {
	mandates repository.MandateRepository
	engine   MandateUseCase
	cfg      BillingConfig
	log      *zerolog.Logger
	now      func() time.Time

	running sync.Mutex
}

func NewBillingUseCase(mandates repository.MandateRepository, engine MandateUseCase, cfg BillingConfig, logger *zerolog.Logger) *billingUC {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = 5 * time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	l := logger.With().Str("component", "BillingUC").Logger()
	return &billingUC{mandates: mandates, engine: engine, cfg: cfg, log: &l, now: now}
}

func (u *billingUC) RunTick(ctx context.Context) (*TickReport, error) {
	defer logging.TraceDuration(u.log, "BillingUC.RunTick")()

	if !u.running.TryLock() {
		return nil, ErrTickInProgress
	}
	defer u.running.Unlock()

	ctx, cancel := context.WithTimeout(ctx, u.cfg.TickTimeout)
	defer cancel()

	report := &TickReport{StartedAt: u.now()}
	due, err := u.mandates.ListDue(ctx, nil, report.StartedAt, u.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	report.Selected = len(due)

	for _, m := range due {
		if ctx.Err() != nil {
			report.TimedOut = true
			break
		}
		r, err := u.engine.ChargeDue(ctx, m.ID, report.StartedAt)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
				report.TimedOut = true
			}
			u.log.Warn().Err(err).Str("mandate_id", m.ID).Msg("charge attempt errored; will retry next tick")
		}
		if r.UserID == "" {
			r.UserID = m.UserID
		}
		report.Results = append(report.Results, r)
		switch r.Outcome {
		case ChargeSucceeded:
			report.Succeeded++
		case ChargeDeclined:
			report.Failed++
		case ChargePaused:
			report.Paused++
		case ChargeErrored:
			report.Errored++
		default:
			report.Skipped++
		}
	}

	report.FinishedAt = u.now()
	metrics.ObserveChargeTick(report.FinishedAt.Sub(report.StartedAt).Seconds(), report.Selected)
	u.log.Info().
		Int("selected", report.Selected).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("paused", report.Paused).
		Int("skipped", report.Skipped).
		Int("errored", report.Errored).
		Bool("timed_out", report.TimedOut).
		Msg("charge tick finished")
	return report, nil
}
