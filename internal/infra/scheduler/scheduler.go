package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Job is one unit of periodic work. Errors are logged; the schedule keeps going.
type Job interface {
	RunOnce(ctx context.Context) error
}

type JobFunc func(ctx context.Context) error

func (f JobFunc) RunOnce(ctx context.Context) error { return f(ctx) }

// Scheduler runs a Job whenever its next-run function says so.
type Scheduler struct {
	name    string
	job     Job
	next    func(now time.Time) time.Time
	timeout time.Duration
	log     *zerolog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewInterval runs job every interval (minimum one second). timeout bounds a single run.
func NewInterval(name string, interval, timeout time.Duration, job Job, logger *zerolog.Logger) *Scheduler {
	if interval < time.Second {
		interval = time.Second
	}
	return newScheduler(name, job, func(now time.Time) time.Time { return now.Add(interval) }, timeout, logger)
}

// NewDaily runs job once a day at hh:mm in loc.
func NewDaily(name, at string, loc *time.Location, timeout time.Duration, job Job, logger *zerolog.Logger) (*Scheduler, error) {
	hour, minute, err := ParseClock(at)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return newScheduler(name, job, func(now time.Time) time.Time {
		return NextDaily(now, hour, minute, loc)
	}, timeout, logger), nil
}

func newScheduler(name string, job Job, next func(time.Time) time.Time, timeout time.Duration, logger *zerolog.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	l := logger.With().Str("component", "Scheduler").Str("job", name).Logger()
	return &Scheduler{
		name:    name,
		job:     job,
		next:    next,
		timeout: timeout,
		log:     &l,
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// ParseClock parses "HH:MM" (24h).
func ParseClock(at string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return 0, 0, fmt.Errorf("clock %q must be HH:MM: %w", at, err)
	}
	return t.Hour(), t.Minute(), nil
}

// NextDaily returns the first hh:mm in loc strictly after now.
func NextDaily(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	run := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !run.After(local) {
		run = run.AddDate(0, 0, 1)
	}
	return run
}

// Start begins the loop in a background goroutine. Calling Start twice has no effect.
func (s *Scheduler) Start(parentCtx context.Context) {
	if s.ctx != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(parentCtx)
	go s.loop()
}

func (s *Scheduler) loop() {
	defer close(s.done)

	at := s.next(s.now())
	s.log.Info().Time("next_run", at).Msg("scheduler started")
	timer := time.NewTimer(time.Until(at))
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("scheduler stopping")
			return
		case <-timer.C:
			s.runOnce()
			at = s.next(s.now())
			timer.Reset(time.Until(at))
			s.log.Debug().Time("next_run", at).Msg("scheduled")
		}
	}
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error().Interface("panic", rec).Msg("job panicked")
		}
	}()
	start := time.Now()
	if err := s.job.RunOnce(ctx); err != nil {
		s.log.Error().Err(err).Dur("duration", time.Since(start)).Msg("job failed")
		return
	}
	s.log.Debug().Dur("duration", time.Since(start)).Msg("job finished")
}

// Stop cancels the loop and waits for an in-flight run to return. It is idempotent.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.ctx = nil
	s.cancel = nil
	s.done = make(chan struct{})
}
