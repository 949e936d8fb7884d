package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/model"
	"upi-autopay-subscription/internal/domain/ports/adapter"
	"upi-autopay-subscription/internal/domain/ports/repository"
	"upi-autopay-subscription/internal/infra/logging"
	"upi-autopay-subscription/internal/infra/metrics"
)

// Compile-time check
var _ AdminUseCase = (*adminUC)(nil)

// UserFilter selects users for admin views. Empty fields are ignored; Risk wins over Status.
type UserFilter struct {
	Risk   model.RiskLevel
	Status model.SubscriptionStatus
}

// AdminUseCase holds operator actions. Each mutating call returns the number of records
// it changed, so repeating an action reports 0.
type AdminUseCase interface {
	BlockUser(ctx context.Context, userID, reason string) (int, error)
	UnblockUser(ctx context.Context, userID string) (int, error)
	BlockDevice(ctx context.Context, fingerprint, reason string) (int, error)
	CancelMandate(ctx context.Context, userID, mandateID string) (int, error)
	// PurgeMandate cancels a live mandate and then deletes the record.
	PurgeMandate(ctx context.Context, mandateID string) (int, error)
	ListUsers(ctx context.Context, f UserFilter, limit int) ([]*model.User, error)
}

type adminUC struct {
	users    repository.UserRepository
	mandates repository.MandateRepository
	tm       repository.TransactionManager
	engine   MandateUseCase
	locker   adapter.Locker
	lockTTL  time.Duration
	log      *zerolog.Logger
	now      func() time.Time
}

func NewAdminUseCase(
	users repository.UserRepository,
	mandates repository.MandateRepository,
	tm repository.TransactionManager,
	engine MandateUseCase,
	locker adapter.Locker,
	lockTTL time.Duration,
	now func() time.Time,
	logger *zerolog.Logger,
) *adminUC {
	if now == nil {
		now = time.Now
	}
	l := logger.With().Str("component", "AdminUC").Logger()
	return &adminUC{
		users:    users,
		mandates: mandates,
		tm:       tm,
		engine:   engine,
		locker:   locker,
		lockTTL:  lockTTL,
		log:      &l,
		now:      now,
	}
}

func (u *adminUC) BlockUser(ctx context.Context, userID, reason string) (int, error) {
	defer logging.TraceDuration(u.log, "AdminUC.BlockUser")()

	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("%w: userId is required", domain.ErrInvalidArgument)
	}
	if reason == "" {
		reason = "blocked by admin"
	}
	n, err := u.applyToUser(ctx, userID, EntitlementDelta{Change: ChangeBlock, Reason: reason})
	u.audit("block_user", err, func(e *zerolog.Event) { e.Str("user_id", userID).Str("reason", reason).Int("affected", n) })
	return n, err
}

func (u *adminUC) UnblockUser(ctx context.Context, userID string) (int, error) {
	defer logging.TraceDuration(u.log, "AdminUC.UnblockUser")()

	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("%w: userId is required", domain.ErrInvalidArgument)
	}
	n, err := u.applyToUser(ctx, userID, EntitlementDelta{Change: ChangeUnblock})
	u.audit("unblock_user", err, func(e *zerolog.Event) { e.Str("user_id", userID).Int("affected", n) })
	return n, err
}

// applyToUser projects a block/unblock under the user lock. No-op deltas report 0.
func (u *adminUC) applyToUser(ctx context.Context, userID string, d EntitlementDelta) (int, error) {
	affected := 0
	err := withLock(ctx, u.locker, adapter.UserLockKey(userID), u.lockTTL, func() error {
		user, err := u.users.FindByID(ctx, repository.NoTX, userID)
		if err != nil {
			return err
		}
		switch {
		case d.Change == ChangeBlock && user.IsBlocked():
			return nil
		case d.Change == ChangeUnblock && !user.IsBlocked():
			return nil
		}
		d.At = u.now()
		next := ProjectEntitlement(user, nil, d)
		if err := u.users.Save(ctx, repository.NoTX, next); err != nil {
			return err
		}
		metrics.IncEntitlementChange(string(d.Change))
		affected = 1
		return nil
	})
	return affected, err
}

func (u *adminUC) BlockDevice(ctx context.Context, fingerprint, reason string) (int, error) {
	defer logging.TraceDuration(u.log, "AdminUC.BlockDevice")()

	if strings.TrimSpace(fingerprint) == "" {
		return 0, fmt.Errorf("%w: deviceFingerprint is required", domain.ErrInvalidArgument)
	}
	if reason == "" {
		reason = "device blocked"
	}
	users, err := u.users.ListByDevice(ctx, repository.NoTX, fingerprint, 1000)
	if err != nil {
		return 0, err
	}

	total := 0
	var errs []error
	for _, usr := range users {
		n, err := u.applyToUser(ctx, usr.ID, EntitlementDelta{Change: ChangeBlock, Reason: reason})
		if err != nil {
			errs = append(errs, fmt.Errorf("block %s: %w", usr.ID, err))
			continue
		}
		total += n
	}
	err = errors.Join(errs...)
	u.audit("block_device", err, func(e *zerolog.Event) {
		e.Str("device", logging.Redact(fingerprint, false)).Int("matched", len(users)).Int("affected", total)
	})
	return total, err
}

func (u *adminUC) CancelMandate(ctx context.Context, userID, mandateID string) (int, error) {
	defer logging.TraceDuration(u.log, "AdminUC.CancelMandate")()

	n, err := u.engine.Cancel(ctx, userID, mandateID, "admin_cancelled", "admin")
	u.audit("cancel_mandate", err, func(e *zerolog.Event) { e.Str("mandate_id", mandateID).Int("affected", n) })
	return n, err
}

func (u *adminUC) PurgeMandate(ctx context.Context, mandateID string) (int, error) {
	defer logging.TraceDuration(u.log, "AdminUC.PurgeMandate")()

	m, err := u.mandates.FindByID(ctx, repository.NoTX, mandateID)
	if err != nil {
		return 0, err
	}
	// Cancel first so entitlement never points at a deleted ACTIVE mandate.
	if !m.Status.IsTerminal() {
		if _, err := u.engine.Cancel(ctx, "", mandateID, "admin_purged", "admin"); err != nil {
			return 0, err
		}
	}

	var deleted int64
	err = withLock(ctx, u.locker, adapter.MandateLockKey(mandateID), u.lockTTL, func() error {
		return u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			var derr error
			deleted, derr = u.mandates.Delete(ctx, tx, mandateID)
			return derr
		})
	})
	u.audit("purge_mandate", err, func(e *zerolog.Event) { e.Str("mandate_id", mandateID).Int64("affected", deleted) })
	return int(deleted), err
}

func (u *adminUC) ListUsers(ctx context.Context, f UserFilter, limit int) ([]*model.User, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	switch {
	case f.Risk != "":
		return u.users.ListByRiskLevel(ctx, repository.NoTX, f.Risk, limit)
	case f.Status != "":
		return u.users.ListByStatus(ctx, repository.NoTX, f.Status, limit)
	default:
		return u.users.ListByRiskLevel(ctx, repository.NoTX, model.RiskLevelHigh, limit)
	}
}

func (u *adminUC) audit(action string, err error, fields func(e *zerolog.Event)) {
	status := "ok"
	ev := u.log.Info()
	if err != nil {
		status = "error"
		ev = u.log.Warn().Err(err)
	}
	metrics.IncAdminAction(action, status)
	ev = ev.Bool("audit", true).Str("action", action)
	fields(ev)
	ev.Msg("admin action")
}
