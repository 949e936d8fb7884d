package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/model"
	"upi-autopay-subscription/internal/domain/ports/adapter"
	"upi-autopay-subscription/internal/domain/ports/repository"
	"upi-autopay-subscription/internal/infra/logging"
	"upi-autopay-subscription/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// Entitlement is the read model returned to the extension.
type Entitlement struct {
	UserID             string                   `json:"userId"`
	Status             model.SubscriptionStatus `json:"status"`
	Expiry             *time.Time               `json:"expiry,omitempty"`
	HasAutoRenewal     bool                     `json:"hasAutoRenewal"`
	HasAccess          bool                     `json:"hasAccess"`
	TrialDaysRemaining int                      `json:"trialDaysRemaining"`
	MandateID          string                   `json:"mandateId,omitempty"`
}

// UserUseCase exposes registration, entitlement reads and the lapse sweep.
type UserUseCase interface {
	// Register creates a trial user or returns the existing one; created reports which.
	Register(ctx context.Context, userID, deviceFingerprint string) (user *model.User, created bool, err error)
	Entitlement(ctx context.Context, userID string) (*Entitlement, error)
	// ExpireLapsed moves users past their paid or trial runway to expired.
	ExpireLapsed(ctx context.Context, limit int) (int, error)
}

type userUC struct {
	users     repository.UserRepository
	locker    adapter.Locker
	trialDays int
	lockTTL   time.Duration
	log       *zerolog.Logger
	now       func() time.Time
}

func NewUserUseCase(users repository.UserRepository, locker adapter.Locker, trialDays int, lockTTL time.Duration, now func() time.Time, logger *zerolog.Logger) *userUC {
	if now == nil {
		now = time.Now
	}
	l := logger.With().Str("component", "UserUC").Logger()
	return &userUC{
		users:     users,
		locker:    locker,
		trialDays: trialDays,
		lockTTL:   lockTTL,
		log:       &l,
		now:       now,
	}
}

func (u *userUC) Register(ctx context.Context, userID, deviceFingerprint string) (*model.User, bool, error) {
	defer logging.TraceDuration(u.log, "UserUC.Register")()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, false, fmt.Errorf("%w: userId is required", domain.ErrInvalidArgument)
	}

	var (
		user    *model.User
		created bool
	)
	err := withLock(ctx, u.locker, adapter.UserLockKey(userID), u.lockTTL, func() error {
		existing, err := u.users.FindByID(ctx, repository.NoTX, userID)
		if err == nil {
			user = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		now := u.now()
		nu, err := model.NewTrialUser(userID, deviceFingerprint, u.trialDays, now)
		if err != nil {
			return err
		}
		if deviceFingerprint != "" {
			blocked, err := u.users.IsDeviceBlocked(ctx, repository.NoTX, deviceFingerprint)
			if err != nil {
				return err
			}
			if blocked {
				nu = ProjectEntitlement(nu, nil, EntitlementDelta{Change: ChangeBlock, At: now, Reason: "device blocked"})
			}
		}
		if err := u.users.Create(ctx, repository.NoTX, nu); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				user, err = u.users.FindByID(ctx, repository.NoTX, userID)
				return err
			}
			return err
		}
		user, created = nu, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		metrics.IncUsersRegistered(string(user.SubscriptionStatus))
		u.log.Info().Str("user_id", userID).Str("status", string(user.SubscriptionStatus)).Msg("user registered")
	}
	return user, created, nil
}

func (u *userUC) Entitlement(ctx context.Context, userID string) (*Entitlement, error) {
	defer logging.TraceDuration(u.log, "UserUC.Entitlement")()

	user, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	now := u.now()
	return &Entitlement{
		UserID:             user.ID,
		Status:             user.SubscriptionStatus,
		Expiry:             user.SubscriptionExpiry,
		HasAutoRenewal:     user.HasAutoRenewal,
		HasAccess:          user.HasAccess(now),
		TrialDaysRemaining: user.TrialDaysRemaining(now),
		MandateID:          user.UPIMandateID,
	}, nil
}

func (u *userUC) ExpireLapsed(ctx context.Context, limit int) (int, error) {
	defer logging.TraceDuration(u.log, "UserUC.ExpireLapsed")()

	if limit <= 0 {
		limit = 500
	}
	lapsed, err := u.users.ListLapsed(ctx, repository.NoTX, u.now(), limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, cand := range lapsed {
		err := withLock(ctx, u.locker, adapter.UserLockKey(cand.ID), u.lockTTL, func() error {
			fresh, err := u.users.FindByID(ctx, repository.NoTX, cand.ID)
			if err != nil {
				return err
			}
			next := ProjectEntitlement(fresh, nil, EntitlementDelta{Change: ChangeExpiryCheck, At: u.now()})
			if next.SubscriptionStatus == fresh.SubscriptionStatus {
				return nil
			}
			if err := u.users.Save(ctx, repository.NoTX, next); err != nil {
				return err
			}
			expired++
			return nil
		})
		if err != nil && !errors.Is(err, domain.ErrLockNotAcquired) {
			return expired, err
		}
	}
	if expired > 0 {
		metrics.IncUsersExpired(expired)
		metrics.IncEntitlementChange(string(ChangeExpiryCheck))
		u.log.Info().Int("count", expired).Msg("lapsed users expired")
	}
	return expired, nil
}
