package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/model"
	"upi-autopay-subscription/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct{ pool *pgxpool.Pool }

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

const userColumns = `id, subscription_status, subscription_expiry, has_auto_renewal, last_payment_date,
  upi_mandate_id, trial_ends_at, security_risk_level, device_fingerprint, blocked_reason, blocked_at,
  created_at, updated_at`

func (r *userRepo) Create(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (` + userColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13);`
	_, err := execSQL(ctx, r.pool, tx, q, userArgs(u)...)
	return err
}

func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (` + userColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
  subscription_status=$2, subscription_expiry=$3, has_auto_renewal=$4, last_payment_date=$5,
  upi_mandate_id=$6, trial_ends_at=$7, security_risk_level=$8, device_fingerprint=$9,
  blocked_reason=$10, blocked_at=$11, updated_at=$13;`
	_, err := execSQL(ctx, r.pool, tx, q, userArgs(u)...)
	return err
}

func userArgs(u *model.User) []interface{} {
	return []interface{}{
		u.ID, string(u.SubscriptionStatus), u.SubscriptionExpiry, u.HasAutoRenewal, u.LastPaymentDate,
		u.UPIMandateID, u.TrialEndsAt, string(u.SecurityRiskLevel), u.DeviceFingerprint, u.BlockedReason, u.BlockedAt,
		u.CreatedAt, u.UpdatedAt,
	}
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	q := forUpdate(`SELECT `+userColumns+` FROM users WHERE id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	u, err := scanUser(row)
	if err != nil {
		return nil, mapReadErr(err)
	}
	return u, nil
}

func (r *userRepo) ListByRiskLevel(ctx context.Context, tx repository.Tx, level model.RiskLevel, limit int) ([]*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE security_risk_level=$1 ORDER BY updated_at DESC LIMIT $2;`
	return r.list(ctx, tx, q, string(level), clampLimit(limit, 100))
}

func (r *userRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.SubscriptionStatus, limit int) ([]*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE subscription_status=$1 ORDER BY updated_at DESC LIMIT $2;`
	return r.list(ctx, tx, q, string(status), clampLimit(limit, 100))
}

func (r *userRepo) ListByDevice(ctx context.Context, tx repository.Tx, fingerprint string, limit int) ([]*model.User, error) {
	if fingerprint == "" {
		return nil, domain.ErrInvalidArgument
	}
	const q = `SELECT ` + userColumns + ` FROM users WHERE device_fingerprint=$1 ORDER BY created_at ASC LIMIT $2;`
	return r.list(ctx, tx, q, fingerprint, clampLimit(limit, 1000))
}

func (r *userRepo) IsDeviceBlocked(ctx context.Context, tx repository.Tx, fingerprint string) (bool, error) {
	if fingerprint == "" {
		return false, nil
	}
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE device_fingerprint=$1 AND subscription_status='blocked');`
	row, err := pickRow(ctx, r.pool, tx, q, fingerprint)
	if err != nil {
		return false, err
	}
	var blocked bool
	if err := row.Scan(&blocked); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return blocked, nil
}

func (r *userRepo) ListLapsed(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.User, error) {
	const q = `
SELECT ` + userColumns + ` FROM users
 WHERE (subscription_status='active' AND NOT has_auto_renewal AND (subscription_expiry IS NULL OR subscription_expiry <= $1))
    OR (subscription_status='trial' AND trial_ends_at IS NOT NULL AND trial_ends_at <= $1)
 ORDER BY updated_at ASC
 LIMIT $2;`
	return r.list(ctx, tx, q, now, clampLimit(limit, 100))
}

func (r *userRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.User, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u      model.User
		status string
		risk   string
	)
	if err := row.Scan(
		&u.ID, &status, &u.SubscriptionExpiry, &u.HasAutoRenewal, &u.LastPaymentDate,
		&u.UPIMandateID, &u.TrialEndsAt, &risk, &u.DeviceFingerprint, &u.BlockedReason, &u.BlockedAt,
		&u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.SubscriptionStatus = model.SubscriptionStatus(status)
	u.SecurityRiskLevel = model.RiskLevel(risk)
	return &u, nil
}
