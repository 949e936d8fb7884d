package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/model"
	"upi-autopay-subscription/internal/domain/ports/repository"
)

var _ repository.MandateRepository = (*mandateRepo)(nil)

type mandateRepo struct{ pool *pgxpool.Pool }

func NewMandateRepo(pool *pgxpool.Pool) *mandateRepo {
	return &mandateRepo{pool: pool}
}

const mandateColumns = `id, user_id, upi_id, merchant_vpa, amount, currency, frequency, start_date, end_date, status,
  provider_payment_link_id, provider_subscription_id, approval_reference, short_url, upi_url, qr_payload,
  last_charged_date, next_charge_date, charge_attempts, last_event_at, cancelled_at, cancel_reason,
  created_at, updated_at, version`

func (r *mandateRepo) Create(ctx context.Context, tx repository.Tx, m *model.Mandate) error {
	attempts, err := encodeAttempts(m.ChargeAttempts)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO mandates (` + mandateColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25);`
	_, err = execSQL(ctx, r.pool, tx, q,
		m.ID, m.UserID, m.UPIID, m.MerchantVPA, m.Amount, m.Currency, string(m.Frequency), m.StartDate, m.EndDate, string(m.Status),
		nullString(m.ProviderPaymentLinkID), nullString(m.ProviderSubscriptionID), m.ApprovalReference, m.ShortURL, m.UPIURL, m.QRPayload,
		m.LastChargedDate, m.NextChargeDate, attempts, m.LastEventAt, m.CancelledAt, m.CancelReason,
		m.CreatedAt, m.UpdatedAt, m.Version,
	)
	return err
}

// Update writes every mutable column guarded by the version the caller read.
func (r *mandateRepo) Update(ctx context.Context, tx repository.Tx, m *model.Mandate) error {
	attempts, err := encodeAttempts(m.ChargeAttempts)
	if err != nil {
		return err
	}
	const q = `
UPDATE mandates SET
  status=$2, provider_payment_link_id=$3, provider_subscription_id=$4, approval_reference=$5,
  short_url=$6, upi_url=$7, qr_payload=$8, last_charged_date=$9, next_charge_date=$10,
  charge_attempts=$11, last_event_at=$12, cancelled_at=$13, cancel_reason=$14, end_date=$15,
  updated_at=$16, version=version+1
WHERE id=$1 AND version=$17;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		m.ID, string(m.Status), nullString(m.ProviderPaymentLinkID), nullString(m.ProviderSubscriptionID), m.ApprovalReference,
		m.ShortURL, m.UPIURL, m.QRPayload, m.LastChargedDate, m.NextChargeDate,
		attempts, m.LastEventAt, m.CancelledAt, m.CancelReason, m.EndDate,
		m.UpdatedAt, m.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, ferr := r.FindByID(ctx, tx, m.ID); ferr != nil {
			return ferr
		}
		return domain.ErrStaleRecord
	}
	m.Version++
	return nil
}

func (r *mandateRepo) Delete(ctx context.Context, tx repository.Tx, id string) (int64, error) {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM mandates WHERE id=$1;`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *mandateRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Mandate, error) {
	return r.findOne(ctx, tx, `SELECT `+mandateColumns+` FROM mandates WHERE id=$1`, id)
}

func (r *mandateRepo) FindByPaymentLinkID(ctx context.Context, tx repository.Tx, linkID string) (*model.Mandate, error) {
	if linkID == "" {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, tx, `SELECT `+mandateColumns+` FROM mandates WHERE provider_payment_link_id=$1`, linkID)
}

func (r *mandateRepo) FindBySubscriptionID(ctx context.Context, tx repository.Tx, subscriptionID string) (*model.Mandate, error) {
	if subscriptionID == "" {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, tx, `SELECT `+mandateColumns+` FROM mandates WHERE provider_subscription_id=$1`, subscriptionID)
}

func (r *mandateRepo) ListOpenByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Mandate, error) {
	const q = `SELECT ` + mandateColumns + ` FROM mandates
 WHERE user_id=$1 AND status IN ('PENDING','ACTIVE') ORDER BY created_at DESC;`
	return r.list(ctx, tx, q, userID)
}

func (r *mandateRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Mandate, error) {
	const q = `SELECT ` + mandateColumns + ` FROM mandates WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2;`
	return r.list(ctx, tx, q, userID, clampLimit(limit, 50))
}

func (r *mandateRepo) ListDue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Mandate, error) {
	const q = `SELECT ` + mandateColumns + ` FROM mandates
 WHERE status='ACTIVE' AND next_charge_date IS NOT NULL AND next_charge_date <= $1
 ORDER BY next_charge_date ASC LIMIT $2;`
	return r.list(ctx, tx, q, now, clampLimit(limit, 100))
}

func (r *mandateRepo) ListEnded(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Mandate, error) {
	const q = `SELECT ` + mandateColumns + ` FROM mandates
 WHERE status NOT IN ('CANCELLED','EXPIRED') AND end_date <= $1
 ORDER BY end_date ASC LIMIT $2;`
	return r.list(ctx, tx, q, now, clampLimit(limit, 100))
}

func (r *mandateRepo) findOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Mandate, error) {
	row, err := pickRow(ctx, r.pool, tx, forUpdate(q, tx), args...)
	if err != nil {
		return nil, err
	}
	m, err := scanMandate(row)
	if err != nil {
		return nil, mapReadErr(err)
	}
	return m, nil
}

func (r *mandateRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Mandate, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Mandate
	for rows.Next() {
		m, err := scanMandate(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanMandate(row pgx.Row) (*model.Mandate, error) {
	var (
		m                      model.Mandate
		frequency, status      string
		linkID, subscriptionID *string
		attempts               []byte
	)
	if err := row.Scan(
		&m.ID, &m.UserID, &m.UPIID, &m.MerchantVPA, &m.Amount, &m.Currency, &frequency, &m.StartDate, &m.EndDate, &status,
		&linkID, &subscriptionID, &m.ApprovalReference, &m.ShortURL, &m.UPIURL, &m.QRPayload,
		&m.LastChargedDate, &m.NextChargeDate, &attempts, &m.LastEventAt, &m.CancelledAt, &m.CancelReason,
		&m.CreatedAt, &m.UpdatedAt, &m.Version,
	); err != nil {
		return nil, err
	}
	m.Frequency = model.Frequency(frequency)
	m.Status = model.MandateStatus(status)
	m.ProviderPaymentLinkID = fromNull(linkID)
	m.ProviderSubscriptionID = fromNull(subscriptionID)
	if len(attempts) > 0 {
		if err := json.Unmarshal(attempts, &m.ChargeAttempts); err != nil {
			return nil, err
		}
	}
	if len(m.ChargeAttempts) == 0 {
		m.ChargeAttempts = nil
	}
	return &m, nil
}

func encodeAttempts(a []model.ChargeAttempt) (string, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return "", domain.ErrInvalidArgument
	}
	return string(b), nil
}
