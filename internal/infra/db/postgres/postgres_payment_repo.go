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

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `transaction_id, user_id, provider_payment_id, amount, currency, status, metadata,
  validated_at, refunded_at, created_at, updated_at`

func (r *paymentRepo) Create(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO payments (transaction_id, user_id, provider_payment_id, amount, currency, status, kind, metadata,
  validated_at, refunded_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`
	_, err = execSQL(ctx, r.pool, tx, q,
		p.TransactionID, p.UserID, nullString(p.ProviderPaymentID), p.Amount, p.Currency, string(p.Status),
		string(p.Metadata.Kind), string(meta), p.ValidatedAt, p.RefundedAt, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (r *paymentRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	return r.findOne(ctx, tx, `SELECT `+paymentColumns+` FROM payments WHERE transaction_id=$1`, id)
}

func (r *paymentRepo) FindByProviderPaymentID(ctx context.Context, tx repository.Tx, providerPaymentID string) (*model.Payment, error) {
	if providerPaymentID == "" {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, tx, `SELECT `+paymentColumns+` FROM payments WHERE provider_payment_id=$1`, providerPaymentID)
}

func (r *paymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, clampLimit(limit, 20))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

// MarkRefunded is the only permitted mutation of a final payment.
func (r *paymentRepo) MarkRefunded(ctx context.Context, tx repository.Tx, transactionID string, at time.Time) (bool, error) {
	const q = `UPDATE payments SET status='refunded', refunded_at=$2, updated_at=$2 WHERE transaction_id=$1 AND status='completed';`
	tag, err := execSQL(ctx, r.pool, tx, q, transactionID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *paymentRepo) findOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Payment, error) {
	row, err := pickRow(ctx, r.pool, tx, forUpdate(q, tx), args...)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if err != nil {
		return nil, mapReadErr(err)
	}
	return p, nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var (
		p          model.Payment
		providerID *string
		status     string
		meta       []byte
	)
	if err := row.Scan(
		&p.TransactionID, &p.UserID, &providerID, &p.Amount, &p.Currency, &status, &meta,
		&p.ValidatedAt, &p.RefundedAt, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.ProviderPaymentID = fromNull(providerID)
	p.Status = model.PaymentStatus(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &p.Metadata); err != nil {
			return nil, err
		}
	}
	return &p, nil
}
