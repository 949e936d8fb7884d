package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/model"
	"upi-autopay-subscription/internal/domain/ports/repository"
)

var _ repository.WebhookEventRepository = (*webhookEventRepo)(nil)

type webhookEventRepo struct{ pool *pgxpool.Pool }

func NewWebhookEventRepo(pool *pgxpool.Pool) *webhookEventRepo {
	return &webhookEventRepo{pool: pool}
}

func (r *webhookEventRepo) Exists(ctx context.Context, tx repository.Tx, key string) (bool, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT EXISTS (SELECT 1 FROM webhook_events WHERE key=$1);`, key)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return ok, nil
}

func (r *webhookEventRepo) Record(ctx context.Context, tx repository.Tx, ev *model.WebhookEvent) error {
	const q = `INSERT INTO webhook_events (key, event, entity_id, event_at, received_at) VALUES ($1,$2,$3,$4,$5);`
	_, err := execSQL(ctx, r.pool, tx, q, ev.Key, ev.Event, ev.EntityID, ev.EventAt, ev.ReceivedAt)
	return err
}

var _ repository.ReconciliationRepository = (*reconciliationRepo)(nil)

type reconciliationRepo struct{ pool *pgxpool.Pool }

func NewReconciliationRepo(pool *pgxpool.Pool) *reconciliationRepo {
	return &reconciliationRepo{pool: pool}
}

func (r *reconciliationRepo) Create(ctx context.Context, tx repository.Tx, t *model.ReconciliationTask) error {
	const q = `
INSERT INTO reconciliation_tasks (id, kind, mandate_id, provider_subscription_id, status, attempts, last_error, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`
	_, err := execSQL(ctx, r.pool, tx, q, t.ID, string(t.Kind), t.MandateID, t.ProviderSubscriptionID,
		string(t.Status), t.Attempts, t.LastError, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r *reconciliationRepo) Update(ctx context.Context, tx repository.Tx, t *model.ReconciliationTask) error {
	const q = `UPDATE reconciliation_tasks SET status=$2, attempts=$3, last_error=$4, updated_at=$5 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, t.ID, string(t.Status), t.Attempts, t.LastError, t.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *reconciliationRepo) ListPending(ctx context.Context, tx repository.Tx, limit int) ([]*model.ReconciliationTask, error) {
	const q = `
SELECT id, kind, mandate_id, provider_subscription_id, status, attempts, last_error, created_at, updated_at
  FROM reconciliation_tasks WHERE status='pending' ORDER BY created_at ASC LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, clampLimit(limit, 50))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ReconciliationTask
	for rows.Next() {
		var (
			t            model.ReconciliationTask
			kind, status string
		)
		if err := rows.Scan(&t.ID, &kind, &t.MandateID, &t.ProviderSubscriptionID, &status, &t.Attempts, &t.LastError, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		t.Kind = model.ReconciliationKind(kind)
		t.Status = model.ReconciliationStatus(status)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
