package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/model"
	"upi-autopay-subscription/internal/domain/ports/repository"
)

var _ repository.WebhookEventRepository = (*webhookEventRepo)(nil)

type webhookEventRepo struct{ coll *mongo.Collection }

func NewWebhookEventRepo(db *mongo.Database) *webhookEventRepo {
	return &webhookEventRepo{coll: db.Collection(colWebhookEvents)}
}

func (r *webhookEventRepo) Exists(ctx context.Context, tx repository.Tx, key string) (bool, error) {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return false, err
	}
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": key}, options.Count().SetLimit(1))
	if err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return n > 0, nil
}

func (r *webhookEventRepo) Record(ctx context.Context, tx repository.Tx, ev *model.WebhookEvent) error {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return err
	}
	_, err = r.coll.InsertOne(ctx, webhookEventDoc{
		Key: ev.Key, Event: ev.Event, EntityID: ev.EntityID, EventAt: ev.EventAt, ReceivedAt: ev.ReceivedAt,
	})
	return mapWriteErr(err)
}

var _ repository.ReconciliationRepository = (*reconciliationRepo)(nil)

type reconciliationRepo struct{ coll *mongo.Collection }

func NewReconciliationRepo(db *mongo.Database) *reconciliationRepo {
	return &reconciliationRepo{coll: db.Collection(colReconciliations)}
}

func toReconciliationDoc(t *model.ReconciliationTask) reconciliationDoc {
	return reconciliationDoc{
		ID: t.ID, Kind: string(t.Kind), MandateID: t.MandateID, ProviderSubscriptionID: t.ProviderSubscriptionID,
		Status: string(t.Status), Attempts: t.Attempts, LastError: t.LastError, CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
	}
}

func (r *reconciliationRepo) Create(ctx context.Context, tx repository.Tx, t *model.ReconciliationTask) error {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return err
	}
	_, err = r.coll.InsertOne(ctx, toReconciliationDoc(t))
	return mapWriteErr(err)
}

func (r *reconciliationRepo) Update(ctx context.Context, tx repository.Tx, t *model.ReconciliationTask) error {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return err
	}
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": t.ID}, toReconciliationDoc(t))
	if err != nil {
		return mapWriteErr(err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *reconciliationRepo) ListPending(ctx context.Context, tx repository.Tx, limit int) ([]*model.ReconciliationTask, error) {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(clampLimit(limit, 50))
	cur, err := r.coll.Find(ctx, bson.M{"status": string(model.ReconciliationPending)}, opts)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	var docs []reconciliationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	out := make([]*model.ReconciliationTask, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}
