package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/model"
	"upi-autopay-subscription/internal/domain/ports/repository"
)

var _ repository.MandateRepository = (*mandateRepo)(nil)

type mandateRepo struct{ coll *mongo.Collection }

func NewMandateRepo(db *mongo.Database) *mandateRepo {
	return &mandateRepo{coll: db.Collection(colMandates)}
}

func (r *mandateRepo) Create(ctx context.Context, tx repository.Tx, m *model.Mandate) error {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return err
	}
	_, err = r.coll.InsertOne(ctx, toMandateDoc(m))
	return mapWriteErr(err)
}

// Update replaces the document only if it still carries the version the caller read.
func (r *mandateRepo) Update(ctx context.Context, tx repository.Tx, m *model.Mandate) error {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return err
	}
	doc := toMandateDoc(m)
	doc.Version = m.Version + 1
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": m.ID, "version": m.Version}, doc)
	if err != nil {
		return mapWriteErr(err)
	}
	if res.MatchedCount == 0 {
		if _, ferr := r.FindByID(ctx, nil, m.ID); ferr != nil {
			return ferr
		}
		return domain.ErrStaleRecord
	}
	m.Version++
	return nil
}

func (r *mandateRepo) Delete(ctx context.Context, tx repository.Tx, id string) (int64, error) {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return 0, err
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, mapWriteErr(err)
	}
	return res.DeletedCount, nil
}

func (r *mandateRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Mandate, error) {
	return r.findOne(ctx, tx, bson.M{"_id": id})
}

func (r *mandateRepo) FindByPaymentLinkID(ctx context.Context, tx repository.Tx, linkID string) (*model.Mandate, error) {
	if linkID == "" {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, tx, bson.M{"provider_payment_link_id": linkID})
}

func (r *mandateRepo) FindBySubscriptionID(ctx context.Context, tx repository.Tx, subscriptionID string) (*model.Mandate, error) {
	if subscriptionID == "" {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, tx, bson.M{"provider_subscription_id": subscriptionID})
}

func (r *mandateRepo) ListOpenByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Mandate, error) {
	return r.list(ctx, tx, bson.M{"user_id": userID, "open": true}, bson.D{{Key: "created_at", Value: -1}}, 0)
}

func (r *mandateRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Mandate, error) {
	return r.list(ctx, tx, bson.M{"user_id": userID}, bson.D{{Key: "created_at", Value: -1}}, clampLimit(limit, 50))
}

func (r *mandateRepo) ListDue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Mandate, error) {
	filter := bson.M{
		"status":           string(model.MandateStatusActive),
		"next_charge_date": bson.M{"$lte": now},
	}
	return r.list(ctx, tx, filter, bson.D{{Key: "next_charge_date", Value: 1}}, clampLimit(limit, 100))
}

func (r *mandateRepo) ListEnded(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Mandate, error) {
	filter := bson.M{
		"status":   bson.M{"$nin": bson.A{string(model.MandateStatusCancelled), string(model.MandateStatusExpired)}},
		"end_date": bson.M{"$lte": now},
	}
	return r.list(ctx, tx, filter, bson.D{{Key: "end_date", Value: 1}}, clampLimit(limit, 100))
}

func (r *mandateRepo) findOne(ctx context.Context, tx repository.Tx, filter bson.M) (*model.Mandate, error) {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return nil, err
	}
	var d mandateDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&d); err != nil {
		return nil, mapReadErr(err)
	}
	return d.model(), nil
}

func (r *mandateRepo) list(ctx context.Context, tx repository.Tx, filter bson.M, sort bson.D, limit int64) ([]*model.Mandate, error) {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	var docs []mandateDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	out := make([]*model.Mandate, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}
