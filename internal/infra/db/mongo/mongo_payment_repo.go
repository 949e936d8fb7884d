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

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ coll *mongo.Collection }

func NewPaymentRepo(db *mongo.Database) *paymentRepo {
	return &paymentRepo{coll: db.Collection(colPayments)}
}

func (r *paymentRepo) Create(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return err
	}
	_, err = r.coll.InsertOne(ctx, toPaymentDoc(p))
	return mapWriteErr(err)
}

func (r *paymentRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	return r.findOne(ctx, tx, bson.M{"_id": id})
}

func (r *paymentRepo) FindByProviderPaymentID(ctx context.Context, tx repository.Tx, providerPaymentID string) (*model.Payment, error) {
	if providerPaymentID == "" {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, tx, bson.M{"provider_payment_id": providerPaymentID})
}

func (r *paymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Payment, error) {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(clampLimit(limit, 20))
	cur, err := r.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	var docs []paymentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	out := make([]*model.Payment, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (r *paymentRepo) MarkRefunded(ctx context.Context, tx repository.Tx, transactionID string, at time.Time) (bool, error) {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return false, err
	}
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": transactionID, "status": string(model.PaymentStatusCompleted)},
		bson.M{"$set": bson.M{"status": string(model.PaymentStatusRefunded), "refunded_at": at, "updated_at": at}},
	)
	if err != nil {
		return false, mapWriteErr(err)
	}
	return res.ModifiedCount > 0, nil
}

func (r *paymentRepo) findOne(ctx context.Context, tx repository.Tx, filter bson.M) (*model.Payment, error) {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return nil, err
	}
	var d paymentDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&d); err != nil {
		return nil, mapReadErr(err)
	}
	return d.model(), nil
}
