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

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct{ coll *mongo.Collection }

func NewUserRepo(db *mongo.Database) *userRepo {
	return &userRepo{coll: db.Collection(colUsers)}
}

func (r *userRepo) Create(ctx context.Context, tx repository.Tx, u *model.User) error {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return err
	}
	_, err = r.coll.InsertOne(ctx, toUserDoc(u))
	return mapWriteErr(err)
}

func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return err
	}
	_, err = r.coll.ReplaceOne(ctx, bson.M{"_id": u.ID}, toUserDoc(u), options.Replace().SetUpsert(true))
	return mapWriteErr(err)
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return nil, err
	}
	var d userDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		return nil, mapReadErr(err)
	}
	return d.model(), nil
}

func (r *userRepo) ListByRiskLevel(ctx context.Context, tx repository.Tx, level model.RiskLevel, limit int) ([]*model.User, error) {
	return r.list(ctx, tx, bson.M{"security_risk_level": string(level)}, bson.D{{Key: "updated_at", Value: -1}}, clampLimit(limit, 100))
}

func (r *userRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.SubscriptionStatus, limit int) ([]*model.User, error) {
	return r.list(ctx, tx, bson.M{"subscription_status": string(status)}, bson.D{{Key: "updated_at", Value: -1}}, clampLimit(limit, 100))
}

func (r *userRepo) ListByDevice(ctx context.Context, tx repository.Tx, fingerprint string, limit int) ([]*model.User, error) {
	if fingerprint == "" {
		return nil, domain.ErrInvalidArgument
	}
	return r.list(ctx, tx, bson.M{"device_fingerprint": fingerprint}, bson.D{{Key: "created_at", Value: 1}}, clampLimit(limit, 1000))
}

func (r *userRepo) IsDeviceBlocked(ctx context.Context, tx repository.Tx, fingerprint string) (bool, error) {
	if fingerprint == "" {
		return false, nil
	}
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return false, err
	}
	n, err := r.coll.CountDocuments(ctx, bson.M{
		"device_fingerprint":  fingerprint,
		"subscription_status": string(model.SubscriptionStatusBlocked),
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return n > 0, nil
}

func (r *userRepo) ListLapsed(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.User, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{
			"subscription_status": string(model.SubscriptionStatusActive),
			"has_auto_renewal":    false,
			"$or": bson.A{
				bson.M{"subscription_expiry": bson.M{"$exists": false}},
				bson.M{"subscription_expiry": bson.M{"$lte": now}},
			},
		},
		bson.M{
			"subscription_status": string(model.SubscriptionStatusTrial),
			"trial_ends_at":       bson.M{"$lte": now},
		},
	}}
	return r.list(ctx, tx, filter, bson.D{{Key: "updated_at", Value: 1}}, clampLimit(limit, 100))
}

func (r *userRepo) list(ctx context.Context, tx repository.Tx, filter any, sort bson.D, limit int64) ([]*model.User, error) {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return nil, err
	}
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(sort).SetLimit(limit))
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	out := make([]*model.User, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}
