package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// EnsureIndexes creates the uniqueness and lookup indexes the repositories depend on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	stringField := func(name string) bson.M {
		return bson.M{name: bson.M{"$type": "string"}}
	}
	specs := map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "security_risk_level", Value: 1}}},
			{Keys: bson.D{{Key: "subscription_status", Value: 1}}},
			{Keys: bson.D{{Key: "device_fingerprint", Value: 1}}, Options: options.Index().SetPartialFilterExpression(stringField("device_fingerprint"))},
		},
		colMandates: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetName("uq_one_open_per_user").SetUnique(true).SetPartialFilterExpression(bson.M{"open": true}),
			},
			{Keys: bson.D{{Key: "provider_payment_link_id", Value: 1}}, Options: options.Index().SetUnique(true).SetPartialFilterExpression(stringField("provider_payment_link_id"))},
			{Keys: bson.D{{Key: "provider_subscription_id", Value: 1}}, Options: options.Index().SetUnique(true).SetPartialFilterExpression(stringField("provider_subscription_id"))},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "next_charge_date", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "end_date", Value: 1}}},
		},
		colPayments: {
			{Keys: bson.D{{Key: "provider_payment_id", Value: 1}}, Options: options.Index().SetUnique(true).SetPartialFilterExpression(stringField("provider_payment_id"))},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colReconciliations: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
	for coll, models := range specs {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}
