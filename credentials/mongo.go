package credentials

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"payment-gateway-service/models"
)

const collectionName = "gateway_credentials"

// MongoStore reads credentials from the gateway_credentials collection
type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore creates the lookup index and returns the store
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	collection := db.Collection(collectionName)
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "gatewayId", Value: 1}, {Key: "environment", Value: 1}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create gatewayId index failed")
	}
	return &MongoStore{collection: collection}, nil
}

// Select returns the active credentials of gatewayID
func (s *MongoStore) Select(ctx context.Context, gatewayID string) ([]models.GatewayCredential, error) {
	cursor, err := s.collection.Find(ctx,
		bson.D{{Key: "gatewayId", Value: gatewayID}, {Key: "active", Value: true}},
		options.Find().SetSort(bson.D{{Key: "environment", Value: 1}}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "find credentials of %s failed", gatewayID)
	}
	defer cursor.Close(ctx)

	var creds []models.GatewayCredential
	if err := cursor.All(ctx, &creds); err != nil {
		return nil, errors.Wrapf(err, "decode credentials of %s failed", gatewayID)
	}
	return creds, nil
}
