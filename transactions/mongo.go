package transactions

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"payment-gateway-service/gateways"
	"payment-gateway-service/models"
)

const collectionName = "payment_transactions"

// document stores amounts in minor units so refunds can be applied with a conditional $inc
type document struct {
	TransactionID string    `bson:"transactionId"`
	GatewayID     string    `bson:"gatewayId"`
	InvoiceID     string    `bson:"invoiceId"`
	AmountMinor   int64     `bson:"amountMinor"`
	Currency      string    `bson:"currency"`
	Status        string    `bson:"status"`
	FeeMinor      int64     `bson:"feeMinor"`
	RefundedMinor int64     `bson:"refundedMinor"`
	CreatedAt     time.Time `bson:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

func toDocument(r Record) document {
	return document{
		TransactionID: r.TransactionID,
		GatewayID:     r.GatewayID,
		InvoiceID:     r.InvoiceID,
		AmountMinor:   gateways.ToMinor(r.Amount, r.Currency),
		Currency:      r.Currency,
		Status:        string(r.Status),
		FeeMinor:      gateways.ToMinor(r.ProcessingFee, r.Currency),
		RefundedMinor: gateways.ToMinor(r.RefundedAmount, r.Currency),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (d document) record() *Record {
	return &Record{
		TransactionID:  d.TransactionID,
		GatewayID:      d.GatewayID,
		InvoiceID:      d.InvoiceID,
		Amount:         gateways.FromMinor(d.AmountMinor, d.Currency),
		Currency:       d.Currency,
		Status:         models.PaymentStatus(d.Status),
		ProcessingFee:  gateways.FromMinor(d.FeeMinor, d.Currency),
		RefundedAmount: gateways.FromMinor(d.RefundedMinor, d.Currency),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// MongoStore keeps records in the payment_transactions collection
type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore creates the unique transactionId index and returns the store
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	collection := db.Collection(collectionName)
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "transactionId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create transactionId index failed")
	}
	return &MongoStore{collection: collection}, nil
}

// Save inserts rec
func (s *MongoStore) Save(ctx context.Context, rec Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if _, err := s.collection.InsertOne(ctx, toDocument(rec)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return errors.Wrapf(err, "insert transaction %s failed", rec.TransactionID)
	}
	return nil
}

// Get returns the record of transactionID
func (s *MongoStore) Get(ctx context.Context, transactionID string) (*Record, error) {
	var doc document
	err := s.collection.FindOne(ctx, bson.D{{Key: "transactionId", Value: transactionID}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "find transaction %s failed", transactionID)
	}
	return doc.record(), nil
}

// UpdateStatus sets the status of transactionID
func (s *MongoStore) UpdateStatus(ctx context.Context, transactionID string, status models.PaymentStatus) error {
	res, err := s.collection.UpdateOne(ctx,
		bson.D{{Key: "transactionId", Value: transactionID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "status", Value: string(status)},
			{Key: "updatedAt", Value: time.Now().UTC()},
		}}},
	)
	if err != nil {
		return errors.Wrapf(err, "update transaction %s failed", transactionID)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordRefund increments the refunded total only while it stays within the charged
// amount, in a single findAndModify.
func (s *MongoStore) RecordRefund(ctx context.Context, transactionID string, amount decimal.Decimal) (*Record, error) {
	current, err := s.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	minor := gateways.ToMinor(amount, current.Currency)

	filter := bson.D{
		{Key: "transactionId", Value: transactionID},
		{Key: "$expr", Value: bson.D{{Key: "$lte", Value: bson.A{
			bson.D{{Key: "$add", Value: bson.A{"$refundedMinor", minor}}},
			"$amountMinor",
		}}}},
	}
	update := bson.D{
		{Key: "$inc", Value: bson.D{{Key: "refundedMinor", Value: minor}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}},
	}

	var doc document
	err = s.collection.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRefundExceedsTotal
		}
		return nil, errors.Wrapf(err, "record refund of %s failed", transactionID)
	}
	return doc.record(), nil
}
