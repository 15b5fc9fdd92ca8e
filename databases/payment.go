package databases

// go generate: mockery --name PaymentDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/parkpal/parkpal-api/models"
)

const paymentCollectionName = "payments"

// PaymentDatabase contains the methods to use with the payment database
type PaymentDatabase interface {
	FindOne(ctx context.Context, filter interface{}) (*models.Payment, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Payment, error)
	InsertOne(ctx context.Context, payment models.Payment) (InsertOneResultHelper, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

type paymentDatabase struct {
	db DatabaseHelper
}

// NewPaymentDatabase initializes a new instance of payment database with the provided db connection
func NewPaymentDatabase(db DatabaseHelper) PaymentDatabase {
	return &paymentDatabase{
		db: db,
	}
}

func (p *paymentDatabase) FindOne(ctx context.Context, filter interface{}) (*models.Payment, error) {
	payment := &models.Payment{}
	err := p.db.Collection(paymentCollectionName).FindOne(ctx, filter).Decode(&payment)
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func (p *paymentDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Payment, error) {
	cursor, err := p.db.Collection(paymentCollectionName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var payments []models.Payment
	if err := cursor.Decode(&payments); err != nil {
		return nil, err
	}
	return payments, nil
}

func (p *paymentDatabase) InsertOne(ctx context.Context, payment models.Payment) (InsertOneResultHelper, error) {
	return p.db.Collection(paymentCollectionName).InsertOne(ctx, payment)
}

func (p *paymentDatabase) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return p.db.Collection(paymentCollectionName).UpdateOne(ctx, filter, update, opts...)
}
