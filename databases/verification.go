package databases

// go generate: mockery --name VerificationDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/parkpal/parkpal-api/models"
)

const verificationCollectionName = "license_plate_verifications"

// VerificationDatabase contains the methods to use with the license plate verification database
type VerificationDatabase interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.LicensePlateVerification, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.LicensePlateVerification, error)
	InsertOne(ctx context.Context, verification models.LicensePlateVerification) (InsertOneResultHelper, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

type verificationDatabase struct {
	db DatabaseHelper
}

// NewVerificationDatabase initializes a new instance of verification database with the provided db connection
func NewVerificationDatabase(db DatabaseHelper) VerificationDatabase {
	return &verificationDatabase{
		db: db,
	}
}

func (v *verificationDatabase) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.LicensePlateVerification, error) {
	verification := &models.LicensePlateVerification{}
	err := v.db.Collection(verificationCollectionName).FindOne(ctx, filter, opts...).Decode(&verification)
	if err != nil {
		return nil, err
	}
	return verification, nil
}

func (v *verificationDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.LicensePlateVerification, error) {
	cursor, err := v.db.Collection(verificationCollectionName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var verifications []models.LicensePlateVerification
	if err := cursor.Decode(&verifications); err != nil {
		return nil, err
	}
	return verifications, nil
}

func (v *verificationDatabase) InsertOne(ctx context.Context, verification models.LicensePlateVerification) (InsertOneResultHelper, error) {
	return v.db.Collection(verificationCollectionName).InsertOne(ctx, verification)
}

func (v *verificationDatabase) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return v.db.Collection(verificationCollectionName).UpdateOne(ctx, filter, update, opts...)
}
