package databases

// go generate: mockery --name ListingDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/parkpal/parkpal-api/models"
)

const listingCollectionName = "listings"

// ListingDatabase contains the methods to use with the listing database
type ListingDatabase interface {
	FindOne(ctx context.Context, filter interface{}) (*models.Listing, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Listing, error)
	InsertOne(ctx context.Context, listing models.Listing) (InsertOneResultHelper, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (int64, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

type listingDatabase struct {
	db DatabaseHelper
}

// NewListingDatabase initializes a new instance of listing database with the provided db connection
func NewListingDatabase(db DatabaseHelper) ListingDatabase {
	return &listingDatabase{
		db: db,
	}
}

func (l *listingDatabase) FindOne(ctx context.Context, filter interface{}) (*models.Listing, error) {
	listing := &models.Listing{}
	err := l.db.Collection(listingCollectionName).FindOne(ctx, filter).Decode(&listing)
	if err != nil {
		return nil, err
	}
	return listing, nil
}

func (l *listingDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Listing, error) {
	cursor, err := l.db.Collection(listingCollectionName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var listings []models.Listing
	if err := cursor.Decode(&listings); err != nil {
		return nil, err
	}
	return listings, nil
}

func (l *listingDatabase) InsertOne(ctx context.Context, listing models.Listing) (InsertOneResultHelper, error) {
	return l.db.Collection(listingCollectionName).InsertOne(ctx, listing)
}

func (l *listingDatabase) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return l.db.Collection(listingCollectionName).UpdateOne(ctx, filter, update, opts...)
}

func (l *listingDatabase) DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (int64, error) {
	return l.db.Collection(listingCollectionName).DeleteOne(ctx, filter, opts...)
}

func (l *listingDatabase) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	return l.db.Collection(listingCollectionName).CountDocuments(ctx, filter, opts...)
}
