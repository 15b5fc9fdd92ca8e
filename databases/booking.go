package databases

// go generate: mockery --name BookingDatabase

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/parkpal/parkpal-api/models"
)

const bookingCollectionName = "bookings"

// BookingDatabase contains the methods to use with the booking database
type BookingDatabase interface {
	FindOne(ctx context.Context, filter interface{}) (*models.Booking, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Booking, error)
	FindPaginated(ctx context.Context, filter interface{}, limit, page int) ([]models.Booking, error)
	FindOverlapping(ctx context.Context, listingID primitive.ObjectID, start, end time.Time) ([]models.Booking, error)
	InsertOne(ctx context.Context, booking models.Booking) (InsertOneResultHelper, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	UpdateMany(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

type bookingDatabase struct {
	db DatabaseHelper
}

// NewBookingDatabase initializes a new instance of booking database with the provided db connection
func NewBookingDatabase(db DatabaseHelper) BookingDatabase {
	return &bookingDatabase{
		db: db,
	}
}

func (b *bookingDatabase) FindOne(ctx context.Context, filter interface{}) (*models.Booking, error) {
	booking := &models.Booking{}
	err := b.db.Collection(bookingCollectionName).FindOne(ctx, filter).Decode(&booking)
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (b *bookingDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Booking, error) {
	cursor, err := b.db.Collection(bookingCollectionName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var bookings []models.Booking
	if err := cursor.Decode(&bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (b *bookingDatabase) FindPaginated(ctx context.Context, filter interface{}, limit, page int) ([]models.Booking, error) {
	return b.Find(ctx, filter, newMongoPaginate(limit, page).getPaginatedOpts())
}

// FindOverlapping returns bookings on the listing that intersect the half-open
// candidate interval [start, end). Touching endpoints do not intersect. Only
// pending and confirmed bookings block a slot.
func (b *bookingDatabase) FindOverlapping(ctx context.Context, listingID primitive.ObjectID, start, end time.Time) ([]models.Booking, error) {
	return b.Find(ctx, bson.M{
		"listingId": listingID,
		"status":    bson.M{"$in": []string{models.BookingStatusPending, models.BookingStatusConfirmed}},
		"startTime": bson.M{"$lt": end},
		"endTime":   bson.M{"$gt": start},
	})
}

func (b *bookingDatabase) InsertOne(ctx context.Context, booking models.Booking) (InsertOneResultHelper, error) {
	return b.db.Collection(bookingCollectionName).InsertOne(ctx, booking)
}

func (b *bookingDatabase) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return b.db.Collection(bookingCollectionName).UpdateOne(ctx, filter, update, opts...)
}

func (b *bookingDatabase) UpdateMany(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return b.db.Collection(bookingCollectionName).UpdateMany(ctx, filter, update, opts...)
}

func (b *bookingDatabase) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	return b.db.Collection(bookingCollectionName).CountDocuments(ctx, filter, opts...)
}
