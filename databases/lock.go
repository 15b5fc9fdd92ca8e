package databases

// go generate: mockery --name LockDatabase

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/parkpal/parkpal-api/models"
)

// LockDatabase hands out short-lived advisory locks backed by a mongo
// collection. The unique _id index makes acquisition atomic, which is what
// serializes the overlap-check-then-insert sequence in booking creation and
// keeps scheduler jobs single-instance.
type LockDatabase interface {
	TryAcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, owner string) error
}

type lockDatabase struct {
	db         DatabaseHelper
	collection string
}

// NewLockDatabase initializes a lock database over the given collection
func NewLockDatabase(db DatabaseHelper, collection string) LockDatabase {
	return &lockDatabase{db: db, collection: collection}
}

func (l *lockDatabase) TryAcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := time.Now()
	lock := models.AdvisoryLock{
		ID:        name,
		Owner:     owner,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	_, err := l.db.Collection(l.collection).InsertOne(ctx, lock)
	if err == nil {
		return true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return false, err
	}

	// A lock document exists. Steal it only if it has expired.
	res, err := l.db.Collection(l.collection).UpdateOne(ctx,
		bson.M{"_id": name, "expiresAt": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"owner": owner, "expiresAt": now.Add(ttl), "createdAt": now}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (l *lockDatabase) ReleaseLock(ctx context.Context, name, owner string) error {
	_, err := l.db.Collection(l.collection).DeleteOne(ctx, bson.M{"_id": name, "owner": owner})
	return err
}
