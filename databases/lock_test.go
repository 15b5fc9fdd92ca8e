package databases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/parkpal/parkpal-api/databases"
	"github.com/parkpal/parkpal-api/databases/mocks"
)

func TestLockDatabase_TryAcquireLockFresh(t *testing.T) {
	db := &mocks.DatabaseHelper{}
	conn := &mocks.CollectionHelper{}

	conn.On("InsertOne", mock.Anything, mock.Anything).Return(&mocks.InsertOneResultHelper{}, nil)
	db.On("Collection", "booking_locks").Return(conn)

	lockDB := databases.NewLockDatabase(db, "booking_locks")
	acquired, err := lockDB.TryAcquireLock(context.Background(), "booking:listing:abc", "owner-1", 15*time.Second)

	assert.NoError(t, err)
	assert.True(t, acquired)
}

func TestLockDatabase_TryAcquireLockHeld(t *testing.T) {
	db := &mocks.DatabaseHelper{}
	conn := &mocks.CollectionHelper{}

	dupErr := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}
	conn.On("InsertOne", mock.Anything, mock.Anything).Return(nil, dupErr)
	// Steal attempt matches nothing because the holder's TTL has not expired
	conn.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{ModifiedCount: 0}, nil)
	db.On("Collection", "booking_locks").Return(conn)

	lockDB := databases.NewLockDatabase(db, "booking_locks")
	acquired, err := lockDB.TryAcquireLock(context.Background(), "booking:listing:abc", "owner-2", 15*time.Second)

	assert.NoError(t, err)
	assert.False(t, acquired)
}

func TestLockDatabase_TryAcquireLockStealsExpired(t *testing.T) {
	db := &mocks.DatabaseHelper{}
	conn := &mocks.CollectionHelper{}

	dupErr := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}
	conn.On("InsertOne", mock.Anything, mock.Anything).Return(nil, dupErr)
	conn.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{ModifiedCount: 1}, nil)
	db.On("Collection", "scheduler_locks").Return(conn)

	lockDB := databases.NewLockDatabase(db, "scheduler_locks")
	acquired, err := lockDB.TryAcquireLock(context.Background(), "pending_expiry_job", "owner-3", 10*time.Minute)

	assert.NoError(t, err)
	assert.True(t, acquired)
}

func TestLockDatabase_TryAcquireLockInsertError(t *testing.T) {
	db := &mocks.DatabaseHelper{}
	conn := &mocks.CollectionHelper{}

	conn.On("InsertOne", mock.Anything, mock.Anything).Return(nil, errors.New("mocked-error"))
	db.On("Collection", "booking_locks").Return(conn)

	lockDB := databases.NewLockDatabase(db, "booking_locks")
	acquired, err := lockDB.TryAcquireLock(context.Background(), "booking:listing:abc", "owner-4", 15*time.Second)

	assert.Error(t, err)
	assert.False(t, acquired, "non-duplicate errors never grant the lock")
}

func TestLockDatabase_ReleaseLock(t *testing.T) {
	db := &mocks.DatabaseHelper{}
	conn := &mocks.CollectionHelper{}

	conn.On("DeleteOne", mock.Anything, mock.Anything).Return(int64(1), nil)
	db.On("Collection", "booking_locks").Return(conn)

	lockDB := databases.NewLockDatabase(db, "booking_locks")
	err := lockDB.ReleaseLock(context.Background(), "booking:listing:abc", "owner-1")

	assert.NoError(t, err)
	conn.AssertCalled(t, "DeleteOne", mock.Anything, mock.Anything)
}
