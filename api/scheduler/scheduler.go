package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/parkpal/parkpal-api/databases"
	"github.com/parkpal/parkpal-api/models"
)

const defaultPendingTTL = 30 * time.Minute

// Scheduler handles periodic background jobs for booking lifecycle maintenance
type Scheduler struct {
	cron       *cron.Cron
	BookingDB  databases.BookingDatabase
	PaymentDB  databases.PaymentDatabase
	LockDB     databases.LockDatabase
	pendingTTL time.Duration
	instanceID string
}

// NewScheduler creates a new scheduler instance. pendingTTL is the duration a
// booking may sit in pending before the expiry job cancels it; an empty or
// unparseable value falls back to 30m.
func NewScheduler(
	bookingDB databases.BookingDatabase,
	paymentDB databases.PaymentDatabase,
	lockDB databases.LockDatabase,
	pendingTTL string,
) *Scheduler {
	// Generate a unique instance ID for this pod
	instanceID := os.Getenv("DYNO") // Heroku sets this to "web.1", "web.2", etc.
	if instanceID == "" {
		instanceID = fmt.Sprintf("instance-%d", time.Now().UnixNano())
	}

	ttl, err := time.ParseDuration(pendingTTL)
	if err != nil || ttl <= 0 {
		if pendingTTL != "" {
			zap.S().Warnw("invalid pending booking TTL, using default",
				"value", pendingTTL, "default", defaultPendingTTL)
		}
		ttl = defaultPendingTTL
	}

	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		BookingDB:  bookingDB,
		PaymentDB:  paymentDB,
		LockDB:     lockDB,
		pendingTTL: ttl,
		instanceID: instanceID,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() {
	// Expire stale pending bookings every 10 minutes
	_, err := s.cron.AddFunc("*/10 * * * *", s.expirePendingBookings)
	if err != nil {
		zap.S().Errorw("failed to register pending expiry job", "error", err)
	}

	// Complete confirmed bookings whose end time has passed, hourly
	_, err = s.cron.AddFunc("0 * * * *", s.completeFinishedBookings)
	if err != nil {
		zap.S().Errorw("failed to register booking completion job", "error", err)
	}

	s.cron.Start()
	zap.S().Info("Booking scheduler started")
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("Booking scheduler stopped")
}

// expirePendingBookings cancels bookings that never saw a successful payment
// within the pending TTL and fails their payment records, freeing the slot for
// other drivers
func (s *Scheduler) expirePendingBookings() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	acquired, err := s.LockDB.TryAcquireLock(ctx, "pending_expiry_job", s.instanceID, 10*time.Minute)
	if err != nil {
		zap.S().Errorw("failed to acquire lock for pending expiry job", "error", err)
		return
	}
	if !acquired {
		zap.S().Debug("Pending expiry job already running on another instance, skipping")
		return
	}
	defer s.LockDB.ReleaseLock(ctx, "pending_expiry_job", s.instanceID)

	cutoff := time.Now().Add(-s.pendingTTL)
	zap.S().Infow("Running pending booking expiry job", "instance", s.instanceID, "cutoff", cutoff)

	stale, err := s.BookingDB.Find(ctx, bson.M{
		"status":    models.BookingStatusPending,
		"createdAt": bson.M{"$lt": cutoff},
	})
	if err != nil {
		zap.S().Errorw("failed to find stale pending bookings", "error", err)
		return
	}

	expired := 0
	for _, booking := range stale {
		// Guard on status so a payment that confirms mid-sweep wins.
		res, err := s.BookingDB.UpdateOne(ctx,
			bson.M{"_id": booking.ID, "status": models.BookingStatusPending},
			bson.M{"$set": bson.M{"status": models.BookingStatusCancelled, "updatedAt": time.Now()}})
		if err != nil {
			zap.S().Errorw("failed to cancel stale booking", "bookingId", booking.ID.Hex(), "error", err)
			continue
		}
		if res.ModifiedCount == 0 {
			continue
		}
		expired++

		if _, err := s.PaymentDB.UpdateOne(ctx,
			bson.M{"bookingId": booking.ID, "status": models.PaymentStatusPending},
			bson.M{"$set": bson.M{"status": models.PaymentStatusFailed, "updatedAt": time.Now()}}); err != nil {
			zap.S().Errorw("failed to fail payment for stale booking", "bookingId", booking.ID.Hex(), "error", err)
		}
	}

	zap.S().Infow("Pending booking expiry complete", "candidates", len(stale), "expired", expired)
}

// completeFinishedBookings transitions confirmed bookings past their end time
// to completed
func (s *Scheduler) completeFinishedBookings() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	acquired, err := s.LockDB.TryAcquireLock(ctx, "booking_completion_job", s.instanceID, 10*time.Minute)
	if err != nil {
		zap.S().Errorw("failed to acquire lock for booking completion job", "error", err)
		return
	}
	if !acquired {
		zap.S().Debug("Booking completion job already running on another instance, skipping")
		return
	}
	defer s.LockDB.ReleaseLock(ctx, "booking_completion_job", s.instanceID)

	now := time.Now()
	res, err := s.BookingDB.UpdateMany(ctx,
		bson.M{
			"status":  models.BookingStatusConfirmed,
			"endTime": bson.M{"$lt": now},
		},
		bson.M{"$set": bson.M{"status": models.BookingStatusCompleted, "updatedAt": now}})
	if err != nil {
		zap.S().Errorw("failed to complete finished bookings", "error", err)
		return
	}

	if res.ModifiedCount > 0 {
		zap.S().Infow("Completed finished bookings", "count", res.ModifiedCount)
	}
}
