package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/parkpal/parkpal-api/api"
	"github.com/parkpal/parkpal-api/config"
	"github.com/parkpal/parkpal-api/databases"
	"github.com/parkpal/parkpal-api/models"
)

const bookingLockTTL = 15 * time.Second

// Booking exported for testing purposes
type Booking struct {
	DB        databases.BookingDatabase
	ListingDB databases.ListingDatabase
	PaymentDB databases.PaymentDatabase
	LockDB    databases.LockDatabase
	Payments  PaymentProvider
}

type createBookingRequest struct {
	ListingID   string    `json:"listingId"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	PlateNumber string    `json:"plateNumber"`
	PlateState  string    `json:"plateState"`
}

type createBookingResponse struct {
	Booking      models.Booking `json:"booking"`
	PaymentID    string         `json:"paymentId"`
	ClientSecret string         `json:"clientSecret"`
}

// intervalsOverlap reports whether [aStart, aEnd) intersects [bStart, bEnd).
// Half-open semantics: touching endpoints do not overlap.
func intervalsOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// totalPriceCents computes the booking price for a duration at an hourly rate,
// rounding to the nearest cent. 2.5 hours at $10/hour is exactly $25.00.
func totalPriceCents(hourlyPriceCents int64, duration time.Duration) int64 {
	minutes := int64(duration / time.Minute)
	return (hourlyPriceCents*minutes + 30) / 60
}

// withinAvailability reports whether both endpoints fall inside the listing's
// daily time-of-day window.
func withinAvailability(win models.AvailabilityWindow, start, end time.Time) bool {
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	if endMin == 0 {
		endMin = 24 * 60
	}
	return startMin >= win.StartMinute && endMin <= win.EndMinute
}

// CreateBookingHandler creates a pending booking and its payment intent. The
// overlap check and insert run under a per-listing advisory lock; if the lock
// or the check fails the request is rejected rather than letting a possibly
// conflicting booking through.
func (b Booking) CreateBookingHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := api.SessionFromContext(r.Context())
	if !ok {
		config.ErrorStatus("not authenticated", http.StatusUnauthorized, w, fmt.Errorf("missing session"))
		return
	}
	driverID, err := primitive.ObjectIDFromHex(session.UserID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	listingID, err := primitive.ObjectIDFromHex(req.ListingID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}
	if !req.StartTime.Before(req.EndTime) {
		config.ErrorStatus("start time must be before end time", http.StatusBadRequest, w,
			fmt.Errorf("start %v, end %v", req.StartTime, req.EndTime))
		return
	}
	if req.StartTime.Before(time.Now()) {
		config.ErrorStatus("start time must be in the future", http.StatusBadRequest, w,
			fmt.Errorf("start %v", req.StartTime))
		return
	}
	plate := normalizePlate(req.PlateNumber)
	if plate == "" {
		config.ErrorStatus("license plate is required", http.StatusBadRequest, w, fmt.Errorf("empty plate"))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	listing, err := b.ListingDB.FindOne(ctx, bson.M{"_id": listingID, "active": true})
	if err != nil {
		config.ErrorStatus("failed to get listing by ID", http.StatusNotFound, w, err)
		return
	}
	if !withinAvailability(listing.Availability, req.StartTime, req.EndTime) {
		config.ErrorStatus("requested interval is outside the listing availability window", http.StatusBadRequest, w,
			fmt.Errorf("window [%d, %d) minutes", listing.Availability.StartMinute, listing.Availability.EndMinute))
		return
	}

	// Serialize overlap-check-then-insert per listing. Without the lock two
	// concurrent bookers could both pass the check and double-book the slot.
	lockName := "booking:listing:" + listingID.Hex()
	lockOwner := uuid.New().String()
	acquired, err := b.LockDB.TryAcquireLock(ctx, lockName, lockOwner, bookingLockTTL)
	if err != nil {
		config.ErrorStatus("failed to reserve the listing for booking", http.StatusServiceUnavailable, w, err)
		return
	}
	if !acquired {
		config.ErrorStatus("another booking for this listing is in progress", http.StatusConflict, w,
			fmt.Errorf("listing %s is locked", listingID.Hex()))
		return
	}
	defer func() {
		if err := b.LockDB.ReleaseLock(ctx, lockName, lockOwner); err != nil {
			zap.S().Warnw("failed to release booking lock", "lock", lockName, "error", err)
		}
	}()

	existing, err := b.DB.FindOverlapping(ctx, listingID, req.StartTime, req.EndTime)
	if err != nil {
		// Fail closed: an unverifiable slot is treated as unavailable.
		config.ErrorStatus("failed to check for conflicting bookings", http.StatusServiceUnavailable, w, err)
		return
	}
	if len(existing) > 0 {
		config.ErrorStatus("the requested time conflicts with an existing booking", http.StatusConflict, w,
			fmt.Errorf("%d conflicting booking(s)", len(existing)))
		return
	}

	now := time.Now()
	booking := models.Booking{
		ID:              primitive.NewObjectID(),
		ListingID:       listingID,
		DriverUserID:    driverID,
		HostUserID:      listing.HostUserID,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		TotalPriceCents: totalPriceCents(listing.HourlyPriceCents, req.EndTime.Sub(req.StartTime)),
		Status:          models.BookingStatusPending,
		PlateNumber:     plate,
		PlateState:      normalizePlate(req.PlateState),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if _, err := b.DB.InsertOne(ctx, booking); err != nil {
		config.ErrorStatus("failed to create booking", http.StatusInternalServerError, w, err)
		return
	}

	// The intent is created server-side; the client only ever sees the
	// client secret Stripe hands back.
	intentID, clientSecret, err := b.Payments.CreateIntent(booking.TotalPriceCents, "usd", booking.ID.Hex(), booking.ID.Hex())
	if err != nil {
		zap.S().Errorw("failed to create payment intent, cancelling booking",
			"bookingId", booking.ID.Hex(), "error", err)
		_, _ = b.DB.UpdateOne(ctx, bson.M{"_id": booking.ID, "status": models.BookingStatusPending},
			bson.M{"$set": bson.M{"status": models.BookingStatusCancelled, "updatedAt": time.Now()}})
		config.ErrorStatus(userFacingPaymentError(err), http.StatusBadGateway, w, err)
		return
	}

	payment := models.Payment{
		ID:                    primitive.NewObjectID(),
		BookingID:             booking.ID,
		PayerUserID:           driverID,
		PayeeUserID:           listing.HostUserID,
		AmountCents:           booking.TotalPriceCents,
		Currency:              "usd",
		Status:                models.PaymentStatusPending,
		StripePaymentIntentID: intentID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if _, err := b.PaymentDB.InsertOne(ctx, payment); err != nil {
		// Without a payment row the webhook has nothing to confirm, so the
		// booking can never complete. Cancel it rather than stranding it.
		zap.S().Errorw("failed to record payment, cancelling booking",
			"bookingId", booking.ID.Hex(), "paymentIntentId", intentID, "error", err)
		_, _ = b.DB.UpdateOne(ctx, bson.M{"_id": booking.ID, "status": models.BookingStatusPending},
			bson.M{"$set": bson.M{"status": models.BookingStatusCancelled, "updatedAt": time.Now()}})
		config.ErrorStatus("failed to record payment", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(createBookingResponse{
		Booking:      booking,
		PaymentID:    payment.ID.Hex(),
		ClientSecret: clientSecret,
	})
}

// BookingByIDHandler returns a booking by ID. Only the booking's driver or
// host may read it; a booking carries the plate and both party ids.
func (b Booking) BookingByIDHandler(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["booking_id"]

	zap.S().Debugf("booking_id: %v", bookingID)

	bID, err := primitive.ObjectIDFromHex(bookingID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	session, ok := api.SessionFromContext(r.Context())
	if !ok {
		config.ErrorStatus("not authenticated", http.StatusUnauthorized, w, fmt.Errorf("missing session"))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dbResp, err := b.DB.FindOne(ctx, bson.M{"_id": bID})
	if err != nil {
		config.ErrorStatus("failed to get booking by ID", http.StatusNotFound, w, err)
		return
	}
	if dbResp.DriverUserID.Hex() != session.UserID && dbResp.HostUserID.Hex() != session.UserID {
		config.ErrorStatus("only the driver or host may view this booking", http.StatusForbidden, w,
			fmt.Errorf("user %s is neither driver nor host", session.UserID))
		return
	}

	respBytes, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(respBytes)
}

// BookingStatusHandler returns the read-only booking + payment status pair
// the client polls while the hosted payment flow is in flight
func (b Booking) BookingStatusHandler(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["booking_id"]

	bID, err := primitive.ObjectIDFromHex(bookingID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	session, ok := api.SessionFromContext(r.Context())
	if !ok {
		config.ErrorStatus("not authenticated", http.StatusUnauthorized, w, fmt.Errorf("missing session"))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	booking, err := b.DB.FindOne(ctx, bson.M{"_id": bID})
	if err != nil {
		config.ErrorStatus("failed to get booking by ID", http.StatusNotFound, w, err)
		return
	}
	if booking.DriverUserID.Hex() != session.UserID && booking.HostUserID.Hex() != session.UserID {
		config.ErrorStatus("only the driver or host may view this booking", http.StatusForbidden, w,
			fmt.Errorf("user %s is neither driver nor host", session.UserID))
		return
	}

	paymentStatus := ""
	if payment, err := b.PaymentDB.FindOne(ctx, bson.M{"bookingId": bID}); err == nil {
		paymentStatus = payment.Status
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(models.BookingStatusResponse{
		BookingID:     booking.ID.Hex(),
		Status:        booking.Status,
		PaymentStatus: paymentStatus,
	})
}

// CancelBookingHandler cancels a booking. Only the driver or the host may
// cancel, and only transitions permitted by the status table are applied.
// Cancelling a confirmed booking refunds the payment.
func (b Booking) CancelBookingHandler(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["booking_id"]

	bID, err := primitive.ObjectIDFromHex(bookingID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	session, ok := api.SessionFromContext(r.Context())
	if !ok {
		config.ErrorStatus("not authenticated", http.StatusUnauthorized, w, fmt.Errorf("missing session"))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	booking, err := b.DB.FindOne(ctx, bson.M{"_id": bID})
	if err != nil {
		config.ErrorStatus("failed to get booking by ID", http.StatusNotFound, w, err)
		return
	}
	if booking.DriverUserID.Hex() != session.UserID && booking.HostUserID.Hex() != session.UserID {
		config.ErrorStatus("only the driver or host may cancel this booking", http.StatusForbidden, w,
			fmt.Errorf("user %s is neither driver nor host", session.UserID))
		return
	}
	if !models.CanTransitionBooking(booking.Status, models.BookingStatusCancelled) {
		config.ErrorStatus("booking cannot be cancelled in its current status", http.StatusConflict, w,
			fmt.Errorf("status %s", booking.Status))
		return
	}

	wasConfirmed := booking.Status == models.BookingStatusConfirmed

	// Guard the status in the filter so a concurrent transition loses cleanly.
	res, err := b.DB.UpdateOne(ctx, bson.M{"_id": bID, "status": booking.Status},
		bson.M{"$set": bson.M{"status": models.BookingStatusCancelled, "updatedAt": time.Now()}})
	if err != nil {
		config.ErrorStatus("failed to cancel booking", http.StatusInternalServerError, w, err)
		return
	}
	if res.ModifiedCount == 0 {
		config.ErrorStatus("booking status changed concurrently", http.StatusConflict, w,
			fmt.Errorf("booking %s was not in status %s anymore", bID.Hex(), booking.Status))
		return
	}

	if wasConfirmed {
		payment, err := b.PaymentDB.FindOne(ctx, bson.M{"bookingId": bID})
		if err == nil && payment.Status == models.PaymentStatusCompleted {
			if err := b.Payments.RefundIntent(payment.StripePaymentIntentID); err != nil {
				// The booking is already cancelled; surface the refund failure
				// so support can retry it.
				zap.S().Errorw("failed to refund payment for cancelled booking",
					"bookingId", bID.Hex(), "paymentIntentId", payment.StripePaymentIntentID, "error", err)
			}
		}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Booking cancelled successfully",
	})
}

// BookingsByDriverIDHandler returns paginated bookings made by the given driver
func (b Booking) BookingsByDriverIDHandler(w http.ResponseWriter, r *http.Request) {
	b.bookingsByField(w, r, "driverUserId", mux.Vars(r)["driver_id"])
}

// BookingsByListingIDHandler returns paginated bookings on the given listing
func (b Booking) BookingsByListingIDHandler(w http.ResponseWriter, r *http.Request) {
	b.bookingsByField(w, r, "listingId", mux.Vars(r)["listing_id"])
}

// BookingsByHostIDHandler returns paginated bookings across the host's listings
func (b Booking) BookingsByHostIDHandler(w http.ResponseWriter, r *http.Request) {
	b.bookingsByField(w, r, "hostUserId", mux.Vars(r)["host_id"])
}

func (b Booking) bookingsByField(w http.ResponseWriter, r *http.Request, field, hexID string) {
	id, err := primitive.ObjectIDFromHex(hexID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}
	limit := getLimit(r)
	page := getPage(0, r)

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dbResp, err := b.DB.FindPaginated(ctx, bson.M{field: id}, limit, page+1)
	if err != nil {
		config.ErrorStatus("failed to get bookings", http.StatusNotFound, w, err)
		return
	}
	if len(dbResp) == 0 {
		dbResp = []models.Booking{}
	}
	respBytes, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(respBytes)
}
