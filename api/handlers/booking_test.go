package handlers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/parkpal/parkpal-api/api/handlers"
	"github.com/parkpal/parkpal-api/databases"
	"github.com/parkpal/parkpal-api/databases/mocks"
	"github.com/parkpal/parkpal-api/models"
)

type fakePaymentProvider struct {
	createErr error
	refundErr error
	refunded  []string
}

func (f *fakePaymentProvider) CreateIntent(amountCents int64, currency, bookingID, idempotencyKey string) (string, string, error) {
	if f.createErr != nil {
		return "", "", f.createErr
	}
	return "pi_test_123", "pi_test_123_secret", nil
}

func (f *fakePaymentProvider) RefundIntent(intentID string) error {
	f.refunded = append(f.refunded, intentID)
	return f.refundErr
}

type bookingMocks struct {
	db          *MockDatabaseHelper
	listingConn *mocks.CollectionHelper
	bookingConn *mocks.CollectionHelper
	lockConn    *mocks.CollectionHelper
	paymentConn *mocks.CollectionHelper
}

func newBookingMocks() bookingMocks {
	bm := bookingMocks{
		db:          &MockDatabaseHelper{},
		listingConn: &mocks.CollectionHelper{},
		bookingConn: &mocks.CollectionHelper{},
		lockConn:    &mocks.CollectionHelper{},
		paymentConn: &mocks.CollectionHelper{},
	}
	bm.db.On("Collection", "listings").Return(bm.listingConn)
	bm.db.On("Collection", "bookings").Return(bm.bookingConn)
	bm.db.On("Collection", "booking_locks").Return(bm.lockConn)
	bm.db.On("Collection", "payments").Return(bm.paymentConn)
	return bm
}

func (bm bookingMocks) handler(payments handlers.PaymentProvider) handlers.Booking {
	return handlers.Booking{
		DB:        databases.NewBookingDatabase(bm.db),
		ListingDB: databases.NewListingDatabase(bm.db),
		PaymentDB: databases.NewPaymentDatabase(bm.db),
		LockDB:    databases.NewLockDatabase(bm.db, "booking_locks"),
		Payments:  payments,
	}
}

func (bm bookingMocks) withListing(listingID, hostID primitive.ObjectID) {
	singleResultHelper := &mocks.SingleResultHelper{}
	singleResultHelper.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Listing)
		(*arg).ID = listingID
		(*arg).HostUserID = hostID
		(*arg).HourlyPriceCents = 1000
		(*arg).Availability = models.AvailabilityWindow{StartMinute: 0, EndMinute: 24 * 60}
		(*arg).Active = true
	})
	bm.listingConn.On("FindOne", mock.Anything, mock.Anything).Return(singleResultHelper)
}

func (bm bookingMocks) withLockAcquired() {
	bm.lockConn.On("InsertOne", mock.Anything, mock.Anything).Return(&mocks.InsertOneResultHelper{}, nil)
	bm.lockConn.On("DeleteOne", mock.Anything, mock.Anything).Return(int64(1), nil)
}

func (bm bookingMocks) withOverlapping(bookings []models.Booking) {
	cursor := &mocks.CursorHelper{}
	cursor.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(*[]models.Booking)
		*arg = bookings
	})
	bm.bookingConn.On("Find", mock.Anything, mock.Anything).Return(cursor, nil)
}

func createBookingRequestBody(t *testing.T, listingID primitive.ObjectID) *bytes.Reader {
	t.Helper()
	start := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
	body, err := json.Marshal(map[string]interface{}{
		"listingId":   listingID.Hex(),
		"startTime":   start,
		"endTime":     start.Add(150 * time.Minute),
		"plateNumber": "abc 123",
		"plateState":  "CA",
	})
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(body)
}

func TestBooking_CreateBookingHandlerSuccess(t *testing.T) {
	listingID := primitive.NewObjectID()
	hostID := primitive.NewObjectID()
	driverID := primitive.NewObjectID()

	req, err := http.NewRequest("POST", "/api/v1/booking", createBookingRequestBody(t, listingID))
	if err != nil {
		t.Fatal(err)
	}
	req = sessionRequest(req, driverID)

	bm := newBookingMocks()
	bm.withListing(listingID, hostID)
	bm.withLockAcquired()
	bm.withOverlapping(nil)
	bm.bookingConn.On("InsertOne", mock.Anything, mock.Anything).Return(&mocks.InsertOneResultHelper{}, nil)

	var savedPayment models.Payment
	bm.paymentConn.On("InsertOne", mock.Anything, mock.Anything).
		Return(&mocks.InsertOneResultHelper{}, nil).
		Run(func(args mock.Arguments) {
			savedPayment = args.Get(1).(models.Payment)
		})

	b := bm.handler(&fakePaymentProvider{})

	rr := httptest.NewRecorder()
	http.HandlerFunc(b.CreateBookingHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)

	var resp struct {
		Booking      models.Booking `json:"booking"`
		PaymentID    string         `json:"paymentId"`
		ClientSecret string         `json:"clientSecret"`
	}
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, models.BookingStatusPending, resp.Booking.Status)
	assert.Equal(t, int64(2500), resp.Booking.TotalPriceCents, "2.5 hours at $10/hour")
	assert.Equal(t, "ABC123", resp.Booking.PlateNumber)
	assert.Equal(t, "pi_test_123_secret", resp.ClientSecret)

	assert.Equal(t, models.PaymentStatusPending, savedPayment.Status)
	assert.Equal(t, "pi_test_123", savedPayment.StripePaymentIntentID)
	assert.Equal(t, driverID, savedPayment.PayerUserID)
	assert.Equal(t, hostID, savedPayment.PayeeUserID)
}

func TestBooking_CreateBookingHandlerConflict(t *testing.T) {
	listingID := primitive.NewObjectID()

	req, err := http.NewRequest("POST", "/api/v1/booking", createBookingRequestBody(t, listingID))
	if err != nil {
		t.Fatal(err)
	}
	req = sessionRequest(req, primitive.NewObjectID())

	bm := newBookingMocks()
	bm.withListing(listingID, primitive.NewObjectID())
	bm.withLockAcquired()
	bm.withOverlapping([]models.Booking{{ID: primitive.NewObjectID(), Status: models.BookingStatusConfirmed}})

	b := bm.handler(&fakePaymentProvider{})

	rr := httptest.NewRecorder()
	http.HandlerFunc(b.CreateBookingHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	bm.bookingConn.AssertNotCalled(t, "InsertOne", mock.Anything, mock.Anything)
}

func TestBooking_CreateBookingHandlerOverlapCheckFailsClosed(t *testing.T) {
	listingID := primitive.NewObjectID()

	req, err := http.NewRequest("POST", "/api/v1/booking", createBookingRequestBody(t, listingID))
	if err != nil {
		t.Fatal(err)
	}
	req = sessionRequest(req, primitive.NewObjectID())

	bm := newBookingMocks()
	bm.withListing(listingID, primitive.NewObjectID())
	bm.withLockAcquired()
	bm.bookingConn.On("Find", mock.Anything, mock.Anything).Return(nil, errors.New("mocked-error"))

	b := bm.handler(&fakePaymentProvider{})

	rr := httptest.NewRecorder()
	http.HandlerFunc(b.CreateBookingHandler).ServeHTTP(rr, req)

	// An unverifiable slot is treated as unavailable, never as free
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	bm.bookingConn.AssertNotCalled(t, "InsertOne", mock.Anything, mock.Anything)
}

func TestBooking_CreateBookingHandlerLockHeld(t *testing.T) {
	listingID := primitive.NewObjectID()

	req, err := http.NewRequest("POST", "/api/v1/booking", createBookingRequestBody(t, listingID))
	if err != nil {
		t.Fatal(err)
	}
	req = sessionRequest(req, primitive.NewObjectID())

	bm := newBookingMocks()
	bm.withListing(listingID, primitive.NewObjectID())

	// Another instance holds a live lock: insert hits the unique index and the
	// steal update matches nothing.
	dupErr := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}
	bm.lockConn.On("InsertOne", mock.Anything, mock.Anything).Return(nil, dupErr)
	bm.lockConn.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{ModifiedCount: 0}, nil)

	b := bm.handler(&fakePaymentProvider{})

	rr := httptest.NewRecorder()
	http.HandlerFunc(b.CreateBookingHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	bm.bookingConn.AssertNotCalled(t, "Find", mock.Anything, mock.Anything)
}

func TestBooking_CreateBookingHandlerPaymentIntentFailureCancelsBooking(t *testing.T) {
	listingID := primitive.NewObjectID()

	req, err := http.NewRequest("POST", "/api/v1/booking", createBookingRequestBody(t, listingID))
	if err != nil {
		t.Fatal(err)
	}
	req = sessionRequest(req, primitive.NewObjectID())

	bm := newBookingMocks()
	bm.withListing(listingID, primitive.NewObjectID())
	bm.withLockAcquired()
	bm.withOverlapping(nil)
	bm.bookingConn.On("InsertOne", mock.Anything, mock.Anything).Return(&mocks.InsertOneResultHelper{}, nil)
	bm.bookingConn.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{ModifiedCount: 1}, nil)

	b := bm.handler(&fakePaymentProvider{createErr: errors.New("stripe is down")})

	rr := httptest.NewRecorder()
	http.HandlerFunc(b.CreateBookingHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	bm.bookingConn.AssertCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
	bm.paymentConn.AssertNotCalled(t, "InsertOne", mock.Anything, mock.Anything)
}

func TestBooking_CreateBookingHandlerPaymentRecordFailureCancelsBooking(t *testing.T) {
	listingID := primitive.NewObjectID()

	req, err := http.NewRequest("POST", "/api/v1/booking", createBookingRequestBody(t, listingID))
	if err != nil {
		t.Fatal(err)
	}
	req = sessionRequest(req, primitive.NewObjectID())

	bm := newBookingMocks()
	bm.withListing(listingID, primitive.NewObjectID())
	bm.withLockAcquired()
	bm.withOverlapping(nil)
	bm.bookingConn.On("InsertOne", mock.Anything, mock.Anything).Return(&mocks.InsertOneResultHelper{}, nil)

	var set bson.M
	bm.bookingConn.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{ModifiedCount: 1}, nil).
		Run(func(args mock.Arguments) {
			set = args.Get(2).(bson.M)["$set"].(bson.M)
		})
	bm.paymentConn.On("InsertOne", mock.Anything, mock.Anything).Return(nil, errors.New("mocked-error"))

	b := bm.handler(&fakePaymentProvider{})

	rr := httptest.NewRecorder()
	http.HandlerFunc(b.CreateBookingHandler).ServeHTTP(rr, req)

	// Without a payment row the webhook can never confirm the booking, so the
	// handler must not leave it pending.
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, models.BookingStatusCancelled, set["status"])
}

func TestBooking_BookingStatusHandler(t *testing.T) {
	bookingID := primitive.NewObjectID()
	driverID := primitive.NewObjectID()

	req, err := http.NewRequest("GET", "/api/v1/booking/"+bookingID.Hex()+"/status", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"booking_id": bookingID.Hex()})
	req = sessionRequest(req, driverID)

	bm := newBookingMocks()

	bookingResult := &mocks.SingleResultHelper{}
	bookingResult.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Booking)
		(*arg).ID = bookingID
		(*arg).DriverUserID = driverID
		(*arg).HostUserID = primitive.NewObjectID()
		(*arg).Status = models.BookingStatusPending
	})
	bm.bookingConn.On("FindOne", mock.Anything, mock.Anything).Return(bookingResult)

	paymentResult := &mocks.SingleResultHelper{}
	paymentResult.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Payment)
		(*arg).BookingID = bookingID
		(*arg).Status = models.PaymentStatusProcessing
	})
	bm.paymentConn.On("FindOne", mock.Anything, mock.Anything).Return(paymentResult)

	b := bm.handler(&fakePaymentProvider{})

	rr := httptest.NewRecorder()
	http.HandlerFunc(b.BookingStatusHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp models.BookingStatusResponse
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, bookingID.Hex(), resp.BookingID)
	assert.Equal(t, models.BookingStatusPending, resp.Status)
	assert.Equal(t, models.PaymentStatusProcessing, resp.PaymentStatus)
}

func TestBooking_BookingStatusHandlerStrangerForbidden(t *testing.T) {
	bookingID := primitive.NewObjectID()

	req, err := http.NewRequest("GET", "/api/v1/booking/"+bookingID.Hex()+"/status", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"booking_id": bookingID.Hex()})
	req = sessionRequest(req, primitive.NewObjectID())

	bm := newBookingMocks()

	bookingResult := &mocks.SingleResultHelper{}
	bookingResult.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Booking)
		(*arg).ID = bookingID
		(*arg).DriverUserID = primitive.NewObjectID()
		(*arg).HostUserID = primitive.NewObjectID()
		(*arg).Status = models.BookingStatusPending
	})
	bm.bookingConn.On("FindOne", mock.Anything, mock.Anything).Return(bookingResult)

	b := bm.handler(&fakePaymentProvider{})

	rr := httptest.NewRecorder()
	http.HandlerFunc(b.BookingStatusHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	bm.paymentConn.AssertNotCalled(t, "FindOne", mock.Anything, mock.Anything)
}

func TestBooking_BookingByIDHandlerStrangerForbidden(t *testing.T) {
	bookingID := primitive.NewObjectID()

	req, err := http.NewRequest("GET", "/api/v1/booking/"+bookingID.Hex(), nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"booking_id": bookingID.Hex()})
	req = sessionRequest(req, primitive.NewObjectID())

	bm := newBookingMocks()

	bookingResult := &mocks.SingleResultHelper{}
	bookingResult.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Booking)
		(*arg).ID = bookingID
		(*arg).DriverUserID = primitive.NewObjectID()
		(*arg).HostUserID = primitive.NewObjectID()
		(*arg).PlateNumber = "ABC123"
	})
	bm.bookingConn.On("FindOne", mock.Anything, mock.Anything).Return(bookingResult)

	b := bm.handler(&fakePaymentProvider{})

	rr := httptest.NewRecorder()
	http.HandlerFunc(b.BookingByIDHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.NotContains(t, rr.Body.String(), "ABC123")
}

func TestBooking_BookingByIDHandlerHostMayView(t *testing.T) {
	bookingID := primitive.NewObjectID()
	hostID := primitive.NewObjectID()

	req, err := http.NewRequest("GET", "/api/v1/booking/"+bookingID.Hex(), nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"booking_id": bookingID.Hex()})
	req = sessionRequest(req, hostID)

	bm := newBookingMocks()

	bookingResult := &mocks.SingleResultHelper{}
	bookingResult.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Booking)
		(*arg).ID = bookingID
		(*arg).DriverUserID = primitive.NewObjectID()
		(*arg).HostUserID = hostID
		(*arg).Status = models.BookingStatusConfirmed
	})
	bm.bookingConn.On("FindOne", mock.Anything, mock.Anything).Return(bookingResult)

	b := bm.handler(&fakePaymentProvider{})

	rr := httptest.NewRecorder()
	http.HandlerFunc(b.BookingByIDHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp models.Booking
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, bookingID, resp.ID)
}

func TestBooking_CancelBookingHandlerCompletedBookingRejected(t *testing.T) {
	bookingID := primitive.NewObjectID()
	driverID := primitive.NewObjectID()

	req, err := http.NewRequest("DELETE", "/api/v1/booking/"+bookingID.Hex(), nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"booking_id": bookingID.Hex()})
	req = sessionRequest(req, driverID)

	bm := newBookingMocks()

	bookingResult := &mocks.SingleResultHelper{}
	bookingResult.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Booking)
		(*arg).ID = bookingID
		(*arg).DriverUserID = driverID
		(*arg).HostUserID = primitive.NewObjectID()
		(*arg).Status = models.BookingStatusCompleted
	})
	bm.bookingConn.On("FindOne", mock.Anything, mock.Anything).Return(bookingResult)

	b := bm.handler(&fakePaymentProvider{})

	rr := httptest.NewRecorder()
	http.HandlerFunc(b.CancelBookingHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	bm.bookingConn.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestBooking_CancelBookingHandlerConfirmedTriggersRefund(t *testing.T) {
	bookingID := primitive.NewObjectID()
	driverID := primitive.NewObjectID()

	req, err := http.NewRequest("DELETE", "/api/v1/booking/"+bookingID.Hex(), nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"booking_id": bookingID.Hex()})
	req = sessionRequest(req, driverID)

	bm := newBookingMocks()

	bookingResult := &mocks.SingleResultHelper{}
	bookingResult.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Booking)
		(*arg).ID = bookingID
		(*arg).DriverUserID = driverID
		(*arg).HostUserID = primitive.NewObjectID()
		(*arg).Status = models.BookingStatusConfirmed
	})
	bm.bookingConn.On("FindOne", mock.Anything, mock.Anything).Return(bookingResult)
	bm.bookingConn.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{ModifiedCount: 1}, nil)

	paymentResult := &mocks.SingleResultHelper{}
	paymentResult.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Payment)
		(*arg).BookingID = bookingID
		(*arg).Status = models.PaymentStatusCompleted
		(*arg).StripePaymentIntentID = "pi_refund_me"
	})
	bm.paymentConn.On("FindOne", mock.Anything, mock.Anything).Return(paymentResult)

	payments := &fakePaymentProvider{}
	b := bm.handler(payments)

	rr := httptest.NewRecorder()
	http.HandlerFunc(b.CancelBookingHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"pi_refund_me"}, payments.refunded)
}
