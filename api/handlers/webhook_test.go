package handlers_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stripe/stripe-go/v82"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/parkpal/parkpal-api/api/handlers"
	"github.com/parkpal/parkpal-api/databases"
	"github.com/parkpal/parkpal-api/databases/mocks"
	"github.com/parkpal/parkpal-api/models"
)

// signedStripeHeader builds a Stripe-Signature header the way Stripe signs
// deliveries, so ConstructEvent accepts the test payload.
func signedStripeHeader(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// ConstructEvent rejects events pinned to a different API version, so the
// payload has to carry the SDK's own.
func paymentFailedPayload() []byte {
	return []byte(fmt.Sprintf(
		`{"api_version":%q,"type":"payment_intent.payment_failed","data":{"object":{"id":"pi_declined_1"}}}`,
		stripe.APIVersion))
}

func TestStripeWebhook_HandleWebhookRejectsBadSignature(t *testing.T) {
	payload := []byte(`{"type":"payment_intent.succeeded"}`)
	req, err := http.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")

	wh := handlers.StripeWebhook{Secret: "whsec_test"}

	rr := httptest.NewRecorder()
	http.HandlerFunc(wh.HandleWebhook).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStripeWebhook_PaymentFailedMarksPaymentFailed(t *testing.T) {
	const secret = "whsec_test"
	paymentID := primitive.NewObjectID()

	singleResultHelper := &mocks.SingleResultHelper{}
	singleResultHelper.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Payment)
		(*arg).ID = paymentID
		(*arg).BookingID = primitive.NewObjectID()
		(*arg).Status = models.PaymentStatusPending
		(*arg).StripePaymentIntentID = "pi_declined_1"
	})
	paymentConn := &mocks.CollectionHelper{}
	paymentConn.On("FindOne", mock.Anything, mock.Anything).Return(singleResultHelper)

	var set bson.M
	paymentConn.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{ModifiedCount: 1}, nil).
		Run(func(args mock.Arguments) {
			set = args.Get(2).(bson.M)["$set"].(bson.M)
		})

	db := &MockDatabaseHelper{}
	db.On("Collection", "payments").Return(paymentConn)

	wh := handlers.StripeWebhook{
		Secret:    secret,
		PaymentDB: databases.NewPaymentDatabase(db),
	}

	payload := paymentFailedPayload()
	req, err := http.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Stripe-Signature", signedStripeHeader(payload, secret))

	rr := httptest.NewRecorder()
	http.HandlerFunc(wh.HandleWebhook).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.PaymentStatusFailed, set["status"])
	paymentConn.AssertCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestStripeWebhook_PaymentFailedRedeliveryIsIdempotent(t *testing.T) {
	const secret = "whsec_test"

	singleResultHelper := &mocks.SingleResultHelper{}
	singleResultHelper.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Payment)
		(*arg).ID = primitive.NewObjectID()
		(*arg).Status = models.PaymentStatusFailed
		(*arg).StripePaymentIntentID = "pi_declined_1"
	})
	paymentConn := &mocks.CollectionHelper{}
	paymentConn.On("FindOne", mock.Anything, mock.Anything).Return(singleResultHelper)

	db := &MockDatabaseHelper{}
	db.On("Collection", "payments").Return(paymentConn)

	wh := handlers.StripeWebhook{
		Secret:    secret,
		PaymentDB: databases.NewPaymentDatabase(db),
	}

	payload := paymentFailedPayload()
	req, err := http.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Stripe-Signature", signedStripeHeader(payload, secret))

	rr := httptest.NewRecorder()
	http.HandlerFunc(wh.HandleWebhook).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	paymentConn.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestStripeWebhook_HandleWebhookRejectsMissingSignature(t *testing.T) {
	req, err := http.NewRequest("POST", "/webhooks/stripe", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatal(err)
	}

	wh := handlers.StripeWebhook{Secret: "whsec_test"}

	rr := httptest.NewRecorder()
	http.HandlerFunc(wh.HandleWebhook).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
