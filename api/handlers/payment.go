package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/parkpal/parkpal-api/api"
	"github.com/parkpal/parkpal-api/config"
	"github.com/parkpal/parkpal-api/databases"
)

// Payment exported for testing purposes
type Payment struct {
	DB databases.PaymentDatabase
}

// PaymentByBookingIDHandler returns the payment record for a booking. Only the
// payer or the payee may read it. Status is read-only here; transitions happen
// exclusively through the Stripe webhook.
func (p Payment) PaymentByBookingIDHandler(w http.ResponseWriter, r *http.Request) {
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

	dbResp, err := p.DB.FindOne(ctx, bson.M{"bookingId": bID})
	if err != nil {
		config.ErrorStatus("failed to get payment by booking ID", http.StatusNotFound, w, err)
		return
	}
	if dbResp.PayerUserID.Hex() != session.UserID && dbResp.PayeeUserID.Hex() != session.UserID {
		config.ErrorStatus("only the payer or payee may view this payment", http.StatusForbidden, w,
			fmt.Errorf("user %s is neither payer nor payee", session.UserID))
		return
	}

	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}
