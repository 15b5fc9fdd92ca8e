package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/parkpal/parkpal-api/api"
	"github.com/parkpal/parkpal-api/config"
	"github.com/parkpal/parkpal-api/databases"
	"github.com/parkpal/parkpal-api/models"
)

// Verification exported for testing purposes
type Verification struct {
	DB        databases.VerificationDatabase
	BookingDB databases.BookingDatabase
}

// normalizePlate uppercases a plate number and strips all whitespace. The
// result is stable under repeated application, so stored and submitted plates
// always compare in the same form.
func normalizePlate(plate string) string {
	return strings.ToUpper(strings.Join(strings.Fields(plate), ""))
}

// comparePlates scores an observed plate against the plate registered on the
// booking. An exact plate and state match scores 1.0; a plate match with a
// differing state is a partial match recorded as disputed at 0.5 for the host
// to settle; anything else scores 0.
func comparePlates(observedPlate, observedState, bookingPlate, bookingState string) (status string, confidence float64) {
	if normalizePlate(observedPlate) == normalizePlate(bookingPlate) {
		if strings.EqualFold(strings.TrimSpace(observedState), strings.TrimSpace(bookingState)) {
			return models.VerificationStatusVerified, 1.0
		}
		return models.VerificationStatusDisputed, 0.5
	}
	return models.VerificationStatusFailed, 0
}

type verifyPlateRequest struct {
	PlateNumber string `json:"plateNumber"`
	PlateState  string `json:"plateState"`
	VerifiedBy  string `json:"verifiedBy"`
	Method      string `json:"method"`
	Notes       string `json:"notes"`
}

// VerifyPlateHandler records a plate observation against a booking and scores
// it against the plate registered at booking time
func (v Verification) VerifyPlateHandler(w http.ResponseWriter, r *http.Request) {
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

	var req verifyPlateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if normalizePlate(req.PlateNumber) == "" {
		config.ErrorStatus("plate number is required", http.StatusBadRequest, w, fmt.Errorf("empty plate number"))
		return
	}
	if !models.ValidVerifiedBy(req.VerifiedBy) {
		config.ErrorStatus("invalid verifiedBy value", http.StatusBadRequest, w, fmt.Errorf("got %q", req.VerifiedBy))
		return
	}
	if !models.ValidVerificationMethod(req.Method) {
		config.ErrorStatus("invalid verification method", http.StatusBadRequest, w, fmt.Errorf("got %q", req.Method))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	booking, err := v.BookingDB.FindOne(ctx, bson.M{"_id": bID})
	if err != nil {
		config.ErrorStatus("failed to get booking by ID", http.StatusNotFound, w, err)
		return
	}
	if booking.HostUserID.Hex() != session.UserID && booking.DriverUserID.Hex() != session.UserID {
		config.ErrorStatus("only the booking host or driver may verify plates", http.StatusForbidden, w,
			fmt.Errorf("user %s is neither host nor driver", session.UserID))
		return
	}

	status, confidence := comparePlates(req.PlateNumber, req.PlateState, booking.PlateNumber, booking.PlateState)

	verification := models.LicensePlateVerification{
		ID:                 primitive.NewObjectID(),
		BookingID:          bID,
		PlateNumber:        normalizePlate(req.PlateNumber),
		PlateState:         strings.ToUpper(strings.TrimSpace(req.PlateState)),
		VerificationStatus: status,
		Confidence:         confidence,
		VerifiedBy:         req.VerifiedBy,
		Method:             req.Method,
		Notes:              req.Notes,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}

	if _, err := v.DB.InsertOne(ctx, verification); err != nil {
		config.ErrorStatus("failed to record verification", http.StatusInternalServerError, w, err)
		return
	}

	zap.S().Infow("plate verification recorded",
		"bookingId", bID.Hex(),
		"status", status,
		"confidence", confidence,
	)

	b, err := json.Marshal(verification)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	w.Write(b)
}

// VerificationsByBookingIDHandler returns all verification attempts for a
// booking, newest first
func (v Verification) VerificationsByBookingIDHandler(w http.ResponseWriter, r *http.Request) {
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

	booking, err := v.BookingDB.FindOne(ctx, bson.M{"_id": bID})
	if err != nil {
		config.ErrorStatus("failed to get booking by ID", http.StatusNotFound, w, err)
		return
	}
	if booking.HostUserID.Hex() != session.UserID && booking.DriverUserID.Hex() != session.UserID {
		config.ErrorStatus("only the booking host or driver may view verifications", http.StatusForbidden, w,
			fmt.Errorf("user %s is neither host nor driver", session.UserID))
		return
	}

	dbResp, err := v.DB.Find(ctx, bson.M{"bookingId": bID},
		&options.FindOptions{Sort: bson.M{"createdAt": -1}})
	if err != nil {
		config.ErrorStatus("failed to get verifications by booking ID", http.StatusNotFound, w, err)
		return
	}
	if len(dbResp) == 0 {
		dbResp = []models.LicensePlateVerification{}
	}

	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

type manualOverrideRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// ManualOverrideHandler lets the booking host settle a disputed or mis-scored
// verification by hand
func (v Verification) ManualOverrideHandler(w http.ResponseWriter, r *http.Request) {
	verificationID := mux.Vars(r)["verification_id"]

	vID, err := primitive.ObjectIDFromHex(verificationID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	session, ok := api.SessionFromContext(r.Context())
	if !ok {
		config.ErrorStatus("not authenticated", http.StatusUnauthorized, w, fmt.Errorf("missing session"))
		return
	}

	var req manualOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if req.Status != models.VerificationStatusVerified && req.Status != models.VerificationStatusFailed {
		config.ErrorStatus("override status must be verified or failed", http.StatusBadRequest, w,
			fmt.Errorf("got %q", req.Status))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	verification, err := v.DB.FindOne(ctx, bson.M{"_id": vID})
	if err != nil {
		config.ErrorStatus("failed to get verification by ID", http.StatusNotFound, w, err)
		return
	}

	booking, err := v.BookingDB.FindOne(ctx, bson.M{"_id": verification.BookingID})
	if err != nil {
		config.ErrorStatus("failed to get booking by ID", http.StatusNotFound, w, err)
		return
	}
	if booking.HostUserID.Hex() != session.UserID {
		config.ErrorStatus("only the booking host may override a verification", http.StatusForbidden, w,
			fmt.Errorf("user %s is not the host", session.UserID))
		return
	}

	if _, err := v.DB.UpdateOne(ctx, bson.M{"_id": vID}, bson.M{"$set": bson.M{
		"verificationStatus": req.Status,
		"notes":              req.Notes,
		"verifiedBy":         models.VerifiedByHost,
		"method":             models.VerificationMethodManual,
		"updatedAt":          time.Now(),
	}}); err != nil {
		config.ErrorStatus("failed to update verification", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Verification updated successfully",
	})
}
