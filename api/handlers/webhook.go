package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/parkpal/parkpal-api/databases"
	"github.com/parkpal/parkpal-api/models"
)

// StripeWebhook finalizes payment and booking state from authenticated Stripe
// events. This is the only path that marks a payment completed; client-reported
// success is never trusted.
type StripeWebhook struct {
	Secret    string
	BookingDB databases.BookingDatabase
	PaymentDB databases.PaymentDatabase
	UserDB    databases.UserDatabase
}

// HandleWebhook verifies the event signature and applies the matching state
// transition
func (h StripeWebhook) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const maxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		zap.S().Errorw("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.Secret)
	if err != nil {
		zap.S().Errorw("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			zap.S().Errorw("failed to parse payment_intent.succeeded", "error", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := h.handlePaymentSucceeded(r, pi.ID); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			zap.S().Errorw("failed to parse payment_intent.payment_failed", "error", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := h.handlePaymentFailed(r, pi.ID); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			zap.S().Errorw("failed to parse charge.refunded", "error", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if charge.PaymentIntent != nil && charge.PaymentIntent.ID != "" {
			if err := h.handleChargeRefunded(r, charge.PaymentIntent.ID); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
		}

	default:
		zap.S().Debugf("unhandled webhook event type: %s", event.Type)
	}

	w.WriteHeader(http.StatusOK)
}

func (h StripeWebhook) handlePaymentSucceeded(r *http.Request, intentID string) error {
	ctx := r.Context()

	payment, err := h.PaymentDB.FindOne(ctx, bson.M{"stripePaymentIntentId": intentID})
	if err != nil {
		zap.S().Errorw("no payment found for intent", "paymentIntentId", intentID, "error", err)
		return err
	}
	if !models.CanTransitionPayment(payment.Status, models.PaymentStatusCompleted) {
		// Stripe retries deliveries; an already-completed payment is fine.
		zap.S().Infow("ignoring payment_intent.succeeded for non-transitionable payment",
			"paymentId", payment.ID.Hex(), "status", payment.Status)
		return nil
	}

	if _, err := h.PaymentDB.UpdateOne(ctx,
		bson.M{"_id": payment.ID, "status": payment.Status},
		bson.M{"$set": bson.M{"status": models.PaymentStatusCompleted, "updatedAt": time.Now()}}); err != nil {
		zap.S().Errorw("failed to mark payment completed", "paymentId", payment.ID.Hex(), "error", err)
		return err
	}

	booking, err := h.BookingDB.FindOne(ctx, bson.M{"_id": payment.BookingID})
	if err != nil {
		zap.S().Errorw("failed to load booking for completed payment", "bookingId", payment.BookingID.Hex(), "error", err)
		return err
	}
	if models.CanTransitionBooking(booking.Status, models.BookingStatusConfirmed) {
		if _, err := h.BookingDB.UpdateOne(ctx,
			bson.M{"_id": booking.ID, "status": booking.Status},
			bson.M{"$set": bson.M{"status": models.BookingStatusConfirmed, "updatedAt": time.Now()}}); err != nil {
			zap.S().Errorw("failed to confirm booking", "bookingId", booking.ID.Hex(), "error", err)
			return err
		}
	}

	if driver, err := h.UserDB.FindOne(ctx, bson.M{"_id": booking.DriverUserID}); err == nil {
		go sendBookingConfirmationEmail(driver.Email, driver.Name, *booking)
	}

	zap.S().Infow("booking confirmed",
		"bookingId", booking.ID.Hex(),
		"paymentId", payment.ID.Hex(),
	)
	return nil
}

func (h StripeWebhook) handlePaymentFailed(r *http.Request, intentID string) error {
	ctx := r.Context()

	payment, err := h.PaymentDB.FindOne(ctx, bson.M{"stripePaymentIntentId": intentID})
	if err != nil {
		zap.S().Errorw("no payment found for failed intent", "paymentIntentId", intentID, "error", err)
		return err
	}
	if !models.CanTransitionPayment(payment.Status, models.PaymentStatusFailed) {
		zap.S().Infow("ignoring payment_intent.payment_failed for non-transitionable payment",
			"paymentId", payment.ID.Hex(), "status", payment.Status)
		return nil
	}

	if _, err := h.PaymentDB.UpdateOne(ctx,
		bson.M{"_id": payment.ID, "status": payment.Status},
		bson.M{"$set": bson.M{"status": models.PaymentStatusFailed, "updatedAt": time.Now()}}); err != nil {
		zap.S().Errorw("failed to mark payment failed", "paymentId", payment.ID.Hex(), "error", err)
		return err
	}

	// The booking stays pending: the client can retry the same intent, and the
	// stale-booking job cancels it if no retry ever succeeds.
	zap.S().Infow("payment attempt failed",
		"paymentIntentId", intentID,
		"paymentId", payment.ID.Hex(),
	)
	return nil
}

func (h StripeWebhook) handleChargeRefunded(r *http.Request, intentID string) error {
	ctx := r.Context()

	payment, err := h.PaymentDB.FindOne(ctx, bson.M{"stripePaymentIntentId": intentID})
	if err != nil {
		zap.S().Errorw("no payment found for refunded intent", "paymentIntentId", intentID, "error", err)
		return err
	}
	if !models.CanTransitionPayment(payment.Status, models.PaymentStatusRefunded) {
		zap.S().Infow("ignoring charge.refunded for non-transitionable payment",
			"paymentId", payment.ID.Hex(), "status", payment.Status)
		return nil
	}

	if _, err := h.PaymentDB.UpdateOne(ctx,
		bson.M{"_id": payment.ID, "status": payment.Status},
		bson.M{"$set": bson.M{"status": models.PaymentStatusRefunded, "updatedAt": time.Now()}}); err != nil {
		zap.S().Errorw("failed to mark payment refunded", "paymentId", payment.ID.Hex(), "error", err)
		return err
	}

	booking, err := h.BookingDB.FindOne(ctx, bson.M{"_id": payment.BookingID})
	if err != nil {
		return nil
	}
	if models.CanTransitionBooking(booking.Status, models.BookingStatusCancelled) {
		_, _ = h.BookingDB.UpdateOne(ctx,
			bson.M{"_id": booking.ID, "status": booking.Status},
			bson.M{"$set": bson.M{"status": models.BookingStatusCancelled, "updatedAt": time.Now()}})
	}
	return nil
}
