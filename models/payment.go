package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Payment statuses. Transitions are validated by CanTransitionPayment.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusFailed     = "failed"
	PaymentStatusRefunded   = "refunded"
)

// Payment holds the structure for the payments collection in mongo. Amounts
// are integer minor units (cents). The Stripe payment intent id is the only
// link to the provider; the client secret is returned once at creation and
// never persisted.
type Payment struct {
	ID                    primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	BookingID             primitive.ObjectID `json:"bookingId" bson:"bookingId"`
	PayerUserID           primitive.ObjectID `json:"payerUserId" bson:"payerUserId"`
	PayeeUserID           primitive.ObjectID `json:"payeeUserId" bson:"payeeUserId"`
	AmountCents           int64              `json:"amountCents" bson:"amountCents"`
	Currency              string             `json:"currency" bson:"currency"`
	Status                string             `json:"status" bson:"status"`
	StripePaymentIntentID string             `json:"stripePaymentIntentId,omitempty" bson:"stripePaymentIntentId,omitempty"`
	CreatedAt             time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt             time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// A declined intent is retryable on the same client secret, so a failed
// payment may still go on to complete.
var paymentTransitions = map[string][]string{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted:  {PaymentStatusRefunded},
	PaymentStatusFailed:     {PaymentStatusProcessing, PaymentStatusCompleted},
	PaymentStatusRefunded:   {},
}

// CanTransitionPayment reports whether a payment status change is legal.
func CanTransitionPayment(from, to string) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
