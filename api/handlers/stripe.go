package handlers

import (
	"errors"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
)

// PaymentProvider is the slice of the payment backend the handlers need.
// Intents are always created here, server-side; clients only ever receive the
// client secret for the hosted payment sheet.
type PaymentProvider interface {
	CreateIntent(amountCents int64, currency, bookingID, idempotencyKey string) (intentID, clientSecret string, err error)
	RefundIntent(intentID string) error
}

// StripeService implements PaymentProvider against the Stripe API
type StripeService struct{}

// CreateIntent creates a Stripe payment intent for the booking amount
func (StripeService) CreateIntent(amountCents int64, currency, bookingID, idempotencyKey string) (string, string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("booking_id", bookingID)
	params.SetIdempotencyKey(idempotencyKey)

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", "", err
	}
	return pi.ID, pi.ClientSecret, nil
}

// RefundIntent refunds the full amount of a payment intent
func (StripeService) RefundIntent(intentID string) error {
	_, err := refund.New(&stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
	})
	return err
}

// userFacingPaymentError maps a Stripe error to one of a fixed set of
// messages safe to show the user
func userFacingPaymentError(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Code {
		case stripe.ErrorCodeCardDeclined:
			return "your card was declined"
		case stripe.ErrorCodeExpiredCard:
			return "your card has expired"
		case stripe.ErrorCodeAmountTooSmall:
			return "the booking amount is below the minimum chargeable amount"
		}
		if stripeErr.Type == stripe.ErrorTypeCard {
			return "your card could not be charged"
		}
	}
	return "payment could not be started, please try again"
}
