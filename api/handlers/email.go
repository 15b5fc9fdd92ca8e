package handlers

import (
	"fmt"
	"os"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/parkpal/parkpal-api/models"
)

// sendEmail sends an email using SendGrid
func sendEmail(toEmail, toName, subject, htmlContent, plainText string) error {
	from := mail.NewEmail("ParkPal", "no-reply@parkpal.app")
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, plainText, htmlContent)
	client := sendgrid.NewSendClient(os.Getenv("SENDGRID_API_KEY"))
	response, err := client.Send(message)
	if err != nil {
		zap.S().Errorw("failed to send email", "error", err, "to", toEmail)
		return err
	}
	if response.StatusCode >= 400 {
		zap.S().Errorw("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "to", toEmail)
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}
	zap.S().Infow("email sent successfully", "to", toEmail, "subject", subject)
	return nil
}

// sendBookingConfirmationEmail notifies the driver that their booking is
// confirmed. Called asynchronously from the webhook handler; failures are
// logged and never block the payment flow.
func sendBookingConfirmationEmail(toEmail, toName string, booking models.Booking) {
	subject := "Your parking spot is booked"
	plain := fmt.Sprintf(
		"Hi %s,\n\nYour booking is confirmed.\n\nFrom: %s\nUntil: %s\nTotal: $%.2f\n\nShow your plate %s at the spot.\n\nThe ParkPal Team",
		toName,
		booking.StartTime.Format("Mon Jan 2 3:04 PM MST"),
		booking.EndTime.Format("Mon Jan 2 3:04 PM MST"),
		float64(booking.TotalPriceCents)/100,
		booking.PlateNumber,
	)
	html := fmt.Sprintf(
		"<p>Hi %s,</p><p>Your booking is confirmed.</p><ul><li>From: %s</li><li>Until: %s</li><li>Total: $%.2f</li></ul><p>Show your plate <strong>%s</strong> at the spot.</p><p>The ParkPal Team</p>",
		toName,
		booking.StartTime.Format("Mon Jan 2 3:04 PM MST"),
		booking.EndTime.Format("Mon Jan 2 3:04 PM MST"),
		float64(booking.TotalPriceCents)/100,
		booking.PlateNumber,
	)
	if err := sendEmail(toEmail, toName, subject, html, plain); err != nil {
		zap.S().Errorw("failed to send booking confirmation email",
			"bookingId", booking.ID.Hex(), "error", err)
	}
}
