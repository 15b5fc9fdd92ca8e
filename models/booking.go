package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Booking statuses. Transitions between them are validated by
// CanTransitionBooking, any other write is rejected.
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusCompleted = "completed"
)

// Booking holds the structure for the bookings collection in mongo. A booking
// reserves the interval [StartTime, EndTime) on a listing.
type Booking struct {
	ID              primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	ListingID       primitive.ObjectID `json:"listingId" bson:"listingId"`
	DriverUserID    primitive.ObjectID `json:"driverUserId" bson:"driverUserId"`
	HostUserID      primitive.ObjectID `json:"hostUserId" bson:"hostUserId"`
	StartTime       time.Time          `json:"startTime" bson:"startTime"`
	EndTime         time.Time          `json:"endTime" bson:"endTime"`
	TotalPriceCents int64              `json:"totalPriceCents" bson:"totalPriceCents"`
	Status          string             `json:"status" bson:"status"`
	PlateNumber     string             `json:"plateNumber" bson:"plateNumber"`
	PlateState      string             `json:"plateState" bson:"plateState"`
	CreatedAt       time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt" bson:"updatedAt"`
}

var bookingTransitions = map[string][]string{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCancelled, BookingStatusCompleted},
	BookingStatusCancelled: {},
	BookingStatusCompleted: {},
}

// CanTransitionBooking reports whether a booking status change is legal.
func CanTransitionBooking(from, to string) bool {
	for _, next := range bookingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// BookingStatusResponse is the read-only polling payload clients use while a
// payment is in flight. Clients never assert payment success themselves.
type BookingStatusResponse struct {
	BookingID     string `json:"bookingId"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
}
