package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Listing holds the structure for the listings collection in mongo. A listing
// is a single parking space offered by a host at an hourly rate.
type Listing struct {
	ID               primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	HostUserID       primitive.ObjectID `json:"hostUserId" bson:"hostUserId"`
	Title            string             `json:"title" bson:"title"`
	Description      string             `json:"description,omitempty" bson:"description,omitempty"`
	HourlyPriceCents int64              `json:"hourlyPriceCents" bson:"hourlyPriceCents"`
	Address          ListingAddress     `json:"address" bson:"address"`
	Availability     AvailabilityWindow `json:"availability" bson:"availability"`
	ImageURLs        []string           `json:"imageUrls" bson:"imageUrls"`
	Active           bool               `json:"active" bson:"active"`
	CreatedAt        time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// ListingAddress holds the street address of a listing
type ListingAddress struct {
	Street  string `json:"street" bson:"street"`
	City    string `json:"city" bson:"city"`
	State   string `json:"state" bson:"state"`
	ZipCode string `json:"zipCode" bson:"zipCode"`
}

// AvailabilityWindow is the daily time-of-day window a listing accepts
// bookings for, expressed as minutes from midnight local to the listing.
type AvailabilityWindow struct {
	StartMinute int `json:"startMinute" bson:"startMinute"`
	EndMinute   int `json:"endMinute" bson:"endMinute"`
}
