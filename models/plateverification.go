package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Verification statuses for a license plate check at pickup.
const (
	VerificationStatusPending  = "pending"
	VerificationStatusVerified = "verified"
	VerificationStatusFailed   = "failed"
	VerificationStatusDisputed = "disputed"
)

// Actors that can set a verification result.
const (
	VerifiedByHost   = "host"
	VerifiedByDriver = "driver"
	VerifiedBySystem = "system"
	VerifiedByAdmin  = "admin"
)

// Verification methods.
const (
	VerificationMethodManual    = "manual"
	VerificationMethodAutomatic = "automatic"
	VerificationMethodPhoto     = "photo"
	VerificationMethodQRCode    = "qr_code"
)

// ValidVerifiedBy reports whether s names a known verification actor.
func ValidVerifiedBy(s string) bool {
	switch s {
	case VerifiedByHost, VerifiedByDriver, VerifiedBySystem, VerifiedByAdmin:
		return true
	}
	return false
}

// ValidVerificationMethod reports whether s names a known verification method.
func ValidVerificationMethod(s string) bool {
	switch s {
	case VerificationMethodManual, VerificationMethodAutomatic, VerificationMethodPhoto, VerificationMethodQRCode:
		return true
	}
	return false
}

// LicensePlateVerification holds the structure for the
// license_plate_verifications collection in mongo. Confidence is 1.0 for an
// exact plate+state match, 0.5 when the plate matches but the state differs,
// 0 otherwise.
type LicensePlateVerification struct {
	ID                 primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	BookingID          primitive.ObjectID `json:"bookingId" bson:"bookingId"`
	PlateNumber        string             `json:"plateNumber" bson:"plateNumber"`
	PlateState         string             `json:"plateState" bson:"plateState"`
	VerificationStatus string             `json:"verificationStatus" bson:"verificationStatus"`
	VerifiedBy         string             `json:"verifiedBy" bson:"verifiedBy"`
	Method             string             `json:"method" bson:"method"`
	Confidence         float64            `json:"confidence" bson:"confidence"`
	Notes              string             `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt          time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt" bson:"updatedAt"`
}
