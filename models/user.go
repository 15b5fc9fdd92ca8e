package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User holds the structure for the users collection in mongo. License plates
// live embedded on the user document; at most one of them is the default.
type User struct {
	ID        primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	Email     string             `json:"email" bson:"email"`
	Password  string             `json:"-" bson:"password"`
	Name      string             `json:"name" bson:"name"`
	Phone     string             `json:"phone,omitempty" bson:"phone,omitempty"`
	Plates    []LicensePlate     `json:"plates" bson:"plates"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// LicensePlate is a registered plate embedded in a user profile.
type LicensePlate struct {
	ID          primitive.ObjectID `json:"_id" bson:"_id"`
	PlateNumber string             `json:"plateNumber" bson:"plateNumber"`
	State       string             `json:"state" bson:"state"`
	IsDefault   bool               `json:"isDefault" bson:"isDefault"`
}
