package models

import "time"

// AdvisoryLock is a short-lived lock document. Booking creation takes one per
// listing so the overlap check and the insert are mutually exclusive across
// instances, and scheduler jobs take one per job name so only a single
// instance runs each job.
type AdvisoryLock struct {
	ID        string    `json:"_id" bson:"_id"`
	Owner     string    `json:"owner" bson:"owner"`
	ExpiresAt time.Time `json:"expiresAt" bson:"expiresAt"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}
