// Package events defines the roster event payloads published through the outbox.
package events

import "time"

// Event types recorded in the outbox.
const (
	TypeStudentEnrolled  = "roster.enrolled"
	TypeStudentWithdrawn = "roster.withdrawn"
)

// RosterChanged is emitted whenever a student joins or leaves an activity roster.
type RosterChanged struct {
	EventID      string    `json:"event_id"`
	Activity     string    `json:"activity"`
	Email        string    `json:"email"`
	Change       string    `json:"change"`
	Participants int       `json:"participants"`
	Capacity     int       `json:"capacity"`
	Revision     int64     `json:"revision"`
	OccurredAt   time.Time `json:"occurred_at"`
}
