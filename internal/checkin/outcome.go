package checkin

import "github.com/gdg-garage/event-checkin/internal/models"

// Result tags a check-in attempt for the caller.
type Result string

const (
	ResultSuccess          Result = "success"
	ResultAlreadyCheckedIn Result = "already-checked-in"
	ResultWaitlisted       Result = "waitlisted"
	ResultNotFound         Result = "not-found"
	ResultInvalidRequest   Result = "invalid-request"
)

// Lookup identifies a participant at the door: by the scanned code, or by the
// registration number typed in by hand.
type Lookup struct {
	ScanID             string
	RegistrationNumber string
}

// Outcome is what a check-in attempt produced. Participant, Event and
// Enrollment are set whenever they could be resolved.
type Outcome struct {
	Result      Result
	Event       *models.Event
	Participant *models.Participant
	Enrollment  *models.Enrollment
	// Created is true when the attempt created the enrollment (a walk-in).
	Created bool
	// Missing names what could not be found for ResultNotFound: "event" or
	// "participant".
	Missing string
}
