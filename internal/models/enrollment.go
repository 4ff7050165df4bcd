package models

import (
	"time"

	"gorm.io/gorm"
)

type EnrollmentState string

const (
	StateWaiting    EnrollmentState = "WAITING"
	StatePresent    EnrollmentState = "PRESENT"
	StateWaitlisted EnrollmentState = "WAITLISTED"
)

type Enrollment struct {
	gorm.Model
	ParticipantID uint            `json:"participant_id" gorm:"uniqueIndex:idx_participant_event;not null"`
	Participant   Participant     `json:"participant" gorm:"foreignKey:ParticipantID"`
	EventID       uint            `json:"event_id" gorm:"uniqueIndex:idx_participant_event;index:idx_event_state;not null"`
	Event         Event           `json:"-" gorm:"foreignKey:EventID"`
	State         EnrollmentState `json:"state" gorm:"index:idx_event_state;not null"`
	CheckedInAt   *time.Time      `json:"checked_in_at"`
	WaitlistedAt  *time.Time      `json:"waitlisted_at"`
}
