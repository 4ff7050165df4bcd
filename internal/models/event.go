package models

import (
	"time"

	"gorm.io/gorm"
)

type Event struct {
	gorm.Model
	Name        string       `json:"name" gorm:"not null"`
	ScheduledAt time.Time    `json:"scheduled_at" gorm:"index"`
	Capacity    int          `json:"capacity"` // 0 = unlimited
	Enrollments []Enrollment `json:"-"`
}

// HasCapacityLimit reports whether admissions are capped.
func (e Event) HasCapacityLimit() bool {
	return e.Capacity > 0
}
