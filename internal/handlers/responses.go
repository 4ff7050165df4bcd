package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gdg-garage/event-checkin/internal/models"
)

type ParticipantResponse struct {
	ID                 uint       `json:"id"`
	RegistrationNumber string     `json:"registration_number"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	ScanID             string     `json:"scan_id"`
	EmailSentAt        *time.Time `json:"email_sent_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func toParticipantResponse(p models.Participant) ParticipantResponse {
	return ParticipantResponse{
		ID:                 p.ID,
		RegistrationNumber: p.RegistrationNumber,
		Name:               p.Name,
		Email:              p.Email,
		ScanID:             p.ScanID,
		EmailSentAt:        p.EmailSentAt,
		CreatedAt:          p.CreatedAt,
	}
}

type EventResponse struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Capacity    int       `json:"capacity" doc:"Maximum number of present participants, 0 for unlimited"`
	CreatedAt   time.Time `json:"created_at"`
}

func toEventResponse(e models.Event) EventResponse {
	return EventResponse{
		ID:          e.ID,
		Name:        e.Name,
		ScheduledAt: e.ScheduledAt,
		Capacity:    e.Capacity,
		CreatedAt:   e.CreatedAt,
	}
}

type EnrollmentResponse struct {
	ID           uint                   `json:"id"`
	EventID      uint                   `json:"event_id"`
	State        models.EnrollmentState `json:"state" enum:"WAITING,PRESENT,WAITLISTED"`
	CheckedInAt  *time.Time             `json:"checked_in_at,omitempty"`
	WaitlistedAt *time.Time             `json:"waitlisted_at,omitempty"`
	Participant  *ParticipantResponse   `json:"participant,omitempty"`
}

func toEnrollmentResponse(e models.Enrollment) EnrollmentResponse {
	resp := EnrollmentResponse{
		ID:           e.ID,
		EventID:      e.EventID,
		State:        e.State,
		CheckedInAt:  e.CheckedInAt,
		WaitlistedAt: e.WaitlistedAt,
	}
	if e.Participant.ID != 0 {
		p := toParticipantResponse(e.Participant)
		resp.Participant = &p
	}
	return resp
}

func toEnrollmentResponses(enrollments []models.Enrollment) []EnrollmentResponse {
	resp := make([]EnrollmentResponse, 0, len(enrollments))
	for _, e := range enrollments {
		resp = append(resp, toEnrollmentResponse(e))
	}
	return resp
}

// serverError logs the cause and hides it from the client.
func serverError(ctx context.Context, logger *slog.Logger, msg string, err error) error {
	logger.ErrorContext(ctx, msg, slog.Any("error", err))
	return huma.Error500InternalServerError(msg)
}
