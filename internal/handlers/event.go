package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gdg-garage/event-checkin/internal/auth"
	"github.com/gdg-garage/event-checkin/internal/bulk"
	"github.com/gdg-garage/event-checkin/internal/checkin"
)

type EventHandler struct {
	checkin  *checkin.Service
	importer *bulk.Importer
	logger   *slog.Logger
}

func NewEventHandler(svc *checkin.Service, importer *bulk.Importer, logger *slog.Logger) *EventHandler {
	return &EventHandler{checkin: svc, importer: importer, logger: logger}
}

type ListEventsOutput struct {
	Body []EventResponse
}

func (h *EventHandler) HandleList(ctx context.Context, input *struct{}) (*ListEventsOutput, error) {
	if _, err := auth.RequireUser(ctx); err != nil {
		return nil, err
	}

	events, err := h.checkin.ListEvents(ctx)
	if err != nil {
		return nil, serverError(ctx, h.logger, "Failed to list events", err)
	}

	resp := make([]EventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, toEventResponse(e))
	}
	return &ListEventsOutput{Body: resp}, nil
}

type CreateEventInput struct {
	Body struct {
		Name        string    `json:"name" doc:"Event name" minLength:"1"`
		ScheduledAt time.Time `json:"scheduled_at" doc:"Date and time the event starts"`
		Capacity    int       `json:"capacity,omitempty" doc:"Maximum number of present participants, 0 for unlimited" minimum:"0"`
	}
}

type EventOutput struct {
	Status int
	Body   EventResponse
}

func (h *EventHandler) HandleCreate(ctx context.Context, input *CreateEventInput) (*EventOutput, error) {
	if _, err := auth.RequireUser(ctx); err != nil {
		return nil, err
	}

	event, err := h.checkin.CreateEvent(ctx, input.Body.Name, input.Body.ScheduledAt, input.Body.Capacity)
	if errors.Is(err, checkin.ErrInvalidEvent) {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	if err != nil {
		return nil, serverError(ctx, h.logger, "Failed to create event", err)
	}

	h.logger.InfoContext(ctx, "event created",
		slog.Uint64("event_id", uint64(event.ID)),
		slog.String("name", event.Name),
		slog.Int("capacity", event.Capacity))
	return &EventOutput{Status: http.StatusCreated, Body: toEventResponse(*event)}, nil
}

type EventIDInput struct {
	ID uint `path:"id"`
}

type RosterResponse struct {
	Event      EventResponse        `json:"event"`
	Present    int                  `json:"present_count"`
	Remaining  *int                 `json:"remaining,omitempty" doc:"Seats left before check-ins go to the waitlist, absent when unlimited"`
	Waiting    []EnrollmentResponse `json:"waiting"`
	Checked    []EnrollmentResponse `json:"present"`
	Waitlisted []EnrollmentResponse `json:"waitlisted" doc:"Ordered by the time each participant joined the waitlist"`
}

type RosterOutput struct {
	Body RosterResponse
}

func (h *EventHandler) HandleGet(ctx context.Context, input *EventIDInput) (*RosterOutput, error) {
	if _, err := auth.RequireUser(ctx); err != nil {
		return nil, err
	}

	roster, err := h.checkin.Roster(ctx, input.ID)
	if errors.Is(err, checkin.ErrEventNotFound) {
		return nil, huma.Error404NotFound("Event not found")
	}
	if err != nil {
		return nil, serverError(ctx, h.logger, "Failed to load event", err)
	}

	resp := RosterResponse{
		Event:      toEventResponse(roster.Event),
		Present:    len(roster.Present),
		Waiting:    toEnrollmentResponses(roster.Waiting),
		Checked:    toEnrollmentResponses(roster.Present),
		Waitlisted: toEnrollmentResponses(roster.Waitlisted),
	}
	if roster.Event.HasCapacityLimit() {
		remaining := max(roster.Event.Capacity-len(roster.Present), 0)
		resp.Remaining = &remaining
	}
	return &RosterOutput{Body: resp}, nil
}

type ImportEnrollmentsInput struct {
	ID      uint `path:"id"`
	RawBody multipart.Form
}

type ImportEnrollmentsOutput struct {
	Body bulk.EnrollmentReport
}

func (h *EventHandler) HandleImportEnrollments(ctx context.Context, input *ImportEnrollmentsInput) (*ImportEnrollmentsOutput, error) {
	if _, err := auth.RequireUser(ctx); err != nil {
		return nil, err
	}

	file, err := openUpload(&input.RawBody)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	report, err := h.importer.ImportEnrollments(ctx, input.ID, file)
	switch {
	case errors.Is(err, checkin.ErrEventNotFound):
		return nil, huma.Error404NotFound("Event not found")
	case errors.Is(err, bulk.ErrHeader):
		return nil, huma.Error400BadRequest(err.Error())
	case err != nil:
		return nil, serverError(ctx, h.logger, "Failed to import enrollments", err)
	}

	h.logger.InfoContext(ctx, "enrollments imported",
		slog.Uint64("event_id", uint64(input.ID)),
		slog.Int("enrolled", len(report.Enrolled)),
		slog.Int("already_enrolled", report.AlreadyEnrolled),
		slog.Int("rejected", len(report.Errors)))
	return &ImportEnrollmentsOutput{Body: *report}, nil
}

// openUpload returns the CSV sent in the "file" form field.
func openUpload(form *multipart.Form) (multipart.File, error) {
	files := form.File["file"]
	if len(files) == 0 {
		return nil, huma.Error400BadRequest("Missing file upload in form field \"file\"")
	}
	f, err := files[0].Open()
	if err != nil {
		return nil, huma.Error400BadRequest(fmt.Sprintf("Cannot read upload: %v", err))
	}
	return f, nil
}
