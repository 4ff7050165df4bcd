package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gdg-garage/event-checkin/internal/auth"
	"github.com/gdg-garage/event-checkin/internal/checkin"
	"github.com/gdg-garage/event-checkin/internal/i18n"
	"github.com/gdg-garage/event-checkin/internal/models"
)

type CheckinHandler struct {
	checkin    *checkin.Service
	translator *i18n.Translator
	logger     *slog.Logger
}

func NewCheckinHandler(svc *checkin.Service, translator *i18n.Translator, logger *slog.Logger) *CheckinHandler {
	return &CheckinHandler{checkin: svc, translator: translator, logger: logger}
}

type CheckInInput struct {
	ID             uint   `path:"id"`
	AcceptLanguage string `header:"Accept-Language"`
	Body           struct {
		ScanID             string `json:"scan_id,omitempty" doc:"Identifier encoded in the participant's QR code"`
		RegistrationNumber string `json:"registration_number,omitempty" doc:"Registration number typed in by hand, used when scan_id is empty"`
	}
}

type CheckInResponse struct {
	Result      checkin.Result       `json:"result" enum:"success,already-checked-in,waitlisted,not-found,invalid-request"`
	Message     string               `json:"message"`
	Participant *ParticipantResponse `json:"participant,omitempty"`
	Enrollment  *EnrollmentResponse  `json:"enrollment,omitempty"`
}

type CheckInOutput struct {
	Status int
	Body   CheckInResponse
}

// HandleCheckIn answers a scan. Lookup failures are reported in the body with
// a 404 or 400 so the scanner can show the message as is.
func (h *CheckinHandler) HandleCheckIn(ctx context.Context, input *CheckInInput) (*CheckInOutput, error) {
	if _, err := auth.RequireUser(ctx); err != nil {
		return nil, err
	}

	outcome, err := h.checkin.CheckIn(ctx, input.ID, checkin.Lookup{
		ScanID:             input.Body.ScanID,
		RegistrationNumber: input.Body.RegistrationNumber,
	})
	if err != nil {
		return nil, serverError(ctx, h.logger, "Failed to check in participant", err)
	}

	locale := h.translator.Locale(input.AcceptLanguage)
	resp := CheckInResponse{Result: outcome.Result}
	status := http.StatusOK
	data := map[string]any{}

	switch outcome.Result {
	case checkin.ResultNotFound:
		status = http.StatusNotFound
		resp.Message = h.translator.T(locale, notFoundMessage(outcome.Missing), nil)
	case checkin.ResultInvalidRequest:
		status = http.StatusBadRequest
		resp.Message = h.translator.T(locale, i18n.MsgCheckinInvalidRequest, nil)
	default:
		data["Name"] = outcome.Participant.Name
		resp.Message = h.translator.T(locale, resultMessage(outcome.Result), data)
	}

	if outcome.Participant != nil && outcome.Result != checkin.ResultNotFound {
		p := toParticipantResponse(*outcome.Participant)
		resp.Participant = &p
	}
	if outcome.Enrollment != nil {
		e := toEnrollmentResponse(*outcome.Enrollment)
		e.Participant = nil
		resp.Enrollment = &e
	}

	h.logger.InfoContext(ctx, "check-in",
		slog.Uint64("event_id", uint64(input.ID)),
		slog.String("result", string(outcome.Result)),
		slog.Bool("walk_in", outcome.Created))
	return &CheckInOutput{Status: status, Body: resp}, nil
}

func resultMessage(r checkin.Result) string {
	switch r {
	case checkin.ResultSuccess:
		return i18n.MsgCheckinSuccess
	case checkin.ResultAlreadyCheckedIn:
		return i18n.MsgCheckinAlreadyCheckedIn
	case checkin.ResultWaitlisted:
		return i18n.MsgCheckinWaitlisted
	}
	return ""
}

func notFoundMessage(missing string) string {
	if missing == "event" {
		return i18n.MsgCheckinEventNotFound
	}
	return i18n.MsgCheckinParticipantNotFound
}

type TransitionInput struct {
	ID   uint `path:"id"`
	Body struct {
		Confirm bool `json:"confirm" doc:"Must be true; guards against accidental transitions"`
	}
}

type EnrollmentOutput struct {
	Body EnrollmentResponse
}

// HandlePromote admits a waitlisted participant regardless of capacity.
func (h *CheckinHandler) HandlePromote(ctx context.Context, input *TransitionInput) (*EnrollmentOutput, error) {
	return h.transition(ctx, input, "promote", h.checkin.Promote)
}

// HandleRevert sends a participant back to the end of the waitlist.
func (h *CheckinHandler) HandleRevert(ctx context.Context, input *TransitionInput) (*EnrollmentOutput, error) {
	return h.transition(ctx, input, "revert", h.checkin.RevertToWaitlist)
}

type transitionFunc func(ctx context.Context, enrollmentID uint) (*models.Enrollment, error)

func (h *CheckinHandler) transition(ctx context.Context, input *TransitionInput, action string, apply transitionFunc) (*EnrollmentOutput, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	if !input.Body.Confirm {
		return nil, huma.Error400BadRequest("Confirmation required: send {\"confirm\": true}")
	}

	enrollment, err := apply(ctx, input.ID)
	if errors.Is(err, checkin.ErrEnrollmentNotFound) {
		return nil, huma.Error404NotFound("Enrollment not found")
	}
	if err != nil {
		return nil, serverError(ctx, h.logger, "Failed to update enrollment", err)
	}

	h.logger.InfoContext(ctx, "enrollment "+action,
		slog.Uint64("enrollment_id", uint64(enrollment.ID)),
		slog.Uint64("event_id", uint64(enrollment.EventID)),
		slog.Uint64("user_id", uint64(userID)))
	return &EnrollmentOutput{Body: toEnrollmentResponse(*enrollment)}, nil
}
