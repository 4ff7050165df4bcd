package handlers

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gdg-garage/event-checkin/internal/auth"
	"github.com/gdg-garage/event-checkin/internal/bulk"
	"github.com/gdg-garage/event-checkin/internal/mailer"
	"github.com/gdg-garage/event-checkin/internal/registry"
)

type ParticipantHandler struct {
	registry   *registry.Registry
	importer   *bulk.Importer
	dispatcher *mailer.Dispatcher
	logger     *slog.Logger
}

func NewParticipantHandler(reg *registry.Registry, importer *bulk.Importer, dispatcher *mailer.Dispatcher, logger *slog.Logger) *ParticipantHandler {
	return &ParticipantHandler{registry: reg, importer: importer, dispatcher: dispatcher, logger: logger}
}

type ListParticipantsOutput struct {
	Body []ParticipantResponse
}

func (h *ParticipantHandler) HandleList(ctx context.Context, input *struct{}) (*ListParticipantsOutput, error) {
	if _, err := auth.RequireUser(ctx); err != nil {
		return nil, err
	}

	participants, err := h.registry.List(ctx)
	if err != nil {
		return nil, serverError(ctx, h.logger, "Failed to list participants", err)
	}

	resp := make([]ParticipantResponse, 0, len(participants))
	for _, p := range participants {
		resp = append(resp, toParticipantResponse(p))
	}
	return &ListParticipantsOutput{Body: resp}, nil
}

type RegisterParticipantInput struct {
	Body struct {
		RegistrationNumber string `json:"registration_number" doc:"Institution-issued identity key" minLength:"1"`
		Name               string `json:"name" minLength:"1"`
		Email              string `json:"email" format:"email"`
	}
}

type ParticipantOutput struct {
	Status int
	Body   ParticipantResponse
}

// HandleRegister creates a participant or refreshes the one with the same
// registration number. The scan identifier is kept.
func (h *ParticipantHandler) HandleRegister(ctx context.Context, input *RegisterParticipantInput) (*ParticipantOutput, error) {
	if _, err := auth.RequireUser(ctx); err != nil {
		return nil, err
	}

	res, err := h.registry.RegisterOrUpdate(ctx, input.Body.RegistrationNumber, input.Body.Name, input.Body.Email)
	switch {
	case errors.Is(err, registry.ErrEmailConflict):
		return nil, huma.Error409Conflict(err.Error())
	case errors.Is(err, registry.ErrInvalidParticipant):
		return nil, huma.Error422UnprocessableEntity(err.Error())
	case err != nil:
		return nil, serverError(ctx, h.logger, "Failed to register participant", err)
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return &ParticipantOutput{Status: status, Body: toParticipantResponse(res.Participant)}, nil
}

type ImportParticipantsInput struct {
	RawBody multipart.Form
}

type ImportParticipantsOutput struct {
	Body bulk.ImportReport
}

func (h *ParticipantHandler) HandleImport(ctx context.Context, input *ImportParticipantsInput) (*ImportParticipantsOutput, error) {
	if _, err := auth.RequireUser(ctx); err != nil {
		return nil, err
	}

	file, err := openUpload(&input.RawBody)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	report, err := h.importer.ImportParticipants(ctx, file)
	if errors.Is(err, bulk.ErrHeader) {
		return nil, huma.Error400BadRequest(err.Error())
	}
	if err != nil {
		return nil, serverError(ctx, h.logger, "Failed to import participants", err)
	}

	h.logger.InfoContext(ctx, "participants imported",
		slog.Int("created", report.Created),
		slog.Int("updated", report.Updated),
		slog.Int("rejected", len(report.Errors)))
	return &ImportParticipantsOutput{Body: *report}, nil
}

type ParticipantIDInput struct {
	ID uint `path:"id"`
}

type ImageOutput struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

func (h *ParticipantHandler) HandleQRCode(ctx context.Context, input *ParticipantIDInput) (*ImageOutput, error) {
	if _, err := auth.RequireUser(ctx); err != nil {
		return nil, err
	}

	participant, err := h.registry.Get(ctx, input.ID)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, huma.Error404NotFound("Participant not found")
	}
	if err != nil {
		return nil, serverError(ctx, h.logger, "Failed to load participant", err)
	}

	png, err := h.registry.QRCode(ctx, participant)
	if err != nil {
		return nil, serverError(ctx, h.logger, "Failed to load QR code", err)
	}
	return &ImageOutput{ContentType: "image/png", CacheControl: "private, max-age=86400", Body: png}, nil
}

type EmailSummaryOutput struct {
	Body mailer.Summary
}

func (h *ParticipantHandler) HandleEmailOne(ctx context.Context, input *ParticipantIDInput) (*EmailSummaryOutput, error) {
	if _, err := auth.RequireUser(ctx); err != nil {
		return nil, err
	}

	summary, err := h.dispatcher.SendOne(ctx, input.ID)
	if err != nil {
		return nil, h.emailError(ctx, err)
	}
	return &EmailSummaryOutput{Body: *summary}, nil
}

type EmailAllInput struct {
	Pending bool `query:"pending" doc:"Only email participants who never received their QR code"`
}

func (h *ParticipantHandler) HandleEmailAll(ctx context.Context, input *EmailAllInput) (*EmailSummaryOutput, error) {
	if _, err := auth.RequireUser(ctx); err != nil {
		return nil, err
	}

	send := h.dispatcher.SendAll
	if input.Pending {
		send = h.dispatcher.SendPending
	}
	summary, err := send(ctx)
	if err != nil {
		return nil, h.emailError(ctx, err)
	}
	return &EmailSummaryOutput{Body: *summary}, nil
}

func (h *ParticipantHandler) emailError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, mailer.ErrDisabled):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.Is(err, registry.ErrNotFound):
		return huma.Error404NotFound("Participant not found")
	}
	return serverError(ctx, h.logger, "Failed to send emails", err)
}
