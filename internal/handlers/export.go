package handlers

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"mime"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gdg-garage/event-checkin/internal/auth"
	"github.com/gdg-garage/event-checkin/internal/bulk"
	"github.com/gdg-garage/event-checkin/internal/checkin"
)

type ExportHandler struct {
	exporter *bulk.Exporter
	logger   *slog.Logger
}

func NewExportHandler(exporter *bulk.Exporter, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{exporter: exporter, logger: logger}
}

type CSVOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

func csvOutput(filename string, data []byte) *CSVOutput {
	return &CSVOutput{
		ContentType:        "text/csv; charset=utf-8",
		ContentDisposition: mime.FormatMediaType("attachment", map[string]string{"filename": filename}),
		Body:               data,
	}
}

func (h *ExportHandler) HandleExportEvent(ctx context.Context, input *EventIDInput) (*CSVOutput, error) {
	if _, err := auth.RequireUser(ctx); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	filename, err := h.exporter.ExportEvent(ctx, &buf, input.ID)
	if errors.Is(err, checkin.ErrEventNotFound) {
		return nil, huma.Error404NotFound("Event not found")
	}
	if err != nil {
		return nil, serverError(ctx, h.logger, "Failed to export attendance", err)
	}
	return csvOutput(filename, buf.Bytes()), nil
}

func (h *ExportHandler) HandleExportAll(ctx context.Context, input *struct{}) (*CSVOutput, error) {
	if _, err := auth.RequireUser(ctx); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	filename, err := h.exporter.ExportAll(ctx, &buf)
	if err != nil {
		return nil, serverError(ctx, h.logger, "Failed to export attendance", err)
	}
	return csvOutput(filename, buf.Bytes()), nil
}
