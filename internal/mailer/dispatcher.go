package mailer

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/gdg-garage/event-checkin/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// ErrDisabled is returned when no SMTP relay is configured.
var ErrDisabled = errors.New("email delivery is not configured")

const (
	scanCodeSubject   = "Seu QR Code de acesso aos eventos"
	scanCodeContentID = "qrcode"
)

type ParticipantSource interface {
	Get(ctx context.Context, id uint) (*models.Participant, error)
	List(ctx context.Context) ([]models.Participant, error)
	ListPendingEmail(ctx context.Context) ([]models.Participant, error)
	QRCode(ctx context.Context, participant *models.Participant) ([]byte, error)
	MarkEmailed(ctx context.Context, id uint, at time.Time) error
}

type Failure struct {
	ParticipantID uint   `json:"participant_id"`
	Email         string `json:"email"`
	Reason        string `json:"reason"`
}

// Summary reports a dispatch run. A failing recipient never stops the run.
type Summary struct {
	Sent   int       `json:"sent"`
	Failed []Failure `json:"failed"`
}

type Dispatcher struct {
	sender       Sender
	participants ParticipantSource
	logger       *slog.Logger
	tmpl         *template.Template
	now          func() time.Time
}

// NewDispatcher builds a dispatcher. A nil sender yields a dispatcher whose
// every call fails with ErrDisabled.
func NewDispatcher(sender Sender, participants ParticipantSource, logger *slog.Logger) *Dispatcher {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/scan_code.html"))
	return &Dispatcher{
		sender:       sender,
		participants: participants,
		logger:       logger,
		tmpl:         tmpl,
		now:          time.Now,
	}
}

func (d *Dispatcher) SendOne(ctx context.Context, participantID uint) (*Summary, error) {
	if d.sender == nil {
		return nil, ErrDisabled
	}
	participant, err := d.participants.Get(ctx, participantID)
	if err != nil {
		return nil, err
	}
	return d.dispatch(ctx, []models.Participant{*participant}), nil
}

func (d *Dispatcher) SendAll(ctx context.Context) (*Summary, error) {
	if d.sender == nil {
		return nil, ErrDisabled
	}
	participants, err := d.participants.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return d.dispatch(ctx, participants), nil
}

// SendPending emails only participants who never received their code.
func (d *Dispatcher) SendPending(ctx context.Context) (*Summary, error) {
	if d.sender == nil {
		return nil, ErrDisabled
	}
	participants, err := d.participants.ListPendingEmail(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending participants: %w", err)
	}
	return d.dispatch(ctx, participants), nil
}

func (d *Dispatcher) dispatch(ctx context.Context, participants []models.Participant) *Summary {
	summary := &Summary{Failed: []Failure{}}
	for i := range participants {
		p := &participants[i]
		if err := d.send(ctx, p); err != nil {
			d.logger.WarnContext(ctx, "failed to email scan code",
				slog.Uint64("participant_id", uint64(p.ID)),
				slog.String("email", p.Email),
				slog.Any("error", err))
			summary.Failed = append(summary.Failed, Failure{ParticipantID: p.ID, Email: p.Email, Reason: err.Error()})
			continue
		}
		summary.Sent++
	}

	d.logger.InfoContext(ctx, "scan code dispatch finished",
		slog.Int("sent", summary.Sent),
		slog.Int("failed", len(summary.Failed)))
	return summary
}

func (d *Dispatcher) send(ctx context.Context, p *models.Participant) error {
	png, err := d.participants.QRCode(ctx, p)
	if err != nil {
		return fmt.Errorf("load qr code: %w", err)
	}

	var body bytes.Buffer
	err = d.tmpl.Execute(&body, struct {
		Name               string
		RegistrationNumber string
		ContentID          string
	}{p.Name, p.RegistrationNumber, scanCodeContentID})
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	msg := Message{
		To:      p.Email,
		Subject: scanCodeSubject,
		HTML:    body.String(),
		Inline: []Inline{{
			ContentID:   scanCodeContentID,
			Filename:    "qrcode_" + p.RegistrationKey + ".png",
			ContentType: "image/png",
			Data:        png,
		}},
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		return err
	}

	if err := d.participants.MarkEmailed(ctx, p.ID, d.now()); err != nil {
		return fmt.Errorf("record email delivery: %w", err)
	}
	return nil
}
