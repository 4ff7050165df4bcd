package bulk

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gdg-garage/event-checkin/internal/models"
)

const (
	// TimeLayout renders check-in times as dd/mm/yyyy hh:mm:ss.
	TimeLayout = "02/01/2006 15:04:05"

	AllEventsFilename = "presenca_todos_eventos.csv"
)

var exportHeader = []string{"Nome", "Matrícula", "Email", "Horário do Check-in"}

type PresenceSource interface {
	GetEvent(ctx context.Context, id uint) (*models.Event, error)
	PresentEnrollments(ctx context.Context, eventIDs ...uint) ([]models.Enrollment, error)
}

// Exporter writes attendance lists as UTF-8 CSV with a byte order mark, which
// spreadsheet tools need to pick the right encoding.
type Exporter struct {
	source   PresenceSource
	location *time.Location
}

func NewExporter(source PresenceSource, location *time.Location) *Exporter {
	if location == nil {
		location = time.UTC
	}
	return &Exporter{source: source, location: location}
}

// ExportEvent writes the PRESENT participants of one event and returns the
// suggested file name.
func (ex *Exporter) ExportEvent(ctx context.Context, w io.Writer, eventID uint) (string, error) {
	event, err := ex.source.GetEvent(ctx, eventID)
	if err != nil {
		return "", err
	}
	enrollments, err := ex.source.PresentEnrollments(ctx, eventID)
	if err != nil {
		return "", fmt.Errorf("load present enrollments: %w", err)
	}

	err = ex.write(w, exportHeader, enrollments, func(e models.Enrollment) []string {
		return ex.row(e)
	})
	if err != nil {
		return "", err
	}
	return EventFilename(event.Name), nil
}

// ExportAll writes the PRESENT participants of every event, prefixed by the
// event name and ordered by event date.
func (ex *Exporter) ExportAll(ctx context.Context, w io.Writer) (string, error) {
	enrollments, err := ex.source.PresentEnrollments(ctx)
	if err != nil {
		return "", fmt.Errorf("load present enrollments: %w", err)
	}

	header := append([]string{"Evento"}, exportHeader...)
	err = ex.write(w, header, enrollments, func(e models.Enrollment) []string {
		return append([]string{e.Event.Name}, ex.row(e)...)
	})
	if err != nil {
		return "", err
	}
	return AllEventsFilename, nil
}

func (ex *Exporter) write(w io.Writer, header []string, enrollments []models.Enrollment, row func(models.Enrollment) []string) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range enrollments {
		if err := cw.Write(row(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (ex *Exporter) row(e models.Enrollment) []string {
	checkedIn := ""
	if e.CheckedInAt != nil {
		checkedIn = e.CheckedInAt.In(ex.location).Format(TimeLayout)
	}
	return []string{
		e.Participant.Name,
		e.Participant.RegistrationNumber,
		e.Participant.Email,
		checkedIn,
	}
}

// EventFilename builds presenca_<event name>.csv with the name lower-cased and
// spaces replaced by underscores.
func EventFilename(eventName string) string {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(eventName)), " ", "_")
	return "presenca_" + name + ".csv"
}
