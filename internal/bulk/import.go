package bulk

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/gdg-garage/event-checkin/internal/models"
	"github.com/gdg-garage/event-checkin/internal/registry"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type ParticipantStore interface {
	RegisterOrUpdate(ctx context.Context, registrationNumber, name, email string) (*registry.Result, error)
	FindByKeys(ctx context.Context, keys []string) (map[string]models.Participant, error)
}

type Enroller interface {
	GetEvent(ctx context.Context, id uint) (*models.Event, error)
	Enroll(ctx context.Context, eventID, participantID uint) (bool, error)
}

// RowError reports a rejected data row. Line is the 1-based line in the file.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

type ImportReport struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Errors  []RowError `json:"errors"`
}

type EnrollmentReport struct {
	Enrolled        []string   `json:"enrolled"`
	AlreadyEnrolled int        `json:"already_enrolled"`
	Errors          []RowError `json:"errors"`
}

type Importer struct {
	participants ParticipantStore
	enroller     Enroller
	logger       *slog.Logger
}

func NewImporter(participants ParticipantStore, enroller Enroller, logger *slog.Logger) *Importer {
	return &Importer{participants: participants, enroller: enroller, logger: logger}
}

// ImportParticipants registers or refreshes one participant per data row.
// Rows are committed one by one; a rejected row is reported and skipped.
func (im *Importer) ImportParticipants(ctx context.Context, r io.Reader) (*ImportReport, error) {
	sheet, err := readSheet(r, fieldRegistration, fieldName, fieldEmail)
	if err != nil {
		return nil, err
	}

	report := &ImportReport{Errors: sheet.errors}
	for _, rec := range sheet.records {
		res, err := im.participants.RegisterOrUpdate(ctx,
			sheet.cols.get(rec.fields, fieldRegistration),
			sheet.cols.get(rec.fields, fieldName),
			sheet.cols.get(rec.fields, fieldEmail),
		)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !errors.Is(err, registry.ErrInvalidParticipant) && !errors.Is(err, registry.ErrEmailConflict) {
				im.logger.WarnContext(ctx, "participant import row failed",
					slog.Int("line", rec.line),
					slog.Any("error", err))
			}
			report.Errors = append(report.Errors, RowError{Line: rec.line, Message: err.Error()})
			continue
		}
		if res.Created {
			report.Created++
		} else {
			report.Updated++
		}
	}

	sortRowErrors(report.Errors)
	return report, nil
}

// ImportEnrollments enrolls the participants listed in r into an event as
// WAITING. Registration numbers are resolved with a single query; unknown ones
// are reported per row.
func (im *Importer) ImportEnrollments(ctx context.Context, eventID uint, r io.Reader) (*EnrollmentReport, error) {
	if _, err := im.enroller.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	sheet, err := readSheet(r, fieldRegistration)
	if err != nil {
		return nil, err
	}

	report := &EnrollmentReport{Enrolled: []string{}, Errors: sheet.errors}

	keys := make([]string, 0, len(sheet.records))
	for _, rec := range sheet.records {
		if key := models.NormalizeKey(sheet.cols.get(rec.fields, fieldRegistration)); key != "" {
			keys = append(keys, key)
		}
	}
	known, err := im.participants.FindByKeys(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}

	for _, rec := range sheet.records {
		number := sheet.cols.get(rec.fields, fieldRegistration)
		key := models.NormalizeKey(number)
		if key == "" {
			report.Errors = append(report.Errors, RowError{Line: rec.line, Message: "registration number is required"})
			continue
		}
		participant, ok := known[key]
		if !ok {
			report.Errors = append(report.Errors, RowError{Line: rec.line, Message: fmt.Sprintf("unknown registration number %q", number)})
			continue
		}

		created, err := im.enroller.Enroll(ctx, eventID, participant.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			im.logger.WarnContext(ctx, "enrollment import row failed",
				slog.Int("line", rec.line),
				slog.Any("error", err))
			report.Errors = append(report.Errors, RowError{Line: rec.line, Message: err.Error()})
			continue
		}
		if created {
			report.Enrolled = append(report.Enrolled, participant.Name)
		} else {
			report.AlreadyEnrolled++
		}
	}

	sortRowErrors(report.Errors)
	return report, nil
}

type record struct {
	line   int
	fields []string
}

type sheet struct {
	cols    columns
	records []record
	errors  []RowError
}

// readSheet parses a whole CSV upload. Rows whose width differs from the
// header are reported as errors and left out of records.
func readSheet(r io.Reader, required ...field) (*sheet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = detectDelimiter(data)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: file is empty", ErrHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHeader, err)
	}
	cols, err := parseHeader(header, required...)
	if err != nil {
		return nil, err
	}

	s := &sheet{cols: cols, errors: []RowError{}}
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			s.errors = append(s.errors, RowError{Line: perr.StartLine, Message: perr.Err.Error()})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}

		line, _ := cr.FieldPos(0)
		if blank(fields) {
			continue
		}
		if len(fields) != cols.width {
			s.errors = append(s.errors, RowError{
				Line:    line,
				Message: fmt.Sprintf("expected %d columns, got %d", cols.width, len(fields)),
			})
			continue
		}
		s.records = append(s.records, record{line: line, fields: fields})
	}
	return s, nil
}

// detectDelimiter picks ';' when the header line has more semicolons than
// commas, as spreadsheet exports in some locales do.
func detectDelimiter(data []byte) rune {
	first := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		first = data[:i]
	}
	if bytes.Count(first, []byte{';'}) > bytes.Count(first, []byte{','}) {
		return ';'
	}
	return ','
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func sortRowErrors(errs []RowError) {
	slices.SortStableFunc(errs, func(a, b RowError) int { return a.Line - b.Line })
}
