package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gdg-garage/event-checkin/internal/config"
	"github.com/gdg-garage/event-checkin/internal/models"
	"github.com/gdg-garage/event-checkin/internal/notifier"
	"github.com/gdg-garage/event-checkin/internal/registry"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ParticipantFinder resolves the person standing at the door.
type ParticipantFinder interface {
	Lookup(ctx context.Context, scanID, registrationNumber string) (*models.Participant, error)
}

type Options struct {
	// WalkInPolicy is config.WalkInAdmit or config.WalkInWaitlist.
	WalkInPolicy string
	Now          func() time.Time
}

// Service owns every enrollment state transition.
type Service struct {
	db       *gorm.DB
	finder   ParticipantFinder
	notifier notifier.Notifier
	logger   *slog.Logger
	walkIn   string
	now      func() time.Time
}

func NewService(db *gorm.DB, finder ParticipantFinder, n notifier.Notifier, logger *slog.Logger, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.WalkInPolicy == "" {
		opts.WalkInPolicy = config.WalkInAdmit
	}
	return &Service{
		db:       db,
		finder:   finder,
		notifier: n,
		logger:   logger,
		walkIn:   opts.WalkInPolicy,
		now:      opts.Now,
	}
}

var forUpdate = clause.Locking{Strength: "UPDATE"}

// CheckIn records the arrival of a participant at an event.
//
// A PRESENT enrollment is left untouched. Anything else becomes PRESENT unless
// the event has a capacity and it is already reached, in which case the
// enrollment goes to the waitlist. Walk-ins (no enrollment yet) follow the
// same rule, or go straight to the waitlist under the waitlist policy.
func (s *Service) CheckIn(ctx context.Context, eventID uint, lookup Lookup) (*Outcome, error) {
	participant, err := s.finder.Lookup(ctx, lookup.ScanID, lookup.RegistrationNumber)
	switch {
	case errors.Is(err, registry.ErrInvalidLookup):
		return &Outcome{Result: ResultInvalidRequest}, nil
	case errors.Is(err, registry.ErrNotFound):
		return &Outcome{Result: ResultNotFound, Missing: "participant"}, nil
	case err != nil:
		return nil, fmt.Errorf("lookup participant: %w", err)
	}

	var outcome *Outcome
	for attempt := 0; attempt < 2; attempt++ {
		outcome, err = s.checkIn(ctx, eventID, participant)
		// Two first-time check-ins of the same pair can race on the insert;
		// the loser retries and finds the row the winner created.
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
	}
	if errors.Is(err, ErrEventNotFound) {
		return &Outcome{Result: ResultNotFound, Missing: "event", Participant: participant}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check in participant %d at event %d: %w", participant.ID, eventID, err)
	}

	if outcome.Result == ResultWaitlisted {
		s.notify(ctx, *outcome.Event, *participant, *outcome.Enrollment)
	}
	return outcome, nil
}

func (s *Service) checkIn(ctx context.Context, eventID uint, participant *models.Participant) (*Outcome, error) {
	outcome := &Outcome{Participant: participant}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Locking the event row serializes check-ins per event, which keeps
		// the PRESENT count honest under concurrent scans.
		var event models.Event
		if err := tx.Clauses(forUpdate).First(&event, eventID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEventNotFound
			}
			return err
		}
		outcome.Event = &event

		var enrollment models.Enrollment
		err := tx.Clauses(forUpdate).
			Where("participant_id = ? AND event_id = ?", participant.ID, event.ID).
			First(&enrollment).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			outcome.Created = true
			enrollment = models.Enrollment{ParticipantID: participant.ID, EventID: event.ID}
		case err != nil:
			return err
		}

		if enrollment.State == models.StatePresent {
			outcome.Result = ResultAlreadyCheckedIn
			outcome.Enrollment = &enrollment
			return nil
		}

		now := s.now()
		admit := !(outcome.Created && s.walkIn == config.WalkInWaitlist)
		if admit && event.HasCapacityLimit() {
			present, err := countPresent(tx, event.ID)
			if err != nil {
				return err
			}
			admit = present < int64(event.Capacity)
		}

		if admit {
			enrollment.State = models.StatePresent
			enrollment.CheckedInAt = &now
			outcome.Result = ResultSuccess
		} else {
			// A participant already on the waitlist keeps their place.
			if enrollment.State != models.StateWaitlisted || enrollment.WaitlistedAt == nil {
				enrollment.WaitlistedAt = &now
			}
			enrollment.State = models.StateWaitlisted
			outcome.Result = ResultWaitlisted
		}

		if err := tx.Save(&enrollment).Error; err != nil {
			return err
		}
		enrollment.Participant = *participant
		outcome.Enrollment = &enrollment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func countPresent(tx *gorm.DB, eventID uint) (int64, error) {
	var n int64
	err := tx.Model(&models.Enrollment{}).
		Where("event_id = ? AND state = ?", eventID, models.StatePresent).
		Count(&n).Error
	return n, err
}

// Promote moves an enrollment to PRESENT regardless of its state or the event
// capacity. It is the organizer's explicit override.
func (s *Service) Promote(ctx context.Context, enrollmentID uint) (*models.Enrollment, error) {
	return s.transition(ctx, enrollmentID, func(e *models.Enrollment, now time.Time) {
		e.State = models.StatePresent
		e.CheckedInAt = &now
	})
}

// RevertToWaitlist moves an enrollment to the back of the waitlist: the
// check-in time is cleared and the waitlist time refreshed.
func (s *Service) RevertToWaitlist(ctx context.Context, enrollmentID uint) (*models.Enrollment, error) {
	return s.transition(ctx, enrollmentID, func(e *models.Enrollment, now time.Time) {
		e.State = models.StateWaitlisted
		e.CheckedInAt = nil
		e.WaitlistedAt = &now
	})
}

func (s *Service) transition(ctx context.Context, enrollmentID uint, apply func(e *models.Enrollment, now time.Time)) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(forUpdate).First(&enrollment, enrollmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEnrollmentNotFound
			}
			return err
		}

		apply(&enrollment, s.now())

		if err := tx.Save(&enrollment).Error; err != nil {
			return err
		}
		return tx.Preload("Participant").Preload("Event").First(&enrollment, enrollment.ID).Error
	})
	if err != nil {
		if errors.Is(err, ErrEnrollmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update enrollment %d: %w", enrollmentID, err)
	}

	s.notify(ctx, enrollment.Event, enrollment.Participant, enrollment)
	return &enrollment, nil
}

// Enroll pre-registers a participant for an event in the WAITING state. An
// existing enrollment is left as it is; created reports whether one was added.
func (s *Service) Enroll(ctx context.Context, eventID, participantID uint) (created bool, err error) {
	db := s.db.WithContext(ctx)

	var existing models.Enrollment
	err = db.Where("participant_id = ? AND event_id = ?", participantID, eventID).Take(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("find enrollment: %w", err)
	}

	enrollment := models.Enrollment{ParticipantID: participantID, EventID: eventID, State: models.StateWaiting}
	err = db.Create(&enrollment).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("enroll participant %d in event %d: %w", participantID, eventID, err)
	}
	return true, nil
}

func (s *Service) notify(ctx context.Context, event models.Event, participant models.Participant, enrollment models.Enrollment) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyEnrollment(event, participant, enrollment); err != nil {
		s.logger.WarnContext(ctx, "failed to notify organizers",
			slog.Uint64("enrollment_id", uint64(enrollment.ID)),
			slog.Any("error", err))
	}
}
