package checkin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gdg-garage/event-checkin/internal/models"
	"gorm.io/gorm"
)

// Roster is one event's enrollments split by state.
type Roster struct {
	Event      models.Event
	Waiting    []models.Enrollment
	Present    []models.Enrollment
	Waitlisted []models.Enrollment
}

func (s *Service) CreateEvent(ctx context.Context, name string, scheduledAt time.Time, capacity int) (*models.Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidEvent)
	}
	if capacity < 0 {
		return nil, fmt.Errorf("%w: capacity cannot be negative", ErrInvalidEvent)
	}

	event := models.Event{Name: name, ScheduledAt: scheduledAt, Capacity: capacity}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return &event, nil
}

// ListEvents returns every event, most recent first.
func (s *Service) ListEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	if err := s.db.WithContext(ctx).Order("scheduled_at desc").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Service) GetEvent(ctx context.Context, id uint) (*models.Event, error) {
	var event models.Event
	err := s.db.WithContext(ctx).First(&event, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// Roster loads an event with its enrollments. Waiting and present lists are
// ordered by participant name, the waitlist by the time each entry joined it.
func (s *Service) Roster(ctx context.Context, eventID uint) (*Roster, error) {
	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	var enrollments []models.Enrollment
	if err := s.db.WithContext(ctx).Preload("Participant").Where("event_id = ?", eventID).Find(&enrollments).Error; err != nil {
		return nil, err
	}

	roster := &Roster{Event: *event}
	for _, e := range enrollments {
		switch e.State {
		case models.StatePresent:
			roster.Present = append(roster.Present, e)
		case models.StateWaitlisted:
			roster.Waitlisted = append(roster.Waitlisted, e)
		default:
			roster.Waiting = append(roster.Waiting, e)
		}
	}

	sortByName(roster.Waiting)
	sortByName(roster.Present)
	SortWaitlist(roster.Waitlisted)
	return roster, nil
}

// PresentEnrollments returns the PRESENT enrollments of the given events (all
// events when eventIDs is empty) with participant and event loaded, ordered by
// event date then participant name.
func (s *Service) PresentEnrollments(ctx context.Context, eventIDs ...uint) ([]models.Enrollment, error) {
	q := s.db.WithContext(ctx).Preload("Participant").Preload("Event").Where("state = ?", models.StatePresent)
	if len(eventIDs) > 0 {
		q = q.Where("event_id IN ?", eventIDs)
	}

	var enrollments []models.Enrollment
	if err := q.Find(&enrollments).Error; err != nil {
		return nil, err
	}

	sort.SliceStable(enrollments, func(i, j int) bool {
		a, b := enrollments[i], enrollments[j]
		if a.EventID != b.EventID {
			if !a.Event.ScheduledAt.Equal(b.Event.ScheduledAt) {
				return a.Event.ScheduledAt.Before(b.Event.ScheduledAt)
			}
			return a.EventID < b.EventID
		}
		return a.Participant.Name < b.Participant.Name
	})
	return enrollments, nil
}

func sortByName(enrollments []models.Enrollment) {
	sort.SliceStable(enrollments, func(i, j int) bool {
		return enrollments[i].Participant.Name < enrollments[j].Participant.Name
	})
}

// SortWaitlist orders waitlisted enrollments by the time they joined the
// waitlist, oldest first.
func SortWaitlist(enrollments []models.Enrollment) {
	sort.SliceStable(enrollments, func(i, j int) bool {
		a, b := enrollments[i].WaitlistedAt, enrollments[j].WaitlistedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
}
