package checkin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gdg-garage/event-checkin/internal/config"
	"github.com/gdg-garage/event-checkin/internal/database"
	"github.com/gdg-garage/event-checkin/internal/models"
	"github.com/gdg-garage/event-checkin/internal/registry"
	"github.com/gdg-garage/event-checkin/internal/storage"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	states []models.EnrollmentState
}

func (n *recordingNotifier) NotifyEnrollment(event models.Event, participant models.Participant, enrollment models.Enrollment) error {
	n.states = append(n.states, enrollment.State)
	return nil
}

// tickingClock returns a clock that advances one second per call.
func tickingClock() func() time.Time {
	t := time.Date(2025, 10, 20, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

type fixture struct {
	db       *gorm.DB
	registry *registry.Registry
	service  *Service
	notifier *recordingNotifier
}

func newFixture(t *testing.T, policy string) *fixture {
	t.Helper()
	db, err := database.OpenInMemory(t.Name())
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(db, storage.NewMemoryStore(), logger)
	n := &recordingNotifier{}
	svc := NewService(db, reg, n, logger, Options{WalkInPolicy: policy, Now: tickingClock()})
	return &fixture{db: db, registry: reg, service: svc, notifier: n}
}

func (f *fixture) participant(t *testing.T, number string) models.Participant {
	t.Helper()
	res, err := f.registry.RegisterOrUpdate(context.Background(), number, "Participant "+number, number+"@example.com")
	if err != nil {
		t.Fatalf("failed to register %s: %v", number, err)
	}
	return res.Participant
}

func (f *fixture) event(t *testing.T, capacity int) models.Event {
	t.Helper()
	e, err := f.service.CreateEvent(context.Background(), "Workshop", time.Now(), capacity)
	if err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	return *e
}

func (f *fixture) checkIn(t *testing.T, eventID uint, p models.Participant) *Outcome {
	t.Helper()
	out, err := f.service.CheckIn(context.Background(), eventID, Lookup{ScanID: p.ScanID})
	if err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}
	return out
}

func TestCheckIn_CapacityOverflowGoesToWaitlist(t *testing.T) {
	for _, enrolled := range []bool{true, false} {
		t.Run(fmt.Sprintf("Enrolled=%v", enrolled), func(t *testing.T) {
			f := newFixture(t, config.WalkInAdmit)
			event := f.event(t, 2)

			var people []models.Participant
			for i := 1; i <= 3; i++ {
				p := f.participant(t, fmt.Sprintf("%03d", i))
				if enrolled {
					if _, err := f.service.Enroll(context.Background(), event.ID, p.ID); err != nil {
						t.Fatalf("Enroll: %v", err)
					}
				}
				people = append(people, p)
			}

			for i, want := range []Result{ResultSuccess, ResultSuccess, ResultWaitlisted} {
				out := f.checkIn(t, event.ID, people[i])
				if out.Result != want {
					t.Errorf("check-in %d: expected %s, got %s", i+1, want, out.Result)
				}
			}

			var third models.Enrollment
			f.db.Where("participant_id = ?", people[2].ID).First(&third)
			if third.State != models.StateWaitlisted {
				t.Errorf("expected WAITLISTED, got %s", third.State)
			}
			if third.WaitlistedAt == nil || third.CheckedInAt != nil {
				t.Errorf("expected waitlist stamp only, got checked_in=%v waitlisted=%v", third.CheckedInAt, third.WaitlistedAt)
			}
			if len(f.notifier.states) != 1 || f.notifier.states[0] != models.StateWaitlisted {
				t.Errorf("expected one waitlist notification, got %v", f.notifier.states)
			}
		})
	}
}

func TestCheckIn_UnlimitedCapacity(t *testing.T) {
	f := newFixture(t, config.WalkInAdmit)
	event := f.event(t, 0)

	for i := 1; i <= 5; i++ {
		out := f.checkIn(t, event.ID, f.participant(t, fmt.Sprintf("%d", i)))
		if out.Result != ResultSuccess {
			t.Fatalf("check-in %d: expected success, got %s", i, out.Result)
		}
	}
}

func TestCheckIn_AlreadyCheckedInIsNoop(t *testing.T) {
	f := newFixture(t, config.WalkInAdmit)
	event := f.event(t, 10)
	p := f.participant(t, "111")

	first := f.checkIn(t, event.ID, p)
	if first.Result != ResultSuccess {
		t.Fatalf("expected success, got %s", first.Result)
	}
	checkedInAt := *first.Enrollment.CheckedInAt

	second := f.checkIn(t, event.ID, p)
	if second.Result != ResultAlreadyCheckedIn {
		t.Fatalf("expected already-checked-in, got %s", second.Result)
	}

	var stored models.Enrollment
	f.db.First(&stored, first.Enrollment.ID)
	if stored.CheckedInAt == nil || !stored.CheckedInAt.Equal(checkedInAt) {
		t.Errorf("check-in time changed: %v -> %v", checkedInAt, stored.CheckedInAt)
	}

	var count int64
	f.db.Model(&models.Enrollment{}).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 enrollment, got %d", count)
	}
}

func TestCheckIn_ManualLookupByRegistrationNumber(t *testing.T) {
	f := newFixture(t, config.WalkInAdmit)
	event := f.event(t, 0)
	p := f.participant(t, "12345678900")

	out, err := f.service.CheckIn(context.Background(), event.ID, Lookup{RegistrationNumber: "123.456.789-00"})
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if out.Result != ResultSuccess || out.Participant.ID != p.ID {
		t.Errorf("expected success for participant %d, got %s / %+v", p.ID, out.Result, out.Participant)
	}
}

func TestCheckIn_WalkInWaitlistPolicy(t *testing.T) {
	f := newFixture(t, config.WalkInWaitlist)
	event := f.event(t, 0)
	enrolled := f.participant(t, "111")
	walkIn := f.participant(t, "222")
	f.service.Enroll(context.Background(), event.ID, enrolled.ID)

	if out := f.checkIn(t, event.ID, enrolled); out.Result != ResultSuccess {
		t.Errorf("expected enrolled participant admitted, got %s", out.Result)
	}
	out := f.checkIn(t, event.ID, walkIn)
	if out.Result != ResultWaitlisted || !out.Created {
		t.Errorf("expected walk-in to be waitlisted, got %s (created=%v)", out.Result, out.Created)
	}
}

func TestCheckIn_FailureOutcomes(t *testing.T) {
	f := newFixture(t, config.WalkInAdmit)
	event := f.event(t, 0)
	p := f.participant(t, "111")
	ctx := context.Background()

	tests := []struct {
		name    string
		eventID uint
		lookup  Lookup
		want    Result
		missing string
	}{
		{"UnknownScanID", event.ID, Lookup{ScanID: "6f1c1b1e-8f5e-4a4e-9a57-3c1b2d9e0f11"}, ResultNotFound, "participant"},
		{"UnknownRegistration", event.ID, Lookup{RegistrationNumber: "999"}, ResultNotFound, "participant"},
		{"UnknownEvent", event.ID + 100, Lookup{ScanID: p.ScanID}, ResultNotFound, "event"},
		{"EmptyLookup", event.ID, Lookup{}, ResultInvalidRequest, ""},
		{"MalformedScanID", event.ID, Lookup{ScanID: "garbage"}, ResultInvalidRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := f.service.CheckIn(ctx, tt.eventID, tt.lookup)
			if err != nil {
				t.Fatalf("CheckIn returned error: %v", err)
			}
			if out.Result != tt.want || out.Missing != tt.missing {
				t.Errorf("expected %s/%q, got %s/%q", tt.want, tt.missing, out.Result, out.Missing)
			}
		})
	}

	var count int64
	f.db.Model(&models.Enrollment{}).Count(&count)
	if count != 0 {
		t.Errorf("expected no enrollments, got %d", count)
	}
}

func TestPromoteIgnoresCapacity(t *testing.T) {
	f := newFixture(t, config.WalkInAdmit)
	event := f.event(t, 1)
	a := f.participant(t, "111")
	b := f.participant(t, "222")

	f.checkIn(t, event.ID, a)
	out := f.checkIn(t, event.ID, b)
	if out.Result != ResultWaitlisted {
		t.Fatalf("expected waitlisted, got %s", out.Result)
	}

	promoted, err := f.service.Promote(context.Background(), out.Enrollment.ID)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if promoted.State != models.StatePresent || promoted.CheckedInAt == nil {
		t.Errorf("expected PRESENT with check-in time, got %s / %v", promoted.State, promoted.CheckedInAt)
	}
	if promoted.Participant.ID != b.ID || promoted.Event.ID != event.ID {
		t.Error("expected participant and event to be loaded")
	}

	present, _ := countPresent(f.db, event.ID)
	if present != 2 {
		t.Errorf("expected 2 present over capacity 1, got %d", present)
	}
}

func TestRevertToWaitlistMovesToBack(t *testing.T) {
	f := newFixture(t, config.WalkInAdmit)
	ctx := context.Background()
	event := f.event(t, 1)
	first := f.participant(t, "100")
	a := f.participant(t, "111")
	b := f.participant(t, "222")

	f.checkIn(t, event.ID, first)
	outA := f.checkIn(t, event.ID, a)
	outB := f.checkIn(t, event.ID, b)
	if outA.Result != ResultWaitlisted || outB.Result != ResultWaitlisted {
		t.Fatalf("expected both waitlisted, got %s and %s", outA.Result, outB.Result)
	}

	if _, err := f.service.Promote(ctx, outA.Enrollment.ID); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	reverted, err := f.service.RevertToWaitlist(ctx, outA.Enrollment.ID)
	if err != nil {
		t.Fatalf("RevertToWaitlist: %v", err)
	}
	if reverted.State != models.StateWaitlisted || reverted.CheckedInAt != nil {
		t.Errorf("expected WAITLISTED without check-in time, got %s / %v", reverted.State, reverted.CheckedInAt)
	}

	roster, err := f.service.Roster(ctx, event.ID)
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if len(roster.Waitlisted) != 2 {
		t.Fatalf("expected 2 waitlisted, got %d", len(roster.Waitlisted))
	}
	if roster.Waitlisted[0].ParticipantID != b.ID || roster.Waitlisted[1].ParticipantID != a.ID {
		t.Errorf("expected waitlist order [%d %d], got [%d %d]", b.ID, a.ID,
			roster.Waitlisted[0].ParticipantID, roster.Waitlisted[1].ParticipantID)
	}
}

func TestRecheckInKeepsWaitlistPosition(t *testing.T) {
	f := newFixture(t, config.WalkInAdmit)
	event := f.event(t, 1)
	f.checkIn(t, event.ID, f.participant(t, "100"))
	p := f.participant(t, "111")

	first := f.checkIn(t, event.ID, p)
	again := f.checkIn(t, event.ID, p)
	if again.Result != ResultWaitlisted {
		t.Fatalf("expected waitlisted, got %s", again.Result)
	}
	if !again.Enrollment.WaitlistedAt.Equal(*first.Enrollment.WaitlistedAt) {
		t.Errorf("waitlist time refreshed: %v -> %v", first.Enrollment.WaitlistedAt, again.Enrollment.WaitlistedAt)
	}
}

func TestTransitionUnknownEnrollment(t *testing.T) {
	f := newFixture(t, config.WalkInAdmit)
	if _, err := f.service.Promote(context.Background(), 42); !errors.Is(err, ErrEnrollmentNotFound) {
		t.Errorf("expected ErrEnrollmentNotFound, got %v", err)
	}
	if _, err := f.service.RevertToWaitlist(context.Background(), 42); !errors.Is(err, ErrEnrollmentNotFound) {
		t.Errorf("expected ErrEnrollmentNotFound, got %v", err)
	}
}

func TestEnrollIsIdempotent(t *testing.T) {
	f := newFixture(t, config.WalkInAdmit)
	ctx := context.Background()
	event := f.event(t, 0)
	p := f.participant(t, "111")

	created, err := f.service.Enroll(ctx, event.ID, p.ID)
	if err != nil || !created {
		t.Fatalf("expected first enroll to create, got %v / %v", created, err)
	}
	f.checkIn(t, event.ID, p)

	created, err = f.service.Enroll(ctx, event.ID, p.ID)
	if err != nil || created {
		t.Fatalf("expected second enroll to be a no-op, got %v / %v", created, err)
	}

	var stored models.Enrollment
	f.db.Where("participant_id = ?", p.ID).First(&stored)
	if stored.State != models.StatePresent {
		t.Errorf("expected enrollment to stay PRESENT, got %s", stored.State)
	}
}

func TestRosterSplitsByState(t *testing.T) {
	f := newFixture(t, config.WalkInAdmit)
	ctx := context.Background()
	event := f.event(t, 1)

	zeca, _ := f.registry.RegisterOrUpdate(ctx, "1", "Zeca", "zeca@example.com")
	ana, _ := f.registry.RegisterOrUpdate(ctx, "2", "Ana", "ana@example.com")
	bia, _ := f.registry.RegisterOrUpdate(ctx, "3", "Bia", "bia@example.com")
	caio, _ := f.registry.RegisterOrUpdate(ctx, "4", "Caio", "caio@example.com")
	for _, p := range []models.Participant{zeca.Participant, ana.Participant, bia.Participant} {
		f.service.Enroll(ctx, event.ID, p.ID)
	}
	f.checkIn(t, event.ID, bia.Participant)
	f.checkIn(t, event.ID, caio.Participant)

	roster, err := f.service.Roster(ctx, event.ID)
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if len(roster.Waiting) != 2 || roster.Waiting[0].Participant.Name != "Ana" || roster.Waiting[1].Participant.Name != "Zeca" {
		t.Errorf("unexpected waiting list: %+v", roster.Waiting)
	}
	if len(roster.Present) != 1 || roster.Present[0].Participant.Name != "Bia" {
		t.Errorf("unexpected present list: %+v", roster.Present)
	}
	if len(roster.Waitlisted) != 1 || roster.Waitlisted[0].Participant.Name != "Caio" {
		t.Errorf("unexpected waitlist: %+v", roster.Waitlisted)
	}

	if _, err := f.service.Roster(ctx, event.ID+1); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
}

func TestCreateEventValidation(t *testing.T) {
	f := newFixture(t, config.WalkInAdmit)
	ctx := context.Background()

	if _, err := f.service.CreateEvent(ctx, " ", time.Now(), 0); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent for empty name, got %v", err)
	}
	if _, err := f.service.CreateEvent(ctx, "Talk", time.Now(), -1); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent for negative capacity, got %v", err)
	}
}
