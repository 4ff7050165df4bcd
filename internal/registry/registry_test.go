package registry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gdg-garage/event-checkin/internal/database"
	"github.com/gdg-garage/event-checkin/internal/models"
	"github.com/gdg-garage/event-checkin/internal/storage"
	"gorm.io/gorm"
)

func newTestRegistry(t *testing.T) (*Registry, *gorm.DB, *storage.MemoryStore) {
	t.Helper()
	db, err := database.OpenInMemory(t.Name())
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	images := storage.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(db, images, logger), db, images
}

func TestRegisterOrUpdate_StableScanID(t *testing.T) {
	reg, db, images := newTestRegistry(t)
	ctx := context.Background()

	first, err := reg.RegisterOrUpdate(ctx, "123.456.789-00", "Ana Souza", "ana@example.com")
	if err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if !first.Created {
		t.Error("expected first registration to create the participant")
	}
	if first.Participant.ScanID == "" {
		t.Fatal("expected a scan identifier to be issued")
	}
	if first.Participant.QRCodeKey != "qrcodes/12345678900.png" {
		t.Errorf("unexpected qr code key %q", first.Participant.QRCodeKey)
	}
	if images.Len() != 1 {
		t.Errorf("expected 1 stored image, got %d", images.Len())
	}

	second, err := reg.RegisterOrUpdate(ctx, "12345678900", "Ana Souza Lima", "ana.lima@example.com")
	if err != nil {
		t.Fatalf("second registration failed: %v", err)
	}
	if second.Created {
		t.Error("expected second registration to update")
	}
	if second.Participant.ID != first.Participant.ID {
		t.Errorf("expected same participant, got %d and %d", first.Participant.ID, second.Participant.ID)
	}
	if second.Participant.ScanID != first.Participant.ScanID {
		t.Errorf("scan identifier rotated: %s -> %s", first.Participant.ScanID, second.Participant.ScanID)
	}

	var stored models.Participant
	db.First(&stored, first.Participant.ID)
	if stored.Name != "Ana Souza Lima" || stored.Email != "ana.lima@example.com" {
		t.Errorf("expected refreshed name/email, got %q / %q", stored.Name, stored.Email)
	}

	var count int64
	db.Model(&models.Participant{}).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 participant, got %d", count)
	}
}

func TestRegisterOrUpdate_EmailConflict(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.RegisterOrUpdate(ctx, "111", "Ana", "shared@example.com"); err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	_, err := reg.RegisterOrUpdate(ctx, "222", "Bruno", "Shared@Example.com")
	if !errors.Is(err, ErrEmailConflict) {
		t.Fatalf("expected ErrEmailConflict, got %v", err)
	}
}

func TestRegisterOrUpdate_DisplayNameEmail(t *testing.T) {
	reg, db, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.RegisterOrUpdate(ctx, "111", "Ana", "ana@example.com"); err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	_, err := reg.RegisterOrUpdate(ctx, "222", "Bruno", "Someone <Ana@Example.com>")
	if !errors.Is(err, ErrEmailConflict) {
		t.Fatalf("expected ErrEmailConflict, got %v", err)
	}

	res, err := reg.RegisterOrUpdate(ctx, "333", "Carla", "Carla Dias <Carla@Example.com>")
	if err != nil {
		t.Fatalf("registration failed: %v", err)
	}
	var stored models.Participant
	db.First(&stored, res.Participant.ID)
	if stored.Email != "carla@example.com" {
		t.Errorf("expected bare mailbox to be stored, got %q", stored.Email)
	}
}

func TestRegisterOrUpdate_RetriesLostInsert(t *testing.T) {
	reg, db, _ := newTestRegistry(t)
	ctx := context.Background()

	// Another registration of the same number lands between the lookup and
	// the insert.
	raced := false
	err := db.Callback().Create().Before("gorm:create").Register("test:concurrent_register", func(tx *gorm.DB) {
		if raced || tx.Statement.Table != "participants" {
			return
		}
		raced = true
		now := time.Now()
		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO participants (created_at, updated_at, registration_number, registration_key, name, email, scan_id, qr_code_key) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			now, now, "111", "111", "Ana", "ana.other@example.com", "concurrent-scan-id", "")
	})
	if err != nil {
		t.Fatalf("failed to register callback: %v", err)
	}

	res, err := reg.RegisterOrUpdate(ctx, "111", "Ana", "ana@example.com")
	if err != nil {
		t.Fatalf("expected the registration to be retried, got %v", err)
	}
	if !raced {
		t.Fatal("expected the first insert to conflict")
	}
	if res.Participant.RegistrationKey != "111" || res.Participant.Email != "ana@example.com" {
		t.Errorf("unexpected participant: %+v", res.Participant)
	}

	var count int64
	db.Model(&models.Participant{}).Where("registration_key = ?", "111").Count(&count)
	if count != 1 {
		t.Errorf("expected 1 participant, got %d", count)
	}
}

func TestRegisterOrUpdate_Validation(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		number string
		pname  string
		email  string
	}{
		{"MissingNumber", " .- ", "Ana", "ana@example.com"},
		{"MissingName", "111", "  ", "ana@example.com"},
		{"BadEmail", "111", "Ana", "not-an-email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.RegisterOrUpdate(ctx, tt.number, tt.pname, tt.email)
			if !errors.Is(err, ErrInvalidParticipant) {
				t.Errorf("expected ErrInvalidParticipant, got %v", err)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	res, err := reg.RegisterOrUpdate(ctx, "12345678900", "Ana", "ana@example.com")
	if err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	t.Run("ByScanID", func(t *testing.T) {
		p, err := reg.Lookup(ctx, res.Participant.ScanID, "")
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if p.ID != res.Participant.ID {
			t.Errorf("expected participant %d, got %d", res.Participant.ID, p.ID)
		}
	})

	t.Run("ByPunctuatedRegistrationNumber", func(t *testing.T) {
		p, err := reg.Lookup(ctx, "", "123.456.789-00")
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if p.ID != res.Participant.ID {
			t.Errorf("expected participant %d, got %d", res.Participant.ID, p.ID)
		}
	})

	t.Run("UnknownScanID", func(t *testing.T) {
		_, err := reg.Lookup(ctx, "6f1c1b1e-8f5e-4a4e-9a57-3c1b2d9e0f11", "")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("MalformedScanID", func(t *testing.T) {
		_, err := reg.Lookup(ctx, "not-a-uuid", "")
		if !errors.Is(err, ErrInvalidLookup) {
			t.Errorf("expected ErrInvalidLookup, got %v", err)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := reg.Lookup(ctx, "", " - ")
		if !errors.Is(err, ErrInvalidLookup) {
			t.Errorf("expected ErrInvalidLookup, got %v", err)
		}
	})
}

func TestQRCodeRenderedWhenMissing(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	res, err := reg.RegisterOrUpdate(ctx, "555", "Caio", "caio@example.com")
	if err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	// Simulate an image store that lost the object.
	reg.images = storage.NewMemoryStore()

	png, err := reg.QRCode(ctx, &res.Participant)
	if err != nil {
		t.Fatalf("QRCode: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("expected PNG data")
	}

	again, err := reg.QRCode(ctx, &res.Participant)
	if err != nil {
		t.Fatalf("QRCode (stored): %v", err)
	}
	if !bytes.Equal(png, again) {
		t.Error("expected stored image to be returned")
	}
}

func TestFindByKeysAndPendingEmail(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	a, _ := reg.RegisterOrUpdate(ctx, "111", "Ana", "ana@example.com")
	reg.RegisterOrUpdate(ctx, "222", "Bruno", "bruno@example.com")

	found, err := reg.FindByKeys(ctx, []string{"111", "222", "333"})
	if err != nil {
		t.Fatalf("FindByKeys: %v", err)
	}
	if len(found) != 2 {
		t.Errorf("expected 2 participants, got %d", len(found))
	}

	if err := reg.MarkEmailed(ctx, a.Participant.ID, a.Participant.CreatedAt); err != nil {
		t.Fatalf("MarkEmailed: %v", err)
	}
	pending, err := reg.ListPendingEmail(ctx)
	if err != nil {
		t.Fatalf("ListPendingEmail: %v", err)
	}
	if len(pending) != 1 || pending[0].Name != "Bruno" {
		t.Errorf("expected only Bruno pending, got %+v", pending)
	}
}
