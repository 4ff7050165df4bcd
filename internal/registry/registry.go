package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/gdg-garage/event-checkin/internal/models"
	"github.com/gdg-garage/event-checkin/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Registry struct {
	db     *gorm.DB
	images storage.ImageStore
	logger *slog.Logger
}

func New(db *gorm.DB, images storage.ImageStore, logger *slog.Logger) *Registry {
	return &Registry{db: db, images: images, logger: logger}
}

// Result is the outcome of RegisterOrUpdate.
type Result struct {
	Participant models.Participant
	Created     bool
}

// RegisterOrUpdate creates the participant identified by registrationNumber or
// refreshes its name and email. The scan identifier is issued once, on
// creation, and never rotated.
func (r *Registry) RegisterOrUpdate(ctx context.Context, registrationNumber, name, email string) (*Result, error) {
	registrationNumber = strings.TrimSpace(registrationNumber)
	name = strings.TrimSpace(name)

	key := models.NormalizeKey(registrationNumber)
	if key == "" {
		return nil, fmt.Errorf("%w: registration number is required", ErrInvalidParticipant)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidParticipant)
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid email %q", ErrInvalidParticipant, email)
	}
	// Only the mailbox is stored; display names would defeat the unique index.
	email = strings.ToLower(addr.Address)

	var (
		participant models.Participant
		created     bool
	)
	for attempt := 0; attempt < 2; attempt++ {
		participant, created, err = r.upsert(ctx, key, registrationNumber, name, email)
		// A first-time registration racing another one for the same number
		// loses on the registration key index; the retry updates the winner's row.
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("%w: %s", ErrEmailConflict, email)
	}
	if err != nil {
		return nil, fmt.Errorf("register participant %s: %w", registrationNumber, err)
	}

	if participant.QRCodeKey == "" {
		if _, err := r.storeQRCode(ctx, &participant); err != nil {
			// The image is rendered again on first retrieval.
			r.logger.WarnContext(ctx, "failed to store qr code",
				slog.Uint64("participant_id", uint64(participant.ID)),
				slog.Any("error", err))
		}
	}

	return &Result{Participant: participant, Created: created}, nil
}

func (r *Registry) upsert(ctx context.Context, key, registrationNumber, name, email string) (models.Participant, bool, error) {
	var participant models.Participant
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(models.Participant{RegistrationKey: key}).FirstOrInit(&participant).Error; err != nil {
			return err
		}

		var conflicts int64
		if err := tx.Model(&models.Participant{}).
			Where("email = ? AND registration_key <> ?", email, key).
			Count(&conflicts).Error; err != nil {
			return err
		}
		if conflicts > 0 {
			return fmt.Errorf("%w: %s", ErrEmailConflict, email)
		}

		created = participant.ID == 0
		participant.RegistrationNumber = registrationNumber
		participant.Name = name
		participant.Email = email
		if participant.ScanID == "" {
			participant.ScanID = uuid.NewString()
		}

		return tx.Save(&participant).Error
	})
	return participant, created, err
}

// QRCode returns the PNG scan code of a participant, rendering and storing it
// when it is missing.
func (r *Registry) QRCode(ctx context.Context, participant *models.Participant) ([]byte, error) {
	if participant.QRCodeKey != "" {
		png, err := r.images.Get(ctx, participant.QRCodeKey)
		if err == nil {
			return png, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}
	return r.storeQRCode(ctx, participant)
}

func (r *Registry) storeQRCode(ctx context.Context, participant *models.Participant) ([]byte, error) {
	png, err := RenderQRCode(participant.ScanID)
	if err != nil {
		return nil, err
	}

	key := qrCodeKey(participant.RegistrationKey)
	if err := r.images.Put(ctx, key, "image/png", png); err != nil {
		return nil, err
	}

	if participant.QRCodeKey != key {
		if err := r.db.WithContext(ctx).Model(participant).Update("qr_code_key", key).Error; err != nil {
			return nil, fmt.Errorf("save qr code key: %w", err)
		}
		participant.QRCodeKey = key
	}
	return png, nil
}

func (r *Registry) Get(ctx context.Context, id uint) (*models.Participant, error) {
	var participant models.Participant
	err := r.db.WithContext(ctx).First(&participant, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

// Lookup finds a participant by scan identifier, falling back to the
// registration number.
func (r *Registry) Lookup(ctx context.Context, scanID, registrationNumber string) (*models.Participant, error) {
	scanID = strings.TrimSpace(scanID)
	if scanID != "" {
		if _, err := uuid.Parse(scanID); err != nil {
			return nil, fmt.Errorf("%w: malformed scan identifier", ErrInvalidLookup)
		}
		return r.first(ctx, "scan_id = ?", scanID)
	}

	key := models.NormalizeKey(registrationNumber)
	if key == "" {
		return nil, ErrInvalidLookup
	}
	return r.first(ctx, "registration_key = ?", key)
}

func (r *Registry) first(ctx context.Context, query string, arg string) (*models.Participant, error) {
	var participant models.Participant
	err := r.db.WithContext(ctx).Where(query, arg).First(&participant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *Registry) List(ctx context.Context) ([]models.Participant, error) {
	var participants []models.Participant
	if err := r.db.WithContext(ctx).Order("name asc").Find(&participants).Error; err != nil {
		return nil, err
	}
	return participants, nil
}

// ListPendingEmail returns participants whose scan code was never emailed.
func (r *Registry) ListPendingEmail(ctx context.Context) ([]models.Participant, error) {
	var participants []models.Participant
	if err := r.db.WithContext(ctx).Where("email_sent_at IS NULL").Order("name asc").Find(&participants).Error; err != nil {
		return nil, err
	}
	return participants, nil
}

// FindByKeys loads every participant whose normalized registration key is in
// keys with a single query, indexed by key.
func (r *Registry) FindByKeys(ctx context.Context, keys []string) (map[string]models.Participant, error) {
	found := make(map[string]models.Participant, len(keys))
	if len(keys) == 0 {
		return found, nil
	}

	var participants []models.Participant
	if err := r.db.WithContext(ctx).Where("registration_key IN ?", keys).Find(&participants).Error; err != nil {
		return nil, err
	}
	for _, p := range participants {
		found[p.RegistrationKey] = p
	}
	return found, nil
}

func (r *Registry) MarkEmailed(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Participant{}).Where("id = ?", id).Update("email_sent_at", at).Error
}
