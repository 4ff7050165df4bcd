package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gdg-garage/event-checkin/internal/auth"
	"github.com/gdg-garage/event-checkin/internal/models"
	"gorm.io/gorm"
)

// ScannerKeyPrefix marks secrets issued to scanner stations.
const ScannerKeyPrefix = "scan_"

// ScannerKeyHandler issues and revokes the X-API-KEY secrets that let a
// door scanner check people in without an organizer session.
type ScannerKeyHandler struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewScannerKeyHandler(db *gorm.DB, logger *slog.Logger) *ScannerKeyHandler {
	return &ScannerKeyHandler{db: db, logger: logger, now: time.Now}
}

type IssueScannerKeyInput struct {
	Body struct {
		Station    string `json:"station" minLength:"1" doc:"Where the scanner stands, e.g. \"Auditorium door\""`
		ValidHours int    `json:"valid_hours,omitempty" minimum:"0" doc:"Hours until the key stops working; 0 keeps it valid until revoked"`
	}
}

type ScannerKeyResponse struct {
	ID         uint       `json:"id"`
	Station    string     `json:"station"`
	Secret     string     `json:"secret,omitempty" doc:"Only returned when the key is issued"`
	Hint       string     `json:"hint"`
	Active     bool       `json:"active"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  *time.Time `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

type ScannerKeyOutput struct {
	Body ScannerKeyResponse
}

type ScannerKeyListOutput struct {
	Body []ScannerKeyResponse
}

type RevokeScannerKeyInput struct {
	ID uint `path:"id"`
}

func newScannerSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return ScannerKeyPrefix + hex.EncodeToString(b), nil
}

func scannerKeyResponse(k models.APIKey, now time.Time) ScannerKeyResponse {
	hint := k.Key
	if len(hint) > 4 {
		hint = "..." + hint[len(hint)-4:]
	}
	return ScannerKeyResponse{
		ID:         k.ID,
		Station:    k.Name,
		Hint:       hint,
		Active:     !k.Expired(now),
		IssuedAt:   k.CreatedAt,
		ExpiresAt:  k.ExpiresAt,
		LastUsedAt: k.LastUsedAt,
	}
}

func (h *ScannerKeyHandler) HandleIssue(ctx context.Context, input *IssueScannerKeyInput) (*ScannerKeyOutput, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	station := strings.TrimSpace(input.Body.Station)
	if station == "" {
		return nil, huma.Error422UnprocessableEntity("Station name is required")
	}

	secret, err := newScannerSecret()
	if err != nil {
		return nil, serverError(ctx, h.logger, "Failed to issue scanner key", err)
	}

	now := h.now()
	key := models.APIKey{UserID: userID, Key: secret, Name: station}
	if input.Body.ValidHours > 0 {
		expires := now.Add(time.Duration(input.Body.ValidHours) * time.Hour)
		key.ExpiresAt = &expires
	}
	if err := h.db.WithContext(ctx).Create(&key).Error; err != nil {
		return nil, serverError(ctx, h.logger, "Failed to issue scanner key", err)
	}

	h.logger.InfoContext(ctx, "scanner key issued",
		slog.Uint64("scanner_key_id", uint64(key.ID)),
		slog.String("station", station),
		slog.Uint64("user_id", uint64(userID)))

	resp := scannerKeyResponse(key, now)
	resp.Secret = secret
	return &ScannerKeyOutput{Body: resp}, nil
}

// HandleList shows the caller's stations, newest first. Secrets are never
// shown again after issue.
func (h *ScannerKeyHandler) HandleList(ctx context.Context, input *struct{}) (*ScannerKeyListOutput, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	var keys []models.APIKey
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc, id desc").Find(&keys).Error; err != nil {
		return nil, serverError(ctx, h.logger, "Failed to list scanner keys", err)
	}

	now := h.now()
	out := make([]ScannerKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, scannerKeyResponse(k, now))
	}
	return &ScannerKeyListOutput{Body: out}, nil
}

func (h *ScannerKeyHandler) HandleRevoke(ctx context.Context, input *RevokeScannerKeyInput) (*struct{}, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	res := h.db.WithContext(ctx).Where("id = ? AND user_id = ?", input.ID, userID).Delete(&models.APIKey{})
	if res.Error != nil {
		return nil, serverError(ctx, h.logger, "Failed to revoke scanner key", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, huma.Error404NotFound("Scanner key not found")
	}

	h.logger.InfoContext(ctx, "scanner key revoked", slog.Uint64("scanner_key_id", uint64(input.ID)))
	return nil, nil
}
