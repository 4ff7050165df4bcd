package models

import (
	"strings"
	"time"
	"unicode"

	"gorm.io/gorm"
)

type Participant struct {
	gorm.Model
	RegistrationNumber string     `json:"registration_number" gorm:"not null"`
	RegistrationKey    string     `json:"-" gorm:"uniqueIndex;not null"`
	Name               string     `json:"name" gorm:"not null;index"`
	Email              string     `json:"email" gorm:"uniqueIndex;not null"`
	ScanID             string     `json:"scan_id" gorm:"uniqueIndex;not null"`
	QRCodeKey          string     `json:"-"`
	EmailSentAt        *time.Time `json:"email_sent_at"`
}

// BeforeSave keeps the lookup key in step with the registration number so
// manual lookups never have to normalize at read time.
func (p *Participant) BeforeSave(tx *gorm.DB) error {
	p.RegistrationKey = NormalizeKey(p.RegistrationNumber)
	return nil
}

// NormalizeKey strips punctuation and spacing from a registration number and
// lower-cases it: "123.456.789-00" and "12345678900" share one key.
func NormalizeKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
