package domain

import (
	"time"

	"github.com/google/uuid"
)

// TOTP parameters are fixed platform-wide; authenticator apps widely
// support only this combination.
const (
	TOTPAlgorithm   = "SHA1"
	TOTPDigits      = 6
	TOTPStepSeconds = 30
)

// MFAEnrollment is the per-user TOTP enrollment record.
// The secret is AES-256-GCM encrypted before it reaches the store.
type MFAEnrollment struct {
	UserID          uuid.UUID  `json:"user_id"`
	SecretEncrypted string     `json:"secret_encrypted"`
	Algorithm       string     `json:"algorithm"`
	Digits          int        `json:"digits"`
	StepSeconds     int        `json:"step_seconds"`
	CreatedAt       time.Time  `json:"created_at"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
	// LastConsumedStep is the highest time-step index that produced a
	// successful verification. Codes at or below it are replays.
	LastConsumedStep int64 `json:"last_consumed_step"`
	Enabled          bool  `json:"enabled"`
}

// Confirmed reports whether the enrollment passed its first verification.
func (e *MFAEnrollment) Confirmed() bool {
	return e.ConfirmedAt != nil
}
