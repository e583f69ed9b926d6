package domain

import (
	"time"

	"github.com/google/uuid"
)

// Security event types recorded for the audit trail.
const (
	EventEnrollmentStarted   = "enrollment_started"
	EventEnrollmentConfirmed = "enrollment_confirmed"
	EventVerifySuccess       = "verify_success"
	EventVerifyFailure       = "verify_failure"
	EventBackupCodeUsed      = "backup_code_used"
	EventBackupRegenerated   = "backup_codes_regenerated"
	EventLockoutTriggered    = "lockout_triggered"
	EventLockoutCleared      = "lockout_cleared"
	EventMFADisabled         = "mfa_disabled"
)

// Event severities, escalating with repeated failures.
const (
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityCritical = "CRITICAL"
)

// SecurityEvent is one immutable entry of the append-only audit trail.
type SecurityEvent struct {
	ID        uuid.UUID              `json:"id"`
	Type      string                 `json:"type"`
	UserID    uuid.UUID              `json:"user_id"`
	Severity  string                 `json:"severity"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}
