package mfa

import (
	"context"

	"github.com/google/uuid"

	"github.com/bfc-vpn/mfa-core/internal/domain"
	"github.com/bfc-vpn/mfa-core/internal/service/backup"
	"github.com/bfc-vpn/mfa-core/internal/service/lockout"
	"github.com/bfc-vpn/mfa-core/internal/service/totp"
)

// TOTPEngine defines the enrollment operations needed by the orchestrator
type TOTPEngine interface {
	BeginEnrollment(ctx context.Context, userID uuid.UUID, accountName string) (*totp.EnrollmentSetup, error)
	ConfirmEnrollment(ctx context.Context, userID uuid.UUID, code string) (bool, error)
	VerifyCode(ctx context.Context, userID uuid.UUID, code string) (bool, error)
	Disable(ctx context.Context, userID uuid.UUID) (bool, error)
	Enrollment(ctx context.Context, userID uuid.UUID) (*domain.MFAEnrollment, error)
}

// BackupManager defines the backup code operations needed by the orchestrator
type BackupManager interface {
	Generate(ctx context.Context, userID uuid.UUID) ([]string, error)
	ValidateAndConsume(ctx context.Context, userID uuid.UUID, code string) (*backup.ConsumeResult, error)
	MatchesFormat(code string) bool
	Status(ctx context.Context, userID uuid.UUID) (*domain.BackupCodeSet, error)
	Remove(ctx context.Context, userID uuid.UUID) error
}

// LockoutController defines the lockout operations needed by the orchestrator
type LockoutController interface {
	CheckAccess(ctx context.Context, userID uuid.UUID) (*lockout.Decision, error)
	RecordFailure(ctx context.Context, userID uuid.UUID) (*lockout.Decision, error)
	RecordSuccess(ctx context.Context, userID uuid.UUID) error
	Reset(ctx context.Context, userID uuid.UUID) error
}

// EventRecorder defines the security event operations needed by the orchestrator
type EventRecorder interface {
	Record(event domain.SecurityEvent) error
}
