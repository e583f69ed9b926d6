// Package mfa is the orchestrator behind the HTTP surface: it composes
// the TOTP engine, backup code manager, lockout controller and security
// event recorder into the user-facing MFA operations. Components never
// call each other; every cross-component decision lives here.
package mfa

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bfc-vpn/mfa-core/internal/domain"
	totpGen "github.com/bfc-vpn/mfa-core/internal/infrastructure/totp"
	"github.com/bfc-vpn/mfa-core/internal/pkg/apperror"
	"github.com/bfc-vpn/mfa-core/internal/service/events"
)

// Verification methods as recorded in events and metrics.
const (
	MethodTOTP       = "totp"
	MethodBackupCode = "backup_code"
)

// Service orchestrates MFA operations
type Service struct {
	totpEngine TOTPEngine
	backupMgr  BackupManager
	lockout    LockoutController
	recorder   EventRecorder
	now        func() time.Time
}

// NewService creates the MFA orchestrator
func NewService(totpEngine TOTPEngine, backupMgr BackupManager, lockout LockoutController, recorder EventRecorder) *Service {
	return NewServiceWithClock(totpEngine, backupMgr, lockout, recorder, time.Now)
}

// NewServiceWithClock creates the MFA orchestrator with an injected clock (for testing)
func NewServiceWithClock(totpEngine TOTPEngine, backupMgr BackupManager, lockout LockoutController, recorder EventRecorder, clock func() time.Time) *Service {
	return &Service{
		totpEngine: totpEngine,
		backupMgr:  backupMgr,
		lockout:    lockout,
		recorder:   recorder,
		now:        clock,
	}
}

// EnrollResponse carries the provisioning material, shown exactly once
type EnrollResponse struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
}

// ConfirmResponse carries the backup codes generated on activation,
// shown exactly once
type ConfirmResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// VerifyResponse reports a successful verification
type VerifyResponse struct {
	Method               string `json:"method"`
	BackupCodesRemaining *int   `json:"backup_codes_remaining,omitempty"`
}

// StatusResponse summarizes the user's MFA state
type StatusResponse struct {
	Enabled              bool       `json:"enabled"`
	Pending              bool       `json:"pending"`
	ConfirmedAt          *time.Time `json:"confirmed_at,omitempty"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
	Locked               bool       `json:"locked"`
	BlockedUntil         *time.Time `json:"blocked_until,omitempty"`
}

// BackupStatusResponse reports the used/unused state of the code set
type BackupStatusResponse struct {
	GeneratedAt time.Time `json:"generated_at"`
	Remaining   int       `json:"remaining"`
	Used        []bool    `json:"used"`
}

// Enroll starts a TOTP enrollment for the user.
func (s *Service) Enroll(ctx context.Context, userID uuid.UUID, accountName string) (*EnrollResponse, error) {
	setup, err := s.totpEngine.BeginEnrollment(ctx, userID, accountName)
	if err != nil {
		return nil, err
	}

	if err := s.record(domain.SecurityEvent{
		Type:   domain.EventEnrollmentStarted,
		UserID: userID,
	}); err != nil {
		return nil, err
	}
	RecordEnrollmentOp("enroll")

	return &EnrollResponse{
		Secret:     setup.Secret,
		OTPAuthURL: setup.OTPAuthURL,
	}, nil
}

// Confirm activates a pending enrollment with its first valid code and
// hands out the initial backup code set.
func (s *Service) Confirm(ctx context.Context, userID uuid.UUID, code string) (*ConfirmResponse, error) {
	if !totpGen.IsTOTPFormat(code) {
		return nil, apperror.InvalidFormatError("Mã xác nhận phải gồm 6 chữ số")
	}

	ok, err := s.totpEngine.ConfirmEnrollment(ctx, userID, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := s.record(domain.SecurityEvent{
			Type:     domain.EventVerifyFailure,
			UserID:   userID,
			Metadata: map[string]interface{}{"method": MethodTOTP, "phase": "confirm", "reason": "invalid_code"},
		}); err != nil {
			return nil, err
		}
		return nil, apperror.AuthenticationError(
			"Mã xác thực không đúng",
			"Vui lòng kiểm tra lại mã trong ứng dụng xác thực của bạn",
		)
	}

	if err := s.record(domain.SecurityEvent{
		Type:   domain.EventEnrollmentConfirmed,
		UserID: userID,
	}); err != nil {
		return nil, err
	}
	RecordEnrollmentOp("confirm")

	codes, err := s.backupMgr.Generate(ctx, userID)
	if err != nil {
		// The enrollment stays active; the failure surfaces so the
		// caller knows the user holds zero recovery codes. Codes can be
		// issued through RegenerateBackupCodes once the store recovers.
		slog.Error("Failed to generate backup codes on confirm",
			slog.Any("error", err), slog.String("user_id", userID.String()))
		return nil, err
	}
	return &ConfirmResponse{BackupCodes: codes}, nil
}

// Verify checks a TOTP or backup code for the user. The method is
// picked by input shape; malformed input is rejected before any
// verification or failure accounting happens.
func (s *Service) Verify(ctx context.Context, userID uuid.UUID, code string) (*VerifyResponse, error) {
	started := s.now()

	decision, err := s.lockout.CheckAccess(ctx, userID)
	if err != nil {
		return nil, err
	}
	if decision.Cleared {
		if err := s.record(domain.SecurityEvent{
			Type:   domain.EventLockoutCleared,
			UserID: userID,
		}); err != nil {
			return nil, err
		}
	}
	if decision.Access == domain.LockoutBlocked {
		if err := s.record(domain.SecurityEvent{
			Type:     domain.EventVerifyFailure,
			UserID:   userID,
			Severity: domain.SeverityWarning,
			Metadata: map[string]interface{}{"reason": "account_locked"},
		}); err != nil {
			return nil, err
		}
		return nil, apperror.AccountLockedError(s.minutesUntil(decision.BlockedUntil))
	}

	switch {
	case totpGen.IsTOTPFormat(code):
		return s.verifyTOTP(ctx, userID, code, started)
	case s.backupMgr.MatchesFormat(code):
		return s.verifyBackupCode(ctx, userID, code, started)
	default:
		return nil, apperror.InvalidFormatError("Định dạng mã không hợp lệ")
	}
}

func (s *Service) verifyTOTP(ctx context.Context, userID uuid.UUID, code string, started time.Time) (*VerifyResponse, error) {
	ok, err := s.totpEngine.VerifyCode(ctx, userID, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.handleFailure(ctx, userID, MethodTOTP, started)
	}

	if err := s.handleSuccess(ctx, userID, MethodTOTP, nil, started); err != nil {
		return nil, err
	}
	return &VerifyResponse{Method: MethodTOTP}, nil
}

func (s *Service) verifyBackupCode(ctx context.Context, userID uuid.UUID, code string, started time.Time) (*VerifyResponse, error) {
	// Backup codes only stand in for TOTP while an enrollment is active
	enrollment, err := s.totpEngine.Enrollment(ctx, userID)
	if err != nil {
		return nil, err
	}
	if enrollment == nil || !enrollment.Enabled {
		return nil, apperror.NoActiveEnrollmentError()
	}

	result, err := s.backupMgr.ValidateAndConsume(ctx, userID, code)
	if err != nil {
		return nil, err
	}
	if !result.Consumed {
		return nil, s.handleFailure(ctx, userID, MethodBackupCode, started)
	}

	remaining := result.Remaining
	if err := s.handleSuccess(ctx, userID, MethodBackupCode, &remaining, started); err != nil {
		return nil, err
	}
	return &VerifyResponse{Method: MethodBackupCode, BackupCodesRemaining: &remaining}, nil
}

func (s *Service) handleSuccess(ctx context.Context, userID uuid.UUID, method string, backupRemaining *int, started time.Time) error {
	if err := s.lockout.RecordSuccess(ctx, userID); err != nil {
		return err
	}

	if err := s.record(domain.SecurityEvent{
		Type:     domain.EventVerifySuccess,
		UserID:   userID,
		Metadata: map[string]interface{}{"method": method},
	}); err != nil {
		return err
	}

	if method == MethodBackupCode && backupRemaining != nil {
		// Low remaining codes escalate so operators notice users about
		// to lose their fallback
		severity := domain.SeverityInfo
		if *backupRemaining <= 2 {
			severity = domain.SeverityWarning
		}
		if err := s.record(domain.SecurityEvent{
			Type:     domain.EventBackupCodeUsed,
			UserID:   userID,
			Severity: severity,
			Metadata: map[string]interface{}{"codes_remaining": *backupRemaining},
		}); err != nil {
			return err
		}
	}

	RecordVerification(method, "success", s.now().Sub(started).Seconds())
	return nil
}

// handleFailure counts the failed attempt and converts the outcome
// into the error the handler returns. Always returns a non-nil error.
func (s *Service) handleFailure(ctx context.Context, userID uuid.UUID, method string, started time.Time) error {
	decision, err := s.lockout.RecordFailure(ctx, userID)
	if err != nil {
		return err
	}

	severity := domain.SeverityInfo
	if decision.RemainingAttempts <= 1 {
		severity = domain.SeverityWarning
	}
	if err := s.record(domain.SecurityEvent{
		Type:     domain.EventVerifyFailure,
		UserID:   userID,
		Severity: severity,
		Metadata: map[string]interface{}{"method": method, "reason": "invalid_code"},
	}); err != nil {
		return err
	}

	if decision.Triggered {
		if err := s.record(domain.SecurityEvent{
			Type:     domain.EventLockoutTriggered,
			UserID:   userID,
			Severity: domain.SeverityCritical,
			Metadata: map[string]interface{}{"blocked_until": decision.BlockedUntil},
		}); err != nil {
			return err
		}
		RecordLockoutTriggered()
	}

	RecordVerification(method, "failure", s.now().Sub(started).Seconds())
	return apperror.VerificationFailedError(decision.RemainingAttempts)
}

// Disable removes the enrollment, backup codes and lockout state.
// Idempotent: disabling a user without MFA does nothing and records
// nothing.
func (s *Service) Disable(ctx context.Context, userID uuid.UUID) (bool, error) {
	existed, err := s.totpEngine.Disable(ctx, userID)
	if err != nil {
		return false, err
	}
	if !existed {
		return false, nil
	}

	if err := s.backupMgr.Remove(ctx, userID); err != nil {
		return true, err
	}
	if err := s.lockout.Reset(ctx, userID); err != nil {
		return true, err
	}

	if err := s.record(domain.SecurityEvent{
		Type:     domain.EventMFADisabled,
		UserID:   userID,
		Severity: domain.SeverityWarning,
	}); err != nil {
		return true, err
	}
	RecordEnrollmentOp("disable")
	return true, nil
}

// Status reports the user's MFA state without mutating anything except
// an expired block, which is cleared lazily.
func (s *Service) Status(ctx context.Context, userID uuid.UUID) (*StatusResponse, error) {
	enrollment, err := s.totpEngine.Enrollment(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := &StatusResponse{}
	if enrollment != nil {
		resp.Enabled = enrollment.Enabled
		resp.Pending = !enrollment.Enabled
		resp.ConfirmedAt = enrollment.ConfirmedAt
	}

	set, err := s.backupMgr.Status(ctx, userID)
	if err != nil {
		return nil, err
	}
	if set != nil {
		resp.BackupCodesRemaining = set.Remaining()
	}

	decision, err := s.lockout.CheckAccess(ctx, userID)
	if err != nil {
		return nil, err
	}
	if decision.Cleared {
		if err := s.record(domain.SecurityEvent{
			Type:   domain.EventLockoutCleared,
			UserID: userID,
		}); err != nil {
			return nil, err
		}
	}
	if decision.Access == domain.LockoutBlocked {
		resp.Locked = true
		resp.BlockedUntil = decision.BlockedUntil
	}
	return resp, nil
}

// RegenerateBackupCodes replaces the code set after a fresh TOTP
// verification. The verification consumes its time step and counts
// toward lockout like any other.
func (s *Service) RegenerateBackupCodes(ctx context.Context, userID uuid.UUID, totpCode string) ([]string, error) {
	if !totpGen.IsTOTPFormat(totpCode) {
		return nil, apperror.InvalidFormatError("Mã TOTP phải gồm 6 chữ số")
	}

	decision, err := s.lockout.CheckAccess(ctx, userID)
	if err != nil {
		return nil, err
	}
	if decision.Access == domain.LockoutBlocked {
		return nil, apperror.AccountLockedError(s.minutesUntil(decision.BlockedUntil))
	}

	ok, err := s.totpEngine.VerifyCode(ctx, userID, totpCode)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.handleFailure(ctx, userID, MethodTOTP, s.now())
	}
	if err := s.lockout.RecordSuccess(ctx, userID); err != nil {
		return nil, err
	}

	codes, err := s.backupMgr.Generate(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.record(domain.SecurityEvent{
		Type:     domain.EventBackupRegenerated,
		UserID:   userID,
		Metadata: map[string]interface{}{"code_count": len(codes)},
	}); err != nil {
		return nil, err
	}
	RecordEnrollmentOp("regenerate_backup_codes")
	return codes, nil
}

// BackupCodeStatus reports which codes were consumed, never the codes
// themselves.
func (s *Service) BackupCodeStatus(ctx context.Context, userID uuid.UUID) (*BackupStatusResponse, error) {
	set, err := s.backupMgr.Status(ctx, userID)
	if err != nil {
		return nil, err
	}
	if set == nil {
		return nil, apperror.NotFoundError("mã khôi phục cho người dùng này")
	}
	return &BackupStatusResponse{
		GeneratedAt: set.GeneratedAt,
		Remaining:   set.Remaining(),
		Used:        set.UsedStatus(),
	}, nil
}

// record forwards an event to the recorder. A saturated buffer fails
// the operation: losing audit records silently is worse than turning
// away a request.
func (s *Service) record(event domain.SecurityEvent) error {
	err := s.recorder.Record(event)
	if err == nil {
		return nil
	}
	if errors.Is(err, events.ErrBufferSaturated) {
		RecordEventRejected()
		return apperror.BufferSaturatedError()
	}
	slog.Error("Failed to record security event",
		slog.String("event_type", event.Type),
		slog.Any("error", err))
	return apperror.InternalError("Lỗi ghi nhật ký bảo mật", "Vui lòng thử lại sau")
}

func (s *Service) minutesUntil(until *time.Time) int {
	if until == nil {
		return 0
	}
	d := until.Sub(s.now())
	if d <= 0 {
		return 0
	}
	return int(d.Minutes()) + 1
}
