// Package totp implements TOTP enrollment and verification on top of
// the versioned secret store. All state transitions go through
// compare-and-set so concurrent verifications against the same
// enrollment resolve to exactly one winner.
package totp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bfc-vpn/mfa-core/internal/config"
	"github.com/bfc-vpn/mfa-core/internal/domain"
	totpGen "github.com/bfc-vpn/mfa-core/internal/infrastructure/totp"
	"github.com/bfc-vpn/mfa-core/internal/pkg/apperror"
	"github.com/bfc-vpn/mfa-core/internal/store"
)

// maxCASRetries bounds the re-read loop on version conflicts. Losing
// more than this many races in a row means the record is too
// contended to reason about; the caller gets a retryable error.
const maxCASRetries = 3

// Engine handles TOTP enrollment lifecycle and code verification
type Engine struct {
	cfg       config.TOTPConfig
	store     Store
	encryptor Encryptor
	now       func() time.Time
}

// NewEngine creates a TOTP engine
func NewEngine(cfg config.TOTPConfig, st Store, encryptor Encryptor) *Engine {
	return NewEngineWithClock(cfg, st, encryptor, time.Now)
}

// NewEngineWithClock creates a TOTP engine with an injected clock (for testing)
func NewEngineWithClock(cfg config.TOTPConfig, st Store, encryptor Encryptor, clock func() time.Time) *Engine {
	return &Engine{
		cfg:       cfg,
		store:     st,
		encryptor: encryptor,
		now:       clock,
	}
}

// EnrollmentSetup is returned from BeginEnrollment. The secret and
// provisioning URI are shown to the user exactly once and never
// persisted in plaintext.
type EnrollmentSetup struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
}

// BeginEnrollment creates a pending enrollment for the user and
// returns the provisioning material. Restarting while a pending
// enrollment exists replaces it with a fresh secret; an active
// enrollment must be disabled first.
func (e *Engine) BeginEnrollment(ctx context.Context, userID uuid.UUID, accountName string) (*EnrollmentSetup, error) {
	existing, version, err := e.loadEnrollment(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Enabled {
		return nil, apperror.EnrollmentConflictError()
	}

	result, err := totpGen.Generate(e.cfg.Issuer, accountName)
	if err != nil {
		slog.Error("Failed to generate TOTP key", slog.Any("error", err))
		return nil, apperror.InternalError("Lỗi tạo mã TOTP", "Vui lòng thử lại sau")
	}

	encrypted, err := e.encryptor.Encrypt([]byte(result.Secret))
	if err != nil {
		slog.Error("Failed to encrypt TOTP secret", slog.Any("error", err))
		return nil, apperror.InternalError("Lỗi mã hóa", "Vui lòng thử lại sau")
	}

	enrollment := domain.MFAEnrollment{
		UserID:          userID,
		SecretEncrypted: encrypted,
		Algorithm:       domain.TOTPAlgorithm,
		Digits:          domain.TOTPDigits,
		StepSeconds:     domain.TOTPStepSeconds,
		CreatedAt:       e.now(),
	}

	swapped, err := e.storeEnrollment(ctx, userID, version, enrollment)
	if err != nil {
		return nil, err
	}
	if !swapped {
		// Lost a race with another begin or a confirm; caller retries
		return nil, apperror.ConflictError("Thao tác đang được xử lý", "Vui lòng thử lại")
	}

	return &EnrollmentSetup{
		Secret:     result.Secret,
		OTPAuthURL: result.OTPAuthURL,
	}, nil
}

// ConfirmEnrollment validates the code against the pending enrollment
// and activates it. The matched time step is consumed so the same code
// cannot be replayed for the first verification.
func (e *Engine) ConfirmEnrollment(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		enrollment, version, err := e.loadEnrollment(ctx, userID)
		if err != nil {
			return false, err
		}
		if enrollment == nil {
			return false, apperror.NoActiveEnrollmentError()
		}
		if enrollment.Enabled {
			return false, apperror.EnrollmentConflictError()
		}

		secret, err := e.decryptSecret(enrollment)
		if err != nil {
			return false, err
		}

		now := e.now()
		step, ok, err := totpGen.MatchStep(secret, code, now, enrollment.LastConsumedStep)
		if err != nil {
			slog.Error("Failed to match TOTP step", slog.Any("error", err))
			return false, apperror.InternalError("Lỗi xác thực", "Vui lòng thử lại sau")
		}
		if !ok {
			return false, nil
		}

		confirmedAt := now
		enrollment.ConfirmedAt = &confirmedAt
		enrollment.Enabled = true
		enrollment.LastConsumedStep = step

		swapped, err := e.storeEnrollment(ctx, userID, version, *enrollment)
		if err != nil {
			return false, err
		}
		if swapped {
			return true, nil
		}
		// Version conflict: re-read and re-evaluate
	}
	return false, apperror.ConflictError("Thao tác đang được xử lý", "Vui lòng thử lại")
}

// VerifyCode validates a TOTP code against the active enrollment and
// consumes the matched step. Returns false for a wrong code and for a
// replayed one; distinguishing them to the caller would leak which
// codes were valid.
func (e *Engine) VerifyCode(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		enrollment, version, err := e.loadEnrollment(ctx, userID)
		if err != nil {
			return false, err
		}
		if enrollment == nil || !enrollment.Enabled {
			return false, apperror.NoActiveEnrollmentError()
		}

		secret, err := e.decryptSecret(enrollment)
		if err != nil {
			return false, err
		}

		step, ok, err := totpGen.MatchStep(secret, code, e.now(), enrollment.LastConsumedStep)
		if err != nil {
			slog.Error("Failed to match TOTP step", slog.Any("error", err))
			return false, apperror.InternalError("Lỗi xác thực", "Vui lòng thử lại sau")
		}
		if !ok {
			return false, nil
		}

		enrollment.LastConsumedStep = step

		swapped, err := e.storeEnrollment(ctx, userID, version, *enrollment)
		if err != nil {
			return false, err
		}
		if swapped {
			return true, nil
		}
		// Lost the race: the winner advanced LastConsumedStep, so the
		// next iteration treats this code as consumed.
	}
	return false, apperror.ConflictError("Thao tác đang được xử lý", "Vui lòng thử lại")
}

// Disable removes the enrollment entirely. Reports whether an
// enrollment existed so the caller can make repeated disables
// idempotent.
func (e *Engine) Disable(ctx context.Context, userID uuid.UUID) (bool, error) {
	_, _, err := e.store.Get(ctx, store.EnrollmentKey(userID))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		slog.Error("Failed to load enrollment", slog.Any("error", err), slog.String("user_id", userID.String()))
		return false, apperror.InternalError("Lỗi hệ thống", "Vui lòng thử lại sau")
	}

	if err := e.store.Delete(ctx, store.EnrollmentKey(userID)); err != nil {
		slog.Error("Failed to delete enrollment", slog.Any("error", err), slog.String("user_id", userID.String()))
		return false, apperror.InternalError("Lỗi hệ thống", "Vui lòng thử lại sau")
	}
	return true, nil
}

// Enrollment returns the user's enrollment record, nil when none exists.
func (e *Engine) Enrollment(ctx context.Context, userID uuid.UUID) (*domain.MFAEnrollment, error) {
	enrollment, _, err := e.loadEnrollment(ctx, userID)
	return enrollment, err
}

func (e *Engine) loadEnrollment(ctx context.Context, userID uuid.UUID) (*domain.MFAEnrollment, int64, error) {
	raw, version, err := e.store.Get(ctx, store.EnrollmentKey(userID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		slog.Error("Failed to load enrollment", slog.Any("error", err), slog.String("user_id", userID.String()))
		return nil, 0, apperror.InternalError("Lỗi hệ thống", "Vui lòng thử lại sau")
	}

	var enrollment domain.MFAEnrollment
	if err := json.Unmarshal(raw, &enrollment); err != nil {
		slog.Error("Failed to decode enrollment", slog.Any("error", err), slog.String("user_id", userID.String()))
		return nil, 0, apperror.InternalError("Lỗi dữ liệu", "Vui lòng liên hệ quản trị viên")
	}
	return &enrollment, version, nil
}

func (e *Engine) storeEnrollment(ctx context.Context, userID uuid.UUID, expectedVersion int64, enrollment domain.MFAEnrollment) (bool, error) {
	raw, err := json.Marshal(enrollment)
	if err != nil {
		return false, fmt.Errorf("marshal enrollment: %w", err)
	}
	swapped, err := e.store.ConditionalPut(ctx, store.EnrollmentKey(userID), expectedVersion, raw)
	if err != nil {
		slog.Error("Failed to store enrollment", slog.Any("error", err), slog.String("user_id", userID.String()))
		return false, apperror.InternalError("Lỗi lưu trữ", "Vui lòng thử lại sau")
	}
	return swapped, nil
}

func (e *Engine) decryptSecret(enrollment *domain.MFAEnrollment) (string, error) {
	secret, err := e.encryptor.Decrypt(enrollment.SecretEncrypted)
	if err != nil {
		slog.Error("Failed to decrypt TOTP secret",
			slog.Any("error", err),
			slog.String("user_id", enrollment.UserID.String()))
		return "", apperror.InternalError("Lỗi giải mã", "Vui lòng liên hệ quản trị viên")
	}
	return string(secret), nil
}
