// Package backup manages single-use recovery codes. Codes are stored
// bcrypt-hashed as one versioned set per user; consuming a code is a
// compare-and-set on the whole set, so two simultaneous attempts with
// the same code resolve to exactly one winner.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bfc-vpn/mfa-core/internal/config"
	"github.com/bfc-vpn/mfa-core/internal/domain"
	backupGen "github.com/bfc-vpn/mfa-core/internal/infrastructure/backup"
	"github.com/bfc-vpn/mfa-core/internal/pkg/apperror"
	"github.com/bfc-vpn/mfa-core/internal/store"
)

const (
	BcryptCost    = 10
	maxCASRetries = 3
)

// Manager handles backup code generation and consumption
type Manager struct {
	cfg   config.BackupConfig
	store Store
	now   func() time.Time
}

// NewManager creates a backup code manager
func NewManager(cfg config.BackupConfig, st Store) *Manager {
	return NewManagerWithClock(cfg, st, time.Now)
}

// NewManagerWithClock creates a backup code manager with an injected clock (for testing)
func NewManagerWithClock(cfg config.BackupConfig, st Store, clock func() time.Time) *Manager {
	return &Manager{
		cfg:   cfg,
		store: st,
		now:   clock,
	}
}

// ConsumeResult reports the outcome of a consumption attempt
type ConsumeResult struct {
	Consumed  bool
	Remaining int
}

// Generate replaces the user's entire code set and returns the plain
// codes. This is the only time they exist in plaintext; afterwards
// only bcrypt hashes remain.
func (m *Manager) Generate(ctx context.Context, userID uuid.UUID) ([]string, error) {
	plainCodes, err := backupGen.GenerateCodes(m.cfg.Count, m.cfg.Length)
	if err != nil {
		slog.Error("Failed to generate backup codes", slog.Any("error", err))
		return nil, apperror.InternalError("Lỗi tạo mã khôi phục", "Vui lòng thử lại sau")
	}

	codes := make([]domain.BackupCode, len(plainCodes))
	for i, code := range plainCodes {
		// Normalize before hashing so lookup is insensitive to hyphen and case
		hash, err := bcrypt.GenerateFromPassword([]byte(backupGen.NormalizeCode(code)), BcryptCost)
		if err != nil {
			slog.Error("Failed to hash backup code", slog.Any("error", err))
			return nil, apperror.InternalError("Lỗi mã hóa", "Vui lòng thử lại sau")
		}
		codes[i] = domain.BackupCode{CodeHash: string(hash)}
	}

	set := domain.BackupCodeSet{
		UserID:      userID,
		Codes:       codes,
		GeneratedAt: m.now(),
	}
	raw, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("marshal backup code set: %w", err)
	}

	// Unconditional replace: generation invalidates any previous set
	if err := m.store.Put(ctx, store.BackupCodeSetKey(userID), raw); err != nil {
		slog.Error("Failed to store backup codes", slog.Any("error", err), slog.String("user_id", userID.String()))
		return nil, apperror.InternalError("Lỗi lưu trữ", "Vui lòng thử lại sau")
	}

	return plainCodes, nil
}

// ValidateAndConsume checks the code against the user's unused codes
// and marks the match as used. A code that was consumed by a
// concurrent request counts as a miss, never as a second success.
func (m *Manager) ValidateAndConsume(ctx context.Context, userID uuid.UUID, code string) (*ConsumeResult, error) {
	normalized := backupGen.NormalizeCode(code)
	if !m.MatchesFormat(normalized) {
		return &ConsumeResult{Consumed: false}, nil
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		set, version, err := m.loadSet(ctx, userID)
		if err != nil {
			return nil, err
		}
		if set == nil || len(set.Codes) == 0 {
			return &ConsumeResult{Consumed: false}, nil
		}

		matched := -1
		for i, c := range set.Codes {
			if c.Used {
				continue
			}
			if bcrypt.CompareHashAndPassword([]byte(c.CodeHash), []byte(normalized)) == nil {
				matched = i
				break
			}
		}
		if matched < 0 {
			return &ConsumeResult{Consumed: false, Remaining: set.Remaining()}, nil
		}

		usedAt := m.now()
		set.Codes[matched].Used = true
		set.Codes[matched].UsedAt = &usedAt

		raw, err := json.Marshal(set)
		if err != nil {
			return nil, fmt.Errorf("marshal backup code set: %w", err)
		}
		swapped, err := m.store.ConditionalPut(ctx, store.BackupCodeSetKey(userID), version, raw)
		if err != nil {
			slog.Error("Failed to consume backup code", slog.Any("error", err), slog.String("user_id", userID.String()))
			return nil, apperror.InternalError("Lỗi lưu trữ", "Vui lòng thử lại sau")
		}
		if swapped {
			return &ConsumeResult{Consumed: true, Remaining: set.Remaining()}, nil
		}
		// Version conflict: re-read. If the concurrent request consumed
		// this same code, the next pass no longer finds it unused.
	}
	return nil, apperror.ConflictError("Thao tác đang được xử lý", "Vui lòng thử lại")
}

// MatchesFormat reports whether input has the shape of a code this
// manager generates. The length comes from configuration, so codes
// from a non-default deployment still pass the shape dispatch.
func (m *Manager) MatchesFormat(code string) bool {
	return backupGen.IsBackupCodeFormatLen(code, m.cfg.Length)
}

// Status returns the user's code set, nil when none was generated.
func (m *Manager) Status(ctx context.Context, userID uuid.UUID) (*domain.BackupCodeSet, error) {
	set, _, err := m.loadSet(ctx, userID)
	return set, err
}

// Remove deletes the user's code set. No-op when none exists.
func (m *Manager) Remove(ctx context.Context, userID uuid.UUID) error {
	if err := m.store.Delete(ctx, store.BackupCodeSetKey(userID)); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Error("Failed to delete backup codes", slog.Any("error", err), slog.String("user_id", userID.String()))
		return apperror.InternalError("Lỗi hệ thống", "Vui lòng thử lại sau")
	}
	return nil
}

func (m *Manager) loadSet(ctx context.Context, userID uuid.UUID) (*domain.BackupCodeSet, int64, error) {
	raw, version, err := m.store.Get(ctx, store.BackupCodeSetKey(userID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		slog.Error("Failed to load backup codes", slog.Any("error", err), slog.String("user_id", userID.String()))
		return nil, 0, apperror.InternalError("Lỗi hệ thống", "Vui lòng thử lại sau")
	}

	var set domain.BackupCodeSet
	if err := json.Unmarshal(raw, &set); err != nil {
		slog.Error("Failed to decode backup codes", slog.Any("error", err), slog.String("user_id", userID.String()))
		return nil, 0, apperror.InternalError("Lỗi dữ liệu", "Vui lòng liên hệ quản trị viên")
	}
	return &set, version, nil
}
