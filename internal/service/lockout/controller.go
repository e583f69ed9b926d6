// Package lockout implements the failed-attempt state machine: open
// until the failure threshold is reached inside the rolling window,
// then blocked for a fixed duration. All transitions go through
// compare-and-set, so concurrent failures never lose an increment and
// the threshold transition has exactly one winner.
package lockout

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
	"github.com/bfc-vpn/mfa-core/internal/pkg/apperror"
	"github.com/bfc-vpn/mfa-core/internal/store"
)

const maxCASRetries = 5

// Controller tracks failed verification attempts per user
type Controller struct {
	cfg   config.LockoutConfig
	store Store
	now   func() time.Time
}

// NewController creates a lockout controller
func NewController(cfg config.LockoutConfig, st Store) *Controller {
	return NewControllerWithClock(cfg, st, time.Now)
}

// NewControllerWithClock creates a lockout controller with an injected clock (for testing)
func NewControllerWithClock(cfg config.LockoutConfig, st Store, clock func() time.Time) *Controller {
	return &Controller{
		cfg:   cfg,
		store: st,
		now:   clock,
	}
}

// Decision is the outcome of a lockout operation. Triggered and
// Cleared are set only on the call that performed the transition, so
// the caller can emit the corresponding event exactly once.
type Decision struct {
	Access            domain.LockoutAccess
	RemainingAttempts int
	BlockedUntil      *time.Time
	Triggered         bool
	Cleared           bool
}

// CheckAccess reports whether verification attempts are currently
// allowed. An expired block is cleared here; the CAS winner gets
// Cleared set.
func (c *Controller) CheckAccess(ctx context.Context, userID uuid.UUID) (*Decision, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		state, version, err := c.loadState(ctx, userID)
		if err != nil {
			return nil, err
		}
		now := c.now()

		if state == nil {
			return c.openDecision(0), nil
		}
		if state.BlockedAt(now) {
			return c.blockedDecision(state), nil
		}

		if state.BlockedUntil != nil {
			// Block expired: reset through CAS so exactly one of the
			// concurrent checks observes the transition
			next := domain.LockoutState{UserID: userID, WindowStart: now}
			swapped, err := c.storeState(ctx, userID, version, next)
			if err != nil {
				return nil, err
			}
			if !swapped {
				continue
			}
			d := c.openDecision(0)
			d.Cleared = true
			return d, nil
		}

		if state.WindowExpiredAt(now, c.cfg.Window) {
			return c.openDecision(0), nil
		}
		return c.openDecision(state.FailedAttempts), nil
	}
	return nil, apperror.ConflictError("Thao tác đang được xử lý", "Vui lòng thử lại")
}

// RecordFailure counts one failed attempt. Crossing the threshold
// starts the block; the CAS winner gets Triggered set. Failures while
// already blocked are not counted.
func (c *Controller) RecordFailure(ctx context.Context, userID uuid.UUID) (*Decision, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		state, version, err := c.loadState(ctx, userID)
		if err != nil {
			return nil, err
		}
		now := c.now()

		if state != nil && state.BlockedAt(now) {
			return c.blockedDecision(state), nil
		}

		next := domain.LockoutState{UserID: userID}
		switch {
		case state == nil || state.BlockedUntil != nil || state.WindowExpiredAt(now, c.cfg.Window):
			// Fresh window: first failure after a clean slate, an
			// expired block, or an aged-out window
			next.FailedAttempts = 1
			next.WindowStart = now
		default:
			next.FailedAttempts = state.FailedAttempts + 1
			next.WindowStart = state.WindowStart
		}

		triggered := false
		if next.FailedAttempts >= c.cfg.Threshold {
			blockedUntil := now.Add(c.cfg.BlockDuration)
			next.BlockedUntil = &blockedUntil
			triggered = true
		}

		swapped, err := c.storeState(ctx, userID, version, next)
		if err != nil {
			return nil, err
		}
		if !swapped {
			continue
		}

		if triggered {
			d := c.blockedDecision(&next)
			d.Triggered = true
			return d, nil
		}
		return c.openDecision(next.FailedAttempts), nil
	}
	return nil, apperror.ConflictError("Thao tác đang được xử lý", "Vui lòng thử lại")
}

// RecordSuccess resets the failure counter after a successful
// verification.
func (c *Controller) RecordSuccess(ctx context.Context, userID uuid.UUID) error {
	if err := c.store.Delete(ctx, store.LockoutKey(userID)); err != nil {
		slog.Error("Failed to reset lockout", slog.Any("error", err), slog.String("user_id", userID.String()))
		return apperror.InternalError("Lỗi hệ thống", "Vui lòng thử lại sau")
	}
	return nil
}

// Reset removes all lockout state for the user (used when MFA is disabled).
func (c *Controller) Reset(ctx context.Context, userID uuid.UUID) error {
	return c.RecordSuccess(ctx, userID)
}

func (c *Controller) openDecision(failed int) *Decision {
	remaining := c.cfg.Threshold - failed
	if remaining < 0 {
		remaining = 0
	}
	return &Decision{
		Access:            domain.LockoutOpen,
		RemainingAttempts: remaining,
	}
}

func (c *Controller) blockedDecision(state *domain.LockoutState) *Decision {
	return &Decision{
		Access:       domain.LockoutBlocked,
		BlockedUntil: state.BlockedUntil,
	}
}

func (c *Controller) loadState(ctx context.Context, userID uuid.UUID) (*domain.LockoutState, int64, error) {
	raw, version, err := c.store.Get(ctx, store.LockoutKey(userID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		slog.Error("Failed to load lockout state", slog.Any("error", err), slog.String("user_id", userID.String()))
		return nil, 0, apperror.InternalError("Lỗi hệ thống", "Vui lòng thử lại sau")
	}

	var state domain.LockoutState
	if err := json.Unmarshal(raw, &state); err != nil {
		slog.Error("Failed to decode lockout state", slog.Any("error", err), slog.String("user_id", userID.String()))
		return nil, 0, apperror.InternalError("Lỗi dữ liệu", "Vui lòng liên hệ quản trị viên")
	}
	return &state, version, nil
}

func (c *Controller) storeState(ctx context.Context, userID uuid.UUID, expectedVersion int64, state domain.LockoutState) (bool, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return false, fmt.Errorf("marshal lockout state: %w", err)
	}
	swapped, err := c.store.ConditionalPut(ctx, store.LockoutKey(userID), expectedVersion, raw)
	if err != nil {
		slog.Error("Failed to store lockout state", slog.Any("error", err), slog.String("user_id", userID.String()))
		return false, apperror.InternalError("Lỗi lưu trữ", "Vui lòng thử lại sau")
	}
	return swapped, nil
}
