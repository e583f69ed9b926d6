package domain

import (
	"time"

	"github.com/google/uuid"
)

// LockoutAccess is the result of a lockout check.
type LockoutAccess string

const (
	LockoutOpen    LockoutAccess = "open"
	LockoutBlocked LockoutAccess = "blocked"
)

// LockoutState tracks failed verification attempts for one user within
// a rolling window. Mutated only through conditional updates so
// concurrent handlers never lose an increment.
type LockoutState struct {
	UserID         uuid.UUID  `json:"user_id"`
	FailedAttempts int        `json:"failed_attempts"`
	WindowStart    time.Time  `json:"window_start"`
	BlockedUntil   *time.Time `json:"blocked_until,omitempty"`
}

// BlockedAt reports whether the state is blocking attempts at the given time.
func (s *LockoutState) BlockedAt(now time.Time) bool {
	return s.BlockedUntil != nil && now.Before(*s.BlockedUntil)
}

// WindowExpiredAt reports whether the rolling failure window has aged out.
func (s *LockoutState) WindowExpiredAt(now time.Time, window time.Duration) bool {
	return now.Sub(s.WindowStart) > window
}
