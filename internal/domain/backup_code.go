package domain

import (
	"time"

	"github.com/google/uuid"
)

// BackupCode is a single entry of a BackupCodeSet.
// Only the bcrypt hash is ever stored.
type BackupCode struct {
	CodeHash string     `json:"code_hash"`
	Used     bool       `json:"used"`
	UsedAt   *time.Time `json:"used_at,omitempty"`
}

// BackupCodeSet is the active set of single-use recovery codes for a
// user. Generating a new set replaces the whole record, so at most one
// set is ever active.
type BackupCodeSet struct {
	UserID      uuid.UUID    `json:"user_id"`
	Codes       []BackupCode `json:"codes"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// Remaining counts the unused codes in the set.
func (s *BackupCodeSet) Remaining() int {
	n := 0
	for _, c := range s.Codes {
		if !c.Used {
			n++
		}
	}
	return n
}

// UsedStatus returns the used flag per code, in generation order.
func (s *BackupCodeSet) UsedStatus() []bool {
	status := make([]bool, len(s.Codes))
	for i, c := range s.Codes {
		status[i] = c.Used
	}
	return status
}
