package store

import (
	"fmt"

	"github.com/google/uuid"
)

// Key patterns
const (
	enrollmentKeyPattern = "mfa:enroll:%s"  // userID
	backupSetKeyPattern  = "mfa:backup:%s"  // userID
	lockoutKeyPattern    = "mfa:lockout:%s" // userID
)

// EnrollmentKey is the store key of a user's MFAEnrollment record.
func EnrollmentKey(userID uuid.UUID) string {
	return fmt.Sprintf(enrollmentKeyPattern, userID.String())
}

// BackupCodeSetKey is the store key of a user's active BackupCodeSet.
func BackupCodeSetKey(userID uuid.UUID) string {
	return fmt.Sprintf(backupSetKeyPattern, userID.String())
}

// LockoutKey is the store key of a user's LockoutState.
func LockoutKey(userID uuid.UUID) string {
	return fmt.Sprintf(lockoutKeyPattern, userID.String())
}
