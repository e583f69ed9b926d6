package totp

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	Digits     = otp.DigitsSix // 6 digits
	Period     = 30            // 30 seconds
	SecretSize = 20            // 160 bits (32 chars base32)
	Skew       = 1             // ±1 time step (90 second window)
	Algorithm  = otp.AlgorithmSHA1
)

// GenerateResult contains TOTP setup information
type GenerateResult struct {
	Secret      string // Base32-encoded secret
	OTPAuthURL  string // otpauth:// URI for QR code
	Issuer      string
	AccountName string
}

// Generate creates a new TOTP key for the given issuer and account
func Generate(issuer, accountName string) (*GenerateResult, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      Period,
		SecretSize:  SecretSize,
		Digits:      Digits,
		Algorithm:   Algorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}
	return &GenerateResult{
		Secret:      key.Secret(),
		OTPAuthURL:  key.URL(),
		Issuer:      issuer,
		AccountName: accountName,
	}, nil
}

// StepAt returns the time-step index containing t.
func StepAt(t time.Time) int64 {
	return t.Unix() / Period
}

// MatchStep checks code against the candidate steps around now
// (±Skew) and returns the index of the matching step. Steps at or
// below afterStep are skipped, which is what makes a consumed code a
// replay rather than a match.
func MatchStep(secret, code string, now time.Time, afterStep int64) (int64, bool, error) {
	current := StepAt(now)
	for i := int64(-Skew); i <= Skew; i++ {
		step := current + i
		if step <= afterStep {
			continue
		}
		expected, err := GenerateCodeAtStep(secret, step)
		if err != nil {
			return 0, false, err
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return step, true, nil
		}
	}
	return 0, false, nil
}

// GenerateCodeAtStep generates the code for a specific time-step index.
func GenerateCodeAtStep(secret string, step int64) (string, error) {
	return GenerateCodeAt(secret, time.Unix(step*Period, 0))
}

// GenerateCodeAt generates a TOTP code for a specific time
func GenerateCodeAt(secret string, t time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, t, totp.ValidateOpts{
		Period:    Period,
		Skew:      0,
		Digits:    Digits,
		Algorithm: Algorithm,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP code: %w", err)
	}
	return code, nil
}

// GenerateCode generates a TOTP code for the current time
func GenerateCode(secret string) (string, error) {
	return GenerateCodeAt(secret, time.Now())
}

// IsTOTPFormat checks if input looks like a TOTP code (6 digits)
func IsTOTPFormat(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
