package backup

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	CodeLength = 10 // 10 characters total (without hyphen)
	CodeCount  = 10
	// Charset excludes I, O, 0, 1 for readability; 32 characters, so
	// bytes map onto it without modulo bias.
	CodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// GenerateCodes generates pairwise-distinct backup codes in
// XXXXX-XXXXX format.
func GenerateCodes(count, length int) ([]string, error) {
	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	for len(codes) < count {
		code, err := generateSingleCode(length)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[NormalizeCode(code)]; dup {
			continue
		}
		seen[NormalizeCode(code)] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

func generateSingleCode(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	var sb strings.Builder
	sb.Grow(length + 1)
	half := length / 2
	for i, b := range bytes {
		if i == half {
			sb.WriteByte('-')
		}
		sb.WriteByte(CodeCharset[int(b)%len(CodeCharset)])
	}
	return sb.String(), nil
}

// NormalizeCode removes separators and converts to uppercase for comparison
func NormalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	return strings.ReplaceAll(code, " ", "")
}

// FormatCode adds the hyphen for display
func FormatCode(code string) string {
	normalized := NormalizeCode(code)
	if len(normalized) != CodeLength {
		return code
	}
	half := CodeLength / 2
	return normalized[:half] + "-" + normalized[half:]
}

// IsBackupCodeFormat checks if input looks like a backup code (not TOTP)
// TOTP is 6 digits, backup code is 10 alphanumeric chars
func IsBackupCodeFormat(code string) bool {
	return IsBackupCodeFormatLen(code, CodeLength)
}

// IsBackupCodeFormatLen checks the shape against a configured code
// length, for deployments that override the default.
func IsBackupCodeFormatLen(code string, length int) bool {
	normalized := NormalizeCode(code)
	if len(normalized) != length {
		return false
	}
	for _, c := range normalized {
		if !strings.ContainsRune(CodeCharset, c) {
			return false
		}
	}
	return true
}
