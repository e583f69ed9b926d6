package totp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	result, err := Generate("BFC-VPN", "user@example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, result.Secret)
	assert.Len(t, result.Secret, 32) // 20 bytes base32 without padding
	assert.Contains(t, result.OTPAuthURL, "otpauth://totp/")
	assert.Contains(t, result.OTPAuthURL, "user@example.com")
	assert.Contains(t, result.OTPAuthURL, "secret="+result.Secret)
	assert.Contains(t, result.OTPAuthURL, "period=30")
	assert.Contains(t, result.OTPAuthURL, "digits=6")
}

func TestGenerate_UniqueSecrets(t *testing.T) {
	r1, err := Generate("BFC-VPN", "user@example.com")
	require.NoError(t, err)
	r2, err := Generate("BFC-VPN", "user@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, r1.Secret, r2.Secret)
}

func TestStepAt(t *testing.T) {
	assert.Equal(t, int64(0), StepAt(time.Unix(0, 0)))
	assert.Equal(t, int64(0), StepAt(time.Unix(29, 0)))
	assert.Equal(t, int64(1), StepAt(time.Unix(30, 0)))
	assert.Equal(t, int64(2), StepAt(time.Unix(60, 0)))
}

func TestMatchStep_CurrentWindow(t *testing.T) {
	result, err := Generate("BFC-VPN", "user@example.com")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	code, err := GenerateCodeAt(result.Secret, now)
	require.NoError(t, err)

	step, ok, err := MatchStep(result.Secret, code, now, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StepAt(now), step)
}

func TestMatchStep_SkewWindow(t *testing.T) {
	result, err := Generate("BFC-VPN", "user@example.com")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)

	// Code from the previous step is accepted within skew
	prevCode, err := GenerateCodeAt(result.Secret, now.Add(-30*time.Second))
	require.NoError(t, err)
	step, ok, err := MatchStep(result.Secret, prevCode, now, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StepAt(now)-1, step)

	// Code from the next step too
	nextCode, err := GenerateCodeAt(result.Secret, now.Add(30*time.Second))
	require.NoError(t, err)
	step, ok, err = MatchStep(result.Secret, nextCode, now, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StepAt(now)+1, step)

	// Two steps away is outside the window
	farCode, err := GenerateCodeAt(result.Secret, now.Add(60*time.Second))
	require.NoError(t, err)
	_, ok, err = MatchStep(result.Secret, farCode, now, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchStep_ConsumedStepSkipped(t *testing.T) {
	result, err := Generate("BFC-VPN", "user@example.com")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	code, err := GenerateCodeAt(result.Secret, now)
	require.NoError(t, err)

	// Marker at the current step: the same code must not match again
	_, ok, err := MatchStep(result.Secret, code, now, StepAt(now))
	require.NoError(t, err)
	assert.False(t, ok)

	// Marker past the current step blocks earlier candidates too
	prevCode, err := GenerateCodeAt(result.Secret, now.Add(-30*time.Second))
	require.NoError(t, err)
	_, ok, err = MatchStep(result.Secret, prevCode, now, StepAt(now))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchStep_WrongCode(t *testing.T) {
	result, err := Generate("BFC-VPN", "user@example.com")
	require.NoError(t, err)

	_, ok, err := MatchStep(result.Secret, "000000", time.Unix(1700000000, 0), 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGenerateCodeAtStep(t *testing.T) {
	result, err := Generate("BFC-VPN", "user@example.com")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	byTime, err := GenerateCodeAt(result.Secret, now)
	require.NoError(t, err)
	byStep, err := GenerateCodeAtStep(result.Secret, StepAt(now))
	require.NoError(t, err)
	assert.Equal(t, byTime, byStep)
}

func TestIsTOTPFormat(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"123456", true},
		{"000000", true},
		{"12345", false},
		{"1234567", false},
		{"12345a", false},
		{"12 456", false},
		{"", false},
		{"ABCDEF", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTOTPFormat(tt.input), "input=%q", tt.input)
	}
}
