package backup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCodes(t *testing.T) {
	codes, err := GenerateCodes(CodeCount, CodeLength)
	require.NoError(t, err)
	require.Len(t, codes, CodeCount)

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.Len(t, code, CodeLength+1, "code should be 10 chars plus hyphen")
		assert.Equal(t, byte('-'), code[CodeLength/2])
		assert.False(t, seen[code], "codes must be pairwise distinct")
		seen[code] = true

		for _, c := range NormalizeCode(code) {
			assert.True(t, strings.ContainsRune(CodeCharset, c),
				"character %q outside charset", c)
		}
	}
}

func TestGenerateCodes_NoAmbiguousCharacters(t *testing.T) {
	codes, err := GenerateCodes(50, CodeLength)
	require.NoError(t, err)

	for _, code := range codes {
		for _, forbidden := range []string{"0", "O", "1", "I"} {
			assert.NotContains(t, NormalizeCode(code), forbidden)
		}
	}
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ABCDE-FGHJK", "ABCDEFGHJK"},
		{"abcde-fghjk", "ABCDEFGHJK"},
		{"  ABCDE-FGHJK  ", "ABCDEFGHJK"},
		{"ABCDE FGHJK", "ABCDEFGHJK"},
		{"ABCDEFGHJK", "ABCDEFGHJK"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeCode(tt.input), "input=%q", tt.input)
	}
}

func TestFormatCode(t *testing.T) {
	assert.Equal(t, "ABCDE-FGHJK", FormatCode("abcdefghjk"))
	assert.Equal(t, "ABCDE-FGHJK", FormatCode("ABCDE-FGHJK"))
	// Wrong length passes through untouched
	assert.Equal(t, "short", FormatCode("short"))
}

func TestIsBackupCodeFormat(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"ABCDE-FGHJK", true},
		{"abcde-fghjk", true},
		{"ABCDEFGHJK", true},
		{"ABCD-EFGH", false},  // 8 chars: wrong length
		{"123456", false},     // TOTP format
		{"ABCDE-FGH1K", false}, // '1' outside charset
		{"ABCDE-FGH0K", false}, // '0' outside charset
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsBackupCodeFormat(tt.input), "input=%q", tt.input)
	}
}
