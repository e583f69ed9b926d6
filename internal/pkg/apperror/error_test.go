package apperror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	appErr := ValidationError("chi tiết", "hành động")
	assert.Equal(t, "Dữ liệu không hợp lệ", appErr.Error())

	wrapped := appErr.WithError(errors.New("boom"))
	assert.Contains(t, wrapped.Error(), "boom")
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	appErr := InternalError("x", "y").WithError(inner)
	assert.True(t, errors.Is(appErr, inner))
}

func TestAppError_Builders(t *testing.T) {
	appErr := AuthenticationError("a", "b").
		WithRequestID("req-1").
		WithInstance("/api/v1/mfa").
		WithErrors(map[string]string{"code": "bắt buộc"})

	assert.Equal(t, "req-1", appErr.RequestID)
	assert.Equal(t, "/api/v1/mfa", appErr.Instance)
	assert.Equal(t, "bắt buộc", appErr.Errors["code"])
}

func TestFactoryStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		status int
	}{
		{"validation", ValidationError("d", "a"), http.StatusBadRequest},
		{"authentication", AuthenticationError("d", "a"), http.StatusUnauthorized},
		{"not found", NotFoundError("tài nguyên"), http.StatusNotFound},
		{"conflict", ConflictError("d", "a"), http.StatusConflict},
		{"locked", LockedError("d", "a"), http.StatusLocked},
		{"internal", InternalError("d", "a"), http.StatusInternalServerError},
		{"unavailable", ServiceUnavailableError("d", "a"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.Status)
		})
	}
}

func TestMFATaxonomy(t *testing.T) {
	assert.Equal(t, http.StatusConflict, EnrollmentConflictError().Status)
	assert.Equal(t, http.StatusBadRequest, InvalidFormatError("sai định dạng").Status)
	assert.Equal(t, http.StatusLocked, AccountLockedError(15).Status)
	assert.Equal(t, http.StatusUnauthorized, VerificationFailedError(2).Status)
	assert.Equal(t, http.StatusNotFound, NoActiveEnrollmentError().Status)
	assert.Equal(t, http.StatusServiceUnavailable, BufferSaturatedError().Status)

	assert.Contains(t, AccountLockedError(15).Action, "15")
	assert.Contains(t, VerificationFailedError(2).Action, "2")
}
