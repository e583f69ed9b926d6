package apperror

import (
	"fmt"
	"net/http"
)

// ErrorType identifies the category of error
type ErrorType string

const (
	TypeValidation     ErrorType = "validation_error"
	TypeAuthentication ErrorType = "authentication_error"
	TypeNotFound       ErrorType = "not_found"
	TypeConflict       ErrorType = "conflict"
	TypeLocked         ErrorType = "locked"
	TypeInternal       ErrorType = "internal_error"
	TypeUnavailable    ErrorType = "service_unavailable"
)

// AppError represents RFC 7807 Problem Details
type AppError struct {
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Status    int               `json:"status"`
	Detail    string            `json:"detail"`
	Instance  string            `json:"instance,omitempty"`
	Action    string            `json:"action,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	err       error             // internal error for logging
}

func (e *AppError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Title, e.err)
	}
	return e.Title
}

func (e *AppError) Unwrap() error {
	return e.err
}

func (e *AppError) WithError(err error) *AppError {
	e.err = err
	return e
}

func (e *AppError) WithRequestID(id string) *AppError {
	e.RequestID = id
	return e
}

func (e *AppError) WithErrors(errs map[string]string) *AppError {
	e.Errors = errs
	return e
}

func (e *AppError) WithInstance(instance string) *AppError {
	e.Instance = instance
	return e
}

// Factory functions with Vietnamese messages

func ValidationError(detail, action string) *AppError {
	return &AppError{
		Type:   "https://bfc-vpn.com/errors/validation",
		Title:  "Dữ liệu không hợp lệ",
		Status: http.StatusBadRequest,
		Detail: detail,
		Action: action,
	}
}

func AuthenticationError(detail, action string) *AppError {
	return &AppError{
		Type:   "https://bfc-vpn.com/errors/authentication",
		Title:  "Xác thực thất bại",
		Status: http.StatusUnauthorized,
		Detail: detail,
		Action: action,
	}
}

func NotFoundError(resource string) *AppError {
	return &AppError{
		Type:   "https://bfc-vpn.com/errors/not-found",
		Title:  "Không tìm thấy",
		Status: http.StatusNotFound,
		Detail: fmt.Sprintf("Không tìm thấy %s", resource),
		Action: "Vui lòng kiểm tra lại thông tin",
	}
}

func ConflictError(detail, action string) *AppError {
	return &AppError{
		Type:   "https://bfc-vpn.com/errors/conflict",
		Title:  "Xung đột dữ liệu",
		Status: http.StatusConflict,
		Detail: detail,
		Action: action,
	}
}

// LockedError creates a 423 Locked error for accounts in lockout
func LockedError(detail, action string) *AppError {
	return &AppError{
		Type:   "https://bfc-vpn.com/errors/locked",
		Title:  "Tài khoản bị khóa",
		Status: http.StatusLocked, // 423
		Detail: detail,
		Action: action,
	}
}

func InternalError(detail, action string) *AppError {
	return &AppError{
		Type:   "https://bfc-vpn.com/errors/internal",
		Title:  "Lỗi hệ thống",
		Status: http.StatusInternalServerError,
		Detail: detail,
		Action: action,
	}
}

func ServiceUnavailableError(detail, action string) *AppError {
	return &AppError{
		Type:   "https://bfc-vpn.com/errors/service-unavailable",
		Title:  "Dịch vụ không khả dụng",
		Status: http.StatusServiceUnavailable,
		Detail: detail,
		Action: action,
	}
}

// ============================================================================
// MFA ERROR TAXONOMY
// ============================================================================

// EnrollmentConflictError: an enabled enrollment already exists
func EnrollmentConflictError() *AppError {
	return ConflictError(
		"MFA đã được kích hoạt cho tài khoản này",
		"Vui lòng tắt MFA hiện tại trước khi đăng ký lại",
	)
}

// InvalidFormatError: malformed code, rejected before any verification
func InvalidFormatError(detail string) *AppError {
	return ValidationError(detail, "Mã TOTP gồm 6 chữ số, mã khôi phục có định dạng XXXXX-XXXXX")
}

// AccountLockedError: verification blocked, retry after the given minutes
func AccountLockedError(minutes int) *AppError {
	return LockedError(
		"Tài khoản tạm thời bị khóa do nhập sai nhiều lần",
		fmt.Sprintf("Vui lòng thử lại sau %d phút", minutes),
	)
}

// VerificationFailedError: wrong or reused code
func VerificationFailedError(remaining int) *AppError {
	return AuthenticationError(
		"Mã xác thực không đúng",
		fmt.Sprintf("Vui lòng kiểm tra lại. Còn %d lần thử", remaining),
	)
}

// NoActiveEnrollmentError: user has no MFA enrollment
func NoActiveEnrollmentError() *AppError {
	return NotFoundError("đăng ký MFA cho người dùng này")
}

// BufferSaturatedError: security event buffer is full (backpressure)
func BufferSaturatedError() *AppError {
	return ServiceUnavailableError(
		"Hệ thống ghi nhật ký bảo mật đang quá tải",
		"Vui lòng thử lại sau ít phút",
	)
}
