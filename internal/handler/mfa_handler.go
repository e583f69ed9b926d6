package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bfc-vpn/mfa-core/internal/pkg/apperror"
	"github.com/bfc-vpn/mfa-core/internal/pkg/response"
	"github.com/bfc-vpn/mfa-core/internal/service/mfa"
)

// MFAHandler exposes the MFA orchestrator over HTTP. The user id comes
// from the path: callers are trusted internal services that already
// authenticated the user.
type MFAHandler struct {
	service *mfa.Service
}

// NewMFAHandler creates a new MFA handler
func NewMFAHandler(service *mfa.Service) *MFAHandler {
	return &MFAHandler{service: service}
}

// EnrollRequest starts an enrollment
type EnrollRequest struct {
	AccountName string `json:"account_name" binding:"required"`
}

// ConfirmRequest activates a pending enrollment
type ConfirmRequest struct {
	Code string `json:"code" binding:"required"`
}

// VerifyRequest checks a TOTP or backup code
type VerifyRequest struct {
	Code string `json:"code" binding:"required"`
}

// RegenerateRequest replaces the backup code set
type RegenerateRequest struct {
	TOTPCode string `json:"totp_code" binding:"required"`
}

// Enroll handles POST /api/v1/mfa/:user_id/enroll
func (h *MFAHandler) Enroll(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.ValidationError("Dữ liệu không hợp lệ", "Vui lòng cung cấp account_name"))
		return
	}

	resp, err := h.service.Enroll(c.Request.Context(), userID, req.AccountName)
	if err != nil {
		response.ErrorFromErr(c, err)
		return
	}
	response.Created(c, resp)
}

// Confirm handles POST /api/v1/mfa/:user_id/confirm
func (h *MFAHandler) Confirm(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.ValidationError("Dữ liệu không hợp lệ", "Vui lòng cung cấp code"))
		return
	}

	resp, err := h.service.Confirm(c.Request.Context(), userID, req.Code)
	if err != nil {
		response.ErrorFromErr(c, err)
		return
	}
	response.Success(c, resp)
}

// Verify handles POST /api/v1/mfa/:user_id/verify
func (h *MFAHandler) Verify(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.ValidationError("Dữ liệu không hợp lệ", "Vui lòng cung cấp code"))
		return
	}

	resp, err := h.service.Verify(c.Request.Context(), userID, req.Code)
	if err != nil {
		response.ErrorFromErr(c, err)
		return
	}
	response.Success(c, resp)
}

// Status handles GET /api/v1/mfa/:user_id/status
func (h *MFAHandler) Status(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	resp, err := h.service.Status(c.Request.Context(), userID)
	if err != nil {
		response.ErrorFromErr(c, err)
		return
	}
	response.Success(c, resp)
}

// Disable handles DELETE /api/v1/mfa/:user_id
// Idempotent: removing absent MFA still returns 204.
func (h *MFAHandler) Disable(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	if _, err := h.service.Disable(c.Request.Context(), userID); err != nil {
		response.ErrorFromErr(c, err)
		return
	}
	response.NoContent(c)
}

// RegenerateBackupCodes handles POST /api/v1/mfa/:user_id/backup-codes/regenerate
func (h *MFAHandler) RegenerateBackupCodes(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req RegenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.ValidationError("Dữ liệu không hợp lệ", "Vui lòng cung cấp totp_code"))
		return
	}

	codes, err := h.service.RegenerateBackupCodes(c.Request.Context(), userID, req.TOTPCode)
	if err != nil {
		response.ErrorFromErr(c, err)
		return
	}
	response.Success(c, gin.H{"backup_codes": codes})
}

// BackupCodeStatus handles GET /api/v1/mfa/:user_id/backup-codes
func (h *MFAHandler) BackupCodeStatus(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	resp, err := h.service.BackupCodeStatus(c.Request.Context(), userID)
	if err != nil {
		response.ErrorFromErr(c, err)
		return
	}
	response.Success(c, resp)
}

func (h *MFAHandler) userID(c *gin.Context) (uuid.UUID, bool) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.Error(c, apperror.ValidationError("user_id không hợp lệ", "user_id phải là UUID"))
		return uuid.Nil, false
	}
	return userID, true
}
