package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/escolar/roster-service/internal/services"
	"github.com/escolar/roster-service/internal/utils"
	"github.com/escolar/roster-service/internal/validator"
)

// VerificationHandler serves the public token-driven lifecycle endpoints.
type VerificationHandler struct {
	BaseHandler
	service services.VerificationService
}

func NewVerificationHandler(service services.VerificationService, logger utils.Logger) *VerificationHandler {
	return &VerificationHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// VerifyEmail consumes an emailed verification token.
func (h *VerificationHandler) VerifyEmail(c *gin.Context) {
	h.LogRequest(c, "Verifying email")

	token := c.Param("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Missing token",
		})
		return
	}

	resp, err := h.service.Verify(c.Request.Context(), token)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// createPasswordResponse routes the client after the password step; both
// the fresh creation and the idempotent double submission end at login.
type createPasswordResponse struct {
	Outcome services.VerifyOutcome `json:"outcome"`
	Message string                 `json:"message"`
}

// CreatePassword finishes account setup with the token Verify handed out.
func (h *VerificationHandler) CreatePassword(c *gin.Context) {
	h.LogRequest(c, "Creating password")

	var req validator.CreatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	if err := h.service.CreatePassword(c.Request.Context(), &req); err != nil {
		// A hash already present means the account finished setup on an
		// earlier submission; re-submitting is success, route to login.
		if errors.Is(err, services.ErrPasswordAlreadySet) {
			c.JSON(http.StatusOK, createPasswordResponse{
				Outcome: services.OutcomeLogin,
				Message: "password already set; log in",
			})
			return
		}
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, createPasswordResponse{
		Outcome: services.OutcomeLogin,
		Message: "password created",
	})
}

// ForgotPassword requests a reset token by email.
func (h *VerificationHandler) ForgotPassword(c *gin.Context) {
	h.LogRequest(c, "Requesting password reset")

	var req validator.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	if err := h.service.RequestPasswordReset(c.Request.Context(), &req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "reset email sent"})
}

// ResetPassword consumes a reset token and sets the new password.
func (h *VerificationHandler) ResetPassword(c *gin.Context) {
	h.LogRequest(c, "Resetting password")

	var req validator.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), &req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "password reset"})
}

// ===== ERROR HANDLING =====

func (h *VerificationHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrs services.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "Validation failed",
			Details: validationErrs,
		})
	case errors.Is(err, services.ErrInvalidOrExpiredToken):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired token",
		})
	case errors.Is(err, services.ErrTokenMismatch):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "token_mismatch",
			Message: "Token does not belong to this student",
		})
	case errors.Is(err, services.ErrEmailNotVerified):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "email_not_verified",
			Message: "Email not verified",
		})
	case errors.Is(err, services.ErrStudentNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Student not found",
		})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
