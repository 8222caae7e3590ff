package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/escolar/roster-service/internal/services"
	"github.com/escolar/roster-service/internal/utils"
	"github.com/escolar/roster-service/internal/validator"
)

// AuthHandler serves the student portal session endpoints.
type AuthHandler struct {
	BaseHandler
	service services.AuthService
}

func NewAuthHandler(service services.AuthService, logger utils.Logger) *AuthHandler {
	return &AuthHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// Login authenticates a student by email and password.
func (h *AuthHandler) Login(c *gin.Context) {
	h.LogRequest(c, "Student login")

	var req validator.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	resp, err := h.service.Login(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Logout invalidates the current session.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.LogRequest(c, "Student logout")

	token := c.GetString("session_token")
	if err := h.service.Logout(c.Request.Context(), token); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "logged out"})
}

// Me returns the authenticated student's dashboard payload.
func (h *AuthHandler) Me(c *gin.Context) {
	h.LogRequest(c, "Student dashboard")

	studentID := c.GetUint("student_id")
	resp, err := h.service.Dashboard(c.Request.Context(), studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ChangePassword rotates the password; this is the only route reachable
// while a forced rotation is pending.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	h.LogRequest(c, "Changing password")

	var req validator.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	studentID := c.GetUint("student_id")
	if err := h.service.ChangePassword(c.Request.Context(), studentID, &req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "password changed"})
}

// ===== ERROR HANDLING =====

func (h *AuthHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrs services.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "Validation failed",
			Details: validationErrs,
		})
	case errors.Is(err, services.ErrAuthenticationFailed):
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid credentials",
		})
	case errors.Is(err, services.ErrIncorrectCurrentPassword):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "incorrect_current_password",
			Message: "Current password is incorrect",
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
