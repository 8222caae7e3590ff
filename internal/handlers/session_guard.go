package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/escolar/roster-service/internal/cache"
	"github.com/escolar/roster-service/internal/models"
	"github.com/escolar/roster-service/internal/repositories"
	"github.com/escolar/roster-service/internal/utils"
)

// SessionGuard protects the student surface. On every request it resolves
// the opaque session token, re-loads the student row and enforces, in
// order: authentication, the forced-rotation gate, then the
// verified-email + platform-access gate. The last gate also applies to the
// rotation route; failing it invalidates the session.
type SessionGuard struct {
	sessions *cache.SessionStore
	repo     repositories.Repository
	logger   utils.Logger
}

func NewSessionGuard(sessions *cache.SessionStore, repo repositories.Repository, logger utils.Logger) *SessionGuard {
	return &SessionGuard{
		sessions: sessions,
		repo:     repo,
		logger:   logger,
	}
}

// Guard returns the middleware. allowPendingRotation is true only for the
// password-rotation route; everything else answers 409 while a forced
// rotation is pending.
func (sg *SessionGuard) Guard(allowPendingRotation bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractSessionToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "unauthorized",
				Message: "session token missing",
			})
			c.Abort()
			return
		}

		studentID, err := sg.sessions.Get(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, cache.ErrSessionNotFound) {
				c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "unauthorized",
					Message: "session expired or invalid",
				})
			} else {
				sg.logger.Error("session lookup failed", "error", err)
				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Message: "Internal server error",
				})
			}
			c.Abort()
			return
		}

		student, err := sg.repo.Student().GetByID(c.Request.Context(), studentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Deleted after login; the session is dead.
				sg.dropSession(c, token)
				c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "unauthorized",
					Message: "account no longer exists",
				})
			} else {
				sg.logger.Error("student lookup failed", "student_id", studentID, "error", err)
				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Message: "Internal server error",
				})
			}
			c.Abort()
			return
		}

		if student.MustChangePassword && !allowPendingRotation {
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "password_change_required",
				Message: "password must be changed before continuing",
			})
			c.Abort()
			return
		}

		if !student.HasPlatformAccess() {
			sg.dropSession(c, token)
			reason := "platform access revoked"
			if !student.HasVerifiedEmail() {
				reason = "email not verified"
			}
			c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "access_denied",
				Message: reason,
			})
			c.Abort()
			return
		}

		c.Set("student_id", student.ID)
		c.Set("student", student)
		c.Set("session_token", token)
		c.Next()
	}
}

func (sg *SessionGuard) dropSession(c *gin.Context, token string) {
	if err := sg.sessions.Delete(c.Request.Context(), token); err != nil {
		sg.logger.Error("failed to drop session", "error", err)
	}
}

// extractSessionToken reads the bearer header first, then the session
// cookie.
func extractSessionToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
	}
	if cookie, err := c.Cookie("session"); err == nil {
		return cookie
	}
	return ""
}

// StudentFromContext returns the student loaded by the guard.
func StudentFromContext(c *gin.Context) (*models.Student, bool) {
	v, exists := c.Get("student")
	if !exists {
		return nil, false
	}
	student, ok := v.(*models.Student)
	return student, ok
}
