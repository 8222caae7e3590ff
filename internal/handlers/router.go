package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/escolar/roster-service/internal/cache"
	"github.com/escolar/roster-service/internal/config"
	"github.com/escolar/roster-service/internal/repositories"
	"github.com/escolar/roster-service/internal/services"
	"github.com/escolar/roster-service/internal/utils"
)

type HandlerManager struct {
	studentHandler      *StudentHandler
	roomHandler         *RoomHandler
	authHandler         *AuthHandler
	verificationHandler *VerificationHandler
	adminAuth           *CasdoorAuthMiddleware
	sessionGuard        *SessionGuard
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	sessions *cache.SessionStore,
	repo repositories.Repository,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
) *HandlerManager {
	return &HandlerManager{
		studentHandler:      NewStudentHandler(serviceManager.Student(), serviceManager.Import(), logger),
		roomHandler:         NewRoomHandler(serviceManager.Roster(), logger),
		authHandler:         NewAuthHandler(serviceManager.Auth(), logger),
		verificationHandler: NewVerificationHandler(serviceManager.Verification(), logger),
		adminAuth:           NewCasdoorAuthMiddleware(casdoorConfig),
		sessionGuard:        NewSessionGuard(sessions, repo, logger),
	}
}

// SetupRoutes sets up all API routes.
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")

	// Admin surface: Casdoor JWT plus admin role on every route.
	admin := v1.Group("")
	admin.Use(hm.adminAuth.AuthMiddleware(), hm.adminAuth.RequireAdminMiddleware())
	{
		students := admin.Group("/students")
		{
			students.GET("", hm.studentHandler.ListStudents)
			students.POST("", hm.studentHandler.CreateStudent)
			students.PUT("/:id", hm.studentHandler.UpdateStudent)
			students.DELETE("/:id", hm.studentHandler.DeleteStudent)
			students.POST("/import", hm.studentHandler.ImportStudents)
			students.GET("/import/template", hm.studentHandler.ImportTemplate)
			students.POST("/:id/toggle-access", hm.studentHandler.ToggleAccess)
			students.POST("/:id/resend-verification", hm.studentHandler.ResendVerification)
			students.POST("/:id/reset-password", hm.studentHandler.ResetPassword)
		}

		rooms := admin.Group("/rooms")
		{
			rooms.GET("", hm.roomHandler.ListRooms)
			rooms.POST("", hm.roomHandler.CreateRoom)
			rooms.PUT("/:id", hm.roomHandler.UpdateRoom)
			rooms.DELETE("/:id", hm.roomHandler.DeleteRoom)
			rooms.GET("/:id/roster", hm.roomHandler.RoomRoster)
			rooms.POST("/:id/students", hm.roomHandler.AddStudent)
			rooms.DELETE("/:id/students/:student_id", hm.roomHandler.RemoveStudent)
		}
	}

	// Student portal. Public routes first, then the session-guarded ones.
	portal := v1.Group("/portal")
	{
		portal.POST("/login", hm.authHandler.Login)
		portal.GET("/verify-email/:token", hm.verificationHandler.VerifyEmail)
		portal.POST("/create-password", hm.verificationHandler.CreatePassword)
		portal.POST("/forgot-password", hm.verificationHandler.ForgotPassword)
		portal.POST("/reset-password", hm.verificationHandler.ResetPassword)

		portal.GET("/me", hm.sessionGuard.Guard(false), hm.authHandler.Me)
		portal.POST("/logout", hm.sessionGuard.Guard(false), hm.authHandler.Logout)

		// The rotation route is the only one reachable while a forced
		// password change is pending.
		portal.POST("/change-password", hm.sessionGuard.Guard(true), hm.authHandler.ChangePassword)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "roster-service",
		})
	})
}
