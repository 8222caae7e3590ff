package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/escolar/roster-service/internal/cache"
	"github.com/escolar/roster-service/internal/events"
	"github.com/escolar/roster-service/internal/models"
	"github.com/escolar/roster-service/internal/repositories"
	"github.com/escolar/roster-service/internal/validator"
)

// ===== RESPONSE DTOs =====

type LoginResponse struct {
	Token   string                `json:"token"`
	Student models.StudentProfile `json:"student"`

	// MustChangePassword routes the client to the rotation step before
	// anything else.
	MustChangePassword bool `json:"must_change_password"`
}

type DashboardResponse struct {
	Student models.StudentProfile `json:"student"`
	Room    *models.RoomSummary   `json:"room,omitempty"`
}

// ===== SERVICE INTERFACE =====

type AuthService interface {
	// Login authenticates by email and password. Every failure mode
	// returns ErrAuthenticationFailed; callers cannot tell an unknown
	// email from a wrong password.
	Login(ctx context.Context, req *validator.LoginRequest) (*LoginResponse, error)

	Logout(ctx context.Context, sessionToken string) error

	// Dashboard is the authenticated student's own view.
	Dashboard(ctx context.Context, studentID uint) (*DashboardResponse, error)

	// ChangePassword rotates the password after checking the current one.
	// Clears must_change_password.
	ChangePassword(ctx context.Context, studentID uint, req *validator.ChangePasswordRequest) error
}

// ===== SERVICE IMPLEMENTATION =====

type authService struct {
	repo      repositories.Repository
	sessions  *cache.SessionStore
	publisher events.EventPublisher
	validator *validator.RequestValidator
	logger    *slog.Logger
}

func NewAuthService(repo repositories.Repository, sessions *cache.SessionStore, publisher events.EventPublisher, v *validator.RequestValidator, logger *slog.Logger) AuthService {
	return &authService{
		repo:      repo,
		sessions:  sessions,
		publisher: publisher,
		validator: v,
		logger:    logger,
	}
}

func (s *authService) Login(ctx context.Context, req *validator.LoginRequest) (*LoginResponse, error) {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	student, err := s.repo.Student().GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuthenticationFailed
		}
		return nil, fmt.Errorf("failed to load student: %w", err)
	}

	if !student.HasPassword() {
		return nil, ErrAuthenticationFailed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*student.Password), []byte(req.Password)); err != nil {
		return nil, ErrAuthenticationFailed
	}

	token, err := s.sessions.Create(ctx, student.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("student logged in", "student_id", student.ID)
	return &LoginResponse{
		Token:              token,
		Student:            models.NewStudentProfile(student),
		MustChangePassword: student.MustChangePassword,
	}, nil
}

func (s *authService) Logout(ctx context.Context, sessionToken string) error {
	if err := s.sessions.Delete(ctx, sessionToken); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *authService) Dashboard(ctx context.Context, studentID uint) (*DashboardResponse, error) {
	student, err := s.repo.Student().GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to load student: %w", err)
	}

	resp := &DashboardResponse{Student: models.NewStudentProfile(student)}

	if student.RoomID != nil {
		room, err := s.repo.Room().GetByID(ctx, *student.RoomID)
		if err == nil {
			count, _ := s.repo.Room().StudentCount(ctx, room.ID)
			resp.Room = &models.RoomSummary{
				ID:           room.ID,
				Name:         room.Name,
				Cod:          room.Cod,
				StudentCount: count,
				CreatedAt:    room.CreatedAt,
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load room: %w", err)
		}
	}

	return resp, nil
}

func (s *authService) ChangePassword(ctx context.Context, studentID uint, req *validator.ChangePasswordRequest) error {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return errs
	}

	student, err := s.repo.Student().GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStudentNotFound
		}
		return fmt.Errorf("failed to load student: %w", err)
	}

	if !student.HasPassword() {
		return ErrIncorrectCurrentPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*student.Password), []byte(req.CurrentPassword)); err != nil {
		return ErrIncorrectCurrentPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		h := string(hash)
		student.Password = &h
		student.MustChangePassword = false
		student.PasswordChangedAt = &now
		return tx.Student().Update(ctx, student)
	})
	if err != nil {
		return fmt.Errorf("failed to save password: %w", err)
	}

	if err := s.publisher.Publish(ctx, events.NewEvent(events.EventStudentPasswordChanged, events.StudentEventPayload{
		StudentID: student.ID,
		Email:     student.Email,
	})); err != nil {
		s.logger.Error("failed to publish student.password_changed", "student_id", student.ID, "error", err)
	}

	s.logger.Info("password changed", "student_id", student.ID)
	return nil
}
