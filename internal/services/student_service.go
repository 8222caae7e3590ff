package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/escolar/roster-service/internal/cache"
	"github.com/escolar/roster-service/internal/events"
	"github.com/escolar/roster-service/internal/mailer"
	"github.com/escolar/roster-service/internal/models"
	"github.com/escolar/roster-service/internal/repositories"
	"github.com/escolar/roster-service/internal/validator"
)

// defaultInitialPassword is assigned on admin resets and bulk imports,
// always together with must_change_password so it never survives a login.
const defaultInitialPassword = "trocar@123"

// codeInsertRetries bounds generate+insert retries on code collisions.
const codeInsertRetries = 5

// ===== RESPONSE DTOs =====

type StudentListResponse struct {
	Students []models.StudentSummary `json:"students"`
	Total    int64                   `json:"total"`
	Page     int                     `json:"page"`
	Size     int                     `json:"size"`
}

// ===== SERVICE INTERFACE =====

type StudentService interface {
	Create(ctx context.Context, req *validator.StudentCreateRequest) (*models.Student, error)
	GetByID(ctx context.Context, id uint) (*models.Student, error)
	Update(ctx context.Context, id uint, req *validator.StudentUpdateRequest) (*models.Student, error)
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, search string, page, size int) (*StudentListResponse, error)

	// ToggleAccess flips platform_access. On an unverified student it
	// always fails with ErrEmailNotVerified and leaves the flag untouched.
	ToggleAccess(ctx context.Context, id uint) (*models.Student, error)

	// ResendVerification issues a fresh verification token and email for a
	// student who has not verified yet.
	ResendVerification(ctx context.Context, id uint) error

	// ResetPassword is the admin-side reset: assigns the default password
	// hash and forces rotation on next login.
	ResetPassword(ctx context.Context, id uint) error
}

// ===== SERVICE IMPLEMENTATION =====

type studentService struct {
	repo      repositories.Repository
	tokens    *cache.TokenStore
	mail      mailer.Mailer
	publisher events.EventPublisher
	validator *validator.RequestValidator
	logger    *slog.Logger
	baseURL   string
}

func NewStudentService(repo repositories.Repository, tokens *cache.TokenStore, mail mailer.Mailer, publisher events.EventPublisher, v *validator.RequestValidator, logger *slog.Logger, baseURL string) StudentService {
	return &studentService{
		repo:      repo,
		tokens:    tokens,
		mail:      mail,
		publisher: publisher,
		validator: v,
		logger:    logger,
		baseURL:   baseURL,
	}
}

func (s *studentService) Create(ctx context.Context, req *validator.StudentCreateRequest) (*models.Student, error) {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	var student *models.Student
	for attempt := 0; ; attempt++ {
		cod, err := GenerateCode(ctx, s.repo.Student().CodExists)
		if err != nil {
			return nil, fmt.Errorf("failed to generate student code: %w", err)
		}

		student = &models.Student{
			Name:  req.Name,
			Email: req.Email,
			Cod:   cod,
		}

		err = s.repo.Student().Create(ctx, student)
		if err == nil {
			break
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			taken, checkErr := s.repo.Student().EmailExists(ctx, req.Email)
			if checkErr == nil && taken {
				return nil, ErrDuplicateEmail
			}
			// Code collided between the advisory check and the insert.
			if attempt < codeInsertRetries {
				continue
			}
			return nil, ErrDuplicateCode
		}
		return nil, fmt.Errorf("failed to create student: %w", err)
	}

	s.issueVerification(ctx, student)

	if err := s.publisher.Publish(ctx, events.NewEvent(events.EventStudentCreated, events.StudentEventPayload{
		StudentID: student.ID,
		Email:     student.Email,
		Cod:       student.Cod,
	})); err != nil {
		s.logger.Error("failed to publish student.created", "student_id", student.ID, "error", err)
	}

	s.logger.Info("student created", "student_id", student.ID, "cod", student.Cod)
	return student, nil
}

func (s *studentService) GetByID(ctx context.Context, id uint) (*models.Student, error) {
	student, err := s.repo.Student().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return student, nil
}

func (s *studentService) Update(ctx context.Context, id uint, req *validator.StudentUpdateRequest) (*models.Student, error) {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	student, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		student.Name = *req.Name
	}
	if req.Email != nil {
		student.Email = *req.Email
	}

	if err := s.repo.Student().Update(ctx, student); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to update student: %w", err)
	}

	return student, nil
}

func (s *studentService) Delete(ctx context.Context, id uint) error {
	student, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Student().Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStudentNotFound
		}
		return fmt.Errorf("failed to delete student: %w", err)
	}

	if err := s.publisher.Publish(ctx, events.NewEvent(events.EventStudentDeleted, events.StudentEventPayload{
		StudentID: student.ID,
		Email:     student.Email,
		Cod:       student.Cod,
	})); err != nil {
		s.logger.Error("failed to publish student.deleted", "student_id", id, "error", err)
	}

	s.logger.Info("student deleted", "student_id", id)
	return nil
}

func (s *studentService) List(ctx context.Context, search string, page, size int) (*StudentListResponse, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	students, total, err := s.repo.Student().List(ctx, repositories.StudentFilters{
		Search: search,
		Limit:  size,
		Offset: (page - 1) * size,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}

	summaries := make([]models.StudentSummary, 0, len(students))
	for _, st := range students {
		summaries = append(summaries, models.NewStudentSummary(st))
	}

	return &StudentListResponse{
		Students: summaries,
		Total:    total,
		Page:     page,
		Size:     size,
	}, nil
}

func (s *studentService) ToggleAccess(ctx context.Context, id uint) (*models.Student, error) {
	student, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !student.HasVerifiedEmail() {
		return nil, ErrEmailNotVerified
	}

	student.PlatformAccess = !student.PlatformAccess
	if err := s.repo.Student().Update(ctx, student); err != nil {
		return nil, fmt.Errorf("failed to toggle access: %w", err)
	}

	s.logger.Info("platform access toggled", "student_id", id, "platform_access", student.PlatformAccess)
	return student, nil
}

func (s *studentService) ResendVerification(ctx context.Context, id uint) error {
	student, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if student.HasVerifiedEmail() {
		return ErrAlreadyVerified
	}

	s.issueVerification(ctx, student)
	return nil
}

func (s *studentService) ResetPassword(ctx context.Context, id uint) error {
	student, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(defaultInitialPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	h := string(hash)
	student.Password = &h
	student.MustChangePassword = true
	if err := s.repo.Student().Update(ctx, student); err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}

	s.logger.Info("password reset by admin", "student_id", id)
	return nil
}

// issueVerification puts a fresh verification token and mails the link.
// Failures are logged; the admin operation that triggered it still succeeds
// and the token can be re-issued through ResendVerification.
func (s *studentService) issueVerification(ctx context.Context, student *models.Student) {
	token, err := cache.NewToken()
	if err != nil {
		s.logger.Error("failed to generate verification token", "student_id", student.ID, "error", err)
		return
	}

	if err := s.tokens.Put(ctx, cache.NamespaceVerification, token, student.ID, cache.VerificationTTL); err != nil {
		s.logger.Error("failed to store verification token", "student_id", student.ID, "error", err)
		return
	}

	link := fmt.Sprintf("%s/verify-email/%s", s.baseURL, token)
	if err := s.mail.SendVerification(ctx, student, link); err != nil {
		s.logger.Error("failed to send verification email", "student_id", student.ID, "error", err)
	}
}
