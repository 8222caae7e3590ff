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
	"github.com/escolar/roster-service/internal/mailer"
	"github.com/escolar/roster-service/internal/models"
	"github.com/escolar/roster-service/internal/repositories"
	"github.com/escolar/roster-service/internal/validator"
)

// ===== RESPONSE DTOs =====

// VerifyOutcome tells the client where to route after presenting a
// verification token.
type VerifyOutcome string

const (
	// OutcomeLogin: account fully set up, go log in.
	OutcomeLogin VerifyOutcome = "login"
	// OutcomeCreatePassword: email verified, password step pending.
	OutcomeCreatePassword VerifyOutcome = "create_password"
)

type VerifyResponse struct {
	Outcome VerifyOutcome         `json:"outcome"`
	Student models.StudentProfile `json:"student,omitempty"`

	// Token authorizes the password-creation step. Only set for the
	// create_password outcome; it is a fresh token, the emailed one is
	// consumed by the verify transition.
	Token string `json:"token,omitempty"`
}

// ===== SERVICE INTERFACE =====

type VerificationService interface {
	// Verify consumes an emailed verification token. Exactly one of two
	// concurrent presentations of the same token wins.
	Verify(ctx context.Context, token string) (*VerifyResponse, error)

	// CreatePassword finishes account setup with the token returned by
	// Verify. Idempotent when the hash is already present.
	CreatePassword(ctx context.Context, req *validator.CreatePasswordRequest) error

	// RequestPasswordReset issues a reset token for a verified student with
	// a password. Anything else fails with a not-found-shaped error that
	// does not reveal whether the email exists.
	RequestPasswordReset(ctx context.Context, req *validator.ForgotPasswordRequest) error

	// ResetPassword consumes a reset token and sets the new hash.
	ResetPassword(ctx context.Context, req *validator.ResetPasswordRequest) error
}

// ===== SERVICE IMPLEMENTATION =====

type verificationService struct {
	repo      repositories.Repository
	tokens    *cache.TokenStore
	mail      mailer.Mailer
	publisher events.EventPublisher
	validator *validator.RequestValidator
	logger    *slog.Logger
	baseURL   string
}

func NewVerificationService(repo repositories.Repository, tokens *cache.TokenStore, mail mailer.Mailer, publisher events.EventPublisher, v *validator.RequestValidator, logger *slog.Logger, baseURL string) VerificationService {
	return &verificationService{
		repo:      repo,
		tokens:    tokens,
		mail:      mail,
		publisher: publisher,
		validator: v,
		logger:    logger,
		baseURL:   baseURL,
	}
}

func (s *verificationService) Verify(ctx context.Context, token string) (*VerifyResponse, error) {
	ok, err := s.tokens.AcquireConsume(ctx, cache.NamespaceVerification, token)
	if err != nil {
		return nil, fmt.Errorf("failed to lock verification token: %w", err)
	}
	if !ok {
		// The concurrent winner is consuming it right now.
		return nil, ErrInvalidOrExpiredToken
	}
	defer s.tokens.ReleaseConsume(ctx, cache.NamespaceVerification, token)

	studentID, err := s.tokens.Get(ctx, cache.NamespaceVerification, token)
	if err != nil {
		if errors.Is(err, cache.ErrTokenNotFound) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("failed to resolve verification token: %w", err)
	}

	student, err := s.repo.Student().GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Student deleted after the token was issued.
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("failed to load student: %w", err)
	}

	if student.HasVerifiedEmail() {
		if student.HasPassword() {
			// Nothing left to do; the token is spent.
			if err := s.tokens.Forget(ctx, cache.NamespaceVerification, token); err != nil {
				s.logger.Error("failed to forget verification token", "student_id", student.ID, "error", err)
			}
			return &VerifyResponse{
				Outcome: OutcomeLogin,
				Student: models.NewStudentProfile(student),
			}, nil
		}
		// Verified on an earlier attempt, password step still pending.
		// The token stays valid so the retried flow can finish.
		return &VerifyResponse{
			Outcome: OutcomeCreatePassword,
			Student: models.NewStudentProfile(student),
			Token:   token,
		}, nil
	}

	now := time.Now()
	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		student.EmailVerifiedAt = &now
		student.PlatformAccess = true
		return tx.Student().Update(ctx, student)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark email verified: %w", err)
	}

	// Rotate: the emailed token is consumed exactly once; a fresh one
	// authorizes the password step. Forget runs only after the commit, so
	// a crash here leaves the old token valid and the flow retryable.
	next, err := s.rotateToken(ctx, token, student.ID)
	if err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, events.NewEvent(events.EventStudentVerified, events.StudentEventPayload{
		StudentID: student.ID,
		Email:     student.Email,
		Cod:       student.Cod,
	})); err != nil {
		s.logger.Error("failed to publish student.verified", "student_id", student.ID, "error", err)
	}

	s.logger.Info("email verified", "student_id", student.ID)
	return &VerifyResponse{
		Outcome: OutcomeCreatePassword,
		Student: models.NewStudentProfile(student),
		Token:   next,
	}, nil
}

func (s *verificationService) rotateToken(ctx context.Context, spent string, studentID uint) (string, error) {
	next, err := cache.NewToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	if err := s.tokens.Put(ctx, cache.NamespaceVerification, next, studentID, cache.VerificationTTL); err != nil {
		return "", fmt.Errorf("failed to store rotated token: %w", err)
	}
	if err := s.tokens.Forget(ctx, cache.NamespaceVerification, spent); err != nil {
		s.logger.Error("failed to forget spent verification token", "student_id", studentID, "error", err)
	}
	return next, nil
}

func (s *verificationService) CreatePassword(ctx context.Context, req *validator.CreatePasswordRequest) error {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return errs
	}

	ok, err := s.tokens.AcquireConsume(ctx, cache.NamespaceVerification, req.Token)
	if err != nil {
		return fmt.Errorf("failed to lock verification token: %w", err)
	}
	if !ok {
		return ErrInvalidOrExpiredToken
	}
	defer s.tokens.ReleaseConsume(ctx, cache.NamespaceVerification, req.Token)

	tokenStudentID, err := s.tokens.Get(ctx, cache.NamespaceVerification, req.Token)
	if err != nil {
		if errors.Is(err, cache.ErrTokenNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("failed to resolve token: %w", err)
	}
	if tokenStudentID != req.StudentID {
		return ErrTokenMismatch
	}

	student, err := s.repo.Student().GetByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStudentNotFound
		}
		return fmt.Errorf("failed to load student: %w", err)
	}

	if !student.HasVerifiedEmail() {
		return ErrEmailNotVerified
	}

	if student.HasPassword() {
		// Double submission after success: the account is set up, drop the
		// token and report the terminal state.
		if err := s.tokens.Forget(ctx, cache.NamespaceVerification, req.Token); err != nil {
			s.logger.Error("failed to forget verification token", "student_id", student.ID, "error", err)
		}
		return ErrPasswordAlreadySet
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		h := string(hash)
		student.Password = &h
		student.PasswordChangedAt = &now
		return tx.Student().Update(ctx, student)
	})
	if err != nil {
		return fmt.Errorf("failed to save password: %w", err)
	}

	if err := s.tokens.Forget(ctx, cache.NamespaceVerification, req.Token); err != nil {
		s.logger.Error("failed to forget verification token", "student_id", student.ID, "error", err)
	}

	s.logger.Info("password created", "student_id", student.ID)
	return nil
}

func (s *verificationService) RequestPasswordReset(ctx context.Context, req *validator.ForgotPasswordRequest) error {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return errs
	}

	student, err := s.repo.Student().GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStudentNotFound
		}
		return fmt.Errorf("failed to load student: %w", err)
	}

	// Reset only applies to accounts that finished setup. The error shape
	// matches the unknown-email case so callers learn nothing extra.
	if !student.HasVerifiedEmail() || !student.HasPassword() {
		return ErrStudentNotFound
	}

	token, err := cache.NewToken()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}
	if err := s.tokens.Put(ctx, cache.NamespaceReset, token, student.ID, cache.ResetTTL); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, token)
	if err := s.mail.SendPasswordReset(ctx, student, link); err != nil {
		s.logger.Error("failed to send reset email", "student_id", student.ID, "error", err)
		return fmt.Errorf("failed to send reset email: %w", err)
	}

	s.logger.Info("password reset requested", "student_id", student.ID)
	return nil
}

func (s *verificationService) ResetPassword(ctx context.Context, req *validator.ResetPasswordRequest) error {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return errs
	}

	ok, err := s.tokens.AcquireConsume(ctx, cache.NamespaceReset, req.Token)
	if err != nil {
		return fmt.Errorf("failed to lock reset token: %w", err)
	}
	if !ok {
		return ErrInvalidOrExpiredToken
	}
	defer s.tokens.ReleaseConsume(ctx, cache.NamespaceReset, req.Token)

	studentID, err := s.tokens.Get(ctx, cache.NamespaceReset, req.Token)
	if err != nil {
		if errors.Is(err, cache.ErrTokenNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("failed to resolve reset token: %w", err)
	}

	student, err := s.repo.Student().GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("failed to load student: %w", err)
	}

	// The token alone is not enough: the presented email must match too.
	if student.Email != req.Email {
		return ErrInvalidOrExpiredToken
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

	if err := s.tokens.Forget(ctx, cache.NamespaceReset, req.Token); err != nil {
		s.logger.Error("failed to forget reset token", "student_id", student.ID, "error", err)
	}

	if err := s.publisher.Publish(ctx, events.NewEvent(events.EventStudentPasswordChanged, events.StudentEventPayload{
		StudentID: student.ID,
		Email:     student.Email,
	})); err != nil {
		s.logger.Error("failed to publish student.password_changed", "student_id", student.ID, "error", err)
	}

	s.logger.Info("password reset completed", "student_id", student.ID)
	return nil
}
