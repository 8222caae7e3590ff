package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/escolar/roster-service/internal/cache"
	"github.com/escolar/roster-service/internal/events"
	"github.com/escolar/roster-service/internal/models"
	"github.com/escolar/roster-service/internal/validator"
)

func newVerificationService(env *testEnv) VerificationService {
	return NewVerificationService(env.repo, env.tokens, env.mail, env.publisher, testValidator(), testLogger(), "https://portal.example.com")
}

func issueTestToken(t *testing.T, env *testEnv, ns cache.TokenNamespace, token string, studentID uint) {
	t.Helper()
	ttl := cache.VerificationTTL
	if ns == cache.NamespaceReset {
		ttl = cache.ResetTTL
	}
	if err := env.tokens.Put(context.Background(), ns, token, studentID, ttl); err != nil {
		t.Fatalf("failed to seed token: %v", err)
	}
}

func TestVerificationService_Verify(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("first verification", func(t *testing.T) {
		env := newTestEnv(t)
		st := env.repo.addStudent(&models.Student{Name: "Pending", Email: "p@example.com", Cod: "AAA-001"})
		issueTestToken(t, env, cache.NamespaceVerification, "emailed-token", st.ID)
		svc := newVerificationService(env)

		resp, err := svc.Verify(ctx, "emailed-token")
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if resp.Outcome != OutcomeCreatePassword {
			t.Errorf("Outcome = %q, want create_password", resp.Outcome)
		}
		if resp.Token == "" || resp.Token == "emailed-token" {
			t.Errorf("Token = %q, want a fresh rotated token", resp.Token)
		}

		reloaded, _ := env.repo.Student().GetByID(ctx, st.ID)
		if !reloaded.HasVerifiedEmail() {
			t.Error("student should be verified")
		}
		if !reloaded.PlatformAccess {
			t.Error("verification should grant platform access")
		}

		// The emailed token is spent; only the rotated one resolves.
		if _, err := env.tokens.Get(ctx, cache.NamespaceVerification, "emailed-token"); !errors.Is(err, cache.ErrTokenNotFound) {
			t.Error("emailed token should be consumed")
		}
		if id, err := env.tokens.Get(ctx, cache.NamespaceVerification, resp.Token); err != nil || id != st.ID {
			t.Errorf("rotated token resolves to (%d, %v), want (%d, nil)", id, err, st.ID)
		}

		published := env.publisher.GetPublishedEvents()
		if len(published) != 1 || published[0].Type != events.EventStudentVerified {
			t.Errorf("published events = %v, want one student.verified", published)
		}
	})

	t.Run("spent token", func(t *testing.T) {
		env := newTestEnv(t)
		st := env.repo.addStudent(&models.Student{Name: "Pending", Email: "p@example.com", Cod: "AAA-001"})
		issueTestToken(t, env, cache.NamespaceVerification, "emailed-token", st.ID)
		svc := newVerificationService(env)

		if _, err := svc.Verify(ctx, "emailed-token"); err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if _, err := svc.Verify(ctx, "emailed-token"); !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Errorf("second Verify() error = %v, want ErrInvalidOrExpiredToken", err)
		}
	})

	t.Run("verified without password retries the same token", func(t *testing.T) {
		env := newTestEnv(t)
		st := env.repo.addStudent(&models.Student{
			Name: "Halfway", Email: "h@example.com", Cod: "AAA-001",
			EmailVerifiedAt: &now, PlatformAccess: true,
		})
		issueTestToken(t, env, cache.NamespaceVerification, "rotated-token", st.ID)
		svc := newVerificationService(env)

		resp, err := svc.Verify(ctx, "rotated-token")
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if resp.Outcome != OutcomeCreatePassword {
			t.Errorf("Outcome = %q, want create_password", resp.Outcome)
		}
		if resp.Token != "rotated-token" {
			t.Errorf("Token = %q, want the presented token back", resp.Token)
		}
	})

	t.Run("fully set up account routes to login", func(t *testing.T) {
		env := newTestEnv(t)
		hash := "some-hash"
		st := env.repo.addStudent(&models.Student{
			Name: "Done", Email: "d@example.com", Cod: "AAA-001",
			EmailVerifiedAt: &now, PlatformAccess: true, Password: &hash,
		})
		issueTestToken(t, env, cache.NamespaceVerification, "late-token", st.ID)
		svc := newVerificationService(env)

		resp, err := svc.Verify(ctx, "late-token")
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if resp.Outcome != OutcomeLogin {
			t.Errorf("Outcome = %q, want login", resp.Outcome)
		}
		if resp.Token != "" {
			t.Errorf("Token = %q, want empty", resp.Token)
		}
		if _, err := env.tokens.Get(ctx, cache.NamespaceVerification, "late-token"); !errors.Is(err, cache.ErrTokenNotFound) {
			t.Error("token should be dropped when there is nothing left to do")
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		env := newTestEnv(t)
		svc := newVerificationService(env)

		if _, err := svc.Verify(ctx, "never-issued"); !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Errorf("Verify() error = %v, want ErrInvalidOrExpiredToken", err)
		}
	})

	t.Run("student deleted after issue", func(t *testing.T) {
		env := newTestEnv(t)
		issueTestToken(t, env, cache.NamespaceVerification, "orphan-token", 999)
		svc := newVerificationService(env)

		if _, err := svc.Verify(ctx, "orphan-token"); !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Errorf("Verify() error = %v, want ErrInvalidOrExpiredToken", err)
		}
	})

	t.Run("concurrent presentation loses to the lock holder", func(t *testing.T) {
		env := newTestEnv(t)
		st := env.repo.addStudent(&models.Student{Name: "Pending", Email: "p@example.com", Cod: "AAA-001"})
		issueTestToken(t, env, cache.NamespaceVerification, "contended", st.ID)
		svc := newVerificationService(env)

		ok, err := env.tokens.AcquireConsume(ctx, cache.NamespaceVerification, "contended")
		if err != nil || !ok {
			t.Fatalf("AcquireConsume() = %v, %v", ok, err)
		}

		if _, err := svc.Verify(ctx, "contended"); !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Errorf("Verify() while locked error = %v, want ErrInvalidOrExpiredToken", err)
		}
	})
}

func TestVerificationService_CreatePassword(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	validReq := func(studentID uint, token string) *validator.CreatePasswordRequest {
		return &validator.CreatePasswordRequest{
			StudentID:            studentID,
			Token:                token,
			Password:             "s3cret-enough",
			PasswordConfirmation: "s3cret-enough",
		}
	}

	t.Run("success", func(t *testing.T) {
		env := newTestEnv(t)
		st := env.repo.addStudent(&models.Student{
			Name: "Halfway", Email: "h@example.com", Cod: "AAA-001",
			EmailVerifiedAt: &now, PlatformAccess: true,
		})
		issueTestToken(t, env, cache.NamespaceVerification, "setup-token", st.ID)
		svc := newVerificationService(env)

		if err := svc.CreatePassword(ctx, validReq(st.ID, "setup-token")); err != nil {
			t.Fatalf("CreatePassword() error = %v", err)
		}

		reloaded, _ := env.repo.Student().GetByID(ctx, st.ID)
		if !reloaded.HasPassword() {
			t.Fatal("password should be set")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(*reloaded.Password), []byte("s3cret-enough")); err != nil {
			t.Error("stored hash should match the chosen password")
		}
		if reloaded.PasswordChangedAt == nil {
			t.Error("password_changed_at should be stamped")
		}

		if _, err := env.tokens.Get(ctx, cache.NamespaceVerification, "setup-token"); !errors.Is(err, cache.ErrTokenNotFound) {
			t.Error("token should be consumed after password creation")
		}
	})

	t.Run("token bound to another student", func(t *testing.T) {
		env := newTestEnv(t)
		st := env.repo.addStudent(&models.Student{
			Name: "Halfway", Email: "h@example.com", Cod: "AAA-001",
			EmailVerifiedAt: &now,
		})
		issueTestToken(t, env, cache.NamespaceVerification, "setup-token", st.ID)
		svc := newVerificationService(env)

		if err := svc.CreatePassword(ctx, validReq(st.ID+1, "setup-token")); !errors.Is(err, ErrTokenMismatch) {
			t.Errorf("CreatePassword() error = %v, want ErrTokenMismatch", err)
		}
	})

	t.Run("unverified student", func(t *testing.T) {
		env := newTestEnv(t)
		st := env.repo.addStudent(&models.Student{Name: "Pending", Email: "p@example.com", Cod: "AAA-001"})
		issueTestToken(t, env, cache.NamespaceVerification, "setup-token", st.ID)
		svc := newVerificationService(env)

		if err := svc.CreatePassword(ctx, validReq(st.ID, "setup-token")); !errors.Is(err, ErrEmailNotVerified) {
			t.Errorf("CreatePassword() error = %v, want ErrEmailNotVerified", err)
		}
	})

	t.Run("double submission", func(t *testing.T) {
		env := newTestEnv(t)
		hash := "existing-hash"
		st := env.repo.addStudent(&models.Student{
			Name: "Done", Email: "d@example.com", Cod: "AAA-001",
			EmailVerifiedAt: &now, Password: &hash,
		})
		issueTestToken(t, env, cache.NamespaceVerification, "setup-token", st.ID)
		svc := newVerificationService(env)

		if err := svc.CreatePassword(ctx, validReq(st.ID, "setup-token")); !errors.Is(err, ErrPasswordAlreadySet) {
			t.Errorf("CreatePassword() error = %v, want ErrPasswordAlreadySet", err)
		}
		if _, err := env.tokens.Get(ctx, cache.NamespaceVerification, "setup-token"); !errors.Is(err, cache.ErrTokenNotFound) {
			t.Error("token should be dropped on the terminal state")
		}
	})

	t.Run("loses to a concurrent consumer of the same token", func(t *testing.T) {
		env := newTestEnv(t)
		st := env.repo.addStudent(&models.Student{
			Name: "Halfway", Email: "h@example.com", Cod: "AAA-001",
			EmailVerifiedAt: &now, PlatformAccess: true,
		})
		issueTestToken(t, env, cache.NamespaceVerification, "contended", st.ID)
		svc := newVerificationService(env)

		ok, err := env.tokens.AcquireConsume(ctx, cache.NamespaceVerification, "contended")
		if err != nil || !ok {
			t.Fatalf("AcquireConsume() = %v, %v", ok, err)
		}

		if err := svc.CreatePassword(ctx, validReq(st.ID, "contended")); !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Errorf("CreatePassword() while locked error = %v, want ErrInvalidOrExpiredToken", err)
		}

		reloaded, _ := env.repo.Student().GetByID(ctx, st.ID)
		if reloaded.HasPassword() {
			t.Error("losing presentation must not write a password")
		}
	})

	t.Run("confirmation mismatch", func(t *testing.T) {
		env := newTestEnv(t)
		svc := newVerificationService(env)

		err := svc.CreatePassword(ctx, &validator.CreatePasswordRequest{
			StudentID:            1,
			Token:                "whatever",
			Password:             "s3cret-enough",
			PasswordConfirmation: "different",
		})
		var verrs ValidationErrors
		if !errors.As(err, &verrs) {
			t.Errorf("CreatePassword() error = %v, want ValidationErrors", err)
		}
	})
}

func TestVerificationService_RequestPasswordReset(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("success", func(t *testing.T) {
		env := newTestEnv(t)
		hash := "some-hash"
		env.repo.addStudent(&models.Student{
			Name: "Done", Email: "d@example.com", Cod: "AAA-001",
			EmailVerifiedAt: &now, Password: &hash,
		})
		svc := newVerificationService(env)

		if err := svc.RequestPasswordReset(ctx, &validator.ForgotPasswordRequest{Email: "d@example.com"}); err != nil {
			t.Fatalf("RequestPasswordReset() error = %v", err)
		}
		if env.mail.resetCount() != 1 {
			t.Errorf("reset emails = %d, want 1", env.mail.resetCount())
		}
	})

	t.Run("indistinguishable failures", func(t *testing.T) {
		env := newTestEnv(t)
		// Verified but never set a password.
		env.repo.addStudent(&models.Student{
			Name: "Halfway", Email: "h@example.com", Cod: "AAA-001",
			EmailVerifiedAt: &now,
		})
		svc := newVerificationService(env)

		for _, email := range []string{"unknown@example.com", "h@example.com"} {
			if err := svc.RequestPasswordReset(ctx, &validator.ForgotPasswordRequest{Email: email}); !errors.Is(err, ErrStudentNotFound) {
				t.Errorf("RequestPasswordReset(%q) error = %v, want ErrStudentNotFound", email, err)
			}
		}
		if env.mail.resetCount() != 0 {
			t.Errorf("reset emails = %d, want 0", env.mail.resetCount())
		}
	})
}

func TestVerificationService_ResetPassword(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	seed := func(t *testing.T) (*testEnv, *models.Student, VerificationService) {
		env := newTestEnv(t)
		hash := "old-hash"
		st := env.repo.addStudent(&models.Student{
			Name: "Done", Email: "d@example.com", Cod: "AAA-001",
			EmailVerifiedAt: &now, Password: &hash, MustChangePassword: true,
		})
		issueTestToken(t, env, cache.NamespaceReset, "reset-token", st.ID)
		return env, st, newVerificationService(env)
	}

	req := func(email string) *validator.ResetPasswordRequest {
		return &validator.ResetPasswordRequest{
			Token:                "reset-token",
			Email:                email,
			Password:             "brand-new-pass",
			PasswordConfirmation: "brand-new-pass",
		}
	}

	t.Run("success", func(t *testing.T) {
		env, st, svc := seed(t)

		if err := svc.ResetPassword(ctx, req("d@example.com")); err != nil {
			t.Fatalf("ResetPassword() error = %v", err)
		}

		reloaded, _ := env.repo.Student().GetByID(ctx, st.ID)
		if err := bcrypt.CompareHashAndPassword([]byte(*reloaded.Password), []byte("brand-new-pass")); err != nil {
			t.Error("stored hash should match the new password")
		}
		if reloaded.MustChangePassword {
			t.Error("a self-service reset clears must_change_password")
		}

		published := env.publisher.GetPublishedEvents()
		if len(published) != 1 || published[0].Type != events.EventStudentPasswordChanged {
			t.Errorf("published events = %v, want one student.password_changed", published)
		}

		// Single use.
		if err := svc.ResetPassword(ctx, req("d@example.com")); !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Errorf("second ResetPassword() error = %v, want ErrInvalidOrExpiredToken", err)
		}
	})

	t.Run("email does not match token owner", func(t *testing.T) {
		env, st, svc := seed(t)

		if err := svc.ResetPassword(ctx, req("other@example.com")); !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Errorf("ResetPassword() error = %v, want ErrInvalidOrExpiredToken", err)
		}

		reloaded, _ := env.repo.Student().GetByID(ctx, st.ID)
		if *reloaded.Password != "old-hash" {
			t.Error("password should be untouched")
		}
	})

	t.Run("expired token", func(t *testing.T) {
		env, _, svc := seed(t)
		env.mr.FastForward(cache.ResetTTL + time.Minute)

		if err := svc.ResetPassword(ctx, req("d@example.com")); !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Errorf("ResetPassword() after expiry error = %v, want ErrInvalidOrExpiredToken", err)
		}
	})
}
