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

func newAuthService(env *testEnv) AuthService {
	return NewAuthService(env.repo, env.sessions, env.publisher, testValidator(), testLogger())
}

func addActiveStudent(t *testing.T, env *testEnv, email, password string) *models.Student {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	h := string(hash)
	now := time.Now()
	return env.repo.addStudent(&models.Student{
		Name: "Active Student", Email: email, Cod: "AAA-001",
		Password: &h, EmailVerifiedAt: &now, PlatformAccess: true,
	})
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		env := newTestEnv(t)
		st := addActiveStudent(t, env, "s@example.com", "correct-horse")
		svc := newAuthService(env)

		resp, err := svc.Login(ctx, &validator.LoginRequest{Email: "s@example.com", Password: "correct-horse"})
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if resp.Token == "" {
			t.Fatal("login should issue a session token")
		}
		if resp.MustChangePassword {
			t.Error("MustChangePassword = true, want false")
		}

		id, err := env.sessions.Get(ctx, resp.Token)
		if err != nil || id != st.ID {
			t.Errorf("session resolves to (%d, %v), want (%d, nil)", id, err, st.ID)
		}
	})

	t.Run("failures all look the same", func(t *testing.T) {
		env := newTestEnv(t)
		addActiveStudent(t, env, "s@example.com", "correct-horse")
		// An account that never finished setup has no password to check.
		env.repo.addStudent(&models.Student{Name: "Pending", Email: "p@example.com", Cod: "BBB-001"})
		svc := newAuthService(env)

		cases := []struct {
			name  string
			email string
			pass  string
		}{
			{"unknown email", "nobody@example.com", "whatever"},
			{"wrong password", "s@example.com", "wrong"},
			{"no password set", "p@example.com", "whatever"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := svc.Login(ctx, &validator.LoginRequest{Email: tc.email, Password: tc.pass})
				if !errors.Is(err, ErrAuthenticationFailed) {
					t.Errorf("Login() error = %v, want ErrAuthenticationFailed", err)
				}
			})
		}
	})

	t.Run("forced rotation is flagged", func(t *testing.T) {
		env := newTestEnv(t)
		st := addActiveStudent(t, env, "s@example.com", defaultInitialPassword)
		st.MustChangePassword = true
		svc := newAuthService(env)

		resp, err := svc.Login(ctx, &validator.LoginRequest{Email: "s@example.com", Password: defaultInitialPassword})
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if !resp.MustChangePassword {
			t.Error("MustChangePassword = false, want true")
		}
	})
}

func TestAuthService_Logout(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	st := addActiveStudent(t, env, "s@example.com", "correct-horse")
	svc := newAuthService(env)

	token, err := env.sessions.Create(ctx, st.ID)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	if err := svc.Logout(ctx, token); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := env.sessions.Get(ctx, token); !errors.Is(err, cache.ErrSessionNotFound) {
		t.Errorf("session Get() after logout error = %v, want ErrSessionNotFound", err)
	}
}

func TestAuthService_Dashboard(t *testing.T) {
	ctx := context.Background()

	t.Run("without room", func(t *testing.T) {
		env := newTestEnv(t)
		st := addActiveStudent(t, env, "s@example.com", "correct-horse")
		svc := newAuthService(env)

		resp, err := svc.Dashboard(ctx, st.ID)
		if err != nil {
			t.Fatalf("Dashboard() error = %v", err)
		}
		if resp.Student.ID != st.ID {
			t.Errorf("Student.ID = %d, want %d", resp.Student.ID, st.ID)
		}
		if resp.Room != nil {
			t.Errorf("Room = %v, want nil", resp.Room)
		}
	})

	t.Run("with room", func(t *testing.T) {
		env := newTestEnv(t)
		room := env.repo.addRoom(&models.Room{Name: "Turma A", Cod: "TUR-001"})
		st := addActiveStudent(t, env, "s@example.com", "correct-horse")
		st.RoomID = &room.ID
		svc := newAuthService(env)

		resp, err := svc.Dashboard(ctx, st.ID)
		if err != nil {
			t.Fatalf("Dashboard() error = %v", err)
		}
		if resp.Room == nil || resp.Room.ID != room.ID {
			t.Fatalf("Room = %v, want room %d", resp.Room, room.ID)
		}
		if resp.Room.StudentCount != 1 {
			t.Errorf("StudentCount = %d, want 1", resp.Room.StudentCount)
		}
	})

	t.Run("unknown student", func(t *testing.T) {
		env := newTestEnv(t)
		svc := newAuthService(env)

		if _, err := svc.Dashboard(ctx, 999); !errors.Is(err, ErrStudentNotFound) {
			t.Errorf("Dashboard() error = %v, want ErrStudentNotFound", err)
		}
	})
}

func TestAuthService_ChangePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("success clears forced rotation", func(t *testing.T) {
		env := newTestEnv(t)
		st := addActiveStudent(t, env, "s@example.com", defaultInitialPassword)
		st.MustChangePassword = true
		svc := newAuthService(env)

		err := svc.ChangePassword(ctx, st.ID, &validator.ChangePasswordRequest{
			CurrentPassword:      defaultInitialPassword,
			Password:             "my-own-password",
			PasswordConfirmation: "my-own-password",
		})
		if err != nil {
			t.Fatalf("ChangePassword() error = %v", err)
		}

		reloaded, _ := env.repo.Student().GetByID(ctx, st.ID)
		if reloaded.MustChangePassword {
			t.Error("must_change_password should be cleared")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(*reloaded.Password), []byte("my-own-password")); err != nil {
			t.Error("stored hash should match the new password")
		}

		published := env.publisher.GetPublishedEvents()
		if len(published) != 1 || published[0].Type != events.EventStudentPasswordChanged {
			t.Errorf("published events = %v, want one student.password_changed", published)
		}
	})

	t.Run("wrong current password", func(t *testing.T) {
		env := newTestEnv(t)
		st := addActiveStudent(t, env, "s@example.com", "correct-horse")
		svc := newAuthService(env)

		err := svc.ChangePassword(ctx, st.ID, &validator.ChangePasswordRequest{
			CurrentPassword:      "not-it",
			Password:             "my-own-password",
			PasswordConfirmation: "my-own-password",
		})
		if !errors.Is(err, ErrIncorrectCurrentPassword) {
			t.Errorf("ChangePassword() error = %v, want ErrIncorrectCurrentPassword", err)
		}
	})

	t.Run("confirmation mismatch", func(t *testing.T) {
		env := newTestEnv(t)
		st := addActiveStudent(t, env, "s@example.com", "correct-horse")
		svc := newAuthService(env)

		err := svc.ChangePassword(ctx, st.ID, &validator.ChangePasswordRequest{
			CurrentPassword:      "correct-horse",
			Password:             "my-own-password",
			PasswordConfirmation: "something-else",
		})
		var verrs ValidationErrors
		if !errors.As(err, &verrs) {
			t.Errorf("ChangePassword() error = %v, want ValidationErrors", err)
		}
	})
}
