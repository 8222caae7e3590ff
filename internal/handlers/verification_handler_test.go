package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/escolar/roster-service/internal/services"
	"github.com/escolar/roster-service/internal/utils"
	"github.com/escolar/roster-service/internal/validator"
)

// stubVerificationService returns canned results per method.
type stubVerificationService struct {
	createPasswordErr error
}

func (s *stubVerificationService) Verify(ctx context.Context, token string) (*services.VerifyResponse, error) {
	return nil, services.ErrInvalidOrExpiredToken
}

func (s *stubVerificationService) CreatePassword(ctx context.Context, req *validator.CreatePasswordRequest) error {
	return s.createPasswordErr
}

func (s *stubVerificationService) RequestPasswordReset(ctx context.Context, req *validator.ForgotPasswordRequest) error {
	return nil
}

func (s *stubVerificationService) ResetPassword(ctx context.Context, req *validator.ResetPasswordRequest) error {
	return nil
}

func postCreatePassword(t *testing.T, svc services.VerificationService) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := utils.NewSlogLogger(slog.New(slog.NewTextHandler(guardLogSink{}, &slog.HandlerOptions{Level: slog.LevelError})))
	handler := NewVerificationHandler(svc, logger)

	router := gin.New()
	router.POST("/create-password", handler.CreatePassword)

	body := `{"student_id":1,"token":"tok","password":"long-enough","password_confirmation":"long-enough"}`
	req := httptest.NewRequest(http.MethodPost, "/create-password", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestVerificationHandler_CreatePassword(t *testing.T) {
	t.Run("success routes to login", func(t *testing.T) {
		w := postCreatePassword(t, &stubVerificationService{})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}

		var resp createPasswordResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("bad response body: %v", err)
		}
		if resp.Outcome != services.OutcomeLogin {
			t.Errorf("outcome = %q, want login", resp.Outcome)
		}
	})

	t.Run("double submission is success, not conflict", func(t *testing.T) {
		w := postCreatePassword(t, &stubVerificationService{createPasswordErr: services.ErrPasswordAlreadySet})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}

		var resp createPasswordResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("bad response body: %v", err)
		}
		if resp.Outcome != services.OutcomeLogin {
			t.Errorf("outcome = %q, want login", resp.Outcome)
		}
	})

	t.Run("invalid token is still an error", func(t *testing.T) {
		w := postCreatePassword(t, &stubVerificationService{createPasswordErr: services.ErrInvalidOrExpiredToken})
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", w.Code)
		}
	})
}
