package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/escolar/roster-service/internal/cache"
	"github.com/escolar/roster-service/internal/events"
	"github.com/escolar/roster-service/internal/mailer"
	"github.com/escolar/roster-service/internal/repositories"
	"github.com/escolar/roster-service/internal/validator"
)

// ServiceManager wires and owns every service instance.
type ServiceManager interface {
	Student() StudentService
	Verification() VerificationService
	Auth() AuthService
	Roster() RosterService
	Import() ImportService

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ServiceManagerDeps groups the shared dependencies the services draw on.
type ServiceManagerDeps struct {
	Repo      repositories.Repository
	Tokens    *cache.TokenStore
	Sessions  *cache.SessionStore
	Mailer    mailer.Mailer
	Publisher events.EventPublisher
	Validator *validator.RequestValidator
	Logger    *slog.Logger

	// BaseURL prefixes verification and reset links in outbound mail.
	BaseURL string
}

type serviceManager struct {
	deps ServiceManagerDeps

	studentService      StudentService
	verificationService VerificationService
	authService         AuthService
	rosterService       RosterService
	importService       ImportService

	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

func NewServiceManager(deps ServiceManagerDeps) ServiceManager {
	return &serviceManager{deps: deps}
}

func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	d := sm.deps
	if d.Repo == nil {
		return fmt.Errorf("repository is required")
	}

	sm.studentService = NewStudentService(d.Repo, d.Tokens, d.Mailer, d.Publisher, d.Validator, d.Logger, d.BaseURL)
	sm.verificationService = NewVerificationService(d.Repo, d.Tokens, d.Mailer, d.Publisher, d.Validator, d.Logger, d.BaseURL)
	sm.authService = NewAuthService(d.Repo, d.Sessions, d.Publisher, d.Validator, d.Logger)
	sm.rosterService = NewRosterService(d.Repo, d.Publisher, d.Validator, d.Logger)
	sm.importService = NewImportService(d.Repo, d.Tokens, d.Mailer, d.Publisher, d.Validator, d.Logger, d.BaseURL)

	sm.initialized = true
	d.Logger.Info("service manager initialized")
	return nil
}

func (sm *serviceManager) Student() StudentService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.studentService
}

func (sm *serviceManager) Verification() VerificationService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.verificationService
}

func (sm *serviceManager) Auth() AuthService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.authService
}

func (sm *serviceManager) Roster() RosterService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.rosterService
}

func (sm *serviceManager) Import() ImportService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.importService
}

func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}
	return sm.deps.Repo.Ping(ctx)
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	if sm.deps.Publisher != nil {
		if err := sm.deps.Publisher.Close(); err != nil {
			sm.deps.Logger.Error("failed to close event publisher", "error", err)
		}
	}

	sm.shutdown = true
	sm.deps.Logger.Info("service manager shut down")
	return nil
}
