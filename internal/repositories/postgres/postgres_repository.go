package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/escolar/roster-service/internal/repositories"
)

// PostgreSQLRepository implements the Repository aggregate over one gorm
// connection (or one transaction).
type PostgreSQLRepository struct {
	db *gorm.DB

	student repositories.StudentRepository
	room    repositories.RoomRepository
}

func NewPostgreSQLRepository(db *gorm.DB) repositories.Repository {
	return &PostgreSQLRepository{
		db:      db,
		student: NewStudentPostgreSQL(db),
		room:    NewRoomPostgreSQL(db),
	}
}

func (r *PostgreSQLRepository) Student() repositories.StudentRepository {
	return r.student
}

func (r *PostgreSQLRepository) Room() repositories.RoomRepository {
	return r.room
}

// WithTransaction executes fn with sub-repositories rebound onto one
// database transaction.
func (r *PostgreSQLRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &PostgreSQLRepository{
			db:      tx,
			student: NewStudentPostgreSQL(tx),
			room:    NewRoomPostgreSQL(tx),
		}
		return fn(txRepo)
	})
}

func (r *PostgreSQLRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (r *PostgreSQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// ===== MANAGER =====

type postgresRepositoryManager struct {
	db   *gorm.DB
	repo repositories.Repository
}

func NewRepositoryManager(db *gorm.DB) repositories.RepositoryManager {
	return &postgresRepositoryManager{db: db}
}

func (m *postgresRepositoryManager) Initialize() error {
	if m.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	m.repo = NewPostgreSQLRepository(m.db)
	return nil
}

func (m *postgresRepositoryManager) GetRepository() repositories.Repository {
	return m.repo
}

func (m *postgresRepositoryManager) HealthCheck(ctx context.Context) error {
	if m.repo == nil {
		return fmt.Errorf("repository not initialized")
	}
	return m.repo.Ping(ctx)
}

func (m *postgresRepositoryManager) Shutdown(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}
	return m.repo.Close()
}
