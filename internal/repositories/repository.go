package repositories

import "context"

// Repository aggregates the roster sub-repositories.
type Repository interface {
	Student() StudentRepository
	Room() RoomRepository

	// WithTransaction runs fn against a repository bound to one database
	// transaction; any error rolls the whole transaction back.
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	Ping(ctx context.Context) error
	Close() error
}

// RepositoryManager owns the repository lifecycle.
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
