package repositories

import (
	"context"

	"github.com/escolar/roster-service/internal/models"
)

// StudentRepository is the persistence surface for student records.
// Not-found lookups return gorm.ErrRecordNotFound; unique-constraint
// violations return gorm.ErrDuplicatedKey (TranslateError is enabled).
type StudentRepository interface {
	Create(ctx context.Context, student *models.Student) error
	CreateBatch(ctx context.Context, students []*models.Student) error
	GetByID(ctx context.Context, id uint) (*models.Student, error)
	GetByEmail(ctx context.Context, email string) (*models.Student, error)
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id uint) error

	List(ctx context.Context, filters StudentFilters) ([]*models.Student, int64, error)

	CodExists(ctx context.Context, cod string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}
