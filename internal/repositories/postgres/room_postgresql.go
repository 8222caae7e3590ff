package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/escolar/roster-service/internal/models"
	"github.com/escolar/roster-service/internal/repositories"
)

type roomPostgreSQL struct {
	db *gorm.DB
}

func NewRoomPostgreSQL(db *gorm.DB) repositories.RoomRepository {
	return &roomPostgreSQL{db: db}
}

func (r *roomPostgreSQL) Create(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *roomPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Room, error) {
	var room models.Room
	if err := r.db.WithContext(ctx).First(&room, id).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomPostgreSQL) Update(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Save(room).Error
}

func (r *roomPostgreSQL) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Room{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *roomPostgreSQL) List(ctx context.Context, filters repositories.RoomFilters) ([]*models.Room, error) {
	query := r.db.WithContext(ctx).Model(&models.Room{})
	if filters.Search != "" {
		query = applyRoomSearch(query, filters.Search)
	}

	var rooms []*models.Room
	if err := query.Order("name ASC").Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *roomPostgreSQL) StudentCount(ctx context.Context, roomID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Student{}).Where("room_id = ?", roomID).Count(&count).Error
	return count, err
}

func (r *roomPostgreSQL) DetachAllStudents(ctx context.Context, roomID uint) error {
	return r.db.WithContext(ctx).
		Model(&models.Student{}).
		Where("room_id = ?", roomID).
		Update("room_id", nil).Error
}

func (r *roomPostgreSQL) Roster(ctx context.Context, roomID uint, filters repositories.RosterFilters) ([]*models.Student, repositories.RosterCounts, error) {
	var counts repositories.RosterCounts

	// Partition totals run as their own queries so the numbers do not
	// depend on the page being requested.
	linked := r.db.WithContext(ctx).Model(&models.Student{}).Where("room_id = ?", roomID)
	unlinked := r.db.WithContext(ctx).Model(&models.Student{}).
		Where("room_id IS NULL AND email_verified_at IS NOT NULL")
	if filters.Search != "" {
		linked = applyStudentSearch(linked, filters.Search)
		unlinked = applyStudentSearch(unlinked, filters.Search)
	}
	if err := linked.Count(&counts.TotalLinked).Error; err != nil {
		return nil, counts, err
	}
	if err := unlinked.Count(&counts.TotalUnlinked).Error; err != nil {
		return nil, counts, err
	}

	query := r.db.WithContext(ctx).Model(&models.Student{}).
		Where("room_id = ? OR (room_id IS NULL AND email_verified_at IS NOT NULL)", roomID)
	if filters.Search != "" {
		query = applyStudentSearch(query, filters.Search)
	}
	query = query.Order("name ASC")
	if filters.Limit > 0 {
		query = query.Offset(filters.Offset).Limit(filters.Limit)
	}

	var students []*models.Student
	if err := query.Find(&students).Error; err != nil {
		return nil, counts, err
	}
	return students, counts, nil
}

func (r *roomPostgreSQL) CodExists(ctx context.Context, cod string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Room{}).Where("cod = ?", cod).Count(&count).Error
	return count > 0, err
}
