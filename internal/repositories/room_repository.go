package repositories

import (
	"context"

	"github.com/escolar/roster-service/internal/models"
)

// RoomRepository is the persistence surface for rooms and the room-student
// relation.
type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	GetByID(ctx context.Context, id uint) (*models.Room, error)
	Update(ctx context.Context, room *models.Room) error
	Delete(ctx context.Context, id uint) error

	List(ctx context.Context, filters RoomFilters) ([]*models.Room, error)
	StudentCount(ctx context.Context, roomID uint) (int64, error)

	// DetachAllStudents nulls the room reference of every member. Callers
	// run it in the same transaction as Delete so no student ever points
	// at a deleted room.
	DetachAllStudents(ctx context.Context, roomID uint) error

	// Roster returns the page of students relevant to a room's edit view:
	// current members plus unassigned students with a verified email,
	// ordered by name. Counts are computed with separate queries.
	Roster(ctx context.Context, roomID uint, filters RosterFilters) ([]*models.Student, RosterCounts, error)

	CodExists(ctx context.Context, cod string) (bool, error)
}
