package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/escolar/roster-service/internal/events"
	"github.com/escolar/roster-service/internal/models"
	"github.com/escolar/roster-service/internal/repositories"
	"github.com/escolar/roster-service/internal/validator"
)

// ===== RESPONSE DTOs =====

type RoomListResponse struct {
	Rooms []models.RoomSummary `json:"rooms"`
}

type RoomRosterResponse struct {
	Students []models.RosterStudent    `json:"students"`
	Counts   repositories.RosterCounts `json:"counts"`
	Page     int                       `json:"page"`
	Size     int                       `json:"size"`
}

// ===== SERVICE INTERFACE =====

type RosterService interface {
	CreateRoom(ctx context.Context, req *validator.RoomCreateRequest) (*models.Room, error)
	GetRoom(ctx context.Context, id uint) (*models.Room, error)
	UpdateRoom(ctx context.Context, id uint, req *validator.RoomUpdateRequest) (*models.Room, error)

	// DeleteRoom detaches every member and removes the room in one
	// transaction; no student ever references a deleted room.
	DeleteRoom(ctx context.Context, id uint) error

	ListRooms(ctx context.Context, search string) (*RoomListResponse, error)

	// AddStudent places the student in the room. A student already in this
	// room fails with ErrAlreadyInRoom; a student in another room is moved.
	AddStudent(ctx context.Context, roomID, studentID uint) error

	// RemoveStudent detaches the student; ErrNotAMember when the student
	// is not in this room.
	RemoveStudent(ctx context.Context, roomID, studentID uint) error

	// RoomRoster pages members plus unassigned verified students.
	RoomRoster(ctx context.Context, roomID uint, search string, page, size int) (*RoomRosterResponse, error)
}

// ===== SERVICE IMPLEMENTATION =====

type rosterService struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	validator *validator.RequestValidator
	logger    *slog.Logger
}

func NewRosterService(repo repositories.Repository, publisher events.EventPublisher, v *validator.RequestValidator, logger *slog.Logger) RosterService {
	return &rosterService{
		repo:      repo,
		publisher: publisher,
		validator: v,
		logger:    logger,
	}
}

func (s *rosterService) CreateRoom(ctx context.Context, req *validator.RoomCreateRequest) (*models.Room, error) {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	var room *models.Room
	for attempt := 0; ; attempt++ {
		cod, err := GenerateCode(ctx, s.repo.Room().CodExists)
		if err != nil {
			return nil, fmt.Errorf("failed to generate room code: %w", err)
		}

		room = &models.Room{Name: req.Name, Cod: cod}

		err = s.repo.Room().Create(ctx, room)
		if err == nil {
			break
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			rooms, listErr := s.repo.Room().List(ctx, repositories.RoomFilters{Search: req.Name})
			if listErr == nil {
				for _, r := range rooms {
					if r.Name == req.Name {
						return nil, ErrDuplicateRoomName
					}
				}
			}
			if attempt < codeInsertRetries {
				continue
			}
			return nil, ErrDuplicateCode
		}
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	s.logger.Info("room created", "room_id", room.ID, "cod", room.Cod)
	return room, nil
}

func (s *rosterService) GetRoom(ctx context.Context, id uint) (*models.Room, error) {
	room, err := s.repo.Room().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

func (s *rosterService) UpdateRoom(ctx context.Context, id uint, req *validator.RoomUpdateRequest) (*models.Room, error) {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	room, err := s.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		room.Name = *req.Name
	}

	if err := s.repo.Room().Update(ctx, room); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateRoomName
		}
		return nil, fmt.Errorf("failed to update room: %w", err)
	}

	return room, nil
}

func (s *rosterService) DeleteRoom(ctx context.Context, id uint) error {
	room, err := s.GetRoom(ctx, id)
	if err != nil {
		return err
	}

	detached, err := s.repo.Room().StudentCount(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count members: %w", err)
	}

	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if err := tx.Room().DetachAllStudents(ctx, id); err != nil {
			return err
		}
		return tx.Room().Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}

	if err := s.publisher.Publish(ctx, events.NewEvent(events.EventRoomDeleted, events.RoomEventPayload{
		RoomID:   room.ID,
		Name:     room.Name,
		Detached: detached,
	})); err != nil {
		s.logger.Error("failed to publish room.deleted", "room_id", id, "error", err)
	}

	s.logger.Info("room deleted", "room_id", id, "detached_students", detached)
	return nil
}

func (s *rosterService) ListRooms(ctx context.Context, search string) (*RoomListResponse, error) {
	rooms, err := s.repo.Room().List(ctx, repositories.RoomFilters{Search: search})
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	summaries := make([]models.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		count, err := s.repo.Room().StudentCount(ctx, room.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count members: %w", err)
		}
		summaries = append(summaries, models.RoomSummary{
			ID:           room.ID,
			Name:         room.Name,
			Cod:          room.Cod,
			StudentCount: count,
			CreatedAt:    room.CreatedAt,
		})
	}

	return &RoomListResponse{Rooms: summaries}, nil
}

func (s *rosterService) AddStudent(ctx context.Context, roomID, studentID uint) error {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return err
	}

	student, err := s.repo.Student().GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStudentNotFound
		}
		return fmt.Errorf("failed to load student: %w", err)
	}

	if student.RoomID != nil && *student.RoomID == roomID {
		return ErrAlreadyInRoom
	}

	student.RoomID = &roomID
	if err := s.repo.Student().Update(ctx, student); err != nil {
		return fmt.Errorf("failed to add student to room: %w", err)
	}

	s.logger.Info("student added to room", "room_id", roomID, "student_id", studentID)
	return nil
}

func (s *rosterService) RemoveStudent(ctx context.Context, roomID, studentID uint) error {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return err
	}

	student, err := s.repo.Student().GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStudentNotFound
		}
		return fmt.Errorf("failed to load student: %w", err)
	}

	if student.RoomID == nil || *student.RoomID != roomID {
		return ErrNotAMember
	}

	student.RoomID = nil
	if err := s.repo.Student().Update(ctx, student); err != nil {
		return fmt.Errorf("failed to remove student from room: %w", err)
	}

	s.logger.Info("student removed from room", "room_id", roomID, "student_id", studentID)
	return nil
}

func (s *rosterService) RoomRoster(ctx context.Context, roomID uint, search string, page, size int) (*RoomRosterResponse, error) {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	students, counts, err := s.repo.Room().Roster(ctx, roomID, repositories.RosterFilters{
		Search: search,
		Limit:  size,
		Offset: (page - 1) * size,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}

	rows := make([]models.RosterStudent, 0, len(students))
	for _, st := range students {
		rows = append(rows, models.RosterStudent{
			ID:       st.ID,
			Name:     st.Name,
			Email:    st.Email,
			Cod:      st.Cod,
			IsLinked: st.RoomID != nil && *st.RoomID == roomID,
		})
	}

	return &RoomRosterResponse{
		Students: rows,
		Counts:   counts,
		Page:     page,
		Size:     size,
	}, nil
}
