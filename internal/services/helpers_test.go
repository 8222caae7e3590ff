package services

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/escolar/roster-service/internal/cache"
	"github.com/escolar/roster-service/internal/events"
	"github.com/escolar/roster-service/internal/models"
	"github.com/escolar/roster-service/internal/repositories"
	"github.com/escolar/roster-service/internal/validator"
)

// ===== IN-MEMORY REPOSITORY =====

type fakeRepository struct {
	mu sync.Mutex

	students map[uint]*models.Student
	rooms    map[uint]*models.Room
	nextID   uint
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		students: make(map[uint]*models.Student),
		rooms:    make(map[uint]*models.Room),
	}
}

func (f *fakeRepository) Student() repositories.StudentRepository { return &fakeStudentRepo{f} }
func (f *fakeRepository) Room() repositories.RoomRepository       { return &fakeRoomRepo{f} }

func (f *fakeRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(f)
}

func (f *fakeRepository) Ping(ctx context.Context) error { return nil }
func (f *fakeRepository) Close() error                   { return nil }

func (f *fakeRepository) addStudent(s *models.Student) *models.Student {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s.ID = f.nextID
	f.students[s.ID] = s
	return s
}

func (f *fakeRepository) addRoom(r *models.Room) *models.Room {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	r.ID = f.nextID
	f.rooms[r.ID] = r
	return r
}

type fakeStudentRepo struct{ f *fakeRepository }

func (r *fakeStudentRepo) Create(ctx context.Context, student *models.Student) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, existing := range r.f.students {
		if existing.Email == student.Email || existing.Cod == student.Cod {
			return gorm.ErrDuplicatedKey
		}
	}
	r.f.nextID++
	student.ID = r.f.nextID
	r.f.students[student.ID] = student
	return nil
}

func (r *fakeStudentRepo) CreateBatch(ctx context.Context, students []*models.Student) error {
	for _, s := range students {
		if err := r.Create(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeStudentRepo) GetByID(ctx context.Context, id uint) (*models.Student, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	s, ok := r.f.students[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeStudentRepo) GetByEmail(ctx context.Context, email string) (*models.Student, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, s := range r.f.students {
		if s.Email == email {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeStudentRepo) Update(ctx context.Context, student *models.Student) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.students[student.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	for _, existing := range r.f.students {
		if existing.ID != student.ID && existing.Email == student.Email {
			return gorm.ErrDuplicatedKey
		}
	}
	cp := *student
	r.f.students[student.ID] = &cp
	return nil
}

func (r *fakeStudentRepo) Delete(ctx context.Context, id uint) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.students[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.f.students, id)
	return nil
}

func (r *fakeStudentRepo) List(ctx context.Context, filters repositories.StudentFilters) ([]*models.Student, int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.Student
	for _, s := range r.f.students {
		if filters.Search != "" &&
			!strings.Contains(s.Name, filters.Search) &&
			!strings.Contains(s.Email, filters.Search) &&
			!strings.Contains(s.Cod, filters.Search) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func (r *fakeStudentRepo) CodExists(ctx context.Context, cod string) (bool, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, s := range r.f.students {
		if s.Cod == cod {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeStudentRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, s := range r.f.students {
		if s.Email == email {
			return true, nil
		}
	}
	return false, nil
}

type fakeRoomRepo struct{ f *fakeRepository }

func (r *fakeRoomRepo) Create(ctx context.Context, room *models.Room) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, existing := range r.f.rooms {
		if existing.Name == room.Name || existing.Cod == room.Cod {
			return gorm.ErrDuplicatedKey
		}
	}
	r.f.nextID++
	room.ID = r.f.nextID
	r.f.rooms[room.ID] = room
	return nil
}

func (r *fakeRoomRepo) GetByID(ctx context.Context, id uint) (*models.Room, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	room, ok := r.f.rooms[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *room
	return &cp, nil
}

func (r *fakeRoomRepo) Update(ctx context.Context, room *models.Room) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.rooms[room.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	for _, existing := range r.f.rooms {
		if existing.ID != room.ID && existing.Name == room.Name {
			return gorm.ErrDuplicatedKey
		}
	}
	cp := *room
	r.f.rooms[room.ID] = &cp
	return nil
}

func (r *fakeRoomRepo) Delete(ctx context.Context, id uint) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.rooms[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.f.rooms, id)
	return nil
}

func (r *fakeRoomRepo) List(ctx context.Context, filters repositories.RoomFilters) ([]*models.Room, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.Room
	for _, room := range r.f.rooms {
		if filters.Search != "" &&
			!strings.Contains(room.Name, filters.Search) &&
			!strings.Contains(room.Cod, filters.Search) {
			continue
		}
		cp := *room
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeRoomRepo) StudentCount(ctx context.Context, roomID uint) (int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var n int64
	for _, s := range r.f.students {
		if s.RoomID != nil && *s.RoomID == roomID {
			n++
		}
	}
	return n, nil
}

func (r *fakeRoomRepo) DetachAllStudents(ctx context.Context, roomID uint) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, s := range r.f.students {
		if s.RoomID != nil && *s.RoomID == roomID {
			s.RoomID = nil
		}
	}
	return nil
}

func (r *fakeRoomRepo) Roster(ctx context.Context, roomID uint, filters repositories.RosterFilters) ([]*models.Student, repositories.RosterCounts, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.Student
	var counts repositories.RosterCounts
	for _, s := range r.f.students {
		linked := s.RoomID != nil && *s.RoomID == roomID
		candidate := s.RoomID == nil && s.EmailVerifiedAt != nil
		if !linked && !candidate {
			continue
		}
		if filters.Search != "" &&
			!strings.Contains(s.Name, filters.Search) &&
			!strings.Contains(s.Email, filters.Search) &&
			!strings.Contains(s.Cod, filters.Search) {
			continue
		}
		if linked {
			counts.TotalLinked++
		} else {
			counts.TotalUnlinked++
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, counts, nil
}

func (r *fakeRoomRepo) CodExists(ctx context.Context, cod string) (bool, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, room := range r.f.rooms {
		if room.Cod == cod {
			return true, nil
		}
	}
	return false, nil
}

// ===== MAIL CAPTURE =====

type fakeMailer struct {
	mu             sync.Mutex
	verifications  []string
	resets         []string
	verifyLinks    []string
	failNextVerify bool
}

func (m *fakeMailer) SendVerification(ctx context.Context, student *models.Student, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNextVerify {
		m.failNextVerify = false
		return context.DeadlineExceeded
	}
	m.verifications = append(m.verifications, student.Email)
	m.verifyLinks = append(m.verifyLinks, link)
	return nil
}

func (m *fakeMailer) SendPasswordReset(ctx context.Context, student *models.Student, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, student.Email)
	return nil
}

func (m *fakeMailer) verificationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.verifications)
}

func (m *fakeMailer) resetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.resets)
}

// ===== SHARED FIXTURE =====

type testEnv struct {
	repo      *fakeRepository
	tokens    *cache.TokenStore
	sessions  *cache.SessionStore
	mr        *miniredis.Miniredis
	mail      *fakeMailer
	publisher *events.MockEventPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return &testEnv{
		repo:      newFakeRepository(),
		tokens:    cache.NewTokenStore(client),
		sessions:  cache.NewSessionStore(client, 0),
		mr:        mr,
		mail:      &fakeMailer{},
		publisher: events.NewMockEventPublisher(testLogger()),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func testValidator() *validator.RequestValidator {
	return validator.NewRequestValidator()
}
