package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/escolar/roster-service/internal/cache"
	"github.com/escolar/roster-service/internal/events"
	"github.com/escolar/roster-service/internal/mailer"
	"github.com/escolar/roster-service/internal/models"
	"github.com/escolar/roster-service/internal/repositories"
	"github.com/escolar/roster-service/internal/validator"
)

// ===== RESPONSE DTOs =====

type ImportResult struct {
	Imported int                     `json:"imported"`
	Students []models.StudentSummary `json:"students"`
}

// ImportRowError is a validation failure scoped to one spreadsheet row
// (1-based, header included, so the first data row is row 2).
type ImportRowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ImportValidationErrors aborts the whole import; no row is written when
// any row is invalid.
type ImportValidationErrors []ImportRowError

func (ie ImportValidationErrors) Error() string {
	return fmt.Sprintf("import validation failed: %d row errors", len(ie))
}

// ===== SERVICE INTERFACE =====

type ImportService interface {
	// ImportStudents reads an xlsx upload and registers every row, or
	// nothing: validation runs over the full sheet before the first write
	// and all inserts share one transaction.
	ImportStudents(ctx context.Context, r io.Reader) (*ImportResult, error)

	// Template produces the xlsx the admin downloads to fill in.
	Template() ([]byte, error)
}

// ===== SERVICE IMPLEMENTATION =====

type importService struct {
	repo      repositories.Repository
	tokens    *cache.TokenStore
	mail      mailer.Mailer
	publisher events.EventPublisher
	validator *validator.RequestValidator
	logger    *slog.Logger
	baseURL   string
}

func NewImportService(repo repositories.Repository, tokens *cache.TokenStore, mail mailer.Mailer, publisher events.EventPublisher, v *validator.RequestValidator, logger *slog.Logger, baseURL string) ImportService {
	return &importService{
		repo:      repo,
		tokens:    tokens,
		mail:      mail,
		publisher: publisher,
		validator: v,
		logger:    logger,
		baseURL:   baseURL,
	}
}

type importRow struct {
	rowNum int
	name   string
	email  string
}

func (s *importService) ImportStudents(ctx context.Context, r io.Reader) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("spreadsheet has no sheets")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	parsed, rowErrs := s.parseRows(ctx, rows)
	if len(rowErrs) > 0 {
		return nil, rowErrs
	}
	if len(parsed) == 0 {
		return &ImportResult{Students: []models.StudentSummary{}}, nil
	}

	// Imported accounts start with the default password and a forced
	// rotation, mirroring the admin reset flow.
	hash, err := bcrypt.GenerateFromPassword([]byte(defaultInitialPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash default password: %w", err)
	}
	defaultHash := string(hash)

	students := make([]*models.Student, 0, len(parsed))
	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		for _, row := range parsed {
			cod, err := GenerateCode(ctx, tx.Student().CodExists)
			if err != nil {
				return fmt.Errorf("failed to generate code for row %d: %w", row.rowNum, err)
			}
			h := defaultHash
			students = append(students, &models.Student{
				Name:               row.name,
				Email:              row.email,
				Cod:                cod,
				Password:           &h,
				MustChangePassword: true,
			})
		}
		return tx.Student().CreateBatch(ctx, students)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to import students: %w", err)
	}

	summaries := make([]models.StudentSummary, 0, len(students))
	for _, student := range students {
		summaries = append(summaries, models.NewStudentSummary(student))

		s.issueVerification(ctx, student)

		if err := s.publisher.Publish(ctx, events.NewEvent(events.EventStudentCreated, events.StudentEventPayload{
			StudentID: student.ID,
			Email:     student.Email,
			Cod:       student.Cod,
		})); err != nil {
			s.logger.Error("failed to publish student.created", "student_id", student.ID, "error", err)
		}
	}

	s.logger.Info("students imported", "count", len(students))
	return &ImportResult{Imported: len(students), Students: summaries}, nil
}

// parseRows validates the full sheet and returns either every data row or
// every error; never a mix.
func (s *importService) parseRows(ctx context.Context, rows [][]string) ([]importRow, ImportValidationErrors) {
	var parsed []importRow
	var rowErrs ImportValidationErrors
	seen := make(map[string]int)

	for i, cells := range rows {
		if i == 0 {
			continue // header
		}
		rowNum := i + 1

		var name, email string
		if len(cells) > 0 {
			name = strings.TrimSpace(cells[0])
		}
		if len(cells) > 1 {
			email = strings.TrimSpace(strings.ToLower(cells[1]))
		}
		if name == "" && email == "" {
			continue // fully blank row
		}

		req := &validator.StudentCreateRequest{Name: name, Email: email}
		for _, ve := range s.validator.Validate(req) {
			rowErrs = append(rowErrs, ImportRowError{
				Row:     rowNum,
				Field:   strings.ToLower(ve.Field),
				Message: ve.Message,
			})
		}
		if email == "" {
			parsed = append(parsed, importRow{rowNum: rowNum, name: name, email: email})
			continue
		}

		if prev, dup := seen[email]; dup {
			rowErrs = append(rowErrs, ImportRowError{
				Row:     rowNum,
				Field:   "email",
				Message: fmt.Sprintf("duplicates row %d", prev),
			})
		} else {
			seen[email] = rowNum

			taken, err := s.repo.Student().EmailExists(ctx, email)
			if err != nil {
				rowErrs = append(rowErrs, ImportRowError{
					Row:     rowNum,
					Field:   "email",
					Message: "could not check email uniqueness",
				})
			} else if taken {
				rowErrs = append(rowErrs, ImportRowError{
					Row:     rowNum,
					Field:   "email",
					Message: "email already registered",
				})
			}
		}

		parsed = append(parsed, importRow{rowNum: rowNum, name: name, email: email})
	}

	if len(rowErrs) > 0 {
		return nil, rowErrs
	}
	return parsed, nil
}

func (s *importService) Template() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetCellValue(sheet, "A1", "Name"); err != nil {
		return nil, fmt.Errorf("failed to build template: %w", err)
	}
	if err := f.SetCellValue(sheet, "B1", "Email"); err != nil {
		return nil, fmt.Errorf("failed to build template: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write template: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *importService) issueVerification(ctx context.Context, student *models.Student) {
	token, err := cache.NewToken()
	if err != nil {
		s.logger.Error("failed to generate verification token", "student_id", student.ID, "error", err)
		return
	}
	if err := s.tokens.Put(ctx, cache.NamespaceVerification, token, student.ID, cache.VerificationTTL); err != nil {
		s.logger.Error("failed to store verification token", "student_id", student.ID, "error", err)
		return
	}
	link := fmt.Sprintf("%s/verify-email/%s", s.baseURL, token)
	if err := s.mail.SendVerification(ctx, student, link); err != nil {
		s.logger.Error("failed to send verification email", "student_id", student.ID, "error", err)
	}
}
