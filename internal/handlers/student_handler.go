package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/escolar/roster-service/internal/models"
	"github.com/escolar/roster-service/internal/services"
	"github.com/escolar/roster-service/internal/utils"
	"github.com/escolar/roster-service/internal/validator"
)

// StudentHandler serves the admin student-management endpoints.
type StudentHandler struct {
	BaseHandler
	service       services.StudentService
	importService services.ImportService
}

func NewStudentHandler(service services.StudentService, importService services.ImportService, logger utils.Logger) *StudentHandler {
	return &StudentHandler{
		BaseHandler:   NewBaseHandler(logger),
		service:       service,
		importService: importService,
	}
}

// ListStudents returns a paged, searchable student list.
func (h *StudentHandler) ListStudents(c *gin.Context) {
	h.LogRequest(c, "Listing students")

	page, size := parsePagination(c)
	resp, err := h.service.List(c.Request.Context(), c.Query("search"), page, size)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CreateStudent registers a single student and kicks off verification.
func (h *StudentHandler) CreateStudent(c *gin.Context) {
	h.LogRequest(c, "Creating student")

	var req validator.StudentCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	student, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.NewStudentSummary(student))
}

// UpdateStudent applies a partial admin edit.
func (h *StudentHandler) UpdateStudent(c *gin.Context) {
	h.LogRequest(c, "Updating student")

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req validator.StudentUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	student, err := h.service.Update(c.Request.Context(), id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewStudentSummary(student))
}

// DeleteStudent hard-deletes the student record.
func (h *StudentHandler) DeleteStudent(c *gin.Context) {
	h.LogRequest(c, "Deleting student")

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "student deleted"})
}

// ToggleAccess flips the student's platform access flag.
func (h *StudentHandler) ToggleAccess(c *gin.Context) {
	h.LogRequest(c, "Toggling platform access")

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	student, err := h.service.ToggleAccess(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewStudentSummary(student))
}

// ResendVerification re-issues the verification token and email.
func (h *StudentHandler) ResendVerification(c *gin.Context) {
	h.LogRequest(c, "Resending verification email")

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	if err := h.service.ResendVerification(c.Request.Context(), id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "verification email sent"})
}

// ResetPassword assigns the default password and forces rotation.
func (h *StudentHandler) ResetPassword(c *gin.Context) {
	h.LogRequest(c, "Resetting student password")

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "password reset; change required on next login"})
}

// ImportStudents accepts an xlsx upload (multipart field "file").
func (h *StudentHandler) ImportStudents(c *gin.Context) {
	h.LogRequest(c, "Importing students")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Missing file upload",
			Details: "send the spreadsheet as multipart field 'file'",
		})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Could not read upload",
		})
		return
	}
	defer f.Close()

	result, err := h.importService.ImportStudents(c.Request.Context(), f)
	if err != nil {
		var rowErrs services.ImportValidationErrors
		if errors.As(err, &rowErrs) {
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
				Error:   "import_validation_failed",
				Message: "No students were imported",
				Details: rowErrs,
			})
			return
		}
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// ImportTemplate serves the xlsx template download.
func (h *StudentHandler) ImportTemplate(c *gin.Context) {
	h.LogRequest(c, "Serving import template")

	data, err := h.importService.Template()
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="students_import_template.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// ===== ERROR HANDLING =====

func (h *StudentHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrs services.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "Validation failed",
			Details: validationErrs,
		})
	case errors.Is(err, services.ErrStudentNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Student not found",
		})
	case errors.Is(err, services.ErrDuplicateEmail):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "duplicate_email",
			Message: "Email already registered",
		})
	case errors.Is(err, services.ErrDuplicateCode):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "duplicate_code",
			Message: "Could not allocate a unique student code",
		})
	case errors.Is(err, services.ErrEmailNotVerified):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "email_not_verified",
			Message: "Student has not verified their email",
		})
	case errors.Is(err, services.ErrAlreadyVerified):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "already_verified",
			Message: "Student already verified their email",
		})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
