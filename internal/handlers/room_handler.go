package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/escolar/roster-service/internal/services"
	"github.com/escolar/roster-service/internal/utils"
	"github.com/escolar/roster-service/internal/validator"
)

// RoomHandler serves the admin room-management endpoints.
type RoomHandler struct {
	BaseHandler
	service services.RosterService
}

func NewRoomHandler(service services.RosterService, logger utils.Logger) *RoomHandler {
	return &RoomHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

func (h *RoomHandler) ListRooms(c *gin.Context) {
	h.LogRequest(c, "Listing rooms")

	resp, err := h.service.ListRooms(c.Request.Context(), c.Query("search"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	h.LogRequest(c, "Creating room")

	var req validator.RoomCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	room, err := h.service.CreateRoom(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, room)
}

func (h *RoomHandler) UpdateRoom(c *gin.Context) {
	h.LogRequest(c, "Updating room")

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req validator.RoomUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	room, err := h.service.UpdateRoom(c.Request.Context(), id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	h.LogRequest(c, "Deleting room")

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	if err := h.service.DeleteRoom(c.Request.Context(), id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "room deleted"})
}

// RoomRoster pages members plus unassigned verified students.
func (h *RoomHandler) RoomRoster(c *gin.Context) {
	h.LogRequest(c, "Loading room roster")

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	page, size := parsePagination(c)
	resp, err := h.service.RoomRoster(c.Request.Context(), id, c.Query("search"), page, size)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *RoomHandler) AddStudent(c *gin.Context) {
	h.LogRequest(c, "Adding student to room")

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req validator.AddStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	if err := h.service.AddStudent(c.Request.Context(), id, req.StudentID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "student added to room"})
}

func (h *RoomHandler) RemoveStudent(c *gin.Context) {
	h.LogRequest(c, "Removing student from room")

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	studentID := h.parseIDParam(c, "student_id")
	if studentID == 0 {
		return
	}

	if err := h.service.RemoveStudent(c.Request.Context(), id, studentID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "student removed from room"})
}

// ===== ERROR HANDLING =====

func (h *RoomHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrs services.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "Validation failed",
			Details: validationErrs,
		})
	case errors.Is(err, services.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Room not found",
		})
	case errors.Is(err, services.ErrStudentNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Student not found",
		})
	case errors.Is(err, services.ErrDuplicateRoomName):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "duplicate_room_name",
			Message: "Room name already exists",
		})
	case errors.Is(err, services.ErrDuplicateCode):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "duplicate_code",
			Message: "Could not allocate a unique room code",
		})
	case errors.Is(err, services.ErrAlreadyInRoom):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "already_in_room",
			Message: "Student is already in this room",
		})
	case errors.Is(err, services.ErrNotAMember):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "not_a_member",
			Message: "Student is not a member of this room",
		})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
