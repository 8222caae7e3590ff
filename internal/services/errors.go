package services

import (
	"errors"

	"github.com/escolar/roster-service/internal/validator"
)

// Sentinel errors the handler layer maps to HTTP statuses with errors.Is.
var (
	ErrStudentNotFound   = errors.New("student not found")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicateCode     = errors.New("student code already exists")
	ErrRoomNotFound      = errors.New("room not found")
	ErrDuplicateRoomName = errors.New("room name already exists")

	// ErrInvalidOrExpiredToken covers absent, expired and consumed tokens
	// alike; the message never distinguishes them.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrTokenMismatch         = errors.New("token does not belong to this student")
	ErrEmailNotVerified      = errors.New("email not verified")
	ErrAlreadyVerified       = errors.New("email already verified")
	ErrPasswordAlreadySet    = errors.New("password already set")

	// ErrAuthenticationFailed is the single login failure: unknown email,
	// missing password and wrong password all surface identically.
	ErrAuthenticationFailed     = errors.New("invalid credentials")
	ErrIncorrectCurrentPassword = errors.New("current password is incorrect")

	ErrAlreadyInRoom = errors.New("student is already in this room")
	ErrNotAMember    = errors.New("student is not a member of this room")
)

// ValidationErrors re-exports the field-scoped validation error list so
// handlers can errors.As against the services package alone.
type ValidationErrors = validator.ValidationErrors

// ValidationError is a single field failure.
type ValidationError = validator.ValidationError
