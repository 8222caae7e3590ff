package models

import "time"

// ===== RESPONSE ENVELOPES =====

type ErrorResponse struct {
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ===== STUDENT DTOs =====

// StudentSummary is the admin list row shape.
type StudentSummary struct {
	ID              uint       `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Cod             string     `json:"cod"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	PlatformAccess  bool       `json:"platform_access"`
	RoomID          *uint      `json:"room_id"`
	CreatedAt       time.Time  `json:"created_at"`
}

// StudentProfile is the payload the student surface exposes about the
// authenticated student. Never carries credential material.
type StudentProfile struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Cod   string `json:"cod"`
}

func NewStudentSummary(s *Student) StudentSummary {
	return StudentSummary{
		ID:              s.ID,
		Name:            s.Name,
		Email:           s.Email,
		Cod:             s.Cod,
		EmailVerifiedAt: s.EmailVerifiedAt,
		PlatformAccess:  s.PlatformAccess,
		RoomID:          s.RoomID,
		CreatedAt:       s.CreatedAt,
	}
}

func NewStudentProfile(s *Student) StudentProfile {
	return StudentProfile{
		ID:    s.ID,
		Name:  s.Name,
		Email: s.Email,
		Cod:   s.Cod,
	}
}

// ===== ROOM DTOs =====

type RoomSummary struct {
	ID           uint      `json:"id"`
	Name         string    `json:"name"`
	Cod          string    `json:"cod"`
	StudentCount int64     `json:"student_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// RosterStudent is a roster row with the linked flag the room edit view
// needs to tell members from candidates.
type RosterStudent struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Cod      string `json:"cod"`
	IsLinked bool   `json:"is_linked"`
}
