package validator

// ===== ADMIN: STUDENTS =====

// StudentCreateRequest is the admin payload for registering a student.
type StudentCreateRequest struct {
	Name  string `json:"name" validate:"required,person_name"`
	Email string `json:"email" validate:"required,email,max=255"`
}

// StudentUpdateRequest carries partial updates; nil fields are untouched.
type StudentUpdateRequest struct {
	Name  *string `json:"name" validate:"omitempty,person_name"`
	Email *string `json:"email" validate:"omitempty,email,max=255"`
}

// ===== ADMIN: ROOMS =====

type RoomCreateRequest struct {
	Name string `json:"name" validate:"required,room_name"`
}

type RoomUpdateRequest struct {
	Name *string `json:"name" validate:"omitempty,room_name"`
}

type AddStudentRequest struct {
	StudentID uint `json:"student_id" validate:"required"`
}

// ===== STUDENT PORTAL =====

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// CreatePasswordRequest finishes the verification flow. The token is the
// rotated one handed out by the verify step, not the emailed one.
type CreatePasswordRequest struct {
	StudentID            uint   `json:"student_id" validate:"required"`
	Token                string `json:"token" validate:"required"`
	Password             string `json:"password" validate:"required,student_password"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token                string `json:"token" validate:"required"`
	Email                string `json:"email" validate:"required,email"`
	Password             string `json:"password" validate:"required,student_password"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

type ChangePasswordRequest struct {
	CurrentPassword      string `json:"current_password" validate:"required"`
	Password             string `json:"password" validate:"required,student_password"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}
