package models

import (
	"time"
)

// Student is the roster record for a self-service student account.
//
// Lifecycle: created by an admin (single or bulk import) with no password,
// no verification timestamp and platform_access=false. Email verification
// sets EmailVerifiedAt and PlatformAccess; the password-creation step sets
// Password. Admin resets set a default password with MustChangePassword so
// the student rotates it on first login.
type Student struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	Name  string `json:"name" gorm:"not null;size:255"`
	Email string `json:"email" gorm:"uniqueIndex;not null;size:255"`

	// Cod is the human-readable unique student code, format AAA-123.
	Cod string `json:"cod" gorm:"column:cod;uniqueIndex;not null;size:7"`

	// Password holds the bcrypt hash. Nil until the student completes the
	// password-creation step (or an admin assigns a default).
	Password           *string    `json:"-" gorm:"size:255"`
	MustChangePassword bool       `json:"must_change_password" gorm:"default:false"`
	PasswordChangedAt  *time.Time `json:"password_changed_at"`

	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	PlatformAccess  bool       `json:"platform_access" gorm:"default:false"`

	// RoomID is the at-most-one room this student belongs to.
	RoomID *uint `json:"room_id" gorm:"index"`
	Room   *Room `json:"room,omitempty" gorm:"foreignKey:RoomID"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Student) TableName() string {
	return "students"
}

// HasVerifiedEmail reports whether the verification transition happened.
func (s *Student) HasVerifiedEmail() bool {
	return s.EmailVerifiedAt != nil
}

// HasPassword reports whether the password-creation step completed.
func (s *Student) HasPassword() bool {
	return s.Password != nil && *s.Password != ""
}

// HasPlatformAccess is the student-facing gate: the access flag is only
// meaningful on a verified account.
func (s *Student) HasPlatformAccess() bool {
	return s.PlatformAccess && s.HasVerifiedEmail()
}
