package models

import (
	"time"
)

// Room groups students one-to-many. A room may only be deleted after every
// member has been detached; the roster service does the bulk detach inside
// the delete transaction.
type Room struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"uniqueIndex;not null;size:255"`

	// Cod is the generated unique room code, same AAA-123 format as
	// student codes.
	Cod string `json:"cod" gorm:"column:cod;uniqueIndex;not null;size:7"`

	Students []Student `json:"students,omitempty" gorm:"foreignKey:RoomID"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Room) TableName() string {
	return "rooms"
}
