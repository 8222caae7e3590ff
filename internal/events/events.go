package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope published for every roster lifecycle transition.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Lifecycle event types.
const (
	EventStudentCreated         = "student.created"
	EventStudentVerified        = "student.verified"
	EventStudentPasswordChanged = "student.password_changed"
	EventStudentDeleted         = "student.deleted"
	EventRoomDeleted            = "room.deleted"
)

const (
	eventSource  = "roster-service"
	eventVersion = "1.0"
)

// NewEvent fills the envelope fields around a payload.
func NewEvent(eventType string, data interface{}) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    eventSource,
		Version:   eventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventPublisher delivers lifecycle events to downstream consumers
// (notification service, audit). Publishing is best-effort from the
// caller's point of view; failures are logged, never retried inline.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// ===== PAYLOADS =====

type StudentEventPayload struct {
	StudentID uint   `json:"student_id"`
	Email     string `json:"email"`
	Cod       string `json:"cod,omitempty"`
}

type RoomEventPayload struct {
	RoomID   uint   `json:"room_id"`
	Name     string `json:"name"`
	Detached int64  `json:"detached_students"`
}
