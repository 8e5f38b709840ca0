package models

import (
	"time"

	"github.com/google/uuid"
)

// UserStatus is the lifecycle status of a registered user.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusSuspended UserStatus = "suspended"
)

// TaskStatus is the workflow status of a task. The set is closed; code
// that branches on status switches over every value.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
	// TaskStatusCancelled is reachable from PENDING or PROCESSING by an
	// external cancellation action. No worker code performs this
	// transition yet; the state is reserved.
	TaskStatusCancelled TaskStatus = "CANCELLED"
)

// Valid reports whether s is one of the known task statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal status.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	case TaskStatusPending, TaskStatusProcessing:
		return false
	}
	return false
}

// User mirrors the users table.
type User struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	Email          string     `db:"email" json:"email"`
	FullName       *string    `db:"full_name" json:"full_name,omitempty"`
	HashedPassword string     `db:"hashed_password" json:"-"`
	Status         UserStatus `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Task mirrors the tasks table. Title and Description are immutable after
// creation; Status, ResultPath and CompletedAt are owned by the worker
// lifecycle, except for explicit result-content updates which touch
// ResultPath only.
type Task struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Description *string    `db:"description" json:"description,omitempty"`
	Status      TaskStatus `db:"status" json:"status"`
	ResultPath  *string    `db:"result_path" json:"result_path"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at"`
	OwnerID     uuid.UUID  `db:"owner_id" json:"owner_id"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}
