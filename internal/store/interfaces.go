package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"jozvesaz/internal/models"
)

// --- Job Client ---

// JobClient hands tasks off to the asynchronous processing queue. Enqueue
// failures must surface to the caller so the surrounding transaction can
// roll back; a task is never considered created unless its job is durably
// queued.
type JobClient interface {
	EnqueueTranscription(ctx context.Context, taskID uuid.UUID, filePath string) error
	Close() error
}

// --- User Store ---

type UserStore interface {
	// CreateUser persists a new user. A duplicate email yields
	// models.ErrEmailTaken.
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// --- Task Store ---

// TaskStore is the single source of truth for task records and their status.
type TaskStore interface {
	// CreateTask inserts the task and invokes dispatch inside the same
	// transaction, committing only when dispatch succeeds. If dispatch
	// fails the insert is rolled back and its error is returned.
	CreateTask(ctx context.Context, task *models.Task, dispatch func(ctx context.Context) error) error

	// GetTask loads a task regardless of owner. Worker-side use only.
	GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error)

	// GetOwnedTask loads a task only when ownerID matches. A foreign or
	// absent task is models.ErrNotFound either way, so callers cannot
	// distinguish the two.
	GetOwnedTask(ctx context.Context, id, ownerID uuid.UUID) (*models.Task, error)

	// ListOwnedTasks returns the owner's tasks, newest created first.
	ListOwnedTasks(ctx context.Context, ownerID uuid.UUID) ([]*models.Task, error)

	// UpdateTaskStatus applies a status transition together with its
	// result fields as one atomic update. models.ErrNotFound when the row
	// is gone.
	UpdateTaskStatus(ctx context.Context, id uuid.UUID, status models.TaskStatus, resultPath *string, completedAt *time.Time) error

	// SetTaskResultPath records the result location without touching
	// status, for manual result-content updates.
	SetTaskResultPath(ctx context.Context, id uuid.UUID, resultPath string) error

	Ping(ctx context.Context) error
}
