package primary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"jozvesaz/internal/models"
	"jozvesaz/internal/store"
)

const taskColumns = `id, title, description, status, result_path, completed_at, owner_id, created_at, updated_at`

// scanTask scans a task row and normalizes completed_at to UTC. The
// normalization is explicit here in the deserialization path rather than
// hidden behind a driver hook.
func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Status, &t.ResultPath, &t.CompletedAt,
		&t.OwnerID, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if t.CompletedAt != nil {
		utc := t.CompletedAt.UTC()
		t.CompletedAt = &utc
	}
	return &t, nil
}

// CreateTask inserts the task and runs dispatch within the same database
// transaction. Commit happens only after dispatch succeeds, so a task row
// never exists without a queued job and a queued job never references an
// uncommitted row id (the id is assigned client-side and visible to
// dispatch before commit).
func (s *StoreImpl) CreateTask(ctx context.Context, task *models.Task, dispatch func(ctx context.Context) error) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create task tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.WithError(rbErr).Warn("rollback after failed task creation")
		}
	}()

	query := `
		INSERT INTO tasks (id, title, description, status, result_path, completed_at, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = tx.Exec(ctx, query,
		task.ID, task.Title, task.Description, task.Status, task.ResultPath, task.CompletedAt,
		task.OwnerID, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	if dispatch != nil {
		if err := dispatch(ctx); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create task tx: %w", err)
	}
	return nil
}

func (s *StoreImpl) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	task, err := scanTask(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return task, nil
}

// GetOwnedTask loads a task scoped to its owner. The ownership predicate is
// part of the query, so a foreign task and a missing task are the same
// ErrNotFound to the caller.
func (s *StoreImpl) GetOwnedTask(ctx context.Context, id, ownerID uuid.UUID) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND owner_id = $2`
	task, err := scanTask(s.db.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get owned task %s: %w", id, err)
	}
	return task, nil
}

func (s *StoreImpl) ListOwnedTasks(ctx context.Context, ownerID uuid.UUID) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list tasks for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	var result []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		result = append(result, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}
	return result, nil
}

// UpdateTaskStatus applies a status transition and its result fields as a
// single atomic update.
func (s *StoreImpl) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status models.TaskStatus, resultPath *string, completedAt *time.Time) error {
	query := `UPDATE tasks SET status = $1, result_path = $2, completed_at = $3, updated_at = $4 WHERE id = $5`
	cmdTag, err := s.db.Exec(ctx, query, status, resultPath, completedAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update status for task %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("task %s not found to update status: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *StoreImpl) SetTaskResultPath(ctx context.Context, id uuid.UUID, resultPath string) error {
	query := `UPDATE tasks SET result_path = $1, updated_at = $2 WHERE id = $3`
	cmdTag, err := s.db.Exec(ctx, query, resultPath, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set result path for task %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("task %s not found to set result path: %w", id, store.ErrNotFound)
	}
	return nil
}
