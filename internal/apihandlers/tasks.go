package apihandlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"jozvesaz/internal/app"
	"jozvesaz/internal/models"
	"jozvesaz/internal/storagepath"
	"jozvesaz/internal/store"
)

type APIHandler struct {
	App *app.App
}

func NewAPIHandler(appInstance *app.App) *APIHandler {
	return &APIHandler{App: appInstance}
}

// TaskRead is the task representation returned by the API.
type TaskRead struct {
	ID          uuid.UUID         `json:"id"`
	Title       string            `json:"title"`
	Description *string           `json:"description"`
	Status      models.TaskStatus `json:"status"`
	OwnerID     uuid.UUID         `json:"owner_id"`
	ResultPath  *string           `json:"result_path"`
	CompletedAt *time.Time        `json:"completed_at"`
}

func taskRead(t *models.Task) TaskRead {
	return TaskRead{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		OwnerID:     t.OwnerID,
		ResultPath:  t.ResultPath,
		CompletedAt: t.CompletedAt,
	}
}

type taskResultUpdate struct {
	Content string `json:"content"`
}

type taskResultResponse struct {
	ResultPath string `json:"result_path"`
}

// CreateTaskHandler accepts a multipart upload and records a new task.
//
// Ordering is load-bearing here: the upload is persisted first, then the
// task row is inserted and the job enqueued inside one store transaction.
// If the enqueue fails nothing commits and the uploaded file is removed, so
// there is never a task without a dispatched job nor a dispatched job
// naming an uncommitted task.
func (h *APIHandler) CreateTaskHandler(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		Unauthorized(c, "Not authenticated")
		return
	}

	title := c.PostForm("title")
	if title == "" {
		BadRequest(c, "title is required")
		return
	}
	var description *string
	if d := c.PostForm("description"); d != "" {
		description = &d
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "file is required")
		return
	}

	root := h.App.Config.Storage.Root
	uploadPath := storagepath.UploadDestination(root, fileHeader.Filename)
	if err := os.MkdirAll(filepath.Dir(uploadPath), 0o755); err != nil {
		log.WithError(err).Error("failed to create uploads directory")
		Internal(c, "Unable to store upload")
		return
	}
	if err := c.SaveUploadedFile(fileHeader, uploadPath); err != nil {
		log.WithError(err).Error("failed to persist upload")
		Internal(c, "Unable to store upload")
		return
	}

	task := &models.Task{
		Title:       title,
		Description: description,
		OwnerID:     user.ID,
	}
	err = h.App.TaskStore.CreateTask(c.Request.Context(), task, func(ctx context.Context) error {
		return h.App.JobClient.EnqueueTranscription(ctx, task.ID, uploadPath)
	})
	if err != nil {
		// The transaction rolled back; the upload must not outlive it.
		if rmErr := os.Remove(uploadPath); rmErr != nil && !os.IsNotExist(rmErr) {
			log.WithError(rmErr).Warn("failed to remove orphaned upload")
		}
		log.WithError(err).Error("task creation failed")
		Internal(c, "Unable to create task")
		return
	}

	c.JSON(http.StatusAccepted, taskRead(task))
}

// ListTasksHandler returns the caller's tasks, newest first.
func (h *APIHandler) ListTasksHandler(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		Unauthorized(c, "Not authenticated")
		return
	}

	tasks, err := h.App.TaskStore.ListOwnedTasks(c.Request.Context(), user.ID)
	if err != nil {
		log.WithError(err).Error("failed to list tasks")
		Internal(c, "Unable to list tasks")
		return
	}

	out := make([]TaskRead, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskRead(t))
	}
	c.JSON(http.StatusOK, out)
}

// getOwnedTask parses the id param and loads the task scoped to the
// caller. It writes the response on failure and returns nil.
func (h *APIHandler) getOwnedTask(c *gin.Context) *models.Task {
	user, ok := CurrentUser(c)
	if !ok {
		Unauthorized(c, "Not authenticated")
		return nil
	}

	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		NotFound(c, "Task not found")
		return nil
	}

	task, err := h.App.TaskStore.GetOwnedTask(c.Request.Context(), taskID, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, "Task not found")
			return nil
		}
		log.WithError(err).Error("failed to load task")
		Internal(c, "Unable to load task")
		return nil
	}
	return task
}

// GetTaskHandler returns a single task owned by the caller.
func (h *APIHandler) GetTaskHandler(c *gin.Context) {
	task := h.getOwnedTask(c)
	if task == nil {
		return
	}
	c.JSON(http.StatusOK, taskRead(task))
}

// GetTaskResultHandler streams the stored text result. Candidates are
// tried in resolver order; a candidate that exists but cannot be read is an
// internal error, distinct from no result at all.
func (h *APIHandler) GetTaskResultHandler(c *gin.Context) {
	task := h.getOwnedTask(c)
	if task == nil {
		return
	}

	stored := ""
	if task.ResultPath != nil {
		stored = *task.ResultPath
	}
	for _, candidate := range storagepath.ResultCandidates(h.App.Config.Storage.Root, task.ID, stored) {
		content, err := os.ReadFile(candidate)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			log.WithError(err).WithField("path", candidate).Error("failed to read task result")
			Internal(c, "Unable to read task result")
			return
		}
		c.Data(http.StatusOK, "text/plain; charset=utf-8", content)
		return
	}

	NotFound(c, "Task result not found")
}

// UpdateTaskResultHandler overwrites the task's result content. The write
// goes to the resolved stored path when it is contained under the storage
// root, otherwise to the default convention path. Status is untouched;
// this exists so a completed transcription can be corrected by hand.
func (h *APIHandler) UpdateTaskResultHandler(c *gin.Context) {
	task := h.getOwnedTask(c)
	if task == nil {
		return
	}

	var payload taskResultUpdate
	if err := c.ShouldBindJSON(&payload); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	root := h.App.Config.Storage.Root
	stored := ""
	if task.ResultPath != nil {
		stored = *task.ResultPath
	}
	destination, ok := storagepath.ResolveLocalResult(root, stored)
	if !ok {
		destination = storagepath.DefaultResultPath(root, task.ID)
	}

	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		log.WithError(err).Error("failed to create results directory")
		Internal(c, "Unable to persist task result")
		return
	}
	if err := os.WriteFile(destination, []byte(payload.Content), 0o644); err != nil {
		log.WithError(err).WithField("path", destination).Error("failed to write task result")
		Internal(c, "Unable to persist task result")
		return
	}

	if err := h.App.TaskStore.SetTaskResultPath(c.Request.Context(), task.ID, destination); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, "Task not found")
			return
		}
		log.WithError(err).Error("failed to record result path")
		Internal(c, "Unable to persist task result")
		return
	}

	c.JSON(http.StatusOK, taskResultResponse{ResultPath: destination})
}
