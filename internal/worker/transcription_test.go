package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jozvesaz/internal/models"
	"jozvesaz/internal/storagepath"
	"jozvesaz/internal/store"
	"jozvesaz/internal/tasks"
	"jozvesaz/internal/transcribe"
	"jozvesaz/internal/worker"
)

// statusUpdate records one UpdateTaskStatus call for assertions on
// transition ordering and field combinations.
type statusUpdate struct {
	id          uuid.UUID
	status      models.TaskStatus
	resultPath  *string
	completedAt *time.Time
}

type fakeTaskStore struct {
	mu             sync.Mutex
	tasks          map[uuid.UUID]*models.Task
	updates        []statusUpdate
	updateAttempts int
}

var _ store.TaskStore = (*fakeTaskStore)(nil)

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: map[uuid.UUID]*models.Task{}}
}

func (f *fakeTaskStore) add(task *models.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[task.ID] = task
}

func (f *fakeTaskStore) get(id uuid.UUID) *models.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[id]
}

func (f *fakeTaskStore) recorded() []statusUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]statusUpdate(nil), f.updates...)
}

func (f *fakeTaskStore) CreateTask(ctx context.Context, task *models.Task, dispatch func(ctx context.Context) error) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	if dispatch != nil {
		if err := dispatch(ctx); err != nil {
			return err
		}
	}
	f.add(task)
	return nil
}

func (f *fakeTaskStore) GetTask(_ context.Context, id uuid.UUID) (*models.Task, error) {
	if task := f.get(id); task != nil {
		return task, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeTaskStore) GetOwnedTask(_ context.Context, id, ownerID uuid.UUID) (*models.Task, error) {
	task := f.get(id)
	if task == nil || task.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	return task, nil
}

func (f *fakeTaskStore) ListOwnedTasks(_ context.Context, ownerID uuid.UUID) ([]*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Task
	for _, task := range f.tasks {
		if task.OwnerID == ownerID {
			out = append(out, task)
		}
	}
	return out, nil
}

func (f *fakeTaskStore) UpdateTaskStatus(_ context.Context, id uuid.UUID, status models.TaskStatus, resultPath *string, completedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateAttempts++
	task, ok := f.tasks[id]
	if !ok {
		return store.ErrNotFound
	}
	task.Status = status
	task.ResultPath = resultPath
	task.CompletedAt = completedAt
	f.updates = append(f.updates, statusUpdate{id: id, status: status, resultPath: resultPath, completedAt: completedAt})
	return nil
}

func (f *fakeTaskStore) SetTaskResultPath(_ context.Context, id uuid.UUID, resultPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return store.ErrNotFound
	}
	task.ResultPath = &resultPath
	return nil
}

func (f *fakeTaskStore) Ping(context.Context) error { return nil }

// transcriberFunc adapts a func to transcribe.Transcriber.
type transcriberFunc func(ctx context.Context, inputPath string) (string, error)

func (fn transcriberFunc) Transcribe(ctx context.Context, inputPath string) (string, error) {
	return fn(ctx, inputPath)
}

func newTranscriptionTask(t *testing.T, taskID, filePath string) *asynq.Task {
	t.Helper()
	job, err := tasks.NewTranscriptionTask(taskID, filePath)
	require.NoError(t, err)
	return job
}

func pendingTask(owner uuid.UUID) *models.Task {
	return &models.Task{
		ID:      uuid.New(),
		Title:   "lecture one",
		Status:  models.TaskStatusPending,
		OwnerID: owner,
	}
}

func writeUpload(t *testing.T, root, name string, content []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, storagepath.UploadSubdir), 0o755))
	path := filepath.Join(root, storagepath.UploadSubdir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestHandleTranscriptionJobSuccess(t *testing.T) {
	root := t.TempDir()
	taskStore := newFakeTaskStore()
	task := pendingTask(uuid.New())
	taskStore.add(task)
	uploadPath := writeUpload(t, root, "in.txt", []byte("hello"))

	handler := worker.HandleTranscriptionJob(worker.TranscriptionDeps{
		Tasks: taskStore,
		Transcriber: transcribe.NewEngine(transcribe.ModelConfig{
			Name: "base", DeviceIndex: -1, ComputeType: "default",
		}),
		StorageRoot: root,
	})

	err := handler(context.Background(), newTranscriptionTask(t, task.ID.String(), uploadPath))
	require.NoError(t, err)

	updates := taskStore.recorded()
	require.Len(t, updates, 2)
	assert.Equal(t, models.TaskStatusProcessing, updates[0].status)
	assert.Nil(t, updates[0].resultPath)
	assert.Nil(t, updates[0].completedAt)

	final := taskStore.get(task.ID)
	assert.Equal(t, models.TaskStatusCompleted, final.Status)
	require.NotNil(t, final.ResultPath)
	require.NotNil(t, final.CompletedAt)
	assert.Equal(t, storagepath.DefaultResultPath(root, task.ID), *final.ResultPath)
	assert.Equal(t, time.UTC, final.CompletedAt.Location())

	content, err := os.ReadFile(*final.ResultPath)
	require.NoError(t, err)
	text := string(content)
	assert.True(t, strings.HasPrefix(text, "# Transcription for in.txt"), "unexpected header: %q", text)
	assert.Contains(t, text, "Generated at ")
	assert.Contains(t, text, "hello")
}

func TestHandleTranscriptionJobMarksProcessingBeforeWork(t *testing.T) {
	root := t.TempDir()
	taskStore := newFakeTaskStore()
	task := pendingTask(uuid.New())
	taskStore.add(task)
	uploadPath := writeUpload(t, root, "in.txt", []byte("hello"))

	var statusDuringWork models.TaskStatus
	handler := worker.HandleTranscriptionJob(worker.TranscriptionDeps{
		Tasks: taskStore,
		Transcriber: transcriberFunc(func(context.Context, string) (string, error) {
			statusDuringWork = taskStore.get(task.ID).Status
			return "text", nil
		}),
		StorageRoot: root,
	})

	require.NoError(t, handler(context.Background(), newTranscriptionTask(t, task.ID.String(), uploadPath)))
	assert.Equal(t, models.TaskStatusProcessing, statusDuringWork)
}

func TestHandleTranscriptionJobMissingInput(t *testing.T) {
	root := t.TempDir()
	taskStore := newFakeTaskStore()
	task := pendingTask(uuid.New())
	taskStore.add(task)

	handler := worker.HandleTranscriptionJob(worker.TranscriptionDeps{
		Tasks: taskStore,
		Transcriber: transcriberFunc(func(context.Context, string) (string, error) {
			t.Fatal("transcriber must not run for a missing input")
			return "", nil
		}),
		StorageRoot: root,
	})

	err := handler(context.Background(), newTranscriptionTask(t, task.ID.String(), filepath.Join(root, "uploads", "missing.txt")))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	final := taskStore.get(task.ID)
	assert.Equal(t, models.TaskStatusFailed, final.Status)
	assert.Nil(t, final.ResultPath)
	assert.Nil(t, final.CompletedAt)

	_, statErr := os.Stat(storagepath.DefaultResultPath(root, task.ID))
	assert.True(t, os.IsNotExist(statErr), "no result file may be left behind")
}

func TestHandleTranscriptionJobTranscriberFailureCleansPartialOutput(t *testing.T) {
	root := t.TempDir()
	taskStore := newFakeTaskStore()
	task := pendingTask(uuid.New())
	taskStore.add(task)
	uploadPath := writeUpload(t, root, "in.txt", []byte("hello"))

	// Simulate a partial write from an earlier attempt.
	dest := storagepath.DefaultResultPath(root, task.ID)
	require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0o755))
	require.NoError(t, os.WriteFile(dest, []byte("partial"), 0o644))

	wantErr := errors.New("model exploded")
	handler := worker.HandleTranscriptionJob(worker.TranscriptionDeps{
		Tasks: taskStore,
		Transcriber: transcriberFunc(func(context.Context, string) (string, error) {
			return "", wantErr
		}),
		StorageRoot: root,
	})

	err := handler(context.Background(), newTranscriptionTask(t, task.ID.String(), uploadPath))
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)

	final := taskStore.get(task.ID)
	assert.Equal(t, models.TaskStatusFailed, final.Status)
	assert.Nil(t, final.ResultPath)
	assert.Nil(t, final.CompletedAt)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "partial result must be removed")
}

func TestHandleTranscriptionJobMalformedTaskID(t *testing.T) {
	taskStore := newFakeTaskStore()
	handler := worker.HandleTranscriptionJob(worker.TranscriptionDeps{
		Tasks: taskStore,
		Transcriber: transcriberFunc(func(context.Context, string) (string, error) {
			return "", nil
		}),
		StorageRoot: t.TempDir(),
	})

	err := handler(context.Background(), newTranscriptionTask(t, "not-a-uuid", "uploads/in.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, taskStore.recorded(), "no state mutation may happen for a malformed id")
}

func TestHandleTranscriptionJobMalformedPayload(t *testing.T) {
	handler := worker.HandleTranscriptionJob(worker.TranscriptionDeps{
		Tasks:       newFakeTaskStore(),
		Transcriber: transcriberFunc(func(context.Context, string) (string, error) { return "", nil }),
		StorageRoot: t.TempDir(),
	})

	err := handler(context.Background(), asynq.NewTask(tasks.TypeTranscription, []byte("{not json")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleTranscriptionJobLostTask(t *testing.T) {
	taskStore := newFakeTaskStore()
	handler := worker.HandleTranscriptionJob(worker.TranscriptionDeps{
		Tasks:       taskStore,
		Transcriber: transcriberFunc(func(context.Context, string) (string, error) { return "", nil }),
		StorageRoot: t.TempDir(),
	})

	err := handler(context.Background(), newTranscriptionTask(t, uuid.NewString(), "uploads/in.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	// The entry load detects the missing row, so no transition is even
	// attempted against the store.
	assert.Zero(t, taskStore.updateAttempts)
}

func TestTranscriptionPayloadRoundTrip(t *testing.T) {
	job, err := tasks.NewTranscriptionTask("abc", "uploads/in.txt")
	require.NoError(t, err)
	assert.Equal(t, tasks.TypeTranscription, job.Type())

	var raw map[string]string
	require.NoError(t, json.Unmarshal(job.Payload(), &raw))
	assert.Equal(t, map[string]string{"task_id": "abc", "file_path": "uploads/in.txt"}, raw)

	payload, err := tasks.ParseTranscriptionPayload(job.Payload())
	require.NoError(t, err)
	assert.Equal(t, "abc", payload.TaskID)
	assert.Equal(t, "uploads/in.txt", payload.FilePath)

	_, err = tasks.ParseTranscriptionPayload([]byte("nope"))
	assert.Error(t, err)
}
