package apihandlers_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"jozvesaz/internal/apihandlers"
	"jozvesaz/internal/app"
	"jozvesaz/internal/auth"
	"jozvesaz/internal/config"
	"jozvesaz/internal/models"
	"jozvesaz/internal/store"
)

// --- fakes ---

type fakeUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

var _ store.UserStore = (*fakeUserStore)(nil)

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[uuid.UUID]*models.User{}}
}

func (f *fakeUserStore) CreateUser(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == user.Email {
			return store.ErrEmailTaken
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Status == "" {
		user.Status = models.UserStatusActive
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeUserStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[id]; ok {
		return user, nil
	}
	return nil, store.ErrNotFound
}

type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*models.Task
}

var _ store.TaskStore = (*fakeTaskStore)(nil)

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: map[uuid.UUID]*models.Task{}}
}

func (f *fakeTaskStore) CreateTask(ctx context.Context, task *models.Task, dispatch func(ctx context.Context) error) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	// Mirrors the transactional contract: dispatch failure means the
	// insert never becomes visible.
	if dispatch != nil {
		if err := dispatch(ctx); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeTaskStore) GetTask(_ context.Context, id uuid.UUID) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if task, ok := f.tasks[id]; ok {
		return task, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeTaskStore) GetOwnedTask(_ context.Context, id, ownerID uuid.UUID) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok || task.OwnerID != ownerID {
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
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeTaskStore) UpdateTaskStatus(_ context.Context, id uuid.UUID, status models.TaskStatus, resultPath *string, completedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return store.ErrNotFound
	}
	task.Status = status
	task.ResultPath = resultPath
	task.CompletedAt = completedAt
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

type enqueuedJob struct {
	taskID   uuid.UUID
	filePath string
}

type fakeJobClient struct {
	mu       sync.Mutex
	enqueued []enqueuedJob
	err      error
}

var _ store.JobClient = (*fakeJobClient)(nil)

func (f *fakeJobClient) EnqueueTranscription(_ context.Context, taskID uuid.UUID, filePath string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, enqueuedJob{taskID: taskID, filePath: filePath})
	return nil
}

func (f *fakeJobClient) Close() error { return nil }

func (f *fakeJobClient) jobs() []enqueuedJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]enqueuedJob(nil), f.enqueued...)
}

// --- test harness ---

type testEnv struct {
	router *gin.Engine
	app    *app.App
	users  *fakeUserStore
	tasks  *fakeTaskStore
	jobs   *fakeJobClient
	root   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Storage.Root = t.TempDir()
	cfg.Auth.AccessCookieName = "access_token"
	cfg.Auth.RefreshCookieName = "refresh_token"

	issuer, err := auth.NewTokenIssuer("test-secret", "", 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)

	users := newFakeUserStore()
	tasks := newFakeTaskStore()
	jobs := &fakeJobClient{}

	appInstance := &app.App{
		Config:      cfg,
		UserStore:   users,
		TaskStore:   tasks,
		JobClient:   jobs,
		TokenIssuer: issuer,
	}

	handler := apihandlers.NewAPIHandler(appInstance)
	requireUser := apihandlers.RequireUser(users, issuer, cfg.Auth.AccessCookieName)

	router := gin.New()
	authGroup := router.Group("/auth")
	authGroup.POST("/register", handler.RegisterHandler)
	authGroup.POST("/login", handler.LoginHandler)
	authGroup.GET("/me", requireUser, handler.MeHandler)

	taskGroup := router.Group("/api/v1/tasks", requireUser)
	taskGroup.POST("", handler.CreateTaskHandler)
	taskGroup.GET("", handler.ListTasksHandler)
	taskGroup.GET("/:id", handler.GetTaskHandler)
	taskGroup.GET("/:id/result", handler.GetTaskResultHandler)
	taskGroup.PUT("/:id/result", handler.UpdateTaskResultHandler)

	return &testEnv{
		router: router,
		app:    appInstance,
		users:  users,
		tasks:  tasks,
		jobs:   jobs,
		root:   cfg.Storage.Root,
	}
}

// newUser registers a user directly against the store and returns it with
// a valid access cookie.
func (e *testEnv) newUser(t *testing.T, email string) (*models.User, *http.Cookie) {
	t.Helper()
	hashed, err := auth.HashPassword("password123")
	require.NoError(t, err)
	user := &models.User{Email: email, HashedPassword: hashed}
	require.NoError(t, e.users.CreateUser(context.Background(), user))

	token, err := e.app.TokenIssuer.AccessToken(user.ID.String())
	require.NoError(t, err)
	return user, &http.Cookie{Name: "access_token", Value: token}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// multipartBody builds a task-creation form with the given fields.
func multipartBody(t *testing.T, title, description, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if title != "" {
		require.NoError(t, writer.WriteField("title", title))
	}
	if description != "" {
		require.NoError(t, writer.WriteField("description", description))
	}
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}
