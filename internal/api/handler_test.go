package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sshere/gitlab-ci/internal/ci"
	"github.com/sshere/gitlab-ci/internal/errors"
	"github.com/sshere/gitlab-ci/internal/models"
)

// MockStore is a mock implementation of db.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateProject(ctx context.Context, project *models.Project) error {
	args := m.Called(ctx, project)
	return args.Error(0)
}

func (m *MockStore) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Project), args.Error(1)
}

func (m *MockStore) GetProjectByToken(ctx context.Context, token string) (*models.Project, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Project), args.Error(1)
}

func (m *MockStore) ListProjects(ctx context.Context, limit, offset int) ([]*models.Project, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Project), args.Error(1)
}

func (m *MockStore) UpdateProject(ctx context.Context, project *models.Project) error {
	args := m.Called(ctx, project)
	return args.Error(0)
}

func (m *MockStore) DeleteProject(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) CreateCommitWithBuilds(ctx context.Context, commit *models.Commit, builds []*models.Build) error {
	args := m.Called(ctx, commit, builds)
	return args.Error(0)
}

func (m *MockStore) GetCommit(ctx context.Context, id int64) (*models.Commit, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Commit), args.Error(1)
}

func (m *MockStore) ListCommits(ctx context.Context, projectID int64, limit, offset int) ([]*models.Commit, error) {
	args := m.Called(ctx, projectID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Commit), args.Error(1)
}

func (m *MockStore) DeleteCommit(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) CreateBuilds(ctx context.Context, builds []*models.Build) error {
	args := m.Called(ctx, builds)
	return args.Error(0)
}

func (m *MockStore) GetBuild(ctx context.Context, id int64) (*models.Build, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Build), args.Error(1)
}

func (m *MockStore) ListBuilds(ctx context.Context, commitID int64) ([]*models.Build, error) {
	args := m.Called(ctx, commitID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Build), args.Error(1)
}

func (m *MockStore) UpdateBuild(ctx context.Context, build *models.Build) error {
	args := m.Called(ctx, build)
	return args.Error(0)
}

func (m *MockStore) CreateRunner(ctx context.Context, runner *models.Runner) error {
	args := m.Called(ctx, runner)
	return args.Error(0)
}

func (m *MockStore) GetRunner(ctx context.Context, id int64) (*models.Runner, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Runner), args.Error(1)
}

func (m *MockStore) GetRunnerByToken(ctx context.Context, token string) (*models.Runner, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Runner), args.Error(1)
}

func (m *MockStore) ListRunners(ctx context.Context) ([]*models.Runner, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Runner), args.Error(1)
}

func (m *MockStore) TouchRunner(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) DeleteRunner(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) AssignRunner(ctx context.Context, runnerID, projectID int64) error {
	args := m.Called(ctx, runnerID, projectID)
	return args.Error(0)
}

func (m *MockStore) UnassignRunner(ctx context.Context, runnerID, projectID int64) error {
	args := m.Called(ctx, runnerID, projectID)
	return args.Error(0)
}

func (m *MockStore) ListProjectRunners(ctx context.Context, projectID int64) ([]*models.Runner, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Runner), args.Error(1)
}

func (m *MockStore) CreateWebhook(ctx context.Context, hook *models.Webhook) error {
	args := m.Called(ctx, hook)
	return args.Error(0)
}

func (m *MockStore) ListWebhooks(ctx context.Context, projectID int64) ([]*models.Webhook, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Webhook), args.Error(1)
}

func (m *MockStore) DeleteWebhook(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockPipeline is a mock implementation of Pipeline
type MockPipeline struct {
	mock.Mock
}

func (m *MockPipeline) CreateCommit(ctx context.Context, project *models.Project, push *models.PushData) (*ci.CreateResult, error) {
	args := m.Called(ctx, project, push)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ci.CreateResult), args.Error(1)
}

func (m *MockPipeline) RetryCommit(ctx context.Context, commitID int64) ([]*models.Build, error) {
	args := m.Called(ctx, commitID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Build), args.Error(1)
}

func (m *MockPipeline) CancelBuild(ctx context.Context, buildID int64) (*models.Build, error) {
	args := m.Called(ctx, buildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Build), args.Error(1)
}

func (m *MockPipeline) UpdateBuild(ctx context.Context, buildID int64, report ci.BuildReport) (*models.Build, error) {
	args := m.Called(ctx, buildID, report)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Build), args.Error(1)
}

func setupTestRouter() (*gin.Engine, *MockStore, *MockPipeline) {
	gin.SetMode(gin.TestMode)

	store := new(MockStore)
	pipeline := new(MockPipeline)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	handler := NewHandler(store, pipeline, logger)
	return SetupRouter(handler), store, pipeline
}

func performRequest(router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateProjectEndpoint(t *testing.T) {
	router, store, _ := setupTestRouter()

	store.On("CreateProject", mock.Anything, mock.Anything).Return(nil)

	w := performRequest(router, http.MethodPost, "/api/v1/projects", gin.H{
		"name": "my-app",
		"path": "group/my-app",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "my-app", resp["name"])
	assert.Equal(t, "master", resp["default_ref"])
	assert.NotEmpty(t, resp["token"])

	store.AssertExpectations(t)
}

func TestCreateProjectValidation(t *testing.T) {
	router, store, _ := setupTestRouter()

	w := performRequest(router, http.MethodPost, "/api/v1/projects", gin.H{"name": "no-path"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	store.AssertNotCalled(t, "CreateProject", mock.Anything, mock.Anything)
}

func TestGetProjectNotFound(t *testing.T) {
	router, store, _ := setupTestRouter()

	store.On("GetProject", mock.Anything, int64(99)).Return(nil, errors.NewNotFoundError("project not found with id 99", nil))

	w := performRequest(router, http.MethodGet, "/api/v1/projects/99", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(router, http.MethodGet, "/api/v1/projects/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateCommitEndpoint(t *testing.T) {
	router, store, pipeline := setupTestRouter()

	project := &models.Project{ID: 1, Name: "my-app", Token: "secret"}
	commit := &models.Commit{ID: 10, ProjectID: 1, Ref: "refs/heads/master", SHA: "abc123"}
	builds := []*models.Build{
		{ID: 1, CommitID: 10, Name: "rspec", Status: models.StatusPending},
		{ID: 2, CommitID: 10, Name: "lint", Status: models.StatusPending},
	}

	store.On("GetProject", mock.Anything, int64(1)).Return(project, nil)
	pipeline.On("CreateCommit", mock.Anything, project, mock.Anything).Return(&ci.CreateResult{
		Commit:  commit,
		Builds:  builds,
		Created: true,
	}, nil)

	w := performRequest(router, http.MethodPost, "/api/v1/projects/1/commits", gin.H{
		"ref":   "refs/heads/master",
		"after": "abc123",
	}, map[string]string{"X-Private-Token": "secret"})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp["status"])
	assert.Equal(t, true, resp["matrix"])
	assert.Len(t, resp["builds"], 2)

	pipeline.AssertExpectations(t)
}

func TestCreateCommitNotCreated(t *testing.T) {
	router, store, pipeline := setupTestRouter()

	project := &models.Project{ID: 1, Token: "secret"}
	store.On("GetProject", mock.Anything, int64(1)).Return(project, nil)
	pipeline.On("CreateCommit", mock.Anything, project, mock.Anything).Return(&ci.CreateResult{
		Created: false,
		Reason:  "ci skip",
	}, nil)

	w := performRequest(router, http.MethodPost, "/api/v1/projects/1/commits", gin.H{
		"ref":   "refs/heads/master",
		"after": "abc123",
	}, map[string]string{"X-Private-Token": "secret"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp NotCreatedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not created", resp.Status)
	assert.Equal(t, "ci skip", resp.Reason)
}

func TestCreateCommitUnauthorized(t *testing.T) {
	router, store, pipeline := setupTestRouter()

	project := &models.Project{ID: 1, Token: "secret"}
	store.On("GetProject", mock.Anything, int64(1)).Return(project, nil)

	w := performRequest(router, http.MethodPost, "/api/v1/projects/1/commits", gin.H{
		"ref": "refs/heads/master",
	}, map[string]string{"X-Private-Token": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	pipeline.AssertNotCalled(t, "CreateCommit", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetCommitEndpoint(t *testing.T) {
	router, store, _ := setupTestRouter()

	commit := &models.Commit{ID: 10, ProjectID: 1, Ref: "refs/heads/master", SHA: "abc123"}
	builds := []*models.Build{
		{ID: 1, CommitID: 10, Name: "rspec", Status: models.StatusSuccess},
		{ID: 2, CommitID: 10, Name: "lint", Status: models.StatusSuccess},
	}

	store.On("GetCommit", mock.Anything, int64(10)).Return(commit, nil)
	store.On("ListBuilds", mock.Anything, int64(10)).Return(builds, nil)

	w := performRequest(router, http.MethodGet, "/api/v1/commits/10", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])
	assert.Len(t, resp["builds"], 2)
}

func TestRetryCommitEndpoint(t *testing.T) {
	router, store, pipeline := setupTestRouter()

	commit := &models.Commit{ID: 10, ProjectID: 1}
	clones := []*models.Build{
		{ID: 3, CommitID: 10, Name: "rspec", Status: models.StatusPending},
	}

	store.On("GetCommit", mock.Anything, int64(10)).Return(commit, nil)
	pipeline.On("RetryCommit", mock.Anything, int64(10)).Return(clones, nil)

	w := performRequest(router, http.MethodPost, "/api/v1/commits/10/retry", nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp []*models.Build
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, models.StatusPending, resp[0].Status)
}

func TestUpdateBuildEndpoint(t *testing.T) {
	router, store, pipeline := setupTestRouter()

	runner := &models.Runner{ID: 4, Token: "runner-token"}
	updated := &models.Build{ID: 5, CommitID: 10, Name: "rspec", Status: models.StatusSuccess}

	store.On("GetRunnerByToken", mock.Anything, "runner-token").Return(runner, nil)
	store.On("TouchRunner", mock.Anything, int64(4)).Return(nil)
	pipeline.On("UpdateBuild", mock.Anything, int64(5), ci.BuildReport{
		Status: models.StatusSuccess,
		Trace:  "all green",
	}).Return(updated, nil)

	w := performRequest(router, http.MethodPut, "/api/v1/builds/5", gin.H{
		"status": "success",
		"trace":  "all green",
	}, map[string]string{"X-Runner-Token": "runner-token"})
	require.Equal(t, http.StatusOK, w.Code)

	pipeline.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestUpdateBuildUnauthorized(t *testing.T) {
	router, store, pipeline := setupTestRouter()

	store.On("GetRunnerByToken", mock.Anything, "bogus").Return(nil, errors.NewNotFoundError("runner not found", nil))

	w := performRequest(router, http.MethodPut, "/api/v1/builds/5", gin.H{
		"status": "success",
	}, map[string]string{"X-Runner-Token": "bogus"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = performRequest(router, http.MethodPut, "/api/v1/builds/5", gin.H{"status": "success"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	pipeline.AssertNotCalled(t, "UpdateBuild", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelBuildEndpoint(t *testing.T) {
	router, _, pipeline := setupTestRouter()

	canceled := &models.Build{ID: 5, Name: "rspec", Status: models.StatusCanceled}
	pipeline.On("CancelBuild", mock.Anything, int64(5)).Return(canceled, nil)

	w := performRequest(router, http.MethodPost, "/api/v1/builds/5/cancel", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.Build
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.StatusCanceled, resp.Status)
}

func TestRegisterRunnerEndpoint(t *testing.T) {
	router, store, _ := setupTestRouter()

	store.On("CreateRunner", mock.Anything, mock.Anything).Return(nil)

	w := performRequest(router, http.MethodPost, "/api/v1/runners", gin.H{
		"description": "shell runner",
		"tag_list":    []string{"ruby", "postgres"},
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["token"])
	assert.Equal(t, true, resp["active"])
}

func TestAssignRunnerEndpoint(t *testing.T) {
	router, store, _ := setupTestRouter()

	project := &models.Project{ID: 1, Token: "secret"}
	runner := &models.Runner{ID: 4}

	store.On("GetProject", mock.Anything, int64(1)).Return(project, nil)
	store.On("GetRunner", mock.Anything, int64(4)).Return(runner, nil)
	store.On("AssignRunner", mock.Anything, int64(4), int64(1)).Return(nil)

	w := performRequest(router, http.MethodPost, "/api/v1/projects/1/runners/4", nil,
		map[string]string{"X-Private-Token": "secret"})
	assert.Equal(t, http.StatusCreated, w.Code)

	store.AssertExpectations(t)
}

func TestCreateWebhookEndpoint(t *testing.T) {
	router, store, _ := setupTestRouter()

	project := &models.Project{ID: 1, Token: "secret"}
	store.On("GetProject", mock.Anything, int64(1)).Return(project, nil)
	store.On("CreateWebhook", mock.Anything, mock.Anything).Return(nil)

	w := performRequest(router, http.MethodPost, "/api/v1/projects/1/webhooks", gin.H{
		"url": "https://example.com/hook",
	}, map[string]string{"X-Private-Token": "secret"})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp models.Webhook
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://example.com/hook", resp.URL)
}

func TestListProjectsPagination(t *testing.T) {
	router, store, _ := setupTestRouter()

	store.On("ListProjects", mock.Anything, 20, 0).Return([]*models.Project{}, nil)

	w := performRequest(router, http.MethodGet, "/api/v1/projects", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(router, http.MethodGet, "/api/v1/projects?limit=-1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
