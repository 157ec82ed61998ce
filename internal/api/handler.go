package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sshere/gitlab-ci/internal/ci"
	"github.com/sshere/gitlab-ci/internal/db"
	"github.com/sshere/gitlab-ci/internal/errors"
	"github.com/sshere/gitlab-ci/internal/models"
)

// Pipeline is the subset of the CI service the API depends on.
type Pipeline interface {
	CreateCommit(ctx context.Context, project *models.Project, push *models.PushData) (*ci.CreateResult, error)
	RetryCommit(ctx context.Context, commitID int64) ([]*models.Build, error)
	CancelBuild(ctx context.Context, buildID int64) (*models.Build, error)
	UpdateBuild(ctx context.Context, buildID int64, report ci.BuildReport) (*models.Build, error)
}

type Handler struct {
	store    db.Store
	pipeline Pipeline
	logger   *logrus.Logger
}

func NewHandler(store db.Store, pipeline Pipeline, logger *logrus.Logger) *Handler {
	return &Handler{
		store:    store,
		pipeline: pipeline,
		logger:   logger,
	}
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateProjectRequest is the body for project creation
type CreateProjectRequest struct {
	Name          string `json:"name" binding:"required"`
	Path          string `json:"path" binding:"required"`
	UpstreamID    int64  `json:"upstream_id"`
	CloneURL      string `json:"clone_url"`
	DefaultRef    string `json:"default_ref"`
	CoverageRegex string `json:"coverage_regex"`
	EmailEnabled  *bool  `json:"email_enabled"`
}

// UpdateProjectRequest is the body for project updates
type UpdateProjectRequest struct {
	Name          *string `json:"name"`
	Path          *string `json:"path"`
	CloneURL      *string `json:"clone_url"`
	DefaultRef    *string `json:"default_ref"`
	CoverageRegex *string `json:"coverage_regex"`
	EmailEnabled  *bool   `json:"email_enabled"`
}

// ProjectResponse includes the private token, returned only to callers
// that created or own the project.
type ProjectResponse struct {
	*models.Project
	Token string `json:"token"`
}

// ListProjects handles GET /projects
func (h *Handler) ListProjects(c *gin.Context) {
	limit, offset, ok := h.pagination(c, 20)
	if !ok {
		return
	}

	projects, err := h.store.ListProjects(c.Request.Context(), limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if projects == nil {
		projects = []*models.Project{}
	}

	c.JSON(http.StatusOK, projects)
}

// CreateProject handles POST /projects
func (h *Handler) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	project := &models.Project{
		Name:          req.Name,
		Path:          req.Path,
		UpstreamID:    req.UpstreamID,
		CloneURL:      req.CloneURL,
		DefaultRef:    req.DefaultRef,
		CoverageRegex: req.CoverageRegex,
		EmailEnabled:  true,
		Token:         uuid.NewString(),
	}
	if project.DefaultRef == "" {
		project.DefaultRef = "master"
	}
	if req.EmailEnabled != nil {
		project.EmailEnabled = *req.EmailEnabled
	}

	if err := h.store.CreateProject(c.Request.Context(), project); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ProjectResponse{Project: project, Token: project.Token})
}

// GetProject handles GET /projects/:id
func (h *Handler) GetProject(c *gin.Context) {
	project, ok := h.findProject(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, project)
}

// UpdateProject handles PUT /projects/:id
func (h *Handler) UpdateProject(c *gin.Context) {
	project, ok := h.findProject(c)
	if !ok {
		return
	}
	if !h.authorizeProject(c, project) {
		return
	}

	var req UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.Path != nil {
		project.Path = *req.Path
	}
	if req.CloneURL != nil {
		project.CloneURL = *req.CloneURL
	}
	if req.DefaultRef != nil {
		project.DefaultRef = *req.DefaultRef
	}
	if req.CoverageRegex != nil {
		project.CoverageRegex = *req.CoverageRegex
	}
	if req.EmailEnabled != nil {
		project.EmailEnabled = *req.EmailEnabled
	}

	if err := h.store.UpdateProject(c.Request.Context(), project); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, project)
}

// DeleteProject handles DELETE /projects/:id
func (h *Handler) DeleteProject(c *gin.Context) {
	project, ok := h.findProject(c)
	if !ok {
		return
	}
	if !h.authorizeProject(c, project) {
		return
	}

	if err := h.store.DeleteProject(c.Request.Context(), project.ID); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// findProject resolves the :id path param into a project, writing the
// error response itself when the lookup fails.
func (h *Handler) findProject(c *gin.Context) (*models.Project, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid project ID"})
		return nil, false
	}

	project, err := h.store.GetProject(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}

	return project, true
}

// authorizeProject checks the caller's private token against the
// project. No state changes happen on failure.
func (h *Handler) authorizeProject(c *gin.Context, project *models.Project) bool {
	token := c.GetHeader("X-Private-Token")
	if token == "" || token != project.Token {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return false
	}
	return true
}

func (h *Handler) pagination(c *gin.Context, defaultLimit int) (limit, offset int, ok bool) {
	limit, err := getIntQueryParam(c, "limit", defaultLimit)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit parameter"})
		return 0, 0, false
	}

	offset, err = getIntQueryParam(c, "offset", 0)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid offset parameter"})
		return 0, 0, false
	}

	return limit, offset, true
}

func getIntQueryParam(c *gin.Context, param string, defaultValue int) (int, error) {
	value := c.Query(param)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}

// respondError maps service errors onto HTTP status codes.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.IsNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.IsValidationError(err), errors.IsInvalidConfig(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.IsUnauthorized(err):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
	default:
		h.logger.Errorf("Internal error: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
