package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sshere/gitlab-ci/internal/ci"
	"github.com/sshere/gitlab-ci/internal/models"
)

// CommitDetail is a commit together with its derived state. Status and
// duration are recomputed from the current build set on every read,
// since builds change out-of-band as runners report in.
type CommitDetail struct {
	*models.Commit
	Status     models.BuildStatus `json:"status"`
	Duration   float64            `json:"duration"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	Matrix     bool               `json:"matrix"`
	Builds     []*models.Build    `json:"builds,omitempty"`
}

// NotCreatedResponse reports a deliberate ingestion no-op.
type NotCreatedResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// BuildReportRequest is the body a runner sends when reporting build
// state.
type BuildReportRequest struct {
	Status string `json:"status" binding:"required"`
	Trace  string `json:"trace"`
}

// CreateCommit handles POST /projects/:id/commits, the push ingestion
// entry point.
func (h *Handler) CreateCommit(c *gin.Context) {
	project, ok := h.findProject(c)
	if !ok {
		return
	}
	if !h.authorizeProject(c, project) {
		return
	}

	var push models.PushData
	if err := c.ShouldBindJSON(&push); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid push payload"})
		return
	}

	result, err := h.pipeline.CreateCommit(c.Request.Context(), project, &push)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if !result.Created {
		c.JSON(http.StatusOK, NotCreatedResponse{Status: "not created", Reason: result.Reason})
		return
	}

	c.JSON(http.StatusCreated, CommitDetail{
		Commit: result.Commit,
		Status: ci.CommitStatus(result.Builds),
		Matrix: ci.IsMatrix(result.Builds),
		Builds: result.Builds,
	})
}

// ListCommits handles GET /projects/:id/commits
func (h *Handler) ListCommits(c *gin.Context) {
	project, ok := h.findProject(c)
	if !ok {
		return
	}

	limit, offset, ok := h.pagination(c, 20)
	if !ok {
		return
	}

	commits, err := h.store.ListCommits(c.Request.Context(), project.ID, limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}

	details := make([]*CommitDetail, 0, len(commits))
	for _, commit := range commits {
		detail, err := h.commitDetail(c, commit, false)
		if err != nil {
			h.respondError(c, err)
			return
		}
		details = append(details, detail)
	}

	c.JSON(http.StatusOK, details)
}

// GetCommit handles GET /commits/:id
func (h *Handler) GetCommit(c *gin.Context) {
	commit, ok := h.findCommit(c)
	if !ok {
		return
	}

	detail, err := h.commitDetail(c, commit, true)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// DeleteCommit handles DELETE /commits/:id. Builds cascade with the
// commit.
func (h *Handler) DeleteCommit(c *gin.Context) {
	commit, ok := h.findCommit(c)
	if !ok {
		return
	}

	project, err := h.store.GetProject(c.Request.Context(), commit.ProjectID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !h.authorizeProject(c, project) {
		return
	}

	if err := h.store.DeleteCommit(c.Request.Context(), commit.ID); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// RetryCommit handles POST /commits/:id/retry
func (h *Handler) RetryCommit(c *gin.Context) {
	commit, ok := h.findCommit(c)
	if !ok {
		return
	}

	builds, err := h.pipeline.RetryCommit(c.Request.Context(), commit.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, builds)
}

// ListCommitBuilds handles GET /commits/:id/builds
func (h *Handler) ListCommitBuilds(c *gin.Context) {
	commit, ok := h.findCommit(c)
	if !ok {
		return
	}

	builds, err := h.store.ListBuilds(c.Request.Context(), commit.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if builds == nil {
		builds = []*models.Build{}
	}

	c.JSON(http.StatusOK, builds)
}

// GetBuild handles GET /builds/:id
func (h *Handler) GetBuild(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid build ID"})
		return
	}

	build, err := h.store.GetBuild(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, build)
}

// CancelBuild handles POST /builds/:id/cancel
func (h *Handler) CancelBuild(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid build ID"})
		return
	}

	build, err := h.pipeline.CancelBuild(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, build)
}

// UpdateBuild handles PUT /builds/:id, the runner report endpoint.
// Callers authenticate with their runner token.
func (h *Handler) UpdateBuild(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid build ID"})
		return
	}

	if !h.authorizeRunner(c) {
		return
	}

	var req BuildReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	build, err := h.pipeline.UpdateBuild(c.Request.Context(), id, ci.BuildReport{
		Status: models.BuildStatus(req.Status),
		Trace:  req.Trace,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, build)
}

func (h *Handler) findCommit(c *gin.Context) (*models.Commit, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid commit ID"})
		return nil, false
	}

	commit, err := h.store.GetCommit(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}

	return commit, true
}

func (h *Handler) commitDetail(c *gin.Context, commit *models.Commit, includeBuilds bool) (*CommitDetail, error) {
	builds, err := h.store.ListBuilds(c.Request.Context(), commit.ID)
	if err != nil {
		return nil, err
	}

	detail := &CommitDetail{
		Commit:     commit,
		Status:     ci.CommitStatus(builds),
		Duration:   ci.CommitDuration(builds).Seconds(),
		FinishedAt: ci.CommitFinishedAt(builds),
		Matrix:     ci.IsMatrix(builds),
	}
	if includeBuilds {
		detail.Builds = builds
	}

	return detail, nil
}
