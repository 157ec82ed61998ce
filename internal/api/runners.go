package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sshere/gitlab-ci/internal/models"
)

// RegisterRunnerRequest is the body for runner registration.
type RegisterRunnerRequest struct {
	Description string   `json:"description"`
	TagList     []string `json:"tag_list"`
}

// RunnerResponse includes the runner token, returned only at
// registration time.
type RunnerResponse struct {
	*models.Runner
	Token string `json:"token"`
}

// WebhookRequest is the body for webhook creation.
type WebhookRequest struct {
	URL string `json:"url" binding:"required"`
}

// RegisterRunner handles POST /runners
func (h *Handler) RegisterRunner(c *gin.Context) {
	var req RegisterRunnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	runner := &models.Runner{
		Token:       uuid.NewString(),
		Description: req.Description,
		TagList:     req.TagList,
		Active:      true,
	}

	if err := h.store.CreateRunner(c.Request.Context(), runner); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, RunnerResponse{Runner: runner, Token: runner.Token})
}

// ListRunners handles GET /runners
func (h *Handler) ListRunners(c *gin.Context) {
	runners, err := h.store.ListRunners(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if runners == nil {
		runners = []*models.Runner{}
	}

	c.JSON(http.StatusOK, runners)
}

// DeleteRunner handles DELETE /runners/:id
func (h *Handler) DeleteRunner(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid runner ID"})
		return
	}

	if err := h.store.DeleteRunner(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListProjectRunners handles GET /projects/:id/runners
func (h *Handler) ListProjectRunners(c *gin.Context) {
	project, ok := h.findProject(c)
	if !ok {
		return
	}

	runners, err := h.store.ListProjectRunners(c.Request.Context(), project.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if runners == nil {
		runners = []*models.Runner{}
	}

	c.JSON(http.StatusOK, runners)
}

// AssignRunner handles POST /projects/:id/runners/:runner_id
func (h *Handler) AssignRunner(c *gin.Context) {
	project, ok := h.findProject(c)
	if !ok {
		return
	}
	if !h.authorizeProject(c, project) {
		return
	}

	runnerID, err := strconv.ParseInt(c.Param("runner_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid runner ID"})
		return
	}

	// Verify the runner exists before creating the association.
	runner, err := h.store.GetRunner(c.Request.Context(), runnerID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.store.AssignRunner(c.Request.Context(), runner.ID, project.ID); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "assigned"})
}

// UnassignRunner handles DELETE /projects/:id/runners/:runner_id
func (h *Handler) UnassignRunner(c *gin.Context) {
	project, ok := h.findProject(c)
	if !ok {
		return
	}
	if !h.authorizeProject(c, project) {
		return
	}

	runnerID, err := strconv.ParseInt(c.Param("runner_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid runner ID"})
		return
	}

	if err := h.store.UnassignRunner(c.Request.Context(), runnerID, project.ID); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListWebhooks handles GET /projects/:id/webhooks
func (h *Handler) ListWebhooks(c *gin.Context) {
	project, ok := h.findProject(c)
	if !ok {
		return
	}

	hooks, err := h.store.ListWebhooks(c.Request.Context(), project.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if hooks == nil {
		hooks = []*models.Webhook{}
	}

	c.JSON(http.StatusOK, hooks)
}

// CreateWebhook handles POST /projects/:id/webhooks
func (h *Handler) CreateWebhook(c *gin.Context) {
	project, ok := h.findProject(c)
	if !ok {
		return
	}
	if !h.authorizeProject(c, project) {
		return
	}

	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	hook := &models.Webhook{
		ProjectID: project.ID,
		URL:       req.URL,
	}

	if err := h.store.CreateWebhook(c.Request.Context(), hook); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, hook)
}

// DeleteWebhook handles DELETE /webhooks/:id
func (h *Handler) DeleteWebhook(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid webhook ID"})
		return
	}

	if err := h.store.DeleteWebhook(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// authorizeRunner checks the X-Runner-Token header against registered
// runners and stamps the runner's contact time.
func (h *Handler) authorizeRunner(c *gin.Context) bool {
	token := c.GetHeader("X-Runner-Token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return false
	}

	runner, err := h.store.GetRunnerByToken(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return false
	}

	if err := h.store.TouchRunner(c.Request.Context(), runner.ID); err != nil {
		h.logger.Warnf("Failed to update runner contact time: %v", err)
	}

	return true
}
