package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title CI Coordinator API
// @version 1.0
// @description REST API for managing projects, commits, builds and runners
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey PrivateToken
// @in header
// @name X-Private-Token

// SetupRouter configures the API routes
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.Default()

	// API documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1 group
	v1 := r.Group("/api/v1")
	{
		projects := v1.Group("/projects")
		{
			// @Summary List projects
			// @Tags projects
			// @Produce json
			// @Param limit query int false "Number of projects to return" default(20)
			// @Param offset query int false "Number of projects to skip" default(0)
			// @Success 200 {array} models.Project
			// @Router /projects [get]
			projects.GET("", h.ListProjects)

			// @Summary Create a project
			// @Tags projects
			// @Accept json
			// @Produce json
			// @Param request body CreateProjectRequest true "Project attributes"
			// @Success 201 {object} ProjectResponse
			// @Failure 400 {object} ErrorResponse
			// @Router /projects [post]
			projects.POST("", h.CreateProject)

			// @Summary Get project details
			// @Tags projects
			// @Produce json
			// @Param id path int true "Project ID"
			// @Success 200 {object} models.Project
			// @Failure 404 {object} ErrorResponse
			// @Router /projects/{id} [get]
			projects.GET("/:id", h.GetProject)

			// @Summary Update a project
			// @Tags projects
			// @Accept json
			// @Produce json
			// @Param id path int true "Project ID"
			// @Success 200 {object} models.Project
			// @Failure 401 {object} ErrorResponse
			// @Failure 404 {object} ErrorResponse
			// @Router /projects/{id} [put]
			projects.PUT("/:id", h.UpdateProject)

			// @Summary Delete a project
			// @Tags projects
			// @Param id path int true "Project ID"
			// @Success 204 "No Content"
			// @Failure 401 {object} ErrorResponse
			// @Failure 404 {object} ErrorResponse
			// @Router /projects/{id} [delete]
			projects.DELETE("/:id", h.DeleteProject)

			// @Summary Ingest a push event
			// @Description Creates a commit and its builds from a push notification.
			// @Description Pushes carrying a ci-skip marker or matching no build
			// @Description configuration report "not created" without error.
			// @Tags commits
			// @Accept json
			// @Produce json
			// @Param id path int true "Project ID"
			// @Param request body models.PushData true "Push payload"
			// @Success 201 {object} CommitDetail
			// @Success 200 {object} NotCreatedResponse
			// @Failure 400 {object} ErrorResponse
			// @Failure 401 {object} ErrorResponse
			// @Router /projects/{id}/commits [post]
			projects.POST("/:id/commits", h.CreateCommit)

			// @Summary List project commits
			// @Tags commits
			// @Produce json
			// @Param id path int true "Project ID"
			// @Param limit query int false "Number of commits to return" default(20)
			// @Param offset query int false "Number of commits to skip" default(0)
			// @Success 200 {array} CommitDetail
			// @Router /projects/{id}/commits [get]
			projects.GET("/:id/commits", h.ListCommits)

			// @Summary List project runners
			// @Tags runners
			// @Produce json
			// @Param id path int true "Project ID"
			// @Success 200 {array} models.Runner
			// @Router /projects/{id}/runners [get]
			projects.GET("/:id/runners", h.ListProjectRunners)

			// @Summary Assign a runner to a project
			// @Tags runners
			// @Param id path int true "Project ID"
			// @Param runner_id path int true "Runner ID"
			// @Success 201 {object} map[string]string
			// @Failure 404 {object} ErrorResponse
			// @Router /projects/{id}/runners/{runner_id} [post]
			projects.POST("/:id/runners/:runner_id", h.AssignRunner)

			// @Summary Remove a runner from a project
			// @Tags runners
			// @Param id path int true "Project ID"
			// @Param runner_id path int true "Runner ID"
			// @Success 204 "No Content"
			// @Failure 404 {object} ErrorResponse
			// @Router /projects/{id}/runners/{runner_id} [delete]
			projects.DELETE("/:id/runners/:runner_id", h.UnassignRunner)

			// @Summary List project webhooks
			// @Tags webhooks
			// @Produce json
			// @Param id path int true "Project ID"
			// @Success 200 {array} models.Webhook
			// @Router /projects/{id}/webhooks [get]
			projects.GET("/:id/webhooks", h.ListWebhooks)

			// @Summary Create a webhook
			// @Tags webhooks
			// @Accept json
			// @Produce json
			// @Param id path int true "Project ID"
			// @Param request body WebhookRequest true "Webhook attributes"
			// @Success 201 {object} models.Webhook
			// @Failure 401 {object} ErrorResponse
			// @Router /projects/{id}/webhooks [post]
			projects.POST("/:id/webhooks", h.CreateWebhook)
		}

		commits := v1.Group("/commits")
		{
			// @Summary Get commit details
			// @Description Returns the commit with its aggregate status, duration
			// @Description and builds. The aggregate is recomputed on every read.
			// @Tags commits
			// @Produce json
			// @Param id path int true "Commit ID"
			// @Success 200 {object} CommitDetail
			// @Failure 404 {object} ErrorResponse
			// @Router /commits/{id} [get]
			commits.GET("/:id", h.GetCommit)

			// @Summary Delete a commit and its builds
			// @Tags commits
			// @Param id path int true "Commit ID"
			// @Success 204 "No Content"
			// @Failure 404 {object} ErrorResponse
			// @Router /commits/{id} [delete]
			commits.DELETE("/:id", h.DeleteCommit)

			// @Summary Retry all current builds of a commit
			// @Tags builds
			// @Produce json
			// @Param id path int true "Commit ID"
			// @Success 201 {array} models.Build
			// @Failure 404 {object} ErrorResponse
			// @Router /commits/{id}/retry [post]
			commits.POST("/:id/retry", h.RetryCommit)

			// @Summary List builds of a commit
			// @Tags builds
			// @Produce json
			// @Param id path int true "Commit ID"
			// @Success 200 {array} models.Build
			// @Router /commits/{id}/builds [get]
			commits.GET("/:id/builds", h.ListCommitBuilds)
		}

		builds := v1.Group("/builds")
		{
			// @Summary Get build details
			// @Tags builds
			// @Produce json
			// @Param id path int true "Build ID"
			// @Success 200 {object} models.Build
			// @Failure 404 {object} ErrorResponse
			// @Router /builds/{id} [get]
			builds.GET("/:id", h.GetBuild)

			// @Summary Cancel a build
			// @Tags builds
			// @Produce json
			// @Param id path int true "Build ID"
			// @Success 200 {object} models.Build
			// @Failure 400 {object} ErrorResponse
			// @Router /builds/{id}/cancel [post]
			builds.POST("/:id/cancel", h.CancelBuild)

			// @Summary Report build state
			// @Description Runner endpoint for status, trace and coverage updates.
			// @Tags builds
			// @Accept json
			// @Produce json
			// @Param id path int true "Build ID"
			// @Param request body BuildReportRequest true "Build report"
			// @Success 200 {object} models.Build
			// @Failure 401 {object} ErrorResponse
			// @Router /builds/{id} [put]
			builds.PUT("/:id", h.UpdateBuild)
		}

		webhooks := v1.Group("/webhooks")
		{
			// @Summary Delete a webhook
			// @Tags webhooks
			// @Param id path int true "Webhook ID"
			// @Success 204 "No Content"
			// @Failure 404 {object} ErrorResponse
			// @Router /webhooks/{id} [delete]
			webhooks.DELETE("/:id", h.DeleteWebhook)
		}

		runners := v1.Group("/runners")
		{
			// @Summary Register a runner
			// @Tags runners
			// @Accept json
			// @Produce json
			// @Param request body RegisterRunnerRequest true "Runner attributes"
			// @Success 201 {object} RunnerResponse
			// @Router /runners [post]
			runners.POST("", h.RegisterRunner)

			// @Summary List runners
			// @Tags runners
			// @Produce json
			// @Success 200 {array} models.Runner
			// @Router /runners [get]
			runners.GET("", h.ListRunners)

			// @Summary Delete a runner
			// @Tags runners
			// @Param id path int true "Runner ID"
			// @Success 204 "No Content"
			// @Failure 404 {object} ErrorResponse
			// @Router /runners/{id} [delete]
			runners.DELETE("/:id", h.DeleteRunner)
		}
	}

	return r
}
