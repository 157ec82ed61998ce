package ci

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sshere/gitlab-ci/internal/db"
	"github.com/sshere/gitlab-ci/internal/errors"
	"github.com/sshere/gitlab-ci/internal/models"
)

// SkipMarker in any commit message suppresses commit creation entirely.
const SkipMarker = "[ci skip]"

// Service implements the commit/build pipeline: push ingestion, build
// retry and build state reporting.
type Service struct {
	store  db.Store
	logger *logrus.Logger
}

func NewService(store db.Store, logger *logrus.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// CreateResult reports the outcome of a push ingestion. Created is
// false for deliberate no-ops (ci-skip marker, no matching build);
// those are not errors.
type CreateResult struct {
	Commit  *models.Commit
	Builds  []*models.Build
	Created bool
	Reason  string
}

// CreateCommit decides whether a push event becomes a commit and which
// builds to instantiate for it. The commit and its builds are persisted
// in one transaction.
func (s *Service) CreateCommit(ctx context.Context, project *models.Project, push *models.PushData) (*CreateResult, error) {
	if push == nil {
		return nil, errors.NewValidationError("push payload is required", nil)
	}

	for _, c := range push.Commits {
		if strings.Contains(c.Message, SkipMarker) {
			s.logger.Infof("Skipping push to %s for project %d: %s marker", push.Ref, project.ID, SkipMarker)
			return &CreateResult{Created: false, Reason: "ci skip"}, nil
		}
	}

	cfg, err := ParseConfig(push.CIYaml)
	if err != nil {
		return nil, err
	}

	refName, tag := ParseRef(push.Ref)

	specs := cfg.BuildsForRef(refName, tag)
	if len(specs) == 0 {
		// Deploy builds are a fallback only, never mixed with
		// ordinary builds.
		specs = cfg.DeployBuildsForRef(refName)
	}
	if len(specs) == 0 {
		s.logger.Infof("No builds for push to %s for project %d", push.Ref, project.ID)
		return &CreateResult{Created: false, Reason: "no builds"}, nil
	}

	commit := &models.Commit{
		ProjectID: project.ID,
		Ref:       push.Ref,
		SHA:       push.After,
		BeforeSHA: push.Before,
		Push:      *push,
		CreatedAt: time.Now(),
	}
	if err := validateCommit(commit); err != nil {
		return nil, err
	}

	builds := make([]*models.Build, 0, len(specs))
	for _, spec := range specs {
		builds = append(builds, &models.Build{
			Name:      spec.Name,
			Commands:  spec.Commands,
			TagList:   spec.Tags,
			Deploy:    spec.Deploy,
			Status:    models.StatusPending,
			CreatedAt: time.Now(),
		})
	}

	if err := s.store.CreateCommitWithBuilds(ctx, commit, builds); err != nil {
		return nil, fmt.Errorf("failed to persist commit: %w", err)
	}

	s.logger.Infof("Created commit %s on %s with %d builds", commit.ShortSHA(), commit.Ref, len(builds))
	return &CreateResult{Commit: commit, Builds: builds, Created: true}, nil
}

func validateCommit(commit *models.Commit) error {
	if commit.Ref == "" {
		return errors.NewValidationError("ref is required", nil)
	}
	if commit.SHA == "" {
		return errors.NewValidationError("sha is required", nil)
	}
	if commit.SHA == models.NullSHA {
		return errors.NewValidationError("sha must not be the null SHA", nil)
	}
	return nil
}

// RetryCommit re-runs every current build of a commit. Each build in
// the builds-without-retry set gets a fresh pending clone; the original
// rows stay untouched as history.
func (s *Service) RetryCommit(ctx context.Context, commitID int64) ([]*models.Build, error) {
	commit, err := s.store.GetCommit(ctx, commitID)
	if err != nil {
		return nil, err
	}

	builds, err := s.store.ListBuilds(ctx, commit.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load builds: %w", err)
	}

	latest := BuildsWithoutRetry(builds)
	if len(latest) == 0 {
		return nil, errors.NewValidationError("commit has no builds to retry", nil)
	}

	clones := make([]*models.Build, 0, len(latest))
	for _, b := range latest {
		clones = append(clones, &models.Build{
			CommitID:  commit.ID,
			Name:      b.Name,
			Commands:  b.Commands,
			TagList:   b.TagList,
			Deploy:    b.Deploy,
			Status:    models.StatusPending,
			CreatedAt: time.Now(),
		})
	}

	if err := s.store.CreateBuilds(ctx, clones); err != nil {
		return nil, fmt.Errorf("failed to create retried builds: %w", err)
	}

	s.logger.Infof("Retried commit %s: %d new builds", commit.ShortSHA(), len(clones))
	return clones, nil
}

// CancelBuild transitions a build to canceled unless it already
// finished.
func (s *Service) CancelBuild(ctx context.Context, buildID int64) (*models.Build, error) {
	build, err := s.store.GetBuild(ctx, buildID)
	if err != nil {
		return nil, err
	}

	if build.Status != models.StatusPending && build.Status != models.StatusRunning {
		return nil, errors.NewValidationError(fmt.Sprintf("cannot cancel build in state %s", build.Status), nil)
	}

	now := time.Now()
	build.Status = models.StatusCanceled
	build.FinishedAt = &now
	if err := s.store.UpdateBuild(ctx, build); err != nil {
		return nil, fmt.Errorf("failed to cancel build: %w", err)
	}
	return build, nil
}

// BuildReport carries a runner's state update for one build.
type BuildReport struct {
	Status models.BuildStatus
	Trace  string
}

// UpdateBuild applies a runner report: status transition, trace append
// and coverage extraction against the project's coverage regex.
func (s *Service) UpdateBuild(ctx context.Context, buildID int64, report BuildReport) (*models.Build, error) {
	build, err := s.store.GetBuild(ctx, buildID)
	if err != nil {
		return nil, err
	}

	switch report.Status {
	case models.StatusRunning, models.StatusSuccess, models.StatusFailed, models.StatusCanceled:
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("invalid build status %q", report.Status), nil)
	}

	now := time.Now()
	build.Trace = report.Trace
	if build.Status == models.StatusPending && report.Status != models.StatusPending {
		build.StartedAt = &now
	}
	build.Status = report.Status

	if report.Status == models.StatusSuccess || report.Status == models.StatusFailed || report.Status == models.StatusCanceled {
		build.FinishedAt = &now

		commit, err := s.store.GetCommit(ctx, build.CommitID)
		if err != nil {
			return nil, err
		}
		project, err := s.store.GetProject(ctx, commit.ProjectID)
		if err != nil {
			return nil, err
		}
		if coverage := ExtractCoverage(build.Trace, project.CoverageRegex); coverage != nil {
			build.Coverage = coverage
		}
	}

	if err := s.store.UpdateBuild(ctx, build); err != nil {
		return nil, fmt.Errorf("failed to update build: %w", err)
	}
	return build, nil
}
