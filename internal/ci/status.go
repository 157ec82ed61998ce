package ci

import (
	"sort"
	"time"

	"github.com/sshere/gitlab-ci/internal/models"
)

// BuildsWithoutRetry returns the latest build per distinct name,
// excluding superseded retry attempts. The result is ordered by id.
func BuildsWithoutRetry(builds []*models.Build) []*models.Build {
	latest := make(map[string]*models.Build, len(builds))
	for _, b := range builds {
		if cur, ok := latest[b.Name]; !ok || b.ID > cur.ID {
			latest[b.Name] = b
		}
	}

	result := make([]*models.Build, 0, len(latest))
	for _, b := range latest {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// CommitStatus folds the current build set into an overall status.
//
// The precedence order is deliberate: running subsumes "any pending"
// even though all-pending is asserted first, and any mix that cannot
// be classified as all-success, all-pending or all-canceled falls
// through to failed.
func CommitStatus(builds []*models.Build) models.BuildStatus {
	latest := BuildsWithoutRetry(builds)
	if len(latest) == 0 {
		return models.StatusPending
	}

	switch {
	case all(latest, models.StatusSuccess):
		return models.StatusSuccess
	case all(latest, models.StatusPending):
		return models.StatusPending
	case anyOf(latest, models.StatusRunning) || anyOf(latest, models.StatusPending):
		return models.StatusRunning
	case all(latest, models.StatusCanceled):
		return models.StatusCanceled
	default:
		return models.StatusFailed
	}
}

// CommitDuration sums build durations among the current attempts only.
func CommitDuration(builds []*models.Build) time.Duration {
	var total time.Duration
	for _, b := range BuildsWithoutRetry(builds) {
		total += b.Duration()
	}
	return total
}

// CommitFinishedAt returns the latest finish time across all builds,
// retries included, or nil when nothing has finished.
func CommitFinishedAt(builds []*models.Build) *time.Time {
	var finished *time.Time
	for _, b := range builds {
		if b.FinishedAt == nil {
			continue
		}
		if finished == nil || b.FinishedAt.After(*finished) {
			finished = b.FinishedAt
		}
	}
	return finished
}

// IsMatrix reports whether the commit runs more than one parallel leg.
func IsMatrix(builds []*models.Build) bool {
	return len(BuildsWithoutRetry(builds)) > 1
}

func all(builds []*models.Build, status models.BuildStatus) bool {
	for _, b := range builds {
		if b.Status != status {
			return false
		}
	}
	return true
}

func anyOf(builds []*models.Build, status models.BuildStatus) bool {
	for _, b := range builds {
		if b.Status == status {
			return true
		}
	}
	return false
}
