package models

import "time"

// BuildStatus is the lifecycle state of a single build.
type BuildStatus string

const (
	StatusPending  BuildStatus = "pending"
	StatusRunning  BuildStatus = "running"
	StatusSuccess  BuildStatus = "success"
	StatusFailed   BuildStatus = "failed"
	StatusCanceled BuildStatus = "canceled"
)

// Build is one unit of work derived from the CI configuration for a
// commit. Builds sharing a name within one commit form a retry chain;
// the row with the highest id is the current attempt.
type Build struct {
	ID         int64       `json:"id"`
	CommitID   int64       `json:"commit_id"`
	Name       string      `json:"name"`
	Commands   string      `json:"commands"`
	TagList    []string    `json:"tag_list"`
	Deploy     bool        `json:"deploy"`
	Status     BuildStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	RunnerID   *int64      `json:"runner_id,omitempty"`
	Coverage   *float64    `json:"coverage,omitempty"`
	Trace      string      `json:"-"`
}

// Duration returns the elapsed build time, zero if the build has not
// both started and finished.
func (b *Build) Duration() time.Duration {
	if b.StartedAt == nil || b.FinishedAt == nil {
		return 0
	}
	return b.FinishedAt.Sub(*b.StartedAt)
}
