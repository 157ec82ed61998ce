package models

import "time"

// Runner is an execution agent. It reports in with its token and is
// associated to projects through runner_projects rows.
type Runner struct {
	ID          int64      `json:"id"`
	Token       string     `json:"-"`
	Description string     `json:"description"`
	TagList     []string   `json:"tag_list"`
	Active      bool       `json:"active"`
	ContactedAt *time.Time `json:"contacted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// RunnerProject joins a runner to a project.
type RunnerProject struct {
	ID        int64     `json:"id"`
	RunnerID  int64     `json:"runner_id"`
	ProjectID int64     `json:"project_id"`
	CreatedAt time.Time `json:"created_at"`
}
