package models

import "time"

type Project struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Path          string    `json:"path"`
	UpstreamID    int64     `json:"upstream_id"`
	CloneURL      string    `json:"clone_url"`
	DefaultRef    string    `json:"default_ref"`
	Token         string    `json:"-"`
	CoverageRegex string    `json:"coverage_regex,omitempty"`
	EmailEnabled  bool      `json:"email_enabled"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
