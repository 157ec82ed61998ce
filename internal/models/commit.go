package models

import "time"

// NullSHA is the all-zero SHA git sends for branch deletion events.
const NullSHA = "0000000000000000000000000000000000000000"

// PushCommit is one entry of the per-commit list inside a push payload.
type PushCommit struct {
	SHA         string    `json:"sha"`
	Message     string    `json:"message"`
	AuthorName  string    `json:"author_name"`
	AuthorEmail string    `json:"author_email"`
	Timestamp   time.Time `json:"timestamp"`
}

// PushData is the decoded push payload. It is decoded once at ingestion
// and stored with the commit as JSON.
type PushData struct {
	Ref         string       `json:"ref"`
	Before      string       `json:"before"`
	After       string       `json:"after"`
	AuthorName  string       `json:"author_name"`
	AuthorEmail string       `json:"author_email"`
	Commits     []PushCommit `json:"commits"`
	CIYaml      string       `json:"ci_yaml_file"`
}

// Commit is one persisted push event. It owns its builds; deleting a
// commit deletes them.
type Commit struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Ref       string    `json:"ref"`
	SHA       string    `json:"sha"`
	BeforeSHA string    `json:"before_sha"`
	Push      PushData  `json:"push_data"`
	CreatedAt time.Time `json:"created_at"`
}

// ShortSHA returns the abbreviated head SHA used in log lines and views.
func (c *Commit) ShortSHA() string {
	if len(c.SHA) > 10 {
		return c.SHA[:10]
	}
	return c.SHA
}
