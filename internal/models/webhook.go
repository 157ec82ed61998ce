package models

import "time"

type Webhook struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}
