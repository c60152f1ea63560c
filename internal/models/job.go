package models

import "time"

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobSpec describes what a background job harvests and how it filters.
// MaxPages 0 walks listing pages until they stop yielding new links.
type JobSpec struct {
	Query       string       `json:"query,omitempty"`
	CategoryURL string       `json:"category_url,omitempty"`
	MaxPages    int          `json:"max_pages"`
	Filter      SearchFilter `json:"filter"`
}

type Job struct {
	ID          string     `json:"id"`
	Spec        JobSpec    `json:"spec"`
	Status      JobStatus  `json:"status"`
	LinksFound  int        `json:"links_found"`
	Processed   int        `json:"processed"`
	DealsFound  int        `json:"deals_found"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Stats summarises the persisted state.
type Stats struct {
	Jobs     map[JobStatus]int   `json:"jobs"`
	Products int                 `json:"products"`
	Deals    int                 `json:"deals"`
	Outcomes map[OutcomeKind]int `json:"outcomes"`
	Outbox   OutboxStats         `json:"outbox"`
}

type OutboxStats struct {
	Pending    int64 `json:"pending"`
	DeadLetter int64 `json:"dead_letter"`
}
