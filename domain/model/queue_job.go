package model

import (
	"encoding/json"
	"time"
)

const (
	QueueMetricsSync      = "metrics-sync"
	QueueAccountDiscovery = "account-discovery"
)

type QueueJobState string

const (
	QueueJobWaiting   QueueJobState = "waiting"
	QueueJobDelayed   QueueJobState = "delayed"
	QueueJobActive    QueueJobState = "active"
	QueueJobCompleted QueueJobState = "completed"
	QueueJobFailed    QueueJobState = "failed"
)

// QueueJob is a task as stored in the job queue
type QueueJob struct {
	ID           string          `json:"id"`
	Queue        string          `json:"queue"`
	Name         string          `json:"name"`
	Payload      json.RawMessage `json:"payload"`
	Priority     int             `json:"priority"`
	AttemptsMade int             `json:"attempts_made"`
	MaxAttempts  int             `json:"max_attempts"`
	BackoffMs    int64           `json:"backoff_ms"`
	State        QueueJobState   `json:"state"`
	Progress     int             `json:"progress"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// JobOptions describes a job to enqueue
type JobOptions struct {
	ID          string
	Name        string
	Payload     interface{}
	Priority    int
	Attempts    int
	BackoffBase time.Duration
	Delay       time.Duration
}

// SyncPayload is the queue payload of a metrics sync job
type SyncPayload struct {
	SyncJobID      string      `json:"sync_job_id"`
	AdAccountID    string      `json:"ad_account_id"`
	ConnectionID   string      `json:"connection_id"`
	OrganizationID string      `json:"organization_id"`
	Provider       string      `json:"provider"`
	JobType        SyncJobType `json:"job_type"`
	StartDate      string      `json:"start_date"`
	EndDate        string      `json:"end_date"`
}

// DiscoveryPayload is the queue payload of an account discovery job
type DiscoveryPayload struct {
	ConnectionID   string `json:"connection_id"`
	OrganizationID string `json:"organization_id"`
	Provider       string `json:"provider"`
}

// QueueCounts is a snapshot of one queue
type QueueCounts struct {
	Queue     string `json:"queue"`
	Waiting   int64  `json:"waiting"`
	Delayed   int64  `json:"delayed"`
	Active    int64  `json:"active"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
}
