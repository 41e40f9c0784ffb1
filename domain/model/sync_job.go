package model

import "time"

type SyncJobType string

const (
	SyncJobInitial  SyncJobType = "INITIAL"
	SyncJobDaily    SyncJobType = "DAILY"
	SyncJobIntraday SyncJobType = "INTRADAY"
	SyncJobManual   SyncJobType = "MANUAL"
)

type SyncJobStatus string

const (
	SyncJobPending   SyncJobStatus = "PENDING"
	SyncJobRunning   SyncJobStatus = "RUNNING"
	SyncJobCompleted SyncJobStatus = "COMPLETED"
	SyncJobFailed    SyncJobStatus = "FAILED"
	SyncJobCancelled SyncJobStatus = "CANCELLED"
)

func (s SyncJobStatus) Terminal() bool {
	return s == SyncJobCompleted || s == SyncJobFailed || s == SyncJobCancelled
}

// Priority returns the queue priority of a job type. Lower runs first.
func (t SyncJobType) Priority() int {
	switch t {
	case SyncJobManual:
		return 1
	case SyncJobInitial:
		return 2
	case SyncJobDaily:
		return 3
	default:
		return 4
	}
}

// SyncJob is the durable record of one (account, date range, job type) unit of work
type SyncJob struct {
	ID             string        `gorm:"column:id;primaryKey" json:"id"`
	AdAccountID    string        `gorm:"column:ad_account_id;index" json:"ad_account_id"`
	ConnectionID   string        `gorm:"column:connection_id" json:"connection_id"`
	OrganizationID string        `gorm:"column:organization_id" json:"organization_id"`
	Provider       string        `gorm:"column:provider" json:"provider"`
	JobType        SyncJobType   `gorm:"column:job_type" json:"job_type"`
	Status         SyncJobStatus `gorm:"column:status" json:"status"`
	StartDate      time.Time     `gorm:"column:start_date;type:date" json:"start_date"`
	EndDate        time.Time     `gorm:"column:end_date;type:date" json:"end_date"`
	QueueJobID     string        `gorm:"column:queue_job_id" json:"queue_job_id"`
	Priority       int           `gorm:"column:priority" json:"priority"`
	Progress       int           `gorm:"column:progress" json:"progress"`
	Attempts       int           `gorm:"column:attempts" json:"attempts"`
	RowsProcessed  int           `gorm:"column:rows_processed" json:"rows_processed"`
	RowsSkipped    int           `gorm:"column:rows_skipped" json:"rows_skipped"`
	DurationMs     int64         `gorm:"column:duration_ms" json:"duration_ms"`
	ErrorMessage   *string       `gorm:"column:error_message" json:"error_message,omitempty"`
	StartedAt      *time.Time    `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time    `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt      time.Time     `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"column:updated_at" json:"updated_at"`
}

func (SyncJob) TableName() string {
	return "sync_jobs"
}

// SyncResult is reported by a handler when a job finishes
type SyncResult struct {
	RowsProcessed int   `json:"rows_processed"`
	RowsSkipped   int   `json:"rows_skipped"`
	DurationMs    int64 `json:"duration_ms"`
}

// SyncLogEntry is one attempt of a queued job, kept for operators
type SyncLogEntry struct {
	QueueJobID  string      `bson:"queue_job_id" json:"queue_job_id"`
	SyncJobID   string      `bson:"sync_job_id,omitempty" json:"sync_job_id,omitempty"`
	Queue       string      `bson:"queue" json:"queue"`
	AdAccountID string      `bson:"ad_account_id,omitempty" json:"ad_account_id,omitempty"`
	Attempt     int         `bson:"attempt" json:"attempt"`
	Outcome     string      `bson:"outcome" json:"outcome"`
	Error       string      `bson:"error,omitempty" json:"error,omitempty"`
	Result      *SyncResult `bson:"result,omitempty" json:"result,omitempty"`
	StartedAt   time.Time   `bson:"started_at" json:"started_at"`
	FinishedAt  time.Time   `bson:"finished_at" json:"finished_at"`
}
