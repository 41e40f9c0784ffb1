package dto

import "ads-sync/domain/model"

type Res struct {
	ResponseCode    string      `json:"response_code"`
	ResponseMessage string      `json:"response_message"`
	Data            interface{} `json:"data,omitempty"`
}

type ManualSyncRequest struct {
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
}

type ManualSyncResponse struct {
	AdAccountID string   `json:"ad_account_id"`
	JobIDs      []string `json:"job_ids"`
}

type QueueStatsResponse struct {
	Queues []model.QueueCounts `json:"queues"`
}

type CampaignSummary struct {
	CampaignID string `json:"campaign_id"`
	Name       string `json:"name"`
	model.MetricsTotals
}

type AccountSummary struct {
	AdAccountID string              `json:"ad_account_id"`
	StartDate   string              `json:"start_date"`
	EndDate     string              `json:"end_date"`
	Totals      model.MetricsTotals `json:"totals"`
	Campaigns   []CampaignSummary   `json:"campaigns"`
	Cached      bool                `json:"cached"`
}

// SyncCompletedEvent is published after a sync job finishes successfully
type SyncCompletedEvent struct {
	SyncJobID      string `json:"sync_job_id"`
	AdAccountID    string `json:"ad_account_id"`
	OrganizationID string `json:"organization_id"`
	JobType        string `json:"job_type"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	RowsProcessed  int    `json:"rows_processed"`
	FinishedAt     string `json:"finished_at"`
}

type SyncJobDetail struct {
	Job  *model.SyncJob       `json:"job"`
	Runs []model.SyncLogEntry `json:"runs"`
}

type TriggerResponse struct {
	JobType  string `json:"job_type"`
	Enqueued int    `json:"enqueued"`
}

const SyncStatusEventType = "sync_status"

// SyncStatusEvent is streamed to the organization that owns the sync job
type SyncStatusEvent struct {
	Type           string  `json:"type"`
	SyncJobID      string  `json:"sync_job_id"`
	AdAccountID    string  `json:"ad_account_id"`
	OrganizationID string  `json:"-"`
	JobType        string  `json:"job_type"`
	Status         string  `json:"status"`
	Progress       int     `json:"progress"`
	RowsProcessed  int     `json:"rows_processed,omitempty"`
	Retrying       bool    `json:"retrying,omitempty"`
	Error          *string `json:"error,omitempty"`
}
