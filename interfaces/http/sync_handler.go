package http

import (
	"fmt"
	"net/http"

	"ads-sync/domain/apperror"
	"ads-sync/domain/dto"
	"ads-sync/domain/model"
	"ads-sync/infrastructure/logger"
	"ads-sync/usecase"

	"github.com/gin-gonic/gin"
)

type ISyncHandler interface {
	ManualSync(c *gin.Context)
	QueueStats(c *gin.Context)
	GetJob(c *gin.Context)
	CancelJob(c *gin.Context)
	TriggerDaily(c *gin.Context)
	TriggerIntraday(c *gin.Context)
}

type SyncHandler struct {
	orchestrator usecase.ISyncOrchestrator
}

func NewSyncHandler(orchestrator usecase.ISyncOrchestrator) ISyncHandler {
	return &SyncHandler{orchestrator: orchestrator}
}

// ManualSync enqueues a sync and answers 202 before any job has run.
func (h *SyncHandler) ManualSync(c *gin.Context) {
	var req dto.ManualSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.GetLogger().WithField("error", err).Error(ErrorUnmarshal)
		respondError(c, fmt.Errorf("%w: %v", apperror.ErrInvalidRange, err))
		return
	}
	start, err := model.ParseDate(req.StartDate)
	if err != nil {
		respondError(c, fmt.Errorf("%w: %v", apperror.ErrInvalidRange, err))
		return
	}
	end, err := model.ParseDate(req.EndDate)
	if err != nil {
		respondError(c, fmt.Errorf("%w: %v", apperror.ErrInvalidRange, err))
		return
	}

	accountID := c.Param("accountId")
	ids, err := h.orchestrator.EnqueueManualSync(c.Request.Context(), accountID, start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusAccepted, dto.ManualSyncResponse{AdAccountID: accountID, JobIDs: ids})
}

func (h *SyncHandler) QueueStats(c *gin.Context) {
	stats, err := h.orchestrator.GetQueueStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, stats)
}

func (h *SyncHandler) GetJob(c *gin.Context) {
	detail, err := h.orchestrator.GetJob(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, detail)
}

func (h *SyncHandler) CancelJob(c *gin.Context) {
	cancelled, err := h.orchestrator.CancelJob(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"job_id": c.Param("jobId"), "cancelled": cancelled})
}

func (h *SyncHandler) TriggerDaily(c *gin.Context) {
	n, err := h.orchestrator.TriggerDailySync(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusAccepted, dto.TriggerResponse{JobType: string(model.SyncJobDaily), Enqueued: n})
}

func (h *SyncHandler) TriggerIntraday(c *gin.Context) {
	n, err := h.orchestrator.TriggerIntradaySync(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusAccepted, dto.TriggerResponse{JobType: string(model.SyncJobIntraday), Enqueued: n})
}
