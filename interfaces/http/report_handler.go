package http

import (
	"fmt"
	"net/http"

	"ads-sync/domain/apperror"
	"ads-sync/domain/model"
	"ads-sync/usecase"

	"github.com/gin-gonic/gin"
)

type IReportHandler interface {
	AccountSummary(c *gin.Context)
}

type ReportHandler struct {
	reporting usecase.IReportingUsecase
}

func NewReportHandler(reporting usecase.IReportingUsecase) IReportHandler {
	return &ReportHandler{reporting: reporting}
}

// AccountSummary serves GET /api/accounts/:accountId/summary?start_date=&end_date=
func (h *ReportHandler) AccountSummary(c *gin.Context) {
	start, err := model.ParseDate(c.Query("start_date"))
	if err != nil {
		respondError(c, fmt.Errorf("%w: %v", apperror.ErrInvalidRange, err))
		return
	}
	end, err := model.ParseDate(c.Query("end_date"))
	if err != nil {
		respondError(c, fmt.Errorf("%w: %v", apperror.ErrInvalidRange, err))
		return
	}
	summary, err := h.reporting.GetAccountSummary(c.Request.Context(), c.Param("accountId"), start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, summary)
}
