package http

import (
	"errors"
	"net/http"
	"strconv"

	"ads-sync/domain/apperror"
	"ads-sync/domain/dto"
	"ads-sync/infrastructure/logger"
	"ads-sync/usecase"

	"github.com/gin-gonic/gin"
)

const (
	ErrorUnmarshal = "Error while unmarshal"
)

// statusOf maps a usecase error onto an HTTP status.
func statusOf(err error) int {
	var qErr *apperror.QueueTimeoutError
	var authErr *apperror.AuthError
	switch {
	case errors.Is(err, apperror.ErrOverlappingSync), errors.Is(err, apperror.ErrConnectionInactive), errors.Is(err, apperror.ErrAccountDisabled):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrInvalidRange), errors.Is(err, usecase.ErrInvalidOAuthState):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &qErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, dto.Res{
		ResponseCode:    strconv.Itoa(status),
		ResponseMessage: http.StatusText(status),
		Data:            data,
	})
}

func respondError(c *gin.Context, err error) {
	status := statusOf(err)
	entry := logger.GetLogger().WithField("path", c.FullPath()).WithField("error", err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
		if status == http.StatusInternalServerError {
			message = http.StatusText(status)
		}
	} else {
		entry.Info("Request rejected")
	}
	c.JSON(status, dto.Res{
		ResponseCode:    strconv.Itoa(status),
		ResponseMessage: message,
	})
}
