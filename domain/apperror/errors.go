package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrOverlappingSync    = errors.New("an active sync job already covers an overlapping date range")
	ErrConnectionInactive = errors.New("connection is not active")
	ErrInvalidRange       = errors.New("invalid date range")
	ErrJobCancelled       = errors.New("sync job cancelled")
	ErrJobInProgress      = errors.New("sync job is already running elsewhere")
	ErrAccountDisabled    = errors.New("ad account is disabled")
)

// AuthError means the connection credentials cannot be used until the user re-authorizes
type AuthError struct {
	ConnectionID string
	Err          error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error for connection %s: %v", e.ConnectionID, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitExceededError is returned when no limiter token became available in time
type RateLimitExceededError struct {
	Cost   int
	Waited string
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: no token for cost %d within %s", e.Cost, e.Waited)
}

// ProviderError wraps a non-2xx response from the ads platform
type ProviderError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider error: %v", e.Err)
	}
	return fmt.Sprintf("provider error: status %d: %s", e.StatusCode, e.Body)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Permanent reports a client error that retrying will not fix
func (e *ProviderError) Permanent() bool {
	if e.StatusCode < 400 || e.StatusCode >= 500 {
		return false
	}
	return e.StatusCode != http.StatusRequestTimeout && e.StatusCode != http.StatusTooManyRequests
}

// DimensionMissingError marks a fact row whose parent dimension is not in the warehouse
type DimensionMissingError struct {
	Kind       string
	ExternalID string
}

func (e *DimensionMissingError) Error() string {
	return fmt.Sprintf("dimension missing: %s %s", e.Kind, e.ExternalID)
}

// QueueTimeoutError is returned when a manual sync could not be enqueued in time
type QueueTimeoutError struct {
	Err error
}

func (e *QueueTimeoutError) Error() string {
	return fmt.Sprintf("queue timeout: %v", e.Err)
}

func (e *QueueTimeoutError) Unwrap() error { return e.Err }

// IsPermanent reports whether a job failing with err must not be retried
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return true
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Permanent()
	}
	return errors.Is(err, ErrAccountDisabled) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConnectionInactive) || errors.Is(err, ErrInvalidRange)
}
