package realtime

import (
	"net/http"
	"sync"

	"ads-sync/domain/dto"
	"ads-sync/infrastructure/logger"
	"ads-sync/interfaces/middleware"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

const subscriberBuffer = 16

// Hub maintains per-organization subscribers listening for sync status events.
type Hub struct {
	mu   sync.RWMutex
	orgs map[string]map[chan dto.SyncStatusEvent]struct{}
}

func NewSyncHub() *Hub {
	return &Hub{orgs: make(map[string]map[chan dto.SyncStatusEvent]struct{})}
}

// Serve registers an SSE stream for the organization set by the auth middleware.
func (h *Hub) Serve(c *gin.Context) {
	orgID := c.GetString(middleware.OrganizationIDKey)
	if orgID == "" {
		c.Status(http.StatusUnauthorized)
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // disable nginx buffering

	ch := h.Subscribe(orgID)
	defer h.Unsubscribe(orgID, ch)

	// Initial comment to keep connection open
	_, _ = c.Writer.Write([]byte(":ok\n\n"))
	c.Writer.Flush()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				logger.GetLogger().WithField("error", err).Error("Error while encoding sync status event")
				continue
			}
			_, _ = c.Writer.Write([]byte("event: " + evt.Type + "\n"))
			_, _ = c.Writer.Write([]byte("data: "))
			_, _ = c.Writer.Write(data)
			_, _ = c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (h *Hub) Subscribe(orgID string) chan dto.SyncStatusEvent {
	ch := make(chan dto.SyncStatusEvent, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.orgs[orgID] == nil {
		h.orgs[orgID] = make(map[chan dto.SyncStatusEvent]struct{})
	}
	h.orgs[orgID][ch] = struct{}{}
	return ch
}

func (h *Hub) Unsubscribe(orgID string, ch chan dto.SyncStatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs := h.orgs[orgID]; subs != nil {
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.orgs, orgID)
		}
	}
}

// Subscribers returns the number of open streams of an organization
func (h *Hub) Subscribers(orgID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.orgs[orgID])
}

// NotifySyncStatus delivers to every subscriber of the job's organization.
// Slow subscribers miss events instead of stalling the worker.
func (h *Hub) NotifySyncStatus(event dto.SyncStatusEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.orgs[event.OrganizationID] {
		select { // non-blocking
		case ch <- event:
		default:
		}
	}
}
