package http

import (
	"net/http"
	"net/url"

	"ads-sync/interfaces/middleware"
	"ads-sync/usecase"

	"github.com/gin-gonic/gin"
)

type IConnectionHandler interface {
	GetAuthURL(c *gin.Context)
	Callback(c *gin.Context)
	Disconnect(c *gin.Context)
}

type ConnectionHandler struct {
	connections usecase.IConnectionUsecase
}

func NewConnectionHandler(connections usecase.IConnectionUsecase) IConnectionHandler {
	return &ConnectionHandler{connections: connections}
}

// GetAuthURL redirects the browser to the consent screen, or returns the URL
// as JSON when the caller asks for it.
func (h *ConnectionHandler) GetAuthURL(c *gin.Context) {
	orgID := c.GetString(middleware.OrganizationIDKey)
	if orgID == "" {
		orgID = c.Query("organization_id")
	}
	if orgID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing organization"})
		return
	}
	authURL, err := h.connections.BeginOAuth(c.Request.Context(), orgID, c.Query("redirect_to"))
	if err != nil {
		respondError(c, err)
		return
	}
	if c.Query("format") == "json" {
		respond(c, http.StatusOK, gin.H{"auth_url": authURL})
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

func (h *ConnectionHandler) Callback(c *gin.Context) {
	if e := c.Query("error"); e != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": e})
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}
	conn, redirectTo, err := h.connections.CompleteOAuth(c.Request.Context(), c.Query("state"), code)
	if err != nil {
		respondError(c, err)
		return
	}
	if redirectTo != "" {
		c.Redirect(http.StatusFound, redirectTo+"?connection_id="+url.QueryEscape(conn.ID))
		return
	}
	respond(c, http.StatusOK, gin.H{"connection_id": conn.ID, "account_email": conn.AccountEmail})
}

func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	if err := h.connections.Disconnect(c.Request.Context(), c.GetString(middleware.OrganizationIDKey), c.Param("connectionId")); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"connection_id": c.Param("connectionId"), "status": "DISCONNECTED"})
}
