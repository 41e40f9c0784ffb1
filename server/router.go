package server

import (
	"time"

	"ads-sync/infrastructure/configuration"
	httpHandler "ads-sync/interfaces/http"
	"ads-sync/interfaces/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Sync       httpHandler.ISyncHandler
	Report     httpHandler.IReportHandler
	Connection httpHandler.IConnectionHandler
	Health     httpHandler.IHealthHandler
	// SyncStream is optional; it serves live sync status over SSE.
	SyncStream gin.HandlerFunc
}

func InitiateRouter(handlers Handlers, secretKey string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(configuration.C.App.AllowOrigin)))

	router.GET("/healthz", handlers.Health.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// OAuth authentication routes
	router.GET("/auth/google-ads", handlers.Connection.GetAuthURL)
	router.GET("/auth/google-ads/callback", handlers.Connection.Callback)

	api := router.Group("api")
	api.Use(middleware.Auth(secretKey))
	{
		api.POST("/accounts/:accountId/sync", handlers.Sync.ManualSync)
		api.GET("/accounts/:accountId/summary", handlers.Report.AccountSummary)
		api.GET("/sync/queue-stats", handlers.Sync.QueueStats)
		api.GET("/sync/jobs/:jobId", handlers.Sync.GetJob)
		api.POST("/sync/jobs/:jobId/cancel", handlers.Sync.CancelJob)
		api.POST("/connections/:connectionId/disconnect", handlers.Connection.Disconnect)
		if handlers.SyncStream != nil {
			api.GET("/sync/stream", handlers.SyncStream)
		}
	}

	// External cron entry points
	internal := router.Group("internal")
	internal.Use(middleware.Auth(secretKey))
	{
		internal.POST("/triggers/daily", handlers.Sync.TriggerDaily)
		internal.POST("/triggers/intraday", handlers.Sync.TriggerIntraday)
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
