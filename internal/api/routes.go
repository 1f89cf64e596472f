package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api/v1")
	{
		api.GET("/health", s.getHealth)
		api.GET("/devices", s.getDevices)
		api.GET("/device", s.getDeviceInfo)
		api.GET("/apps", s.getApps)
		api.GET("/stats", s.getStats)

		monitorGroup := api.Group("/monitor")
		{
			monitorGroup.GET("", s.getMonitor)
			monitorGroup.POST("/start", s.postStart)
			monitorGroup.POST("/stop", s.postStop)
		}

		// On-demand collection reaches the device and is rate limited
		collectGroup := api.Group("/collect", s.rateLimitMiddleware())
		{
			collectGroup.GET("/system", s.getSystem)
			collectGroup.GET("/apps/:package", s.getApp)
			collectGroup.POST("/apps", s.postApps)
			collectGroup.POST("/battery/reset", s.postBatteryReset)
		}

		sessionsGroup := api.Group("/sessions")
		{
			sessionsGroup.GET("", s.getSessions)
			sessionsGroup.GET("/:ref", s.getSession)
			sessionsGroup.GET("/:ref/summary", s.getSummary)
			sessionsGroup.GET("/:ref/export", s.getExport)
		}
	}
}
