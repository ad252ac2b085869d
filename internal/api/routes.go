package api

import (
	"github.com/gin-gonic/gin"

	"github.com/dotbassa/highway-inventory-backend/internal/auth"
)

func SetupRoutes(router *gin.Engine, handler *Handler, authSvc *auth.Service) {
	// Health check
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(AuthMiddleware(authSvc))
	{
		// Report routes
		reports := v1.Group("/reports")
		reports.Use(RequireAdmin())
		{
			reports.POST("/assets", handler.InitiateAssetReport)
			reports.POST("/installers", handler.InitiateInstallerReport)
			reports.POST("/kmz", handler.InitiateKMZReport)
			reports.GET("/:task_id/status", handler.GetReportStatus)
			reports.GET("/:task_id/download", handler.DownloadReport)
		}

		// Asset routes
		assets := v1.Group("/assets")
		{
			assets.POST("/bulk", RequireAdmin(), handler.BulkCreateAssets)
			assets.POST("/photos/bulk", RequireAdmin(), handler.BulkUploadPhotos)
			assets.POST("/:id_interno/photo", handler.UploadPhoto)
			assets.POST("/sync", RequireAdmin(), handler.MobileSync)
		}
	}
}
