package router

import (
	"servicemonitor/internal/gateway"
	"servicemonitor/internal/handlers"
	"servicemonitor/internal/middleware"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRouter 设置运维API路由
func SetupRouter(db *gorm.DB, client gateway.Client, version string) *gin.Engine {
	router := gin.New()

	// 中间件
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.SetupCORS())

	systemHandler := handlers.NewSystemHandler(db, client, version)

	api := router.Group("/api/v1")
	{
		api.GET("/health", systemHandler.Health)
		api.GET("/ping", systemHandler.Ping)
		api.GET("/status", systemHandler.Status)
	}

	return router
}
