package handlers

import (
	"time"

	"servicemonitor/internal/gateway"
	"servicemonitor/internal/models"
	"servicemonitor/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SystemHandler 运维可观测接口
type SystemHandler struct {
	db      *gorm.DB
	client  gateway.Client
	version string
	started time.Time
}

// NewSystemHandler 创建系统处理器
func NewSystemHandler(db *gorm.DB, client gateway.Client, version string) *SystemHandler {
	return &SystemHandler{
		db:      db,
		client:  client,
		version: version,
		started: time.Now(),
	}
}

// Health 健康检查
func (h *SystemHandler) Health(c *gin.Context) {
	data := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now(),
		"service":   "ServiceMonitor",
		"version":   h.version,
	}
	response.Success(c, data)
}

// Ping 连通性检查
func (h *SystemHandler) Ping(c *gin.Context) {
	response.SuccessWithMessage(c, "pong", nil)
}

// Status 运行状态：租户与端点规模、已连接guild数、运行时长
func (h *SystemHandler) Status(c *gin.Context) {
	var guildCount, serverCount int64
	if err := h.db.Model(&models.Guild{}).Count(&guildCount).Error; err != nil {
		response.ServerError(c, "查询guild数量失败")
		return
	}
	if err := h.db.Model(&models.Server{}).Count(&serverCount).Error; err != nil {
		response.ServerError(c, "查询端点数量失败")
		return
	}

	data := map[string]interface{}{
		"guilds_in_store":  guildCount,
		"servers_in_store": serverCount,
		"guilds_connected": len(h.client.Guilds()),
		"uptime_seconds":   int64(time.Since(h.started).Seconds()),
	}
	response.Success(c, data)
}
