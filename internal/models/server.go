package models

import (
	"gorm.io/gorm"
)

// 传输协议常量
const (
	ProtocolTCP = "tcp"
	ProtocolUDP = "udp"
)

// Server 被监控的服务端点
type Server struct {
	BaseModel
	GuildID uint `gorm:"not null;index" json:"guild_id"`

	Name     string `gorm:"size:100;not null" json:"name"`    // 同guild活跃端点内唯一
	Address  string `gorm:"size:64;not null" json:"address"`  // host:port
	Protocol string `gorm:"size:10;not null" json:"protocol"` // tcp/udp

	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName 表名
func (s *Server) TableName() string {
	return "servers"
}
