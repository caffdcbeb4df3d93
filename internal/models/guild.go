package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Guild 租户模型 - 每个Discord guild是一个独立租户
//
// 软删除使用gorm.DeletedAt：常规查询自动过滤已删除行，
// 复活需要显式Unscoped，保证"删除后永不复活"的约束由类型承担。
type Guild struct {
	BaseModel
	GuildID   string         `json:"guild_id" gorm:"not null;size:32;index"`
	Name      string         `json:"name" gorm:"not null;size:200"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"` // 名册同步采集的附加信息
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`

	// 关联
	Servers        []Server        `gorm:"foreignKey:GuildID" json:"servers,omitempty"`
	Configurations []Configuration `gorm:"foreignKey:GuildID" json:"configurations,omitempty"`
}

// TableName 表名
func (g *Guild) TableName() string {
	return "guilds"
}
