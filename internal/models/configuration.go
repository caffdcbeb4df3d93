package models

// 配置关键字常量
const (
	ConfigKeyMessageChannel     = "message_channel"
	ConfigKeyMessageID          = "message_id"
	ConfigKeyCommandsRegistered = "commands_registered"
)

// Configuration guild级键值配置
//
// 每个(guild_id, keyword)至多一条，由写入前的存在性检查保证。
// wipe时整表按guild硬删除，不使用软删除。
type Configuration struct {
	BaseModel
	GuildID uint   `gorm:"not null;index" json:"guild_id"`
	Keyword string `gorm:"size:50;not null;index" json:"keyword"`
	Type    string `gorm:"size:20;not null;default:'string'" json:"type"`
	Value   string `gorm:"size:500;not null" json:"value"`
}

// TableName 表名
func (c *Configuration) TableName() string {
	return "configurations"
}
