package services

import (
	"errors"

	"servicemonitor/internal/models"

	"gorm.io/gorm"
)

// ConfigService guild级键值配置服务
type ConfigService struct {
	db *gorm.DB
}

// NewConfigService 创建配置服务实例
func NewConfigService(db *gorm.DB) *ConfigService {
	return &ConfigService{db: db}
}

// Get 读取配置值，不存在时返回空串和false
func (s *ConfigService) Get(guildID uint, keyword string) (string, bool, error) {
	var cfg models.Configuration
	err := s.db.Where("guild_id = ? AND keyword = ?", guildID, keyword).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return cfg.Value, true, nil
}

// Has 配置项是否存在
func (s *ConfigService) Has(guildID uint, keyword string) (bool, error) {
	var count int64
	err := s.db.Model(&models.Configuration{}).
		Where("guild_id = ? AND keyword = ?", guildID, keyword).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SetIfAbsent 不存在时写入配置，返回是否发生写入。
// 同一(guild, keyword)至多一条靠这里的先检查后写入保证，
// 前提是同一guild的巡检不会与自身并发（调度器按guild串行）。
func (s *ConfigService) SetIfAbsent(guildID uint, keyword, valueType, value string) (bool, error) {
	exists, err := s.Has(guildID, keyword)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	cfg := models.Configuration{
		GuildID: guildID,
		Keyword: keyword,
		Type:    valueType,
		Value:   value,
	}
	if err := s.db.Create(&cfg).Error; err != nil {
		return false, err
	}
	return true, nil
}

// DeleteAll 硬删除guild的全部配置（wipe时调用）
func (s *ConfigService) DeleteAll(guildID uint) error {
	return s.db.Unscoped().
		Where("guild_id = ?", guildID).
		Delete(&models.Configuration{}).Error
}
