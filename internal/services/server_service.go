package services

import (
	"errors"
	"fmt"

	"servicemonitor/internal/models"

	"gorm.io/gorm"
)

// ServerService 被监控端点服务
type ServerService struct {
	db *gorm.DB
}

// NewServerService 创建端点服务实例
func NewServerService(db *gorm.DB) *ServerService {
	return &ServerService{db: db}
}

// Create 创建端点
// 名称唯一性只在同guild的活跃端点内检查（软删除行由gorm.DeletedAt自动排除）
func (s *ServerService) Create(guildID uint, name, address, protocol string) (*models.Server, error) {
	var count int64
	err := s.db.Model(&models.Server{}).
		Where("guild_id = ? AND name = ?", guildID, name).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("同名服务器已存在")
	}

	server := models.Server{
		GuildID:  guildID,
		Name:     name,
		Address:  address,
		Protocol: protocol,
	}
	if err := s.db.Create(&server).Error; err != nil {
		return nil, err
	}
	return &server, nil
}

// Remove 软删除指定名称的活跃端点
func (s *ServerService) Remove(guildID uint, name string) error {
	var server models.Server
	err := s.db.Where("guild_id = ? AND name = ?", guildID, name).First(&server).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("服务器不存在")
		}
		return err
	}
	return s.db.Delete(&server).Error
}

// ListActive 按插入顺序返回guild的活跃端点
func (s *ServerService) ListActive(guildID uint) ([]models.Server, error) {
	var servers []models.Server
	err := s.db.Where("guild_id = ?", guildID).
		Order("id ASC").
		Find(&servers).Error
	if err != nil {
		return nil, err
	}
	return servers, nil
}

// WipeAll 软删除guild的全部活跃端点
func (s *ServerService) WipeAll(guildID uint) error {
	return s.db.Where("guild_id = ?", guildID).Delete(&models.Server{}).Error
}
