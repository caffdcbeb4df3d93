package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"servicemonitor/internal/gateway"
	"servicemonitor/internal/models"
	"servicemonitor/pkg/logger"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GuildService 租户生命周期服务
type GuildService struct {
	db        *gorm.DB
	configSvc *ConfigService
}

// NewGuildService 创建租户服务实例
func NewGuildService(db *gorm.DB) *GuildService {
	return &GuildService{
		db:        db,
		configSvc: NewConfigService(db),
	}
}

// EnsureGuild 保证guild行存在且新鲜。
// 返回的inert=true表示该guild已被软删除，按约定永久不再交互。
//
// 不存在 → 插入；已软删除 → 不做任何事；活跃 → 只刷新名称和元数据。
func (s *GuildService) EnsureGuild(g gateway.Guild) (*models.Guild, bool, error) {
	var guild models.Guild
	// Unscoped查出软删除行，用于"永不复活"判定
	err := s.db.Unscoped().Where("guild_id = ?", g.ID).First(&guild).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, err
		}
		guild = models.Guild{
			GuildID:  g.ID,
			Name:     g.Name,
			Metadata: guildMetadata(g),
		}
		if err := s.db.Create(&guild).Error; err != nil {
			return nil, false, err
		}
		return &guild, false, nil
	}

	if guild.DeletedAt.Valid {
		return &guild, true, nil
	}

	updates := map[string]interface{}{
		"name":     g.Name,
		"metadata": guildMetadata(g),
	}
	if err := s.db.Model(&guild).Updates(updates).Error; err != nil {
		return nil, false, err
	}
	return &guild, false, nil
}

// EnsureFromMessage 首条状态消息送达后按消息里的guild ID兜底建行。
// 与EnsureGuild一样幂等，软删除行不复活。
func (s *GuildService) EnsureFromMessage(msg gateway.Message, guildName string) error {
	var count int64
	err := s.db.Unscoped().Model(&models.Guild{}).
		Where("guild_id = ?", msg.GuildID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	guild := models.Guild{GuildID: msg.GuildID, Name: guildName}
	return s.db.Create(&guild).Error
}

// GetByGuildID 按平台guild ID取活跃租户行
func (s *GuildService) GetByGuildID(guildID string) (*models.Guild, error) {
	var guild models.Guild
	err := s.db.Where("guild_id = ?", guildID).First(&guild).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("guild不存在")
		}
		return nil, err
	}
	return &guild, nil
}

// SyncRoster 名册同步：对平台侧每个guild刷新租户行，
// 并为未注册过命令的guild做一次性命令注册（commands_registered标记跨重启幂等）。
// 单个guild失败不影响其余guild。
func (s *GuildService) SyncRoster(ctx context.Context, client gateway.Client, cmd gateway.Command) error {
	log := logger.GetLogger()
	for _, g := range client.Guilds() {
		if err := s.SyncGuild(ctx, client, g, cmd); err != nil {
			log.Errorf("同步guild %s 失败: %v", g.ID, err)
		}
	}
	return nil
}

// SyncGuild 同步单个guild：刷新租户行 + 一次性命令注册。
// 软删除的guild永久惰置，直接返回。
func (s *GuildService) SyncGuild(ctx context.Context, client gateway.Client, g gateway.Guild, cmd gateway.Command) error {
	guild, inert, err := s.EnsureGuild(g)
	if err != nil {
		return err
	}
	if inert {
		return nil
	}

	registered, err := s.configSvc.Has(guild.ID, models.ConfigKeyCommandsRegistered)
	if err != nil {
		return err
	}
	if registered {
		return nil
	}

	logger.GetLogger().Infof("Registering commands for guild: %s", g.Name)
	if err := client.RegisterCommand(ctx, g.ID, cmd); err != nil {
		// 注册失败不写标记，下轮名册同步重试
		return fmt.Errorf("注册命令失败: %v", err)
	}
	_, err = s.configSvc.SetIfAbsent(guild.ID, models.ConfigKeyCommandsRegistered, "string", "true")
	return err
}

func guildMetadata(g gateway.Guild) datatypes.JSON {
	data, err := json.Marshal(map[string]interface{}{
		"owner_id":     g.OwnerID,
		"member_count": g.MemberCount,
	})
	if err != nil {
		return nil
	}
	return data
}
