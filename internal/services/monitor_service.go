package services

import (
	"context"
	"time"

	"servicemonitor/internal/gateway"
	"servicemonitor/internal/models"
	"servicemonitor/internal/probe"
	"servicemonitor/internal/report"
	"servicemonitor/pkg/logger"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MonitorService 巡检服务：单个guild的一轮完整协调流水线
// （生命周期检查 → 端点探测 → 报告渲染 → 消息同步）。
type MonitorService struct {
	db        *gorm.DB
	guildSvc  *GuildService
	serverSvc *ServerService
	configSvc *ConfigService
	prober    *probe.Prober
	client    gateway.Client

	botID    string          // 机器人应用ID，校验消息作者
	location *time.Location  // 报告时间戳时区
	skip     map[string]bool // 跳过巡检的guild
}

// NewMonitorService 创建巡检服务实例
func NewMonitorService(db *gorm.DB, client gateway.Client, prober *probe.Prober,
	botID string, location *time.Location, skipGuildIDs []string) *MonitorService {

	skip := make(map[string]bool, len(skipGuildIDs))
	for _, id := range skipGuildIDs {
		skip[id] = true
	}

	return &MonitorService{
		db:        db,
		guildSvc:  NewGuildService(db),
		serverSvc: NewServerService(db),
		configSvc: NewConfigService(db),
		prober:    prober,
		client:    client,
		botID:     botID,
		location:  location,
		skip:      skip,
	}
}

// RunPass 跑一轮巡检。
// 前置条件不满足（guild被跳过/软删除/未绑定频道/无活跃端点）时静默跳过本轮，
// 只有传输层或存储层故障才返回错误，且只影响当前guild。
func (s *MonitorService) RunPass(ctx context.Context, g gateway.Guild) error {
	log := logger.GetLogger().WithFields(logrus.Fields{
		"pass_id": uuid.New().String(),
		"guild":   g.ID,
	})

	if s.skip[g.ID] {
		return nil
	}

	guild, err := s.guildSvc.GetByGuildID(g.ID)
	if err != nil {
		if err.Error() == "guild不存在" {
			// 未入库（或已软删除）的guild不巡检，等名册同步补齐
			log.Debugf("guild未入库，跳过: %v", err)
			return nil
		}
		// 存储层故障要让调度器看见，不能静默吞掉
		return err
	}

	servers, err := s.serverSvc.ListActive(guild.ID)
	if err != nil {
		return err
	}
	if len(servers) == 0 {
		// 零端点直接短路，不发送空报告
		return nil
	}

	results := s.prober.ProbeAll(ctx, servers)
	text := report.Render(time.Now().In(s.location), results)

	return s.syncMessage(ctx, log, guild, text)
}

// syncMessage 消息同步协议：无message_id则新建，有则原地编辑。
func (s *MonitorService) syncMessage(ctx context.Context, log *logrus.Entry, guild *models.Guild, text string) error {
	channelID, ok, err := s.configSvc.Get(guild.ID, models.ConfigKeyMessageChannel)
	if err != nil {
		return err
	}
	if !ok {
		// 未绑定频道是本guild的前置条件失败，跳过本轮并留日志
		log.Warn("guild未配置message_channel，跳过本轮巡检")
		return nil
	}

	messageID, ok, err := s.configSvc.Get(guild.ID, models.ConfigKeyMessageID)
	if err != nil {
		return err
	}

	if !ok {
		msg, err := s.client.SendMessage(ctx, channelID, text)
		if err != nil {
			return err
		}
		// REST响应里不一定带guild_id，兜底用当前guild的
		if msg.GuildID == "" {
			msg.GuildID = guild.GuildID
		}
		log.Infof("Created new status message: %s", msg.ID)
		return s.onMessageCreated(msg)
	}

	// 消息被外部删除时放弃本轮更新，不回退到新建
	if _, err := s.client.FetchMessage(ctx, channelID, messageID); err != nil {
		log.Warnf("状态消息获取失败（可能已被删除），放弃本轮更新: %v", err)
		return nil
	}
	return s.client.EditMessage(ctx, channelID, messageID, text)
}

// onMessageCreated 首条状态消息送达后的收尾：
// 兜底建租户行并幂等持久化message_id（重复回调只有第一次写入）。
func (s *MonitorService) onMessageCreated(msg gateway.Message) error {
	// 只处理自己发出的消息
	if s.botID != "" && msg.AuthorID != s.botID {
		return nil
	}

	guildName := msg.GuildID
	if g, ok := s.client.Guild(msg.GuildID); ok {
		guildName = g.Name
	}
	if err := s.guildSvc.EnsureFromMessage(msg, guildName); err != nil {
		return err
	}

	guild, err := s.guildSvc.GetByGuildID(msg.GuildID)
	if err != nil {
		return err
	}
	_, err = s.configSvc.SetIfAbsent(guild.ID, models.ConfigKeyMessageID, "string", msg.ID)
	return err
}
