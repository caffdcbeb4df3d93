package services

import (
	"context"
	"fmt"

	"servicemonitor/internal/gateway"
	"servicemonitor/pkg/logger"

	"github.com/robfig/cron/v3"
)

// RosterScheduler 名册同步调度器：
// 周期性把租户名册和平台侧guild列表对齐，并刷新机器人在线状态。
type RosterScheduler struct {
	guildSvc *GuildService
	client   gateway.Client
	command  gateway.Command
	spec     string

	cron    *cron.Cron
	running bool
}

// NewRosterScheduler 创建名册同步调度器
func NewRosterScheduler(guildSvc *GuildService, client gateway.Client, command gateway.Command, spec string) *RosterScheduler {
	return &RosterScheduler{
		guildSvc: guildSvc,
		client:   client,
		command:  command,
		spec:     spec,
		cron:     cron.New(),
	}
}

// Start 先立即同步一次（进程启动语义），再按cron表达式周期执行
func (s *RosterScheduler) Start() error {
	if s.running {
		return fmt.Errorf("调度器已经在运行")
	}

	logger.GetLogger().Info("启动名册同步调度器")

	s.RunOnce(context.Background())

	if _, err := s.cron.AddFunc(s.spec, func() {
		s.RunOnce(context.Background())
	}); err != nil {
		return fmt.Errorf("添加名册同步任务失败: %v", err)
	}

	s.cron.Start()
	s.running = true
	return nil
}

// Stop 停止调度器
func (s *RosterScheduler) Stop() {
	if !s.running {
		return
	}
	logger.GetLogger().Info("停止名册同步调度器")
	s.cron.Stop()
	s.running = false
}

// RunOnce 执行一次名册同步和在线状态刷新
func (s *RosterScheduler) RunOnce(ctx context.Context) {
	log := logger.GetLogger()

	if err := s.guildSvc.SyncRoster(ctx, s.client, s.command); err != nil {
		log.Errorf("名册同步失败: %v", err)
	}

	if err := s.client.UpdatePresence(ctx, presenceText(len(s.client.Guilds()))); err != nil {
		log.Warnf("刷新在线状态失败: %v", err)
	}
}

// presenceText 在线状态文案，注意单复数
func presenceText(guildCount int) string {
	if guildCount == 1 {
		return "1 Discord server!"
	}
	return fmt.Sprintf("%d Discord servers!", guildCount)
}
