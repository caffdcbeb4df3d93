package services

import (
	"context"
	"sync"

	"servicemonitor/internal/gateway"
	"servicemonitor/pkg/logger"
)

// PassRunner 一轮巡检的执行方，MonitorService实现它
type PassRunner interface {
	RunPass(ctx context.Context, g gateway.Guild) error
}

// GuildLister 活跃guild枚举方，gateway.Client实现它
type GuildLister interface {
	Guilds() []gateway.Guild
}

// Scheduler 巡检调度器。
// 外部心跳按到达顺序串行投递，累加器不需要加锁；
// 触发出去的巡检按guild并行，同一guild最多一轮在途。
type Scheduler struct {
	runner   PassRunner
	lister   GuildLister
	interval float64 // 触发阈值（秒）

	accumulated float64 // 自上次触发以来累计的心跳秒数

	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup
}

// NewScheduler 创建调度器
func NewScheduler(runner PassRunner, lister GuildLister, intervalSeconds int) *Scheduler {
	return &Scheduler{
		runner:   runner,
		lister:   lister,
		interval: float64(intervalSeconds),
		inflight: make(map[string]bool),
	}
}

// OnHeartbeat 心跳回调：累加本次心跳间隔，越过阈值就触发一轮并清零。
// 不做补偿触发，长时间空转后下一次越线也只触发一次。
func (s *Scheduler) OnHeartbeat(ctx context.Context, delta float64) {
	s.accumulated += delta
	logger.GetLogger().Debugf("Time since last ping: %.0fs, left until ping: %.0fs",
		s.accumulated, s.interval-s.accumulated)

	if s.accumulated < s.interval {
		return
	}

	logger.GetLogger().Info("Pinging servers...")
	for _, g := range s.lister.Guilds() {
		s.TriggerGuild(ctx, g)
	}
	s.accumulated = 0
}

// TriggerGuild 为单个guild调度一轮巡检。
// 该guild已有在途巡检时放弃本次触发，保证同guild不自我并发。
func (s *Scheduler) TriggerGuild(ctx context.Context, g gateway.Guild) {
	s.mu.Lock()
	if s.inflight[g.ID] {
		s.mu.Unlock()
		logger.GetLogger().Warnf("guild %s 巡检仍在进行，跳过本次触发", g.ID)
		return
	}
	s.inflight[g.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, g.ID)
			s.mu.Unlock()
		}()

		if err := s.runner.RunPass(ctx, g); err != nil {
			logger.GetLogger().Errorf("guild %s 巡检失败: %v", g.ID, err)
		}
	}()
}

// Wait 等待所有在途巡检结束（停机时调用）
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
