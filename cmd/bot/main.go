package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"servicemonitor/internal/commands"
	"servicemonitor/internal/database"
	"servicemonitor/internal/gateway"
	"servicemonitor/internal/gateway/discord"
	"servicemonitor/internal/probe"
	"servicemonitor/internal/router"
	"servicemonitor/internal/services"
	"servicemonitor/pkg/config"
	"servicemonitor/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Bot.Token == "" {
		log.Fatal("BOT_TOKEN is required")
	}

	// 初始化日志
	if err := logger.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	appLogger := logger.GetLogger()
	appLogger.Info("Starting Service Monitor bot...")

	// 初始化数据库
	if err := database.Initialize(cfg); err != nil {
		appLogger.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			appLogger.Error("Failed to close database:", err)
		}
	}()

	// 执行数据库迁移
	if err := database.Migrate(); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	location, err := time.LoadLocation(cfg.Bot.Timezone)
	if err != nil {
		appLogger.Fatalf("Invalid BOT_TIMEZONE %q: %v", cfg.Bot.Timezone, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := database.GetDB()
	monitorCmd := commands.MonitorCommand()

	// 事件回调里的组件在客户端创建后才组装，用闭包延迟解引用。
	// 回调只会在session连上之后触发，届时一切就绪。
	var (
		scheduler   *services.Scheduler
		cmdHandler  *commands.Handler
		guildSvc    *services.GuildService
		rosterSched *services.RosterScheduler
		rosterOnce  sync.Once
		client      *discord.Client
	)

	events := gateway.Events{
		OnReady: func() {
			// 首次ready后启动名册同步调度器（立即同步一次+周期执行）
			rosterOnce.Do(func() {
				if err := rosterSched.Start(); err != nil {
					appLogger.Errorf("Failed to start roster scheduler: %v", err)
				}
			})
		},
		OnGuildCreate: func(g gateway.Guild) {
			if err := guildSvc.SyncGuild(ctx, client, g, monitorCmd); err != nil {
				appLogger.Errorf("同步guild %s 失败: %v", g.ID, err)
			}
		},
		OnHeartbeatAck: func(elapsed float64) {
			scheduler.OnHeartbeat(ctx, elapsed)
		},
		OnInteraction: func(i gateway.Interaction) {
			go cmdHandler.HandleInteraction(ctx, i)
		},
	}

	client = discord.NewClient(cfg.Bot.Token, cfg.Bot.ApplicationID, events)

	prober := probe.NewProber(time.Duration(cfg.Bot.ProbeTimeout) * time.Second)
	monitorSvc := services.NewMonitorService(db, client, prober,
		cfg.Bot.ApplicationID, location, cfg.Bot.SkipGuildIDs)
	scheduler = services.NewScheduler(monitorSvc, client, cfg.Bot.PingEverySeconds)
	guildSvc = services.NewGuildService(db)
	rosterSched = services.NewRosterScheduler(guildSvc, client, monitorCmd, cfg.Bot.RosterSyncSpec)
	cmdHandler = commands.NewHandler(db, client, scheduler, cfg.Bot.Version)

	// 启动网关会话
	gatewayDone := make(chan struct{})
	go func() {
		defer close(gatewayDone)
		if err := client.Run(ctx); err != nil {
			appLogger.Errorf("Gateway session exited with error: %v", err)
		}
	}()

	// 启动运维API
	gin.SetMode(cfg.Server.Mode)
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router.SetupRouter(db, client, cfg.Bot.Version),
	}
	go func() {
		appLogger.Infof("Ops API listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Errorf("Ops API server error: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down...")

	cancel()
	rosterSched.Stop()

	// 等在途巡检结束
	scheduler.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Errorf("Ops API shutdown error: %v", err)
	}

	<-gatewayDone
	appLogger.Info("Service Monitor stopped")
}
