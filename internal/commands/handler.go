package commands

import (
	"context"
	"fmt"
	"regexp"

	"servicemonitor/internal/gateway"
	"servicemonitor/internal/models"
	"servicemonitor/internal/services"
	"servicemonitor/pkg/logger"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// 地址必须是严格的 IPv4:端口 形式，如 1.1.1.1:1000
var addressPattern = regexp.MustCompile(`^[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}:[0-9]{1,4}$`)

// Handler 命令调用处理器，所有响应都是ephemeral
type Handler struct {
	guildSvc  *services.GuildService
	serverSvc *services.ServerService
	configSvc *services.ConfigService
	scheduler *services.Scheduler
	client    gateway.Client
	version   string
	validate  *validator.Validate
}

// NewHandler 创建命令处理器
func NewHandler(db *gorm.DB, client gateway.Client, scheduler *services.Scheduler, version string) *Handler {
	v := validator.New()
	// 注册地址校验规则
	_ = v.RegisterValidation("ipport", func(fl validator.FieldLevel) bool {
		return addressPattern.MatchString(fl.Field().String())
	})

	return &Handler{
		guildSvc:  services.NewGuildService(db),
		serverSvc: services.NewServerService(db),
		configSvc: services.NewConfigService(db),
		scheduler: scheduler,
		client:    client,
		version:   version,
		validate:  v,
	}
}

// addRequest /monitor add 的参数
type addRequest struct {
	Name     string `validate:"required,min=1,max=100"`
	Address  string `validate:"required,ipport"`
	Protocol string `validate:"required,oneof=tcp udp"`
}

// HandleInteraction 处理一次命令调用
func (h *Handler) HandleInteraction(ctx context.Context, i gateway.Interaction) {
	log := logger.GetLogger()
	log.Debugf("收到monitor命令: guild=%s sub=%s", i.GuildID, i.Subcommand)

	switch i.Subcommand {
	case "add":
		h.handleAdd(ctx, i)
	case "remove":
		h.handleRemove(ctx, i)
	case "refresh":
		h.handleRefresh(ctx, i)
	case "wipe":
		h.handleWipe(ctx, i)
	case "about":
		h.respond(ctx, i, fmt.Sprintf(
			"Server Monitor Bot, version: **%s**. Author: [byErikas](https://github.com/byErikas/Discord-ServiceMonitor)",
			h.version))
	default:
		h.respond(ctx, i, "Unknown command, sorry!")
	}
}

func (h *Handler) handleAdd(ctx context.Context, i gateway.Interaction) {
	req := addRequest{
		Name:     i.Options["name"],
		Address:  i.Options["address"],
		Protocol: i.Options["protocol"],
	}

	if err := h.validate.Struct(&req); err != nil {
		msg := "Invalid input, please check the command options and try again!"
		if validationErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fieldErr := range validationErrs {
				switch fieldErr.Field() {
				case "Address":
					msg = "Invalid address format, IP:Port is required, ex.: 1.1.1.1:1000."
				case "Protocol":
					msg = "Protocol must be either tcp or udp."
				case "Name":
					msg = "Server name must be between 1 and 100 characters."
				}
				break // 只报第一个错误
			}
		}
		h.respond(ctx, i, msg)
		return
	}

	guild, err := h.guildSvc.GetByGuildID(i.GuildID)
	if err != nil {
		h.respond(ctx, i, "This Discord server isn't set up yet, try again in a bit!")
		return
	}

	if _, err := h.serverSvc.Create(guild.ID, req.Name, req.Address, req.Protocol); err != nil {
		if err.Error() == "同名服务器已存在" {
			h.respond(ctx, i, "Server with that name already exists, try again with a different name!")
			return
		}
		logger.GetLogger().Errorf("创建端点失败 guild=%s: %v", i.GuildID, err)
		h.respond(ctx, i, "Something went wrong while adding the server, try again!")
		return
	}

	h.respond(ctx, i, "Server added! Run the refresh command or wait for the periodic re-ping to see changes.")
}

func (h *Handler) handleRemove(ctx context.Context, i gateway.Interaction) {
	guild, err := h.guildSvc.GetByGuildID(i.GuildID)
	if err != nil {
		h.respond(ctx, i, "This Discord server isn't set up yet, try again in a bit!")
		return
	}

	if err := h.serverSvc.Remove(guild.ID, i.Options["name"]); err != nil {
		if err.Error() == "服务器不存在" {
			h.respond(ctx, i, "Server with that name doesn't exist, please check for incorrect input and try again!")
			return
		}
		logger.GetLogger().Errorf("删除端点失败 guild=%s: %v", i.GuildID, err)
		h.respond(ctx, i, "Something went wrong while removing the server, try again!")
		return
	}

	h.respond(ctx, i, "Server removed! Run the refresh command or wait for the periodic re-ping to see changes.")
}

func (h *Handler) handleRefresh(ctx context.Context, i gateway.Interaction) {
	h.respond(ctx, i, "Monitored server refresh requested!")

	g, ok := h.client.Guild(i.GuildID)
	if !ok {
		g = gateway.Guild{ID: i.GuildID}
	}
	h.scheduler.TriggerGuild(ctx, g)
}

func (h *Handler) handleWipe(ctx context.Context, i gateway.Interaction) {
	g, ok := h.client.Guild(i.GuildID)
	if !ok || i.Options["confirmation"] != g.Name {
		// 确认串必须与guild当前显示名完全一致，否则不触碰任何数据
		h.respond(ctx, i, "Confirmation doesn't match this Discord server's name, nothing was wiped.")
		return
	}

	guild, err := h.guildSvc.GetByGuildID(i.GuildID)
	if err != nil {
		h.respond(ctx, i, "This Discord server isn't set up yet, nothing to wipe!")
		return
	}

	log := logger.GetLogger()

	if err := h.serverSvc.WipeAll(guild.ID); err != nil {
		log.Errorf("wipe端点失败 guild=%s: %v", i.GuildID, err)
		h.respond(ctx, i, "Something went wrong while wiping, try again!")
		return
	}

	// 删除频道里的状态消息，失败只记日志（消息可能早被手动删了）
	messageID, hasMsg, _ := h.configSvc.Get(guild.ID, models.ConfigKeyMessageID)
	channelID, hasChannel, _ := h.configSvc.Get(guild.ID, models.ConfigKeyMessageChannel)
	if hasMsg && hasChannel {
		if err := h.client.DeleteMessage(ctx, channelID, messageID); err != nil {
			log.Warnf("删除状态消息失败 guild=%s: %v", i.GuildID, err)
		}
	}

	if err := h.configSvc.DeleteAll(guild.ID); err != nil {
		log.Errorf("wipe配置失败 guild=%s: %v", i.GuildID, err)
		h.respond(ctx, i, "Something went wrong while wiping, try again!")
		return
	}

	h.respond(ctx, i, "Server Monitor configuration wiped.")
}

func (h *Handler) respond(ctx context.Context, i gateway.Interaction, content string) {
	if err := h.client.Respond(ctx, i, content); err != nil {
		logger.GetLogger().Warnf("回复交互失败 guild=%s: %v", i.GuildID, err)
	}
}
