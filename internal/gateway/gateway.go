// Package gateway 定义机器人与聊天平台交互的类型化接口。
// 协调引擎只依赖这里的接口，不直接接触Discord协议细节。
package gateway

import "context"

// Guild 平台侧的guild（租户组）
type Guild struct {
	ID          string
	Name        string
	OwnerID     string
	MemberCount int
}

// Message 平台侧的消息
type Message struct {
	ID        string
	ChannelID string
	GuildID   string
	AuthorID  string
	Content   string
}

// 命令选项类型常量（沿用Discord的option type编号）
const (
	OptionTypeSubcommand = 1
	OptionTypeString     = 3
)

// Command 结构化命令定义
type Command struct {
	Name        string
	Description string
	Options     []CommandOption
}

// CommandOption 命令选项
type CommandOption struct {
	Type        int
	Name        string
	Description string
	Required    bool
	MinLength   int
	Choices     []CommandChoice
	Options     []CommandOption
}

// CommandChoice 选项取值
type CommandChoice struct {
	Name  string
	Value string
}

// Interaction 一次命令调用事件，Options为子命令的具名参数值
type Interaction struct {
	ID         string
	Token      string
	GuildID    string
	ChannelID  string
	Subcommand string
	Options    map[string]string
}

// Events 网关事件回调。回调由网关的读循环串行调用。
type Events struct {
	OnReady        func()
	OnGuildCreate  func(Guild)
	OnHeartbeatAck func(elapsed float64) // 距上次ack经过的秒数
	OnInteraction  func(Interaction)
}

// Client 聊天平台客户端接口
type Client interface {
	// Guilds 返回当前已加入的guild列表
	Guilds() []Guild
	// Guild 按ID查询已加入的guild
	Guild(id string) (Guild, bool)

	SendMessage(ctx context.Context, channelID, content string) (Message, error)
	FetchMessage(ctx context.Context, channelID, messageID string) (Message, error)
	EditMessage(ctx context.Context, channelID, messageID, content string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error

	// RegisterCommand 注册guild级命令定义
	RegisterCommand(ctx context.Context, guildID string, cmd Command) error
	// UpdatePresence 更新机器人在线状态文本
	UpdatePresence(ctx context.Context, activity string) error
	// Respond 以仅调用者可见的方式回复一次命令调用
	Respond(ctx context.Context, i Interaction, content string) error
}
