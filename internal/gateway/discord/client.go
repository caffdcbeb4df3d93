package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"servicemonitor/internal/gateway"
	"servicemonitor/pkg/logger"

	"github.com/sirupsen/logrus"
)

var apiBase = "https://discord.com/api/v10"

// Client Discord网关客户端，实现gateway.Client。
// REST调用走HTTP API，事件流走websocket会话（见session.go）。
type Client struct {
	token string
	appID string
	httpc *http.Client
	log   *logrus.Logger

	events gateway.Events

	// guild缓存，由GUILD_CREATE/UPDATE/DELETE事件维护
	mu     sync.RWMutex
	guilds map[string]gateway.Guild

	session *session
}

// NewClient 创建Discord客户端
func NewClient(token, applicationID string, events gateway.Events) *Client {
	c := &Client{
		token:  token,
		appID:  applicationID,
		httpc:  &http.Client{Timeout: 15 * time.Second},
		log:    logger.GetLogger(),
		events: events,
		guilds: make(map[string]gateway.Guild),
	}
	c.session = newSession(c)
	return c
}

// Run 连接websocket网关并阻塞处理事件，ctx取消后返回
func (c *Client) Run(ctx context.Context) error {
	return c.session.run(ctx)
}

// Guilds 返回当前已加入的guild列表（按ID排序，保证遍历顺序稳定）
func (c *Client) Guilds() []gateway.Guild {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]gateway.Guild, 0, len(c.guilds))
	for _, g := range c.guilds {
		result = append(result, g)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Guild 按ID查询已加入的guild
func (c *Client) Guild(id string) (gateway.Guild, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.guilds[id]
	return g, ok
}

func (c *Client) putGuild(g gateway.Guild) {
	c.mu.Lock()
	c.guilds[g.ID] = g
	c.mu.Unlock()
}

func (c *Client) removeGuild(id string) {
	c.mu.Lock()
	delete(c.guilds, id)
	c.mu.Unlock()
}

// ========== REST 消息操作 ==========

type restMessage struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
	Content   string `json:"content"`
	Author    struct {
		ID string `json:"id"`
	} `json:"author"`
}

func (m restMessage) toGateway() gateway.Message {
	return gateway.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		AuthorID:  m.Author.ID,
		Content:   m.Content,
	}
}

func (c *Client) SendMessage(ctx context.Context, channelID, content string) (gateway.Message, error) {
	var out restMessage
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%s/messages", channelID),
		map[string]string{"content": content}, &out)
	if err != nil {
		return gateway.Message{}, err
	}
	return out.toGateway(), nil
}

func (c *Client) FetchMessage(ctx context.Context, channelID, messageID string) (gateway.Message, error) {
	var out restMessage
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID), nil, &out)
	if err != nil {
		return gateway.Message{}, err
	}
	return out.toGateway(), nil
}

func (c *Client) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID),
		map[string]string{"content": content}, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID), nil, nil)
}

// ========== REST 命令注册与交互响应 ==========

type restCommandOption struct {
	Type        int                 `json:"type"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Required    bool                `json:"required,omitempty"`
	MinLength   int                 `json:"min_length,omitempty"`
	Choices     []restCommandChoice `json:"choices,omitempty"`
	Options     []restCommandOption `json:"options,omitempty"`
}

type restCommandChoice struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func toRestOptions(opts []gateway.CommandOption) []restCommandOption {
	if len(opts) == 0 {
		return nil
	}
	result := make([]restCommandOption, 0, len(opts))
	for _, o := range opts {
		ro := restCommandOption{
			Type:        o.Type,
			Name:        o.Name,
			Description: o.Description,
			Required:    o.Required,
			MinLength:   o.MinLength,
			Options:     toRestOptions(o.Options),
		}
		for _, ch := range o.Choices {
			ro.Choices = append(ro.Choices, restCommandChoice{Name: ch.Name, Value: ch.Value})
		}
		result = append(result, ro)
	}
	return result
}

func (c *Client) RegisterCommand(ctx context.Context, guildID string, cmd gateway.Command) error {
	body := map[string]interface{}{
		"name":        cmd.Name,
		"description": cmd.Description,
		"options":     toRestOptions(cmd.Options),
	}
	return c.do(ctx, http.MethodPost,
		fmt.Sprintf("/applications/%s/guilds/%s/commands", c.appID, guildID), body, nil)
}

// Respond 以ephemeral消息回复交互（flags 64 = 仅调用者可见）
func (c *Client) Respond(ctx context.Context, i gateway.Interaction, content string) error {
	body := map[string]interface{}{
		"type": 4, // CHANNEL_MESSAGE_WITH_SOURCE
		"data": map[string]interface{}{
			"content": content,
			"flags":   64,
		},
	}
	return c.do(ctx, http.MethodPost,
		fmt.Sprintf("/interactions/%s/%s/callback", i.ID, i.Token), body, nil)
}

// UpdatePresence 更新在线状态，走websocket会话
func (c *Client) UpdatePresence(ctx context.Context, activity string) error {
	return c.session.updatePresence(activity)
}

// do 执行REST请求，2xx以外的状态码视为错误
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiBase+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord API %s %s 返回 %d: %s", method, path, resp.StatusCode, string(data))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
