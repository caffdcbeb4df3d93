package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"servicemonitor/internal/gateway"

	"github.com/gorilla/websocket"
)

// gateway opcode常量
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opPresenceUpdate = 3
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

const intentGuilds = 1 << 0

// session 一条websocket网关会话，断线后自动重连
type session struct {
	client *Client

	writeMu sync.Mutex
	conn    *websocket.Conn

	seq        int64
	lastAck    time.Time
	activity   string
	activityMu sync.Mutex
}

type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  int64           `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

func newSession(c *Client) *session {
	return &session{client: c}
}

// run 连接网关并处理事件直到ctx取消，连接中断时退避重连
func (s *session) run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := s.connectAndListen(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.client.log.Errorf("网关会话中断: %v，%s后重连", err, backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
	}
}

func (s *session) connectAndListen(ctx context.Context) error {
	url, err := s.gatewayURL(ctx)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url+"?v=10&encoding=json", nil)
	if err != nil {
		return fmt.Errorf("连接网关失败: %v", err)
	}
	defer conn.Close()

	// ctx取消时主动关闭连接，把阻塞中的ReadJSON解出来
	connCtx, cancelConn := context.WithCancel(ctx)
	defer cancelConn()
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	s.writeMu.Lock()
	s.conn = conn
	s.writeMu.Unlock()

	// 先收hello，拿到心跳间隔
	var hello payload
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("读取hello失败: %v", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("期望hello(op=10)，收到op=%d", hello.Op)
	}
	var helloData struct {
		HeartbeatInterval int `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(hello.D, &helloData); err != nil {
		return err
	}

	if err := s.identify(); err != nil {
		return err
	}

	// 重连后补发最近一次presence，不然要等下轮名册同步才恢复
	s.activityMu.Lock()
	activity := s.activity
	s.activityMu.Unlock()
	if activity != "" {
		if err := s.writePresence(activity); err != nil {
			return err
		}
	}

	// 心跳循环
	go s.heartbeatLoop(connCtx, time.Duration(helloData.HeartbeatInterval)*time.Millisecond)

	s.lastAck = time.Now()

	// 读循环，回调在此串行触发
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		var p payload
		if err := conn.ReadJSON(&p); err != nil {
			return fmt.Errorf("读取网关消息失败: %v", err)
		}

		switch p.Op {
		case opDispatch:
			if p.S != 0 {
				s.seq = p.S
			}
			s.dispatch(p)
		case opHeartbeat:
			// 网关主动要求心跳
			s.write(payload{Op: opHeartbeat, D: s.seqPayload()})
		case opHeartbeatAck:
			now := time.Now()
			elapsed := now.Sub(s.lastAck).Seconds()
			s.lastAck = now
			if s.client.events.OnHeartbeatAck != nil {
				s.client.events.OnHeartbeatAck(elapsed)
			}
		case opReconnect, opInvalidSession:
			return fmt.Errorf("网关要求重连 (op=%d)", p.Op)
		}
	}
}

// gatewayURL 查询websocket接入地址
func (s *session) gatewayURL(ctx context.Context) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := s.client.do(ctx, http.MethodGet, "/gateway/bot", nil, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func (s *session) identify() error {
	return s.write(payload{
		Op: opIdentify,
		D: mustMarshal(map[string]interface{}{
			"token":   s.client.token,
			"intents": intentGuilds,
			"properties": map[string]string{
				"os":      "linux",
				"browser": "servicemonitor",
				"device":  "servicemonitor",
			},
		}),
	})
}

func (s *session) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.write(payload{Op: opHeartbeat, D: s.seqPayload()}); err != nil {
				return
			}
		}
	}
}

func (s *session) seqPayload() json.RawMessage {
	if s.seq == 0 {
		return json.RawMessage("null")
	}
	return mustMarshal(s.seq)
}

// updatePresence 发送presence更新，并记住文案供重连后补发
func (s *session) updatePresence(activity string) error {
	s.activityMu.Lock()
	s.activity = activity
	s.activityMu.Unlock()

	return s.writePresence(activity)
}

func (s *session) writePresence(activity string) error {
	return s.write(payload{
		Op: opPresenceUpdate,
		D: mustMarshal(map[string]interface{}{
			"since": nil,
			"activities": []map[string]interface{}{
				{"name": activity, "type": 3}, // 3 = watching
			},
			"status": "online",
			"afk":    false,
		}),
	})
}

func (s *session) write(p payload) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("网关未连接")
	}
	return s.conn.WriteJSON(p)
}

// ========== 事件分发 ==========

type guildPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	OwnerID     string `json:"owner_id"`
	MemberCount int    `json:"member_count"`
	Unavailable bool   `json:"unavailable"`
}

func (s *session) dispatch(p payload) {
	switch p.T {
	case "READY":
		s.client.log.Info("Gateway session ready")
		if s.client.events.OnReady != nil {
			s.client.events.OnReady()
		}
	case "GUILD_CREATE", "GUILD_UPDATE":
		var g guildPayload
		if err := json.Unmarshal(p.D, &g); err != nil {
			s.client.log.Warnf("解析guild事件失败: %v", err)
			return
		}
		if g.Unavailable {
			return
		}
		gw := gateway.Guild{ID: g.ID, Name: g.Name, OwnerID: g.OwnerID, MemberCount: g.MemberCount}
		s.client.putGuild(gw)
		if p.T == "GUILD_CREATE" && s.client.events.OnGuildCreate != nil {
			s.client.events.OnGuildCreate(gw)
		}
	case "GUILD_DELETE":
		var g guildPayload
		if err := json.Unmarshal(p.D, &g); err != nil {
			return
		}
		// unavailable=true表示临时掉线而非被移出，不清缓存
		if !g.Unavailable {
			s.client.removeGuild(g.ID)
		}
	case "INTERACTION_CREATE":
		i, ok := s.parseInteraction(p.D)
		if !ok {
			return
		}
		if s.client.events.OnInteraction != nil {
			s.client.events.OnInteraction(i)
		}
	}
}

type interactionPayload struct {
	ID        string `json:"id"`
	Token     string `json:"token"`
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	Data      struct {
		Name    string `json:"name"`
		Options []struct {
			Name    string `json:"name"`
			Type    int    `json:"type"`
			Options []struct {
				Name  string          `json:"name"`
				Value json.RawMessage `json:"value"`
			} `json:"options"`
		} `json:"options"`
	} `json:"data"`
}

// parseInteraction 把平台交互事件压平成子命令+具名参数
func (s *session) parseInteraction(data json.RawMessage) (gateway.Interaction, bool) {
	var raw interactionPayload
	if err := json.Unmarshal(data, &raw); err != nil {
		s.client.log.Warnf("解析interaction事件失败: %v", err)
		return gateway.Interaction{}, false
	}
	if len(raw.Data.Options) == 0 {
		return gateway.Interaction{}, false
	}

	sub := raw.Data.Options[0]
	options := make(map[string]string, len(sub.Options))
	for _, o := range sub.Options {
		var v string
		if err := json.Unmarshal(o.Value, &v); err != nil {
			v = string(o.Value)
		}
		options[o.Name] = v
	}

	return gateway.Interaction{
		ID:         raw.ID,
		Token:      raw.Token,
		GuildID:    raw.GuildID,
		ChannelID:  raw.ChannelID,
		Subcommand: sub.Name,
		Options:    options,
	}, true
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
