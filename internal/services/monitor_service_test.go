package services

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"servicemonitor/internal/gateway"
	"servicemonitor/internal/models"
	"servicemonitor/internal/probe"

	"gorm.io/gorm"
)

// 起一个本地监听当作在线端点
func localListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return ln.Addr().String()
}

func newMonitorFixture(t *testing.T, client gateway.Client, db *gorm.DB, skip ...string) *MonitorService {
	t.Helper()
	return NewMonitorService(db, client, probe.NewProber(time.Second), "bot-app", time.UTC, skip)
}

func TestRunPass_NoActiveServers_NoSend(t *testing.T) {
	db := newTestDB(t)
	client := newFakeClient(guildFixture("g1", "One"))
	guild := seedGuild(t, NewGuildService(db), "g1", "One")
	NewConfigService(db).SetIfAbsent(guild.ID, models.ConfigKeyMessageChannel, "string", "chan-1")

	svc := newMonitorFixture(t, client, db)
	if err := svc.RunPass(context.Background(), client.guilds[0]); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	if client.sentCount() != 0 {
		t.Fatalf("zero-endpoint pass must not send a report")
	}
}

func TestRunPass_CreatesMessageThenEdits(t *testing.T) {
	db := newTestDB(t)
	client := newFakeClient(guildFixture("g1", "One"))
	guild := seedGuild(t, NewGuildService(db), "g1", "One")
	NewConfigService(db).SetIfAbsent(guild.ID, models.ConfigKeyMessageChannel, "string", "chan-1")
	NewServerService(db).Create(guild.ID, "web", localListener(t), models.ProtocolTCP)

	svc := newMonitorFixture(t, client, db)

	// 第一轮：无message_id → 新建消息并持久化ID
	if err := svc.RunPass(context.Background(), client.guilds[0]); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if client.sentCount() != 1 {
		t.Fatalf("expected 1 sent message, got %d", client.sentCount())
	}

	stored, ok, _ := NewConfigService(db).Get(guild.ID, models.ConfigKeyMessageID)
	if !ok || stored != client.sent[0].ID {
		t.Fatalf("expected message id %q persisted, got %q (ok=%v)", client.sent[0].ID, stored, ok)
	}

	// 第二轮：message_id已知 → 原地编辑，不再新建
	if err := svc.RunPass(context.Background(), client.guilds[0]); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if client.sentCount() != 1 {
		t.Fatalf("second pass must edit, not send; sent=%d", client.sentCount())
	}
	if client.editCount() != 1 {
		t.Fatalf("expected 1 edit, got %d", client.editCount())
	}
}

func TestRunPass_MissingChannelBinding_Skips(t *testing.T) {
	db := newTestDB(t)
	client := newFakeClient(guildFixture("g1", "One"))
	guild := seedGuild(t, NewGuildService(db), "g1", "One")
	NewServerService(db).Create(guild.ID, "web", localListener(t), models.ProtocolTCP)

	svc := newMonitorFixture(t, client, db)
	// 未绑定message_channel是前置条件失败，不是错误
	if err := svc.RunPass(context.Background(), client.guilds[0]); err != nil {
		t.Fatalf("RunPass should skip quietly, got %v", err)
	}
	if client.sentCount() != 0 {
		t.Fatalf("no channel binding, nothing should be sent")
	}
}

func TestRunPass_FetchFailureDropsUpdate(t *testing.T) {
	db := newTestDB(t)
	client := newFakeClient(guildFixture("g1", "One"))
	guild := seedGuild(t, NewGuildService(db), "g1", "One")
	cfgSvc := NewConfigService(db)
	cfgSvc.SetIfAbsent(guild.ID, models.ConfigKeyMessageChannel, "string", "chan-1")
	cfgSvc.SetIfAbsent(guild.ID, models.ConfigKeyMessageID, "string", "msg-gone")
	NewServerService(db).Create(guild.ID, "web", localListener(t), models.ProtocolTCP)

	client.failFetch = true

	svc := newMonitorFixture(t, client, db)
	if err := svc.RunPass(context.Background(), client.guilds[0]); err != nil {
		t.Fatalf("fetch failure must not surface as error, got %v", err)
	}

	// 外部删除的消息：放弃本轮更新，不新建也不编辑
	if client.sentCount() != 0 || client.editCount() != 0 {
		t.Fatalf("update must be dropped; sent=%d edits=%d", client.sentCount(), client.editCount())
	}
	stored, ok, _ := cfgSvc.Get(guild.ID, models.ConfigKeyMessageID)
	if !ok || stored != "msg-gone" {
		t.Fatalf("message_id must stay untouched, got %q (ok=%v)", stored, ok)
	}
}

func TestRunPass_SkippedGuild(t *testing.T) {
	db := newTestDB(t)
	client := newFakeClient(guildFixture("g1", "One"))
	guild := seedGuild(t, NewGuildService(db), "g1", "One")
	NewConfigService(db).SetIfAbsent(guild.ID, models.ConfigKeyMessageChannel, "string", "chan-1")
	NewServerService(db).Create(guild.ID, "web", localListener(t), models.ProtocolTCP)

	svc := newMonitorFixture(t, client, db, "g1")
	if err := svc.RunPass(context.Background(), client.guilds[0]); err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if client.sentCount() != 0 {
		t.Fatalf("guild on the skip list must not be probed")
	}
}

func TestRunPass_UnknownGuild_NoError(t *testing.T) {
	db := newTestDB(t)
	client := newFakeClient(guildFixture("g1", "One"))

	svc := newMonitorFixture(t, client, db)
	if err := svc.RunPass(context.Background(), client.guilds[0]); err != nil {
		t.Fatalf("pass for guild missing from store should be a quiet skip, got %v", err)
	}
}

func TestRunPass_StoreFailureSurfaces(t *testing.T) {
	db := newTestDB(t)
	client := newFakeClient(guildFixture("g1", "One"))

	// 弄坏存储层，巡检必须把故障报出来，而不是当成"guild未入库"吞掉
	if err := db.Exec("DROP TABLE guilds").Error; err != nil {
		t.Fatalf("drop table: %v", err)
	}

	svc := newMonitorFixture(t, client, db)
	if err := svc.RunPass(context.Background(), client.guilds[0]); err == nil {
		t.Fatalf("store failure must abort the pass with an error")
	}
}

func TestRunPass_ReportContent(t *testing.T) {
	db := newTestDB(t)
	client := newFakeClient(guildFixture("g1", "One"))
	guild := seedGuild(t, NewGuildService(db), "g1", "One")
	NewConfigService(db).SetIfAbsent(guild.ID, models.ConfigKeyMessageChannel, "string", "chan-1")

	serverSvc := NewServerService(db)
	aliveAddr := localListener(t)
	serverSvc.Create(guild.ID, "alive", aliveAddr, models.ProtocolTCP)

	// 占用后释放端口，保证没人监听
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	deadAddr := ln.Addr().String()
	ln.Close()
	serverSvc.Create(guild.ID, "dead", deadAddr, models.ProtocolTCP)

	svc := newMonitorFixture(t, client, db)
	if err := svc.RunPass(context.Background(), client.guilds[0]); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	if client.sentCount() != 1 {
		t.Fatalf("expected 1 sent message, got %d", client.sentCount())
	}
	content := client.sent[0].Content
	for _, want := range []string{"🟢 alive", "🔴 dead", aliveAddr, deadAddr} {
		if !strings.Contains(content, want) {
			t.Errorf("report missing %q:\n%s", want, content)
		}
	}
}
