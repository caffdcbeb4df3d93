package commands

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"servicemonitor/internal/gateway"
	"servicemonitor/internal/models"
	"servicemonitor/internal/services"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Guild{}, &models.Server{}, &models.Configuration{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fakeClient 命令层用的网关替身，只记录调用
type fakeClient struct {
	mu        sync.Mutex
	guilds    []gateway.Guild
	responses []string
	deleted   []string
}

func (f *fakeClient) Guilds() []gateway.Guild { return f.guilds }
func (f *fakeClient) Guild(id string) (gateway.Guild, bool) {
	for _, g := range f.guilds {
		if g.ID == id {
			return g, true
		}
	}
	return gateway.Guild{}, false
}
func (f *fakeClient) SendMessage(ctx context.Context, channelID, content string) (gateway.Message, error) {
	return gateway.Message{ID: "m1", ChannelID: channelID}, nil
}
func (f *fakeClient) FetchMessage(ctx context.Context, channelID, messageID string) (gateway.Message, error) {
	return gateway.Message{ID: messageID}, nil
}
func (f *fakeClient) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	return nil
}
func (f *fakeClient) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}
func (f *fakeClient) RegisterCommand(ctx context.Context, guildID string, cmd gateway.Command) error {
	return nil
}
func (f *fakeClient) UpdatePresence(ctx context.Context, activity string) error { return nil }
func (f *fakeClient) Respond(ctx context.Context, i gateway.Interaction, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, content)
	return nil
}

func (f *fakeClient) lastResponse() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.responses) == 0 {
		return ""
	}
	return f.responses[len(f.responses)-1]
}

// noopRunner refresh测试里不关心巡检本身
type noopRunner struct{}

func (noopRunner) RunPass(ctx context.Context, g gateway.Guild) error { return nil }

func newHandlerFixture(t *testing.T) (*Handler, *fakeClient, *gorm.DB, *models.Guild) {
	t.Helper()
	db := newTestDB(t)
	client := &fakeClient{guilds: []gateway.Guild{{ID: "g1", Name: "My Guild"}}}

	guild, _, err := services.NewGuildService(db).EnsureGuild(gateway.Guild{ID: "g1", Name: "My Guild"})
	if err != nil {
		t.Fatalf("seed guild: %v", err)
	}

	scheduler := services.NewScheduler(noopRunner{}, client, 300)
	return NewHandler(db, client, scheduler, "9.9.9"), client, db, guild
}

func interaction(sub string, opts map[string]string) gateway.Interaction {
	return gateway.Interaction{
		ID:         "i1",
		Token:      "tok",
		GuildID:    "g1",
		ChannelID:  "chan-1",
		Subcommand: sub,
		Options:    opts,
	}
}

func TestAddressPattern(t *testing.T) {
	tests := []struct {
		address string
		valid   bool
	}{
		{"1.1.1.1:1000", true},
		{"192.168.0.1:80", true},
		{"255.255.255.255:9999", true},
		{"1.1.1.1", false},
		{"example.com:80", false},
		{"1.1.1.1:100000", false},
		{"1.1.1:80", false},
		{"1.1.1.1:", false},
		{":80", false},
		{"a1.1.1.1:80", false},
		{"1.1.1.1:80b", false},
	}
	for _, tt := range tests {
		if got := addressPattern.MatchString(tt.address); got != tt.valid {
			t.Errorf("addressPattern(%q) = %v, want %v", tt.address, got, tt.valid)
		}
	}
}

func TestHandleAdd_Success(t *testing.T) {
	h, client, db, guild := newHandlerFixture(t)

	h.HandleInteraction(context.Background(), interaction("add", map[string]string{
		"name": "web", "address": "1.1.1.1:80", "protocol": "tcp",
	}))

	if !strings.HasPrefix(client.lastResponse(), "Server added!") {
		t.Fatalf("unexpected response %q", client.lastResponse())
	}
	var count int64
	db.Model(&models.Server{}).Where("guild_id = ?", guild.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected server row, got %d", count)
	}
}

func TestHandleAdd_InvalidAddress(t *testing.T) {
	h, client, db, _ := newHandlerFixture(t)

	h.HandleInteraction(context.Background(), interaction("add", map[string]string{
		"name": "web", "address": "not-an-address", "protocol": "tcp",
	}))

	if !strings.HasPrefix(client.lastResponse(), "Invalid address format") {
		t.Fatalf("unexpected response %q", client.lastResponse())
	}
	var count int64
	db.Model(&models.Server{}).Count(&count)
	if count != 0 {
		t.Fatalf("invalid add must not write, got %d rows", count)
	}
}

func TestHandleAdd_DuplicateName(t *testing.T) {
	h, client, db, guild := newHandlerFixture(t)
	services.NewServerService(db).Create(guild.ID, "web", "1.1.1.1:80", models.ProtocolTCP)

	h.HandleInteraction(context.Background(), interaction("add", map[string]string{
		"name": "web", "address": "2.2.2.2:80", "protocol": "udp",
	}))

	if !strings.HasPrefix(client.lastResponse(), "Server with that name already exists") {
		t.Fatalf("unexpected response %q", client.lastResponse())
	}
	var count int64
	db.Model(&models.Server{}).Count(&count)
	if count != 1 {
		t.Fatalf("duplicate add must not write, got %d rows", count)
	}
}

func TestHandleRemove_Missing(t *testing.T) {
	h, client, _, _ := newHandlerFixture(t)

	h.HandleInteraction(context.Background(), interaction("remove", map[string]string{"name": "ghost"}))

	if !strings.HasPrefix(client.lastResponse(), "Server with that name doesn't exist") {
		t.Fatalf("unexpected response %q", client.lastResponse())
	}
}

func TestHandleWipe_ConfirmationMismatch(t *testing.T) {
	h, client, db, guild := newHandlerFixture(t)
	services.NewServerService(db).Create(guild.ID, "web", "1.1.1.1:80", models.ProtocolTCP)
	services.NewConfigService(db).SetIfAbsent(guild.ID, models.ConfigKeyMessageID, "string", "m1")

	h.HandleInteraction(context.Background(), interaction("wipe", map[string]string{
		"confirmation": "Wrong Name",
	}))

	if !strings.HasPrefix(client.lastResponse(), "Confirmation doesn't match") {
		t.Fatalf("unexpected response %q", client.lastResponse())
	}

	// 什么都不能动
	servers, _ := services.NewServerService(db).ListActive(guild.ID)
	if len(servers) != 1 {
		t.Errorf("servers must be untouched, got %d active", len(servers))
	}
	var configCount int64
	db.Model(&models.Configuration{}).Where("guild_id = ?", guild.ID).Count(&configCount)
	if configCount != 1 {
		t.Errorf("configs must be untouched, got %d", configCount)
	}
	if len(client.deleted) != 0 {
		t.Errorf("no message deletion expected, got %v", client.deleted)
	}
}

func TestHandleWipe_Success(t *testing.T) {
	h, client, db, guild := newHandlerFixture(t)
	services.NewServerService(db).Create(guild.ID, "web", "1.1.1.1:80", models.ProtocolTCP)
	cfgSvc := services.NewConfigService(db)
	cfgSvc.SetIfAbsent(guild.ID, models.ConfigKeyMessageChannel, "string", "chan-1")
	cfgSvc.SetIfAbsent(guild.ID, models.ConfigKeyMessageID, "string", "m1")

	h.HandleInteraction(context.Background(), interaction("wipe", map[string]string{
		"confirmation": "My Guild",
	}))

	if client.lastResponse() != "Server Monitor configuration wiped." {
		t.Fatalf("unexpected response %q", client.lastResponse())
	}

	servers, _ := services.NewServerService(db).ListActive(guild.ID)
	if len(servers) != 0 {
		t.Errorf("expected all servers soft-deleted, got %d active", len(servers))
	}
	var configCount int64
	db.Model(&models.Configuration{}).Where("guild_id = ?", guild.ID).Count(&configCount)
	if configCount != 0 {
		t.Errorf("expected configs wiped, got %d", configCount)
	}
	if len(client.deleted) != 1 || client.deleted[0] != "m1" {
		t.Errorf("expected status message m1 deleted, got %v", client.deleted)
	}
}

func TestHandleAbout(t *testing.T) {
	h, client, _, _ := newHandlerFixture(t)

	h.HandleInteraction(context.Background(), interaction("about", nil))

	if !strings.Contains(client.lastResponse(), "**9.9.9**") {
		t.Fatalf("about should carry the version, got %q", client.lastResponse())
	}
}

func TestHandleUnknown(t *testing.T) {
	h, client, _, _ := newHandlerFixture(t)

	h.HandleInteraction(context.Background(), interaction("bogus", nil))

	if client.lastResponse() != "Unknown command, sorry!" {
		t.Fatalf("unexpected response %q", client.lastResponse())
	}
}
