package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"servicemonitor/internal/gateway"
	"servicemonitor/internal/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB 每个测试一个独立的内存库
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

func guildFixture(id, name string) gateway.Guild {
	return gateway.Guild{ID: id, Name: name, OwnerID: "owner-" + id, MemberCount: 3}
}

// fakeClient 可编程的网关客户端替身
type fakeClient struct {
	mu sync.Mutex

	guilds []gateway.Guild

	sent       []gateway.Message
	edits      map[string]string // messageID -> content
	deleted    []string
	registered []string // guild IDs
	responses  []string
	presence   string

	failFetch bool
	failSend  bool

	nextID int
}

func newFakeClient(guilds ...gateway.Guild) *fakeClient {
	return &fakeClient{guilds: guilds, edits: make(map[string]string)}
}

func (f *fakeClient) Guilds() []gateway.Guild {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.Guild(nil), f.guilds...)
}

func (f *fakeClient) Guild(id string) (gateway.Guild, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.guilds {
		if g.ID == id {
			return g, true
		}
	}
	return gateway.Guild{}, false
}

func (f *fakeClient) SendMessage(ctx context.Context, channelID, content string) (gateway.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return gateway.Message{}, fmt.Errorf("send failed")
	}
	f.nextID++
	msg := gateway.Message{
		ID:        fmt.Sprintf("msg-%d", f.nextID),
		ChannelID: channelID,
		AuthorID:  "bot-app",
		Content:   content,
	}
	f.sent = append(f.sent, msg)
	return msg, nil
}

func (f *fakeClient) FetchMessage(ctx context.Context, channelID, messageID string) (gateway.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFetch {
		return gateway.Message{}, fmt.Errorf("unknown message")
	}
	return gateway.Message{ID: messageID, ChannelID: channelID}, nil
}

func (f *fakeClient) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits[messageID] = content
	return nil
}

func (f *fakeClient) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeClient) RegisterCommand(ctx context.Context, guildID string, cmd gateway.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, guildID)
	return nil
}

func (f *fakeClient) UpdatePresence(ctx context.Context, activity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presence = activity
	return nil
}

func (f *fakeClient) Respond(ctx context.Context, i gateway.Interaction, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, content)
	return nil
}

func (f *fakeClient) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeClient) editCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.edits)
}
