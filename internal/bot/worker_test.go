package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chatforge/botvault/internal/auth/oauth"
	"github.com/chatforge/botvault/internal/auth/token"
	"github.com/chatforge/botvault/internal/db/models"
	"github.com/chatforge/botvault/internal/store"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

type fakeTransport struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeTransport) SendMessage(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeTransport) lastSent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

func newTestWorker(t *testing.T) (*Worker, *fakeTransport, *store.Ledger, *store.CredentialStore) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&models.EndUser{},
		&models.Message{},
		&models.OAuthCredential{},
		&models.OAuthStateBinding{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	ledger := store.NewLedger(db)
	creds := store.NewCredentialStore(db)
	binder := oauth.NewStateBinder(db, oauth.DefaultStateTTL)
	conf := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8001/oauth/callback",
		Scopes:       []string{"scope.a"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.example.com/auth",
			TokenURL: "https://oauth2.example.com/token",
		},
	}
	flow := oauth.NewFlow("gmail", conf, binder, creds)
	guard := token.NewGuard(creds)
	transport := &fakeTransport{}
	w := NewWorker("quran", "gmail", ledger, creds, flow, guard, transport, LinkSummary{})
	return w, transport, ledger, creds
}

func event(text string) InboundEvent {
	return InboundEvent{ChatID: 7, ChatType: "private", Username: "ali", FirstName: "Ali", Text: text}
}

func TestHandleRecordsBothDirections(t *testing.T) {
	w, transport, ledger, _ := newTestWorker(t)

	if err := w.handle(context.Background(), event("/start")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if transport.lastSent() == "" {
		t.Fatal("no reply sent")
	}

	msgs, err := ledger.ListMessages(7, "quran", 50)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected inbound + outbound rows, got %d", len(msgs))
	}
	// Most recent first: the reply, then the command
	if msgs[0].Direction != models.DirectionOut || msgs[1].Direction != models.DirectionIn {
		t.Fatalf("directions wrong: %q, %q", msgs[0].Direction, msgs[1].Direction)
	}
	if msgs[1].Text != "/start" {
		t.Fatalf("inbound text %q", msgs[1].Text)
	}

	users, err := ledger.ListUsers("quran")
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 || users[0].ExternalID != 7 {
		t.Fatalf("user not upserted: %+v", users)
	}
}

func TestHandleChatterIsRecordedButNotAnswered(t *testing.T) {
	w, transport, ledger, _ := newTestWorker(t)

	if err := w.handle(context.Background(), event("just chatting")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := transport.lastSent(); got != "" {
		t.Fatalf("chatter must not be answered, got %q", got)
	}

	msgs, err := ledger.ListMessages(7, "quran", 50)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Direction != models.DirectionIn {
		t.Fatalf("inbound chatter must still be recorded: %+v", msgs)
	}
}

func TestLinkCommandRepliesWithConsentURL(t *testing.T) {
	w, transport, _, _ := newTestWorker(t)

	if err := w.handle(context.Background(), event("/link")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	reply := transport.lastSent()
	if !strings.Contains(reply, "https://accounts.example.com/auth") {
		t.Fatalf("reply carries no consent url: %q", reply)
	}
	if !strings.Contains(reply, "state=") {
		t.Fatalf("consent url carries no state: %q", reply)
	}
}

func TestLinkCommandWithBotSuffix(t *testing.T) {
	w, transport, _, _ := newTestWorker(t)

	if err := w.handle(context.Background(), event("/link@quran_bot")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(transport.lastSent(), "https://accounts.example.com/auth") {
		t.Fatalf("group-style command not recognized: %q", transport.lastSent())
	}
}

func TestAccountsCommandNotLinked(t *testing.T) {
	w, transport, _, _ := newTestWorker(t)

	if err := w.handle(context.Background(), event("/accounts")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(transport.lastSent(), "/link") {
		t.Fatalf("unlinked user must be pointed at /link: %q", transport.lastSent())
	}
}

func TestAccountsCommandLinked(t *testing.T) {
	w, transport, _, creds := newTestWorker(t)

	err := creds.Put(&models.OAuthCredential{
		OwnerID:        7,
		Provider:       "gmail",
		AccountAddress: "ali@example.com",
		AccessToken:    "a1",
		TokenExpiry:    time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("seed credential: %v", err)
	}

	if err := w.handle(context.Background(), event("/accounts")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(transport.lastSent(), "ali@example.com") {
		t.Fatalf("linked summary missing address: %q", transport.lastSent())
	}
}

func TestUnlinkCommandKeepsHistory(t *testing.T) {
	w, _, ledger, creds := newTestWorker(t)

	if err := creds.Put(&models.OAuthCredential{OwnerID: 7, Provider: "gmail", AccessToken: "a1"}); err != nil {
		t.Fatalf("seed credential: %v", err)
	}
	if err := w.handle(context.Background(), event("/unlink")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if _, err := creds.Get(7, "gmail"); err == nil {
		t.Fatal("credential should be gone after /unlink")
	}
	msgs, err := ledger.ListMessages(7, "quran", 50)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) == 0 {
		t.Fatal("message history must survive /unlink")
	}
}

func TestSendFailureSurfaces(t *testing.T) {
	w, transport, ledger, _ := newTestWorker(t)
	transport.err = fmt.Errorf("network down")

	if err := w.handle(context.Background(), event("/start")); err == nil {
		t.Fatal("transport failure must surface from handle")
	}

	// The inbound row is already durable; no outbound row was written
	msgs, err := ledger.ListMessages(7, "quran", 50)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Direction != models.DirectionIn {
		t.Fatalf("ledger state after failed send: %+v", msgs)
	}
}
