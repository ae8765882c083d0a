package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/chatforge/botvault/internal/auth/oauth"
	"github.com/chatforge/botvault/internal/auth/token"
	"github.com/chatforge/botvault/internal/db/models"
	"github.com/chatforge/botvault/internal/logging"
	"github.com/chatforge/botvault/internal/store"
	"github.com/chatforge/botvault/internal/util"
)

// Transport sends messages to a resolved chat target. The concrete
// messaging-provider client lives outside the core.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// AccountReader fetches a short, user-presentable summary of the linked
// external account using already-valid credentials.
type AccountReader interface {
	FetchAccountData(ctx context.Context, cred *models.OAuthCredential) (string, error)
}

// InboundEvent is one message received from the chat platform.
type InboundEvent struct {
	ChatID    int64
	ChatType  string
	Username  string
	FirstName string
	LastName  string
	Text      string
}

// Worker runs one bot profile: it consumes the profile's inbound event
// stream, records every event in the ledger under the profile tag, and
// answers the account-linking commands. Each profile runs its own Worker;
// they share only the durable stores.
type Worker struct {
	profileID string
	provider  string
	ledger    *store.Ledger
	creds     *store.CredentialStore
	flow      *oauth.Flow
	guard     *token.Guard
	transport Transport
	accounts  AccountReader
}

func NewWorker(profileID, provider string, ledger *store.Ledger, creds *store.CredentialStore,
	flow *oauth.Flow, guard *token.Guard, transport Transport, accounts AccountReader) *Worker {
	return &Worker{
		profileID: profileID,
		provider:  provider,
		ledger:    ledger,
		creds:     creds,
		flow:      flow,
		guard:     guard,
		transport: transport,
		accounts:  accounts,
	}
}

// Run consumes events until the context is cancelled or the channel
// closes. Events are handled concurrently, one goroutine per event, each
// tagged with an event ID for log correlation.
func (w *Worker) Run(ctx context.Context, events <-chan InboundEvent) {
	log.Printf("🤖 [%s] worker started", w.profileID)
	for {
		select {
		case <-ctx.Done():
			log.Printf("🛑 [%s] worker stopped: %v", w.profileID, ctx.Err())
			return
		case ev, ok := <-events:
			if !ok {
				log.Printf("🛑 [%s] event stream closed", w.profileID)
				return
			}
			evCtx := logging.WithEventID(ctx, logging.GenerateEventID())
			go func(ev InboundEvent) {
				if err := w.handle(evCtx, ev); err != nil {
					log.Printf("❌ [%s] event %s from chat %d: %v",
						w.profileID, logging.EventID(evCtx), ev.ChatID, err)
				}
			}(ev)
		}
	}
}

// handle records the inbound event and answers it. Ledger failures are
// returned, never dropped.
func (w *Worker) handle(ctx context.Context, ev InboundEvent) error {
	if err := w.ledger.UpsertUser(ev.ChatID, ev.ChatType, ev.Username, ev.FirstName, ev.LastName, w.profileID); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	if err := w.ledger.AppendMessage(ev.ChatID, models.DirectionIn, ev.Text, w.profileID); err != nil {
		return fmt.Errorf("append inbound message: %w", err)
	}
	log.Printf("📥 [%s] event %s chat %d: %s",
		w.profileID, logging.EventID(ctx), ev.ChatID, util.Snippet(ev.Text, 0))

	reply := w.dispatch(ctx, ev)
	if reply == "" {
		return nil
	}
	return w.send(ctx, ev.ChatID, reply)
}

// send delivers an outbound message and appends it to the ledger.
func (w *Worker) send(ctx context.Context, chatID int64, text string) error {
	if err := w.transport.SendMessage(ctx, chatID, text); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if err := w.ledger.AppendMessage(chatID, models.DirectionOut, text, w.profileID); err != nil {
		return fmt.Errorf("append outbound message: %w", err)
	}
	return nil
}

// dispatch maps a command to its reply text. Non-command chatter is
// recorded but not answered; the bots' content logic lives elsewhere.
func (w *Worker) dispatch(ctx context.Context, ev InboundEvent) string {
	cmd := ev.Text
	if i := strings.IndexByte(cmd, ' '); i >= 0 {
		cmd = cmd[:i]
	}
	// Strip the @botname suffix groups attach to commands
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/start":
		return fmt.Sprintf("👋 Welcome! This is the %s bot.\nUse /link to connect your %s account, /accounts to check it, /unlink to remove it.",
			w.profileID, w.provider)
	case "/link":
		return w.cmdLink(ev.ChatID)
	case "/unlink":
		return w.cmdUnlink(ev.ChatID)
	case "/accounts":
		return w.cmdAccounts(ctx, ev.ChatID)
	default:
		return ""
	}
}

func (w *Worker) cmdLink(chatID int64) string {
	url, err := w.flow.StartLink(chatID)
	if err != nil {
		log.Printf("⚠️ [%s] start link for chat %d: %v", w.profileID, chatID, err)
		return "Could not start the link flow, please try /link again."
	}
	return fmt.Sprintf("🔗 Open this URL to connect your %s account:\n%s\n\nThe link is valid for %s and can be used once.",
		w.provider, url, oauth.DefaultStateTTL)
}

func (w *Worker) cmdUnlink(chatID int64) string {
	if err := w.creds.Delete(chatID, w.provider); err != nil {
		log.Printf("⚠️ [%s] unlink chat %d: %v", w.profileID, chatID, err)
		return "Could not remove the account link, please try again."
	}
	return fmt.Sprintf("🗑 Your %s account link was removed. Your message history is untouched.", w.provider)
}

func (w *Worker) cmdAccounts(ctx context.Context, chatID int64) string {
	cred, err := w.guard.GetValidCredential(ctx, chatID, w.provider)
	switch {
	case errors.Is(err, store.ErrNotLinked):
		return fmt.Sprintf("No %s account is linked yet. Use /link to connect one.", w.provider)
	case errors.Is(err, token.ErrRefreshFailed):
		// The stale credential stays on file; only the user can fix this.
		return fmt.Sprintf("⚠️ Your %s account link is stale and could not be refreshed. Use /link to re-establish it; your message history is kept.", w.provider)
	case err != nil:
		log.Printf("⚠️ [%s] get credential for chat %d: %v", w.profileID, chatID, err)
		return "Something went wrong looking up your account, please try again."
	}

	summary, err := w.accounts.FetchAccountData(ctx, cred)
	if err != nil {
		log.Printf("⚠️ [%s] fetch account data for chat %d: %v", w.profileID, chatID, err)
		return fmt.Sprintf("Your %s account (%s) is linked, but fetching its data failed. Please try again later.",
			w.provider, cred.AccountAddress)
	}
	return summary
}
