package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatforge/botvault/internal/auth/oauth"
	"github.com/chatforge/botvault/internal/auth/token"
	"github.com/chatforge/botvault/internal/bot"
	"github.com/chatforge/botvault/internal/config"
	"github.com/chatforge/botvault/internal/db"
	"github.com/chatforge/botvault/internal/store"
	"github.com/chatforge/botvault/internal/telegram"
	"github.com/chatforge/botvault/internal/version"
	"github.com/chatforge/botvault/internal/web"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

func main() {
	cfgPath := os.Getenv("BOTVAULT_CONFIG")
	if cfgPath == "" {
		cfgPath = "botvault.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	creds := store.NewCredentialStore(database)
	ledger := store.NewLedger(database)

	binder := oauth.NewStateBinder(database, oauth.DefaultStateTTL)
	binder.StartSweeper(time.Hour)

	flow := oauth.NewFlow(cfg.OAuth.Provider, cfg.OAuth.OAuth2(), binder, creds)
	guard := token.NewGuard(creds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One worker per profile, each on its own inbound stream. They share
	// only the durable stores.
	started := 0
	for _, p := range cfg.Profiles {
		if p.Token == "" {
			log.Printf("⚠️ Profile %s has no bot token, skipping", p.ID)
			continue
		}
		client := telegram.NewClient(p.Token)
		worker := bot.NewWorker(p.ID, cfg.OAuth.Provider, ledger, creds, flow, guard, client, bot.LinkSummary{})
		events := make(chan bot.InboundEvent, 16)
		go client.Poll(ctx, events)
		go worker.Run(ctx, events)
		started++
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// OAuth flow
	r.Get("/oauth/start", web.StartLinkHandler(flow))
	r.Get("/oauth/callback", web.CallbackHandler(flow))

	// Admin API over the ledger
	r.Route("/api", func(r chi.Router) {
		r.Get("/profiles/{profile}/users", web.UsersAPIHandler(ledger))
		r.Get("/profiles/{profile}/users/{chatID}/messages", web.MessagesAPIHandler(ledger))
	})

	srv := &http.Server{Addr: cfg.Listen, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("🚀 botvault %s listening on %s (%d of %d profiles running)",
		version.Version, cfg.Listen, started, len(cfg.Profiles))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
}
