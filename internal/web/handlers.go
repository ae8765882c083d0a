// Package web exposes the OAuth endpoints and the small admin API over
// the conversation ledger.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/chatforge/botvault/internal/auth/oauth"
	"github.com/chatforge/botvault/internal/store"
	"github.com/go-chi/chi/v5"
)

// StartLinkHandler redirects the browser to the provider consent page
// with a freshly issued state token bound to the owner.
func StartLinkHandler(flow *oauth.Flow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := strconv.ParseInt(r.URL.Query().Get("owner"), 10, 64)
		if err != nil {
			http.Error(w, "owner must be a numeric chat identifier", http.StatusBadRequest)
			return
		}
		authURL, err := flow.StartLink(ownerID)
		if err != nil {
			http.Error(w, "Could not start the link flow, please retry", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
	}
}

// CallbackHandler terminates the authorization-code flow. The response
// is a plain terminal page for the browser; it never contains token
// material.
func CallbackHandler(flow *oauth.Flow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cred, err := flow.CompleteLink(r.Context(), r.URL.Query())
		switch {
		case errors.Is(err, oauth.ErrInvalidState):
			failPage(w, http.StatusBadRequest, "The callback was missing its state parameter. Start the link flow again from the bot.")
			return
		case errors.Is(err, oauth.ErrStateNotFound):
			failPage(w, http.StatusBadRequest, "This link is expired or was already used. Links are single-use; start again from the bot.")
			return
		case errors.Is(err, oauth.ErrTokenExchangeFailed):
			failPage(w, http.StatusBadGateway, "The provider rejected the authorization. Start the link flow again from the bot.")
			return
		case err != nil:
			failPage(w, http.StatusInternalServerError, "Something went wrong saving the link. Start the link flow again from the bot.")
			return
		}

		address := cred.AccountAddress
		if address == "" {
			address = "your account"
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>Account Linked</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; background: #1a1a2e; color: #eee; }
		.success { color: #4ade80; }
	</style>
</head>
<body>
	<h1 class="success">✅ Account linked</h1>
	<p><strong>%s</strong> is now connected to the bot.</p>
	<p>You can close this window and return to the chat.</p>
</body>
</html>`, address)
	}
}

func failPage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>Link Failed</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; background: #1a1a2e; color: #eee; }
		.fail { color: #f87171; }
	</style>
</head>
<body>
	<h1 class="fail">❌ Link failed</h1>
	<p>%s</p>
</body>
</html>`, message)
}

// UsersAPIHandler lists the users most recently seen by one profile.
func UsersAPIHandler(ledger *store.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID := chi.URLParam(r, "profile")
		users, err := ledger.ListUsers(profileID)
		if err != nil {
			http.Error(w, "Failed to list users", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(users)
	}
}

// MessagesAPIHandler lists recent messages for one chat under one
// profile. Rows from other profiles never appear here.
func MessagesAPIHandler(ledger *store.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID := chi.URLParam(r, "profile")
		chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
		if err != nil {
			http.Error(w, "chatID must be numeric", http.StatusBadRequest)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		msgs, err := ledger.ListMessages(chatID, profileID, limit)
		if err != nil {
			http.Error(w, "Failed to list messages", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(msgs)
	}
}
