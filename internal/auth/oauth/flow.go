package oauth

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/chatforge/botvault/internal/db/models"
	"github.com/chatforge/botvault/internal/store"
	"golang.org/x/oauth2"
)

// DefaultExchangeTimeout bounds the code-exchange call to the provider's
// token endpoint.
const DefaultExchangeTimeout = 30 * time.Second

// Flow drives the authorization-code exchange that links a third-party
// account to an end-user. It is the only path that creates or overwrites
// a credential from a fresh authorization.
type Flow struct {
	provider string
	conf     *oauth2.Config
	binder   *StateBinder
	creds    *store.CredentialStore
	timeout  time.Duration
}

func NewFlow(provider string, conf *oauth2.Config, binder *StateBinder, creds *store.CredentialStore) *Flow {
	return &Flow{
		provider: provider,
		conf:     conf,
		binder:   binder,
		creds:    creds,
		timeout:  DefaultExchangeTimeout,
	}
}

// StartLink issues a state token bound to ownerID and returns the
// provider consent URL carrying it. Offline access plus forced consent
// guarantees a refresh token even when the user re-links.
func (f *Flow) StartLink(ownerID int64) (string, error) {
	state, err := f.binder.Issue(ownerID)
	if err != nil {
		return "", err
	}
	return f.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// CompleteLink handles the provider callback: it resolves and consumes
// the state token, exchanges the code, and persists the credential for
// the resolved owner. The returned credential's account address is
// best-effort; a provider that sends no id_token leaves it empty.
func (f *Flow) CompleteLink(ctx context.Context, query url.Values) (*models.OAuthCredential, error) {
	state := query.Get("state")
	if state == "" {
		return nil, ErrInvalidState
	}

	ownerID, err := f.binder.ResolveAndConsume(state)
	if err != nil {
		return nil, err
	}

	code := query.Get("code")
	if code == "" {
		return nil, fmt.Errorf("%w: callback carried no code", ErrTokenExchangeFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	tok, err := f.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}

	cred := &models.OAuthCredential{
		OwnerID:        ownerID,
		Provider:       f.provider,
		AccountAddress: accountAddress(tok),
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		TokenExpiry:    tok.Expiry,
		TokenEndpoint:  f.conf.Endpoint.TokenURL,
		ClientID:       f.conf.ClientID,
		ClientSecret:   f.conf.ClientSecret,
		Scopes:         strings.Join(f.conf.Scopes, " "),
	}
	if err := f.creds.Put(cred); err != nil {
		return nil, err
	}

	log.Printf("🔗 Linked %s account for user %d (%s)", f.provider, ownerID, cred.AccountAddress)
	return cred, nil
}
