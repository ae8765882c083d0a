package token

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chatforge/botvault/internal/db/models"
	"github.com/chatforge/botvault/internal/store"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// ErrRefreshFailed means the refresh token is missing, revoked, or the
// provider rejected the refresh call. The stale credential stays on file
// so the user can be told why the link went bad and re-link explicitly.
var ErrRefreshFailed = errors.New("token refresh failed")

const (
	// DefaultExpiryMargin: a token this close to expiry is refreshed early
	// rather than risked on a credentialed call.
	DefaultExpiryMargin = time.Minute

	// DefaultRefreshTimeout bounds each call to the provider's token
	// endpoint. A timeout surfaces as ErrRefreshFailed, never a silent retry.
	DefaultRefreshTimeout = 30 * time.Second
)

// Guard hands out usable access tokens, refreshing expired ones behind a
// per-(owner, provider) singleflight so concurrent callers share one
// refresh call. Independent credentials refresh in parallel.
type Guard struct {
	creds   *store.CredentialStore
	group   singleflight.Group
	margin  time.Duration
	timeout time.Duration
}

func NewGuard(creds *store.CredentialStore) *Guard {
	return &Guard{
		creds:   creds,
		margin:  DefaultExpiryMargin,
		timeout: DefaultRefreshTimeout,
	}
}

// GetValidCredential returns a credential whose access token is good for
// at least the expiry margin, refreshing and persisting it first when
// needed. Returns store.ErrNotLinked when nothing is on file and
// ErrRefreshFailed when a needed refresh cannot be completed.
func (g *Guard) GetValidCredential(ctx context.Context, ownerID int64, provider string) (*models.OAuthCredential, error) {
	cred, err := g.creds.Get(ownerID, provider)
	if err != nil {
		return nil, err
	}
	if g.usable(cred) {
		return cred, nil
	}

	key := fmt.Sprintf("%d/%s", ownerID, provider)
	v, err, _ := g.group.Do(key, func() (any, error) {
		return g.refresh(ctx, ownerID, provider)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.OAuthCredential), nil
}

// usable reports whether the stored access token can be handed out as-is.
// A credential with no recorded expiry is trusted unchanged.
func (g *Guard) usable(cred *models.OAuthCredential) bool {
	if cred.TokenExpiry.IsZero() {
		return true
	}
	return time.Until(cred.TokenExpiry) > g.margin
}

func (g *Guard) refresh(ctx context.Context, ownerID int64, provider string) (*models.OAuthCredential, error) {
	// Re-read inside the flight: a refresh that finished while this caller
	// was queued is already durable.
	cred, err := g.creds.Get(ownerID, provider)
	if err != nil {
		return nil, err
	}
	if g.usable(cred) {
		return cred, nil
	}
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token on file", ErrRefreshFailed)
	}

	conf := &oauth2.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cred.TokenEndpoint},
		Scopes:       strings.Fields(cred.Scopes),
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	src := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	newTok, err := src.Token()
	if err != nil {
		log.Printf("❌ Refresh failed for user %d provider %s: %v", ownerID, provider, err)
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	cred.AccessToken = newTok.AccessToken
	cred.TokenExpiry = newTok.Expiry
	// Persist rotated refresh tokens (RFC 6749 providers may rotate)
	if newTok.RefreshToken != "" && newTok.RefreshToken != cred.RefreshToken {
		log.Printf("🔄 Rotating refresh token for user %d provider %s", ownerID, provider)
		cred.RefreshToken = newTok.RefreshToken
	}
	if err := g.creds.Put(cred); err != nil {
		return nil, err
	}

	log.Printf("✅ Refreshed %s token for user %d (token %s, expires %s)",
		provider, ownerID, maskToken(newTok.AccessToken), newTok.Expiry.Format(time.RFC3339))
	return cred, nil
}

func maskToken(t string) string {
	if len(t) < 20 {
		return t
	}
	return "..." + t[len(t)-12:]
}
