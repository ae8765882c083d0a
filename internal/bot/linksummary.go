package bot

import (
	"context"
	"fmt"

	"github.com/chatforge/botvault/internal/db/models"
)

// LinkSummary is a minimal AccountReader reporting only what the
// credential itself records. Feature bots swap in a real provider client
// behind the same interface.
type LinkSummary struct{}

func (LinkSummary) FetchAccountData(_ context.Context, cred *models.OAuthCredential) (string, error) {
	address := cred.AccountAddress
	if address == "" {
		address = "(address unknown)"
	}
	return fmt.Sprintf("✅ Your %s account %s is linked and its token is valid.", cred.Provider, address), nil
}
