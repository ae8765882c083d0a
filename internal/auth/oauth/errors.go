package oauth

import "errors"

var (
	// ErrInvalidState means the callback carried no usable state parameter.
	ErrInvalidState = errors.New("missing or malformed state parameter")

	// ErrStateNotFound covers unknown, expired, and already-consumed state
	// tokens. Callers are not told which; the fix is the same either way:
	// restart the link flow.
	ErrStateNotFound = errors.New("state token unknown, expired, or already used")

	// ErrTokenExchangeFailed means the provider (or the network) rejected
	// the authorization-code exchange.
	ErrTokenExchangeFailed = errors.New("authorization code exchange failed")
)
