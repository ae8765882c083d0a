package store

import "errors"

var (
	// ErrNotLinked is returned when no credential exists for an
	// (owner, provider) pair.
	ErrNotLinked = errors.New("no linked account for this user")

	// ErrBadDirection is returned for a message direction other than
	// "in" or "out".
	ErrBadDirection = errors.New("message direction must be \"in\" or \"out\"")
)
