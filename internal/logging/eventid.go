// Package logging provides event ID context propagation so log lines
// from concurrently handled chat events can be correlated.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type contextKey string

const eventIDKey contextKey = "eventId"

// GenerateEventID creates an 8-character hex event ID.
func GenerateEventID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// WithEventID injects an event ID into the context.
func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, eventIDKey, eventID)
}

// EventID retrieves the event ID from the context.
// Returns empty string if not found.
func EventID(ctx context.Context) string {
	if id, ok := ctx.Value(eventIDKey).(string); ok {
		return id
	}
	return ""
}
