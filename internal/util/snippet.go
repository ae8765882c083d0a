package util

import "fmt"

// DefaultSnippetLen is the default maximum length for message text quoted
// in log lines. Full text lives in the ledger, never in the log.
const DefaultSnippetLen = 120

// Snippet truncates chat message text for log output. This keeps log
// growth bounded while leaving enough to recognize the message.
func Snippet(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultSnippetLen
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}
