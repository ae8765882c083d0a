package oauth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

type idTokenClaims struct {
	Email string `json:"email"`
}

// accountAddress pulls the account email out of the id_token returned
// alongside the access token, when there is one. The signature is not
// verified; the value is display metadata, not an authentication input.
func accountAddress(tok *oauth2.Token) string {
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return ""
	}
	claims, err := parseIDToken(raw)
	if err != nil {
		return ""
	}
	return claims.Email
}

func parseIDToken(token string) (*idTokenClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid JWT format: expected 3 parts, got %d", len(parts))
	}

	payload := parts[1]
	switch len(payload) % 4 {
	case 2:
		payload += "=="
	case 3:
		payload += "="
	}

	data, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JWT payload: %w", err)
	}

	var claims idTokenClaims
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse JWT claims: %w", err)
	}
	return &claims, nil
}
